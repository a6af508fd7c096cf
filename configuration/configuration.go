package configuration

type Configuration struct {
	Dir     string `usage:"directory holding the table files"`
	Table   string `usage:"table to extract, by file name with or without extension"`
	Hotfix  string `usage:"hotfix cache file (DBCache.bin)"`
	Id      int64  `usage:"extract only the record with this id, -1 for every record"`
	Filter  string `usage:"JSON filter records must match"`
	Select  string `usage:"comma separated fields to output"`
	Raw     bool   `usage:"decode every table as raw data"`
	Schemas string `usage:"JSON file with extra table schemas"`

	Serve             bool   `usage:"serve the browse API instead of extracting"`
	HttpAddr          string `usage:"HTTP address"`
	ApiKey            string `usage:"API key required by the browse API"`
	ApiSecret         string `usage:"API secret required by the browse API"`
	EnableCompression bool   `usage:"gzip API responses"`

	Debug      bool `usage:"development logging"`
	Version    bool `usage:"show version and exit"`
	ShowBanner bool `usage:"show big banner"`
	ShowConfig bool `usage:"print config"`
}

func Default() Configuration {
	return Configuration{
		Dir:      ".",
		Id:       -1,
		HttpAddr: "127.0.0.1:8080",
	}
}
