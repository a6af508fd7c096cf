package main

import (
	"fmt"
	"os"

	"github.com/fulldump/goconfig"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"go.uber.org/zap"

	"github.com/fulldump/dbcextract/bootstrap"
	"github.com/fulldump/dbcextract/configuration"
)

var banner = `
     _ _                   _                  _
  __| | |__   ___ _____  _| |_ _ __ __ _  ___| |_
 / _' | '_ \ / __/ _ \ \/ / __| '__/ _' |/ __| __|
| (_| | |_) | (_|  __/>  <| |_| | | (_| | (__| |_
 \__,_|_.__/ \___\___/_/\_\\__|_|  \__,_|\___|\__|
                              version ` + bootstrap.VERSION + `
`

func main() {

	c := configuration.Default()
	goconfig.Read(&c)

	if c.Version {
		fmt.Println("Version:", bootstrap.VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Fprintln(os.Stderr, banner)
	}

	if c.ShowConfig {
		json.MarshalWrite(os.Stderr, c, jsontext.WithIndent("    "))
		fmt.Fprintln(os.Stderr)
	}

	logger, err := bootstrap.NewLogger(c.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err.Error())
		os.Exit(-1)
	}
	defer logger.Sync()

	if !c.Serve {
		err := bootstrap.Extract(&c, logger, os.Stdout)
		if err != nil {
			logger.Error("extract", zap.Error(err))
			logger.Sync()
			os.Exit(1)
		}
		return
	}

	start, _, err := bootstrap.Bootstrap(&c, logger)
	if err != nil {
		logger.Error("bootstrap", zap.Error(err))
		logger.Sync()
		os.Exit(-1)
	}
	start()
}
