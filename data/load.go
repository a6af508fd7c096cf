package data

import (
	"fmt"
	"os"

	"github.com/go-json-experiment/json"

	"github.com/fulldump/dbcextract/format"
)

type schemaFile struct {
	Name   string      `json:"name"`
	Fields []fieldFile `json:"fields"`
}

type fieldFile struct {
	Name  string      `json:"name"`
	Kind  format.Kind `json:"kind"`
	Width int         `json:"width,omitzero"`
	Count int         `json:"count,omitzero"`
}

// LoadSchemas reads a JSON list of schemas from filename and registers a
// decoder for each one into r. Width defaults to 4 and count to 1.
func LoadSchemas(filename string, r *Registry) ([]string, error) {

	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}

	files := []schemaFile{}
	err = json.Unmarshal(b, &files)
	if err != nil {
		return nil, fmt.Errorf("decode schemas '%s': %w", filename, err)
	}

	decoders := make([]*SchemaDecoder, 0, len(files))
	for _, sf := range files {
		s := &Schema{
			Name:   sf.Name,
			Fields: make(format.Layout, len(sf.Fields)),
		}
		for i, ff := range sf.Fields {
			f := format.Field{
				Name:  ff.Name,
				Kind:  ff.Kind,
				Width: ff.Width,
				Count: ff.Count,
			}
			if f.Width == 0 {
				f.Width = 4
			}
			if f.Count == 0 {
				f.Count = 1
			}
			s.Fields[i] = f
		}

		d, err := NewSchemaDecoder(s)
		if err != nil {
			return nil, err
		}
		decoders = append(decoders, d)
	}

	names := make([]string, 0, len(decoders))
	for _, d := range decoders {
		r.Register(d)
		names = append(names, d.Name())
	}

	return names, nil
}
