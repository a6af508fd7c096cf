package service

import (
	"io"

	"github.com/go-json-experiment/json"

	"github.com/fulldump/dbcextract/data"
	"github.com/fulldump/dbcextract/utils"
)

// WriteRecord writes r as one JSON line, keeping only paths when given.
func WriteRecord(w io.Writer, r data.Record, paths []string) error {

	b, err := json.Marshal(r.Map(), json.Deterministic(true))
	if err != nil {
		return err
	}

	b, err = utils.Project(b, paths)
	if err != nil {
		return err
	}

	_, err = w.Write(append(b, '\n'))
	return err
}
