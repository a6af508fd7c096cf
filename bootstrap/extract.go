package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-json-experiment/json"
	"go.uber.org/zap"

	"github.com/fulldump/dbcextract/configuration"
	"github.com/fulldump/dbcextract/data"
	"github.com/fulldump/dbcextract/dbc"
	"github.com/fulldump/dbcextract/service"
)

var ErrNoTable = errors.New("no table given")

// Extract writes the records of c.Table as JSON lines to w: the record with
// c.Id, or every record matching c.Filter. Hotfix records follow the table
// records when c.Hotfix is set.
func Extract(c *configuration.Configuration, logger *zap.Logger, w io.Writer) error {

	if c.Table == "" {
		return ErrNoTable
	}
	if c.Id > math.MaxUint32 {
		return fmt.Errorf("id %d out of range", c.Id)
	}

	db := newDatabase(c, logger)
	err := db.Load()
	if err != nil {
		return err
	}
	defer db.Stop()

	s := service.NewService(db)
	name := dbc.SchemaName(c.Table)

	q := &service.Query{
		Filter: map[string]interface{}{},
		Limit:  -1,
		Select: splitSelect(c.Select),
	}
	if c.Filter != "" {
		err := json.Unmarshal([]byte(c.Filter), &q.Filter)
		if err != nil {
			return fmt.Errorf("filter: %w", err)
		}
	}

	write := func(r data.Record) error {
		return service.WriteRecord(w, r, q.Select)
	}

	if c.Id >= 0 {
		r, err := s.GetRecord(name, uint32(c.Id))
		if errors.Is(err, service.ErrorRecordNotFound) {
			logger.Warn("record not found", zap.String("table", name), zap.Int64("id", c.Id))
		} else if err != nil {
			return err
		} else if err := write(r); err != nil {
			return err
		}
		q.Filter = map[string]interface{}{"id": float64(c.Id)}
	} else {
		err := s.Find(name, q, write)
		if err != nil {
			return err
		}
	}

	if c.Hotfix == "" {
		return nil
	}

	return s.Hotfixes(name, q, write)
}

func splitSelect(s string) []string {
	paths := []string{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
