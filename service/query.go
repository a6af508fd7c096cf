package service

import (
	"fmt"

	"github.com/SierraSoftworks/connor"

	"github.com/fulldump/dbcextract/data"
	"github.com/fulldump/dbcextract/utils"
)

// Query selects records in a fullscan. A negative Limit means no limit.
// Select keeps only the given gjson paths of every written record.
type Query struct {
	Filter map[string]interface{} `json:"filter"`
	Skip   int64                  `json:"skip"`
	Limit  int64                  `json:"limit"`
	Select []string               `json:"select,omitzero"`
}

func NewQuery() *Query {
	return &Query{
		Filter: map[string]interface{}{},
		Skip:   0,
		Limit:  1,
	}
}

type rows interface {
	Next() bool
	Record() data.Record
	Err() error
}

func traverse(it rows, q *Query, f func(r data.Record) error) error {

	hasFilter := q.Filter != nil && len(q.Filter) > 0

	skip := q.Skip
	limit := q.Limit
	for limit != 0 && it.Next() {
		r := it.Record()

		if hasFilter {
			doc := map[string]interface{}{}
			err := utils.Remarshal(r.Map(), &doc)
			if err != nil {
				return fmt.Errorf("record %d: %w", r.ID(), err)
			}

			match, err := connor.Match(q.Filter, doc)
			if err != nil {
				return fmt.Errorf("match: %w", err)
			}
			if !match {
				continue
			}
		}

		if skip > 0 {
			skip--
			continue
		}

		limit--
		err := f(r)
		if err != nil {
			return err
		}
	}

	return it.Err()
}
