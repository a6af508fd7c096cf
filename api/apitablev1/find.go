package apitablev1

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/fulldump/box"
	"github.com/go-json-experiment/json"

	"github.com/fulldump/dbcextract/data"
	"github.com/fulldump/dbcextract/service"
)

type queryInput struct {
	Filter map[string]interface{} `json:"filter"`
	Skip   int64                  `json:"skip"`
	Limit  *int64                 `json:"limit"`
	Select []string               `json:"select"`
}

// readQuery reads the query in the request body. An empty body is the
// default query.
func readQuery(r *http.Request) (*service.Query, error) {

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	q := service.NewQuery()
	if len(bytes.TrimSpace(body)) == 0 {
		return q, nil
	}

	input := queryInput{}
	err = json.Unmarshal(body, &input)
	if err != nil {
		return nil, err
	}

	if input.Filter != nil {
		q.Filter = input.Filter
	}
	q.Skip = input.Skip
	if input.Limit != nil {
		q.Limit = *input.Limit
	}
	q.Select = input.Select

	return q, nil
}

func writeRecord(w http.ResponseWriter, q *service.Query) func(r data.Record) error {
	return func(r data.Record) error {
		return service.WriteRecord(w, r, q.Select)
	}
}

func find(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	q, err := readQuery(r)
	if err != nil {
		return err
	}

	s := GetServicer(ctx)
	tableName := box.GetUrlParameter(ctx, "tableName")

	return s.Find(tableName, q, writeRecord(w, q))
}

func hotfixes(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	q, err := readQuery(r)
	if err != nil {
		return err
	}

	s := GetServicer(ctx)
	tableName := box.GetUrlParameter(ctx, "tableName")

	return s.Hotfixes(tableName, q, writeRecord(w, q))
}
