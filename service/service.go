package service

import (
	"errors"
	"fmt"

	"github.com/fulldump/dbcextract/data"
	"github.com/fulldump/dbcextract/database"
	"github.com/fulldump/dbcextract/dbc"
	"github.com/fulldump/dbcextract/format"
)

type Service struct {
	db *database.Database
}

func NewService(db *database.Database) *Service {
	return &Service{
		db: db,
	}
}

type Table struct {
	Name      string         `json:"name"`
	Schema    string         `json:"schema"`
	Decoder   string         `json:"decoder"`
	Records   int            `json:"records"`
	TableHash uint32         `json:"table_hash"`
	Framing   format.Framing `json:"framing"`
	Hotfixes  int            `json:"hotfixes"`
}

func (s *Service) table(name string) (*dbc.Table, error) {
	t, err := s.db.Table(name)
	if errors.Is(err, database.ErrTableNotFound) {
		return nil, fmt.Errorf("%w: '%s'", ErrorTableNotFound, name)
	}
	return t, err
}

func (s *Service) describe(name string, t *dbc.Table) *Table {
	result := &Table{
		Name:      name,
		Schema:    t.SchemaName(),
		Decoder:   t.Decoder().Name(),
		Records:   t.NumRecords(),
		TableHash: t.TableHash(),
		Framing:   t.Framing(),
	}
	if hotfix := s.db.Hotfix(); hotfix != nil {
		result.Hotfixes = hotfix.Parser().NumEntries(t)
	}
	return result
}

func (s *Service) ListTables() ([]*Table, error) {
	result := []*Table{}

	for _, name := range s.db.TableNames() {
		t, err := s.table(name)
		if err != nil {
			return nil, err
		}
		result = append(result, s.describe(name, t))
	}

	return result, nil
}

func (s *Service) GetTable(name string) (*Table, error) {
	t, err := s.table(name)
	if err != nil {
		return nil, err
	}
	return s.describe(name, t), nil
}

func (s *Service) GetRecord(name string, id uint32) (data.Record, error) {
	t, err := s.table(name)
	if err != nil {
		return nil, err
	}

	r, found, err := t.Find(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s %d", ErrorRecordNotFound, name, id)
	}

	return r, nil
}

func (s *Service) Find(name string, q *Query, f func(r data.Record) error) error {
	t, err := s.table(name)
	if err != nil {
		return err
	}
	return traverse(t.Iterate(), q, f)
}

func (s *Service) Hotfixes(name string, q *Query, f func(r data.Record) error) error {
	t, err := s.table(name)
	if err != nil {
		return err
	}

	hotfix := s.db.Hotfix()
	if hotfix == nil {
		return ErrorHotfixUnavailable
	}

	return traverse(hotfix.Entries(t), q, f)
}
