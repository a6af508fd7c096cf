package service

import (
	"errors"

	"github.com/fulldump/dbcextract/data"
)

var (
	ErrorTableNotFound     = errors.New("table not found")
	ErrorRecordNotFound    = errors.New("record not found")
	ErrorHotfixUnavailable = errors.New("hotfix cache unavailable")
)

type Servicer interface {
	ListTables() ([]*Table, error)
	GetTable(name string) (*Table, error)
	GetRecord(name string, id uint32) (data.Record, error)
	Find(name string, q *Query, f func(r data.Record) error) error
	Hotfixes(name string, q *Query, f func(r data.Record) error) error
}
