package dbc

import (
	"fmt"

	"github.com/fulldump/dbcextract/data"
)

// TableIterator walks every record of a table in file order.
type TableIterator struct {
	table  *Table
	cursor int
	count  int
	record data.Record
	err    error
}

func (it *TableIterator) Next() bool {
	it.record = nil
	if it.err != nil || it.cursor >= it.count {
		return false
	}

	parser := it.table.parser
	loc, err := parser.RecordInfo(it.cursor)
	if err != nil {
		it.err = err
		return false
	}
	raw, err := parser.Record(loc)
	if err != nil {
		it.err = err
		return false
	}
	it.cursor++

	r, err := it.table.Decoder().Decode(parser, loc.ID, raw, loc.KeyID)
	if err != nil {
		it.err = fmt.Errorf("record %d: %w", loc.Index, err)
		return false
	}

	it.record = r
	return true
}

func (it *TableIterator) Record() data.Record {
	return it.record
}

func (it *TableIterator) Err() error {
	return it.err
}
