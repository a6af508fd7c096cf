// Package dbc opens table files and hotfix caches and resolves their records
// into decoded data.Record values.
package dbc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fulldump/dbcextract/data"
	"github.com/fulldump/dbcextract/format"
)

type Table struct {
	name   string // as requested
	path   string // resolved
	parser format.Parser

	logger   *zap.Logger
	registry *data.Registry
	raw      bool

	schemaOnce sync.Once
	schemaName string

	decoderOnce sync.Once
	decoder     data.Decoder
}

// Open opens the table file at path, or at path + ".db2" when the former
// does not exist.
func Open(path string, opts ...Option) (*Table, error) {

	resolved, err := resolve(path)
	if err != nil {
		return nil, err
	}

	parser, err := parserFor(resolved)
	if err != nil {
		return nil, err
	}

	err = parser.Open()
	if err != nil {
		parser.Close()
		return nil, fmt.Errorf("%w %s: %w", ErrParse, resolved, err)
	}

	return newTable(path, resolved, parser, newOptions(opts)), nil
}

func newTable(name, path string, parser format.Parser, o *options) *Table {
	return &Table{
		name:     name,
		path:     path,
		parser:   parser,
		logger:   o.logger,
		registry: o.registry,
		raw:      o.raw,
	}
}

func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
	}

	for _, suffix := range []string{"", ".db2"} {
		candidate := abs + suffix
		f, err := os.Open(candidate)
		if err != nil {
			continue
		}
		info, err := f.Stat()
		f.Close()
		if err != nil || info.IsDir() {
			continue
		}
		return candidate, nil
	}

	return "", fmt.Errorf("%w through %s", ErrNotFound, path)
}

// SchemaName is the file base name up to its first dot, with hyphens
// replaced by underscores.
func (t *Table) SchemaName() string {
	t.schemaOnce.Do(func() {
		t.schemaName = SchemaName(t.name)
	})
	return t.schemaName
}

func SchemaName(path string) string {
	base := filepath.Base(path)
	base, _, _ = strings.Cut(base, ".")
	return strings.ReplaceAll(base, "-", "_")
}

// DecoderFor resolves the decoder for name the first time it is called and
// returns that same decoder for the lifetime of the table.
func (t *Table) DecoderFor(name string) data.Decoder {
	t.decoderOnce.Do(func() {
		if t.raw {
			t.decoder = data.Raw
			return
		}

		d, err := t.registry.Lookup(name)
		if err != nil {
			t.logger.Warn("unable to determine data format",
				zap.String("schema", name),
				zap.String("path", t.path),
				zap.Error(err),
			)
			d = data.Raw
		}
		t.decoder = d
	})
	return t.decoder
}

func (t *Table) Decoder() data.Decoder {
	return t.DecoderFor(t.SchemaName())
}

// Find returns the record with exactly id. Missing ids, including ids the
// parser resolves to a following record, are reported as not found.
func (t *Table) Find(id uint32) (data.Record, bool, error) {

	loc, err := t.parser.DBCInfo(id)
	if err != nil {
		return nil, false, err
	}
	if loc.ID != id {
		return nil, false, nil
	}

	raw, err := t.parser.Record(loc)
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}

	r, err := t.Decoder().Decode(t.parser, loc.ID, raw, loc.KeyID)
	if err != nil {
		return nil, false, err
	}

	return r, true, nil
}

func (t *Table) Iterate() *TableIterator {
	return &TableIterator{
		table: t,
		count: t.parser.NumRecords(),
	}
}

func (t *Table) NumRecords() int {
	return t.parser.NumRecords()
}

func (t *Table) TableHash() uint32 {
	return t.parser.TableHash()
}

// Layout is the layout hotfix payloads of this table are read with: the
// fields of its schema, or the parser layout for untyped tables.
func (t *Table) Layout() format.Layout {
	if d, ok := t.Decoder().(*data.SchemaDecoder); ok {
		return d.Schema().Fields
	}
	return t.parser.Layout()
}

// Framing reports the id block and key block fields that hotfix payloads of
// this table carry. Only expanded schemas are framed.
func (t *Table) Framing() format.Framing {
	if !data.IsExpandedHotfix(t.SchemaName()) {
		return format.Framing{}
	}
	return format.Framing{
		IDBlock:  t.parser.HasIDBlock(),
		KeyBlock: t.parser.HasKeyBlock(),
	}
}

func (t *Table) Parser() format.Parser {
	return t.parser
}

func (t *Table) Path() string {
	return t.path
}

func (t *Table) Close() error {
	return t.parser.Close()
}

func (t *Table) String() string {
	if d, ok := t.parser.(interface{ Describe() string }); ok {
		return d.Describe()
	}
	return t.path
}
