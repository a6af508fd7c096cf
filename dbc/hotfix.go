package dbc

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/fulldump/dbcextract/data"
	"github.com/fulldump/dbcextract/format"
	"github.com/fulldump/dbcextract/xfth"
)

type HotfixOptions struct {
	Path string
}

type HotfixFile struct {
	options HotfixOptions
	parser  format.HotfixParser
}

func OpenHotfix(opts HotfixOptions) (*HotfixFile, error) {

	info, err := os.Stat(opts.Path)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %w through %s", ErrParse, ErrNotFound, opts.Path)
	}

	parser := xfth.New(opts.Path)
	err = parser.Open()
	if err != nil {
		parser.Close()
		return nil, fmt.Errorf("%w %s: %w", ErrParse, opts.Path, err)
	}

	return &HotfixFile{
		options: opts,
		parser:  parser,
	}, nil
}

// Entries iterates the hotfixes of table t. The cache can only be read
// through the layout of the table the entries belong to.
func (h *HotfixFile) Entries(t *Table) *HotfixIterator {
	return &HotfixIterator{
		parser:  h.parser,
		target:  t,
		decoder: t.Decoder(),
		framing: t.Framing(),
		count:   h.parser.NumEntries(t),
	}
}

func (h *HotfixFile) Parser() format.HotfixParser {
	return h.parser
}

func (h *HotfixFile) Path() string {
	return h.options.Path
}

func (h *HotfixFile) Close() error {
	return h.parser.Close()
}

type HotfixIterator struct {
	parser  format.HotfixParser
	target  format.Target
	decoder data.Decoder
	framing format.Framing

	cursor int
	count  int
	record data.Record
	err    error
}

func (it *HotfixIterator) Next() bool {
	it.record = nil
	if it.err != nil || it.cursor >= it.count {
		return false
	}

	loc, err := it.parser.RecordInfo(it.cursor, it.target)
	if err != nil {
		it.err = err
		return false
	}
	raw, err := it.parser.Record(loc, it.target)
	if err != nil {
		it.err = err
		return false
	}
	it.cursor++

	raw, keyID, err := stripFraming(raw, it.framing, loc.KeyID)
	if err != nil {
		it.err = fmt.Errorf("%s hotfix %d: %w", it.target.SchemaName(), loc.ID, err)
		return false
	}

	r, err := it.decoder.Decode(it.parser, loc.ID, raw, keyID)
	if err != nil {
		it.err = fmt.Errorf("%s hotfix %d: %w", it.target.SchemaName(), loc.ID, err)
		return false
	}

	it.record = r
	return true
}

func (it *HotfixIterator) Record() data.Record {
	return it.record
}

func (it *HotfixIterator) Err() error {
	return it.err
}

// stripFraming removes the id block field in front of raw and the key block
// field at its end. The key block value replaces keyID.
func stripFraming(raw []byte, framing format.Framing, keyID uint32) ([]byte, uint32, error) {

	size := 0
	if framing.IDBlock {
		size += format.BlockFieldSize
	}
	if framing.KeyBlock {
		size += format.BlockFieldSize
	}
	if len(raw) < size {
		return nil, 0, fmt.Errorf("%d bytes for %d: %w", len(raw), size, ErrFraming)
	}

	start, end := 0, len(raw)
	if framing.IDBlock {
		start = format.BlockFieldSize
	}
	if framing.KeyBlock {
		end = len(raw) - format.BlockFieldSize
		keyID = binary.LittleEndian.Uint32(raw[end:])
	}

	return raw[start:end], keyID, nil
}
