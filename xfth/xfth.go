// Package xfth reads the XFTH hotfix cache (DBCache.bin).
//
// The cache holds replacement records for many tables. An entry is only
// interpretable with the layout of its table, so every lookup is scoped to a
// format.Target.
package xfth

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fulldump/dbcextract/format"
)

var Magic = [4]byte{'X', 'F', 'T', 'H'}

const (
	HashSize = 32

	// HashVersion is the first cache version with a file hash and entry
	// unique ids.
	HashVersion = 8

	StatusValid uint8 = 1
)

var (
	ErrBadMagic    = errors.New("bad magic")
	ErrTruncated   = errors.New("truncated file")
	ErrEntryRange  = errors.New("entry out of range")
	ErrPayload     = errors.New("payload does not match layout")
	ErrStringRange = errors.New("string reference out of range")
	ErrNotOpen     = errors.New("parser is not open")
)

type Header struct {
	Magic   [4]byte
	Version uint32
	Build   uint32
	Hash    [HashSize]byte
}

type Entry struct {
	PushID    int32
	UniqueID  uint32
	TableHash uint32
	RecordID  uint32
	Status    uint8
	Offset    int64
	Size      int
}

func (e Entry) Valid() bool {
	return e.Status == StatusValid && e.Size > 0
}

type Parser struct {
	path string
	data []byte

	header  Header
	entries []Entry
	tables  map[uint32][]int

	// buffers are never released on Close, readers on other goroutines
	// keep using them until they observe closed
	closed atomic.Bool
}

func New(path string) *Parser {
	return &Parser{path: path}
}

func (p *Parser) Open() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	err = p.parse(data)
	if err != nil {
		return err
	}
	p.closed.Store(false)
	return nil
}

func (p *Parser) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *Parser) isOpen() bool {
	return p.data != nil && !p.closed.Load()
}

type reader struct {
	data   []byte
	offset int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.offset+n > len(r.data) {
		return nil, ErrTruncated
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (p *Parser) parse(data []byte) error {

	r := &reader{data: data}

	magic, err := r.bytes(4)
	if err != nil {
		return fmt.Errorf("header: %w", err)
	}
	h := Header{}
	copy(h.Magic[:], magic)
	if h.Magic != Magic {
		return fmt.Errorf("%w '%s'", ErrBadMagic, magic)
	}
	if h.Version, err = r.u32(); err != nil {
		return fmt.Errorf("header version: %w", err)
	}
	if h.Build, err = r.u32(); err != nil {
		return fmt.Errorf("header build: %w", err)
	}
	if h.Version >= HashVersion {
		hash, err := r.bytes(HashSize)
		if err != nil {
			return fmt.Errorf("header hash: %w", err)
		}
		copy(h.Hash[:], hash)
	}

	entries := []Entry{}
	tables := map[uint32][]int{}
	for r.offset < len(data) {
		e, err := p.parseEntry(r, h.Version)
		if err != nil {
			return fmt.Errorf("entry %d at %d: %w", len(entries), r.offset, err)
		}
		if e.Valid() {
			tables[e.TableHash] = append(tables[e.TableHash], len(entries))
		}
		entries = append(entries, e)
	}

	p.data = data
	p.header = h
	p.entries = entries
	p.tables = tables

	return nil
}

func (p *Parser) parseEntry(r *reader, version uint32) (Entry, error) {

	e := Entry{}

	magic, err := r.bytes(4)
	if err != nil {
		return e, err
	}
	if !bytes.Equal(magic, Magic[:]) {
		return e, fmt.Errorf("%w '%s'", ErrBadMagic, magic)
	}

	pushID, err := r.u32()
	if err != nil {
		return e, err
	}
	e.PushID = int32(pushID)

	if version >= HashVersion {
		if e.UniqueID, err = r.u32(); err != nil {
			return e, err
		}
	}
	if e.TableHash, err = r.u32(); err != nil {
		return e, err
	}
	if e.RecordID, err = r.u32(); err != nil {
		return e, err
	}
	size, err := r.u32()
	if err != nil {
		return e, err
	}

	status, err := r.bytes(4) // status and padding
	if err != nil {
		return e, err
	}
	e.Status = status[0]

	e.Offset = int64(r.offset)
	e.Size = int(size)
	if _, err := r.bytes(e.Size); err != nil {
		return e, fmt.Errorf("payload of %d bytes: %w", size, err)
	}

	return e, nil
}

func (p *Parser) Header() Header {
	return p.header
}

// Entries returns every entry in the cache, including deleted ones.
func (p *Parser) Entries() []Entry {
	return p.entries
}

func (p *Parser) NumEntries(t format.Target) int {
	return len(p.tables[t.TableHash()])
}

func (p *Parser) RecordInfo(index int, t format.Target) (format.Locator, error) {
	positions := p.tables[t.TableHash()]
	if index < 0 || index >= len(positions) {
		return format.Locator{}, fmt.Errorf("%s hotfix %d: %w", t.SchemaName(), index, ErrEntryRange)
	}

	e := p.entries[positions[index]]
	return format.Locator{
		ID:     e.RecordID,
		Index:  index,
		Offset: e.Offset,
		Size:   e.Size,
	}, nil
}

// Record normalizes the payload behind loc to the layout of t. Inline
// strings become references to their file offset, the id block and key
// block fields are kept in place.
func (p *Parser) Record(loc format.Locator, t format.Target) ([]byte, error) {
	if !p.isOpen() {
		return nil, ErrNotOpen
	}

	end := loc.Offset + int64(loc.Size)
	if loc.Offset < 0 || end > int64(len(p.data)) {
		return nil, fmt.Errorf("%s hotfix %d at %d: %w", t.SchemaName(), loc.ID, loc.Offset, ErrEntryRange)
	}
	payload := p.data[loc.Offset:end]

	framing := t.Framing()
	layout := t.Layout()
	out := make([]byte, 0, layout.Size()+2*format.BlockFieldSize)
	offset := 0

	copyField := func(width int) error {
		if offset+width > len(payload) {
			return fmt.Errorf("%s hotfix %d: %d bytes: %w", t.SchemaName(), loc.ID, len(payload), ErrPayload)
		}
		out = append(out, payload[offset:offset+width]...)
		offset += width
		return nil
	}

	if framing.IDBlock {
		if err := copyField(format.BlockFieldSize); err != nil {
			return nil, err
		}
	}

	for _, f := range layout {
		for n := 0; n < f.Count; n++ {
			if f.Kind != format.KindString {
				if err := copyField(f.Width); err != nil {
					return nil, err
				}
				continue
			}

			length := bytes.IndexByte(payload[offset:], 0)
			if length < 0 {
				return nil, fmt.Errorf("%s hotfix %d field '%s' string is not terminated: %w", t.SchemaName(), loc.ID, f.Name, ErrPayload)
			}
			out = binary.LittleEndian.AppendUint32(out, uint32(loc.Offset)+uint32(offset))
			offset += length + 1
		}
	}

	if framing.KeyBlock {
		if err := copyField(format.BlockFieldSize); err != nil {
			return nil, err
		}
	}

	if offset != len(payload) {
		return nil, fmt.Errorf("%s hotfix %d: %d trailing bytes: %w", t.SchemaName(), loc.ID, len(payload)-offset, ErrPayload)
	}

	return out, nil
}

// String resolves a reference produced by Record: the absolute file offset of
// a NUL terminated string.
func (p *Parser) String(ref uint32) (string, error) {
	if !p.isOpen() {
		return "", ErrNotOpen
	}
	if int64(ref) >= int64(len(p.data)) {
		return "", fmt.Errorf("%w: %d", ErrStringRange, ref)
	}

	end := bytes.IndexByte(p.data[ref:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: %d is not terminated", ErrStringRange, ref)
	}

	return string(p.data[ref : int(ref)+end]), nil
}

func (p *Parser) Describe() string {
	return fmt.Sprintf("XFTH %s version=%d build=%d entries=%d tables=%d",
		p.path, p.header.Version, p.header.Build, len(p.entries), len(p.tables))
}
