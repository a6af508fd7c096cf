// Package wdc1 reads WDC1 encoded DB2 table files.
//
// Records are exposed normalized: every column is expanded to its nominal
// byte width (little endian) regardless of how it is stored on disk
// (inline, bitpacked, common data or pallet data), so decoders only need
// the column layout to interpret them.
package wdc1

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/fulldump/dbcextract/format"
)

var Magic = [4]byte{'W', 'D', 'C', '1'}

const (
	HeaderSize           = 84
	FieldStructureSize   = 4
	FieldStorageInfoSize = 24
	CopyEntrySize        = 8

	RelationshipHeaderSize = 12
	RelationshipEntrySize  = 8

	FlagOffsetMap uint16 = 0x01
)

// Field storage types
const (
	StorageNone uint32 = iota
	StorageBitpacked
	StorageCommonData
	StorageBitpackedIndexed
	StorageBitpackedIndexedArray
	StorageBitpackedSigned
)

var (
	ErrBadMagic    = errors.New("bad magic")
	ErrTruncated   = errors.New("truncated file")
	ErrSparse      = errors.New("offset map tables are not supported")
	ErrCorrupt     = errors.New("corrupt structure")
	ErrRecordRange = errors.New("record out of range")
	ErrStringRange = errors.New("string reference out of range")
	ErrNotOpen     = errors.New("parser is not open")
)

type Header struct {
	Magic                [4]byte
	RecordCount          uint32
	FieldCount           uint32
	RecordSize           uint32
	StringTableSize      uint32
	TableHash            uint32
	LayoutHash           uint32
	MinID                uint32
	MaxID                uint32
	Locale               uint32
	CopyTableSize        uint32
	Flags                uint16
	IDIndex              uint16
	TotalFieldCount      uint32
	BitpackedDataOffset  uint32
	LookupColumnCount    uint32
	OffsetMapOffset      uint32
	IDListSize           uint32
	FieldStorageInfoSize uint32
	CommonDataSize       uint32
	PalletDataSize       uint32
	RelationshipDataSize uint32
}

type FieldStructure struct {
	Size   int16 // 32 - bits
	Offset uint16
}

func (f FieldStructure) ByteWidth() int {
	return (32 - int(f.Size)) / 8
}

type FieldStorageInfo struct {
	OffsetBits         uint16
	SizeBits           uint16
	AdditionalDataSize uint32
	StorageType        uint32
	Val1               uint32
	Val2               uint32
	Val3               uint32
}

type column struct {
	structure FieldStructure
	storage   FieldStorageInfo
	field     format.Field
	pallet    []uint32
	common    map[uint32]uint32
}

type indexEntry struct {
	id       uint32
	position int
}

type Parser struct {
	path string
	data []byte

	header        Header
	columns       []column
	normalizedLen int
	recordsOffset int64
	stringsOffset int64

	locators []format.Locator
	index    *btree.BTreeG[indexEntry]

	// buffers are never released on Close, iterations running on other
	// goroutines keep reading them until they observe closed
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

type section struct {
	data   []byte
	offset int64
}

func (s *section) next(size int64, what string) ([]byte, int64, error) {
	start := s.offset
	end := start + size
	if end > int64(len(s.data)) {
		return nil, start, fmt.Errorf("%s: %w", what, ErrTruncated)
	}
	s.offset = end
	return s.data[start:end], start, nil
}

func (p *Parser) parse(data []byte) error {

	if len(data) < HeaderSize {
		return fmt.Errorf("header: %w", ErrTruncated)
	}

	h := Header{}
	err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h)
	if err != nil {
		return fmt.Errorf("decode header: %w", err)
	}
	if h.Magic != Magic {
		return fmt.Errorf("%w '%s'", ErrBadMagic, h.Magic[:])
	}
	if h.Flags&FlagOffsetMap != 0 {
		return ErrSparse
	}

	s := &section{data: data, offset: HeaderSize}

	structures, _, err := s.next(int64(h.FieldCount)*FieldStructureSize, "field structures")
	if err != nil {
		return err
	}
	_, recordsOffset, err := s.next(int64(h.RecordCount)*int64(h.RecordSize), "records")
	if err != nil {
		return err
	}
	_, stringsOffset, err := s.next(int64(h.StringTableSize), "string table")
	if err != nil {
		return err
	}
	idList, _, err := s.next(int64(h.IDListSize), "id list")
	if err != nil {
		return err
	}
	copyTable, _, err := s.next(int64(h.CopyTableSize), "copy table")
	if err != nil {
		return err
	}
	storage, _, err := s.next(int64(h.FieldStorageInfoSize), "field storage info")
	if err != nil {
		return err
	}
	pallet, _, err := s.next(int64(h.PalletDataSize), "pallet data")
	if err != nil {
		return err
	}
	common, _, err := s.next(int64(h.CommonDataSize), "common data")
	if err != nil {
		return err
	}
	relationship, _, err := s.next(int64(h.RelationshipDataSize), "relationship data")
	if err != nil {
		return err
	}

	p.data = data
	p.header = h
	p.recordsOffset = recordsOffset
	p.stringsOffset = stringsOffset

	err = p.parseColumns(structures, storage, pallet, common)
	if err != nil {
		return err
	}

	return p.buildIndex(idList, copyTable, relationship)
}

func (p *Parser) parseColumns(structures, storage, pallet, common []byte) error {

	n := int(p.header.FieldCount)
	if len(storage) != 0 && len(storage) != n*FieldStorageInfoSize {
		return fmt.Errorf("field storage info for %d fields: %w", n, ErrCorrupt)
	}

	p.columns = make([]column, n)
	palletOffset, commonOffset := 0, 0
	for i := range p.columns {
		c := &p.columns[i]

		c.structure = FieldStructure{
			Size:   int16(binary.LittleEndian.Uint16(structures[i*FieldStructureSize:])),
			Offset: binary.LittleEndian.Uint16(structures[i*FieldStructureSize+2:]),
		}
		width := c.structure.ByteWidth()
		if width <= 0 || width > 8 {
			return fmt.Errorf("field %d width %d: %w", i, width, ErrCorrupt)
		}

		if len(storage) == 0 {
			c.storage = FieldStorageInfo{
				OffsetBits:  c.structure.Offset * 8,
				SizeBits:    uint16(width * 8),
				StorageType: StorageNone,
			}
		} else {
			info := storage[i*FieldStorageInfoSize:]
			c.storage = FieldStorageInfo{
				OffsetBits:         binary.LittleEndian.Uint16(info[0:]),
				SizeBits:           binary.LittleEndian.Uint16(info[2:]),
				AdditionalDataSize: binary.LittleEndian.Uint32(info[4:]),
				StorageType:        binary.LittleEndian.Uint32(info[8:]),
				Val1:               binary.LittleEndian.Uint32(info[12:]),
				Val2:               binary.LittleEndian.Uint32(info[16:]),
				Val3:               binary.LittleEndian.Uint32(info[20:]),
			}
		}

		c.field = format.Field{
			Name:  fmt.Sprintf("field_%d", i),
			Kind:  format.KindUint,
			Width: width,
			Count: 1,
		}
		if i == int(p.header.IDIndex) && p.header.IDListSize == 0 {
			c.field.Name = "id"
		}

		extra := int(c.storage.AdditionalDataSize)
		switch c.storage.StorageType {
		case StorageNone:
			bits := int(c.storage.SizeBits)
			if bits == 0 || bits%(width*8) != 0 {
				return fmt.Errorf("field %d size %d bits: %w", i, bits, ErrCorrupt)
			}
			c.field.Count = bits / (width * 8)

		case StorageBitpacked:

		case StorageBitpackedSigned:
			c.field.Kind = format.KindInt

		case StorageCommonData:
			if commonOffset+extra > len(common) || extra%8 != 0 {
				return fmt.Errorf("common data of field %d: %w", i, ErrCorrupt)
			}
			block := common[commonOffset : commonOffset+extra]
			commonOffset += extra
			c.common = make(map[uint32]uint32, len(block)/8)
			for j := 0; j < len(block); j += 8 {
				c.common[binary.LittleEndian.Uint32(block[j:])] = binary.LittleEndian.Uint32(block[j+4:])
			}

		case StorageBitpackedIndexed, StorageBitpackedIndexedArray:
			if palletOffset+extra > len(pallet) || extra%4 != 0 {
				return fmt.Errorf("pallet data of field %d: %w", i, ErrCorrupt)
			}
			block := pallet[palletOffset : palletOffset+extra]
			palletOffset += extra
			c.pallet = make([]uint32, len(block)/4)
			for j := range c.pallet {
				c.pallet[j] = binary.LittleEndian.Uint32(block[j*4:])
			}
			if c.storage.StorageType == StorageBitpackedIndexedArray {
				if c.storage.Val3 == 0 {
					return fmt.Errorf("field %d array size: %w", i, ErrCorrupt)
				}
				c.field.Count = int(c.storage.Val3)
			}

		default:
			return fmt.Errorf("field %d storage type %d: %w", i, c.storage.StorageType, ErrCorrupt)
		}

		p.normalizedLen += c.field.Size()
	}

	return nil
}

func (p *Parser) buildIndex(idList, copyTable, relationship []byte) error {

	h := p.header
	n := int(h.RecordCount)

	if len(idList) > 0 && len(idList) != n*4 {
		return fmt.Errorf("id list holds %d bytes for %d records: %w", len(idList), n, ErrCorrupt)
	}
	if h.IDListSize == 0 && int(h.IDIndex) >= len(p.columns) && n > 0 {
		return fmt.Errorf("id index %d: %w", h.IDIndex, ErrCorrupt)
	}

	keys := map[int]uint32{}
	if len(relationship) > 0 {
		if len(relationship) < RelationshipHeaderSize {
			return fmt.Errorf("relationship header: %w", ErrTruncated)
		}
		entries := int64(binary.LittleEndian.Uint32(relationship))
		if RelationshipHeaderSize+entries*RelationshipEntrySize > int64(len(relationship)) {
			return fmt.Errorf("relationship entries: %w", ErrTruncated)
		}
		for i := 0; i < int(entries); i++ {
			entry := relationship[RelationshipHeaderSize+i*RelationshipEntrySize:]
			keys[int(binary.LittleEndian.Uint32(entry[4:]))] = binary.LittleEndian.Uint32(entry)
		}
	}

	p.locators = make([]format.Locator, 0, n+len(copyTable)/CopyEntrySize)
	p.index = btree.NewG(32, func(a, b indexEntry) bool {
		return a.id < b.id
	})

	for i := 0; i < n; i++ {
		offset := p.recordsOffset + int64(i)*int64(h.RecordSize)

		var id uint32
		if len(idList) > 0 {
			id = binary.LittleEndian.Uint32(idList[i*4:])
		} else {
			raw := p.data[offset : offset+int64(h.RecordSize)]
			v, err := p.element(&p.columns[h.IDIndex], raw, 0, 0)
			if err != nil {
				return fmt.Errorf("inline id of record %d: %w", i, err)
			}
			id = uint32(v)
		}

		p.locators = append(p.locators, format.Locator{
			ID:     id,
			Index:  i,
			Offset: offset,
			Size:   int(h.RecordSize),
			KeyID:  keys[i],
		})
		p.index.ReplaceOrInsert(indexEntry{id: id, position: i})
	}

	for i := 0; i+CopyEntrySize <= len(copyTable); i += CopyEntrySize {
		newID := binary.LittleEndian.Uint32(copyTable[i:])
		sourceID := binary.LittleEndian.Uint32(copyTable[i+4:])

		source, found := p.index.Get(indexEntry{id: sourceID})
		if !found {
			return fmt.Errorf("copy of unknown record %d: %w", sourceID, ErrCorrupt)
		}

		loc := p.locators[source.position]
		loc.ID = newID
		loc.Index = len(p.locators)
		p.locators = append(p.locators, loc)
		p.index.ReplaceOrInsert(indexEntry{id: newID, position: loc.Index})
	}

	return nil
}

func (p *Parser) NumRecords() int {
	return len(p.locators)
}

func (p *Parser) RecordInfo(index int) (format.Locator, error) {
	if index < 0 || index >= len(p.locators) {
		return format.Locator{}, fmt.Errorf("record index %d: %w", index, ErrRecordRange)
	}
	return p.locators[index], nil
}

func (p *Parser) DBCInfo(id uint32) (format.Locator, error) {
	if !p.isOpen() {
		return format.Locator{}, ErrNotOpen
	}

	found := format.Locator{}
	p.index.AscendGreaterOrEqual(indexEntry{id: id}, func(e indexEntry) bool {
		found = p.locators[e.position]
		return false
	})

	return found, nil
}

func (p *Parser) Record(loc format.Locator) ([]byte, error) {
	if !p.isOpen() {
		return nil, ErrNotOpen
	}
	if loc.Size == 0 {
		return nil, nil
	}

	end := loc.Offset + int64(loc.Size)
	if loc.Offset < p.recordsOffset || end > p.stringsOffset {
		return nil, fmt.Errorf("record %d at %d: %w", loc.ID, loc.Offset, ErrRecordRange)
	}

	return p.normalize(p.data[loc.Offset:end], loc.ID)
}

func (p *Parser) normalize(raw []byte, id uint32) ([]byte, error) {
	out := make([]byte, 0, p.normalizedLen)
	for i := range p.columns {
		c := &p.columns[i]
		for n := 0; n < c.field.Count; n++ {
			v, err := p.element(c, raw, id, n)
			if err != nil {
				return nil, fmt.Errorf("field %d of record %d: %w", i, id, err)
			}
			for b := 0; b < c.field.Width; b++ {
				out = append(out, byte(v>>(8*b)))
			}
		}
	}
	return out, nil
}

// element returns the n-th value of column c for the record raw with id.
func (p *Parser) element(c *column, raw []byte, id uint32, n int) (uint64, error) {

	switch c.storage.StorageType {
	case StorageNone:
		width := c.field.Width
		start := int(c.storage.OffsetBits)/8 + n*width
		if start+width > len(raw) {
			return 0, ErrRecordRange
		}
		var buf [8]byte
		copy(buf[:], raw[start:start+width])
		return binary.LittleEndian.Uint64(buf[:]), nil

	case StorageBitpacked:
		return readBits(raw, c.storage.OffsetBits, c.storage.SizeBits)

	case StorageBitpackedSigned:
		v, err := readBits(raw, c.storage.OffsetBits, c.storage.SizeBits)
		if err != nil {
			return 0, err
		}
		shift := 64 - uint(c.storage.SizeBits)
		return uint64(int64(v<<shift) >> shift), nil

	case StorageCommonData:
		if v, ok := c.common[id]; ok {
			return uint64(v), nil
		}
		return uint64(c.storage.Val1), nil

	case StorageBitpackedIndexed, StorageBitpackedIndexedArray:
		index, err := readBits(raw, c.storage.OffsetBits, c.storage.SizeBits)
		if err != nil {
			return 0, err
		}
		position := int(index)*c.field.Count + n
		if position >= len(c.pallet) {
			return 0, fmt.Errorf("pallet index %d: %w", index, ErrRecordRange)
		}
		return uint64(c.pallet[position]), nil
	}

	return 0, ErrCorrupt
}

func readBits(raw []byte, offsetBits, sizeBits uint16) (uint64, error) {
	if sizeBits == 0 || sizeBits > 56 {
		return 0, fmt.Errorf("bit width %d: %w", sizeBits, ErrCorrupt)
	}

	start := int(offsetBits) / 8
	end := (int(offsetBits) + int(sizeBits) + 7) / 8
	if end > len(raw) {
		return 0, ErrRecordRange
	}

	var buf [8]byte
	copy(buf[:], raw[start:end])
	v := binary.LittleEndian.Uint64(buf[:]) >> (offsetBits % 8)

	return v & (1<<sizeBits - 1), nil
}

func (p *Parser) String(ref uint32) (string, error) {
	if !p.isOpen() {
		return "", ErrNotOpen
	}
	if ref >= p.header.StringTableSize {
		return "", fmt.Errorf("%w: %d", ErrStringRange, ref)
	}

	table := p.data[p.stringsOffset : p.stringsOffset+int64(p.header.StringTableSize)]
	end := bytes.IndexByte(table[ref:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: %d is not terminated", ErrStringRange, ref)
	}

	return string(table[ref : int(ref)+end]), nil
}

func (p *Parser) Header() Header {
	return p.header
}

func (p *Parser) TableHash() uint32 {
	return p.header.TableHash
}

func (p *Parser) LayoutHash() uint32 {
	return p.header.LayoutHash
}

func (p *Parser) Layout() format.Layout {
	layout := make(format.Layout, len(p.columns))
	for i, c := range p.columns {
		layout[i] = c.field
	}
	return layout
}

func (p *Parser) HasIDBlock() bool {
	return p.header.IDListSize > 0
}

func (p *Parser) HasKeyBlock() bool {
	return p.header.RelationshipDataSize > 0
}

// Describe summarizes the parsed header.
func (p *Parser) Describe() string {
	return fmt.Sprintf("WDC1 %s records=%d fields=%d record_size=%d table_hash=%#08x layout_hash=%#08x",
		p.path, len(p.locators), p.header.FieldCount, p.header.RecordSize, p.header.TableHash, p.header.LayoutHash)
}
