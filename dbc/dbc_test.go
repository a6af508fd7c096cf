package dbc

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulldump/biff"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fulldump/dbcextract/data"
	"github.com/fulldump/dbcextract/format"
	"github.com/fulldump/dbcextract/wdc1"
	"github.com/fulldump/dbcextract/wdc1/wdc1test"
	"github.com/fulldump/dbcextract/xfth/xfthtest"
)

type fakeRecord struct {
	id  uint32
	key uint32
	raw []byte
}

type fakeParser struct {
	records []fakeRecord
	idBlock bool
	keyBlk  bool
}

func (p *fakeParser) String(ref uint32) (string, error) { return "", nil }
func (p *fakeParser) Open() error                       { return nil }
func (p *fakeParser) Close() error                      { return nil }
func (p *fakeParser) NumRecords() int                   { return len(p.records) }
func (p *fakeParser) TableHash() uint32                 { return 0xF00D }
func (p *fakeParser) HasIDBlock() bool                  { return p.idBlock }
func (p *fakeParser) HasKeyBlock() bool                 { return p.keyBlk }

func (p *fakeParser) Layout() format.Layout {
	return format.Layout{{Name: "value", Kind: format.KindUint, Width: 4, Count: 1}}
}

func (p *fakeParser) RecordInfo(index int) (format.Locator, error) {
	if index < 0 || index >= len(p.records) {
		return format.Locator{}, errors.New("out of range")
	}
	r := p.records[index]
	return format.Locator{ID: r.id, Index: index, Size: len(r.raw), KeyID: r.key}, nil
}

func (p *fakeParser) Record(loc format.Locator) ([]byte, error) {
	return p.records[loc.Index].raw, nil
}

func (p *fakeParser) DBCInfo(id uint32) (format.Locator, error) {
	for i, r := range p.records {
		if r.id >= id {
			return p.RecordInfo(i)
		}
	}
	return format.Locator{}, nil
}

type fakeHotfix struct {
	payloads [][]byte
	ids      []uint32
}

func (h *fakeHotfix) String(ref uint32) (string, error) { return "", nil }
func (h *fakeHotfix) Open() error                       { return nil }
func (h *fakeHotfix) Close() error                      { return nil }
func (h *fakeHotfix) NumEntries(t format.Target) int    { return len(h.payloads) }

func (h *fakeHotfix) Record(loc format.Locator, t format.Target) ([]byte, error) {
	return h.payloads[loc.Index], nil
}

func (h *fakeHotfix) RecordInfo(index int, t format.Target) (format.Locator, error) {
	return format.Locator{ID: h.ids[index], Index: index, Size: len(h.payloads[index])}, nil
}

func le32(values ...uint32) []byte {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return b
}

func valueSchema(name string) *data.Registry {
	d, err := data.NewSchemaDecoder(&data.Schema{
		Name:   name,
		Fields: format.Layout{{Name: "value", Kind: format.KindUint, Width: 4, Count: 1}},
	})
	if err != nil {
		panic(err)
	}
	r := data.NewRegistry()
	r.Register(d)
	return r
}

func newFakeTable(name string, p *fakeParser, opts ...Option) *Table {
	return newTable(name, name, p, newOptions(opts))
}

func TestTable_Iterate(t *testing.T) {

	p := &fakeParser{records: []fakeRecord{
		{id: 1, raw: le32(10)},
		{id: 4, raw: le32(40)},
		{id: 9, raw: le32(90), key: 3},
	}}
	table := newFakeTable("Values.db2", p, WithRegistry(valueSchema("Values")))

	collect := func() []data.Record {
		records := []data.Record{}
		it := table.Iterate()
		for it.Next() {
			records = append(records, it.Record())
		}
		biff.AssertNil(it.Err())
		biff.AssertFalse(it.Next())
		biff.AssertNil(it.Record())
		return records
	}

	records := collect()
	biff.AssertEqual(len(records), p.NumRecords())
	biff.AssertEqual(records[2].ID(), uint32(9))
	biff.AssertEqual(records[2].KeyID(), uint32(3))
	biff.AssertEqual(records[1].Map()["value"], uint64(40))

	biff.AssertEqual(len(collect()), 3)
}

func TestTable_IterateDecodeError(t *testing.T) {

	p := &fakeParser{records: []fakeRecord{
		{id: 1, raw: le32(10)},
		{id: 2, raw: []byte{1}},
		{id: 3, raw: le32(30)},
	}}
	table := newFakeTable("Values.db2", p, WithRegistry(valueSchema("Values")))

	it := table.Iterate()
	biff.AssertTrue(it.Next())
	biff.AssertFalse(it.Next())
	biff.AssertTrue(errors.Is(it.Err(), data.ErrShortRecord))
	biff.AssertFalse(it.Next())
}

func TestTable_Find(t *testing.T) {

	p := &fakeParser{records: []fakeRecord{
		{id: 2, raw: le32(20)},
		{id: 5, raw: le32(50)},
		{id: 8, raw: nil},
	}}
	table := newFakeTable("Values.db2", p, WithRegistry(valueSchema("Values")))

	biff.Alternative("Find", func(a *biff.A) {

		a.Alternative("present", func(a *biff.A) {
			r, found, err := table.Find(5)
			biff.AssertNil(err)
			biff.AssertTrue(found)
			biff.AssertEqual(r.ID(), uint32(5))
		})

		a.Alternative("nearest match is not found", func(a *biff.A) {
			r, found, err := table.Find(3)
			biff.AssertNil(err)
			biff.AssertFalse(found)
			biff.AssertNil(r)
		})

		a.Alternative("beyond last", func(a *biff.A) {
			_, found, err := table.Find(100)
			biff.AssertNil(err)
			biff.AssertFalse(found)
		})

		a.Alternative("empty span", func(a *biff.A) {
			_, found, err := table.Find(8)
			biff.AssertNil(err)
			biff.AssertFalse(found)
		})
	})
}

func TestSchemaName(t *testing.T) {

	cases := map[string]string{
		"Spell-X.db2":                   "Spell_X",
		"CreatureModelData.db2":         "CreatureModelData",
		"/data/dbfilesclient/Item":      "Item",
		"dir.v2/SpellEffect.db2.backup": "SpellEffect",
	}
	for path, expected := range cases {
		biff.AssertEqual(SchemaName(path), expected)
	}

	table := newFakeTable("tables/Spell-X.db2", &fakeParser{})
	biff.AssertEqual(table.SchemaName(), "Spell_X")
	biff.AssertEqual(table.SchemaName(), table.SchemaName())
}

func TestTable_DecoderFor(t *testing.T) {

	biff.Alternative("DecoderFor", func(a *biff.A) {

		a.Alternative("registered", func(a *biff.A) {
			table := newFakeTable("Values.db2", &fakeParser{}, WithRegistry(valueSchema("Values")))
			d := table.DecoderFor("Values")
			biff.AssertEqual(d.Name(), "Values")
			biff.AssertTrue(table.DecoderFor("Values") == d)
			biff.AssertTrue(table.Decoder() == d)
		})

		a.Alternative("unregistered falls back to raw", func(a *biff.A) {
			core, logs := observer.New(zap.WarnLevel)
			table := newFakeTable("Unknown.db2", &fakeParser{}, WithLogger(zap.New(core)), WithRegistry(data.NewRegistry()))

			biff.AssertTrue(table.Decoder() == data.Raw)
			biff.AssertTrue(table.Decoder() == data.Raw)

			warnings := logs.FilterMessage("unable to determine data format").All()
			biff.AssertEqual(len(warnings), 1)
			biff.AssertEqual(warnings[0].ContextMap()["schema"], "Unknown")
		})

		a.Alternative("raw option", func(a *biff.A) {
			table := newFakeTable("Values.db2", &fakeParser{}, WithRegistry(valueSchema("Values")), WithRaw(true))
			biff.AssertTrue(table.Decoder() == data.Raw)
		})
	})
}

func TestTable_Framing(t *testing.T) {

	p := &fakeParser{idBlock: true, keyBlk: true}

	biff.AssertEqual(newFakeTable("Spell.db2", p).Framing(), format.Framing{})
	biff.AssertEqual(newFakeTable("SpellEffect.db2", p).Framing(), format.Framing{IDBlock: true, KeyBlock: true})

	p.keyBlk = false
	biff.AssertEqual(newFakeTable("ItemEffect.db2", p).Framing(), format.Framing{IDBlock: true})
}

func TestStripFraming(t *testing.T) {

	raw := le32(7, 100, 200, 33)

	biff.Alternative("stripFraming", func(a *biff.A) {

		a.Alternative("not framed", func(a *biff.A) {
			stripped, key, err := stripFraming(raw, format.Framing{}, 5)
			biff.AssertNil(err)
			biff.AssertEqual(stripped, raw)
			biff.AssertEqual(key, uint32(5))
		})

		a.Alternative("id block", func(a *biff.A) {
			stripped, key, err := stripFraming(raw, format.Framing{IDBlock: true}, 0)
			biff.AssertNil(err)
			biff.AssertEqual(stripped, le32(100, 200, 33))
			biff.AssertEqual(key, uint32(0))
		})

		a.Alternative("key block", func(a *biff.A) {
			stripped, key, err := stripFraming(raw, format.Framing{KeyBlock: true}, 0)
			biff.AssertNil(err)
			biff.AssertEqual(stripped, le32(7, 100, 200))
			biff.AssertEqual(key, uint32(33))
		})

		a.Alternative("both", func(a *biff.A) {
			stripped, key, err := stripFraming(raw, format.Framing{IDBlock: true, KeyBlock: true}, 0)
			biff.AssertNil(err)
			biff.AssertEqual(stripped, le32(100, 200))
			biff.AssertEqual(key, uint32(33))
		})

		a.Alternative("framing only", func(a *biff.A) {
			stripped, key, err := stripFraming(le32(7, 33), format.Framing{IDBlock: true, KeyBlock: true}, 0)
			biff.AssertNil(err)
			biff.AssertEqual(len(stripped), 0)
			biff.AssertEqual(key, uint32(33))
		})

		a.Alternative("too short", func(a *biff.A) {
			_, _, err := stripFraming([]byte{1, 2, 3, 4, 5}, format.Framing{IDBlock: true, KeyBlock: true}, 0)
			biff.AssertTrue(errors.Is(err, ErrFraming))
		})
	})
}

func TestHotfixIterator(t *testing.T) {

	hotfix := &HotfixFile{parser: &fakeHotfix{
		ids:      []uint32{70, 71},
		payloads: [][]byte{le32(70, 1, 2, 900), le32(71, 3, 4, 901)},
	}}

	entries := func(p *fakeParser, name string) []*data.RawRecord {
		table := newFakeTable(name, p, WithRaw(true))
		records := []*data.RawRecord{}
		it := hotfix.Entries(table)
		for it.Next() {
			records = append(records, it.Record().(*data.RawRecord))
		}
		biff.AssertNil(it.Err())
		return records
	}

	biff.Alternative("Hotfix entries", func(a *biff.A) {

		a.Alternative("not expanded", func(a *biff.A) {
			records := entries(&fakeParser{idBlock: true, keyBlk: true}, "Spell.db2")
			biff.AssertEqual(len(records), 2)
			biff.AssertEqual(records[0].Words(), []uint32{70, 1, 2, 900})
			biff.AssertEqual(records[0].KeyID(), uint32(0))
		})

		a.Alternative("id block", func(a *biff.A) {
			records := entries(&fakeParser{idBlock: true}, "SpellEffect.db2")
			biff.AssertEqual(records[1].Words(), []uint32{3, 4, 901})
			biff.AssertEqual(records[1].ID(), uint32(71))
		})

		a.Alternative("key block", func(a *biff.A) {
			records := entries(&fakeParser{keyBlk: true}, "SpellEffect.db2")
			biff.AssertEqual(records[0].Words(), []uint32{70, 1, 2})
			biff.AssertEqual(records[0].KeyID(), uint32(900))
		})
	})
}

func TestOpen(t *testing.T) {

	dir := t.TempDir()

	wdc := &wdc1test.Builder{
		Fields: []wdc1test.Field{{Storage: wdc1.StorageNone}, {Storage: wdc1.StorageNone}},
		Rows: []wdc1test.Row{
			{ID: 3, Values: [][]uint64{{3}, {30}}},
			{ID: 6, Values: [][]uint64{{6}, {60}}},
		},
	}
	err := wdc.WriteFile(filepath.Join(dir, "Sample-Table.db2"))
	biff.AssertNil(err)

	biff.Alternative("Open", func(a *biff.A) {

		a.Alternative("wdc1 magic without extension", func(a *biff.A) {
			table, err := Open(filepath.Join(dir, "Sample-Table"))
			biff.AssertNil(err)
			defer table.Close()

			_, isWDC1 := table.Parser().(*wdc1.Parser)
			biff.AssertTrue(isWDC1)
			biff.AssertEqual(table.Path(), filepath.Join(dir, "Sample-Table.db2"))
			biff.AssertEqual(table.SchemaName(), "Sample_Table")
			biff.AssertEqual(table.NumRecords(), 2)

			r, found, err := table.Find(6)
			biff.AssertNil(err)
			biff.AssertTrue(found)
			biff.AssertEqual(r.(*data.RawRecord).Words(), []uint32{6, 60})
		})

		a.Alternative("zero magic", func(a *biff.A) {
			filename := filepath.Join(dir, "Zero.db2")
			os.WriteFile(filename, make([]byte, 128), 0666)
			table, err := Open(filename)
			biff.AssertTrue(errors.Is(err, ErrUnsupportedFormat))
			biff.AssertNil(table)
		})

		a.Alternative("short file", func(a *biff.A) {
			filename := filepath.Join(dir, "Short.db2")
			os.WriteFile(filename, []byte("WD"), 0666)
			_, err := Open(filename)
			biff.AssertTrue(errors.Is(err, ErrUnsupportedFormat))
		})

		a.Alternative("not found", func(a *biff.A) {
			_, err := Open(filepath.Join(dir, "Missing"))
			biff.AssertTrue(errors.Is(err, ErrNotFound))
		})

		a.Alternative("corrupt", func(a *biff.A) {
			filename := filepath.Join(dir, "Corrupt.db2")
			os.WriteFile(filename, []byte("WDC1 and not much more"), 0666)
			_, err := Open(filename)
			biff.AssertTrue(errors.Is(err, ErrParse))
			biff.AssertTrue(errors.Is(err, wdc1.ErrTruncated))
		})
	})
}

func TestOpenHotfix(t *testing.T) {

	dir := t.TempDir()

	registry := data.NewRegistry()
	d, err := data.NewSchemaDecoder(&data.Schema{
		Name: "SpellEffect",
		Fields: format.Layout{
			{Name: "effect", Kind: format.KindUint, Width: 4, Count: 1},
			{Name: "base_value", Kind: format.KindInt, Width: 4, Count: 1},
		},
	})
	biff.AssertNil(err)
	registry.Register(d)

	wdc := &wdc1test.Builder{
		TableHash:    0x4B3F0E16,
		Fields:       []wdc1test.Field{{Storage: wdc1.StorageNone}, {Storage: wdc1.StorageNone}},
		IDList:       true,
		Relationship: true,
		Rows: []wdc1test.Row{
			{ID: 1000, Key: 133, Values: [][]uint64{{2}, {5}}},
		},
	}
	biff.AssertNil(wdc.WriteFile(filepath.Join(dir, "SpellEffect.db2")))

	cache := &xfthtest.Builder{
		Build: 27843,
		Entries: []xfthtest.Entry{
			{PushID: 1, TableHash: 0x4B3F0E16, RecordID: 1000, Payload: xfthtest.NewPayload().U32(1000).U32(2).U32(0xFFFFFFF6).U32(133).Bytes()},
			{PushID: 2, TableHash: 0x4B3F0E16, RecordID: 1001, Payload: xfthtest.NewPayload().U32(1001).U32(6).U32(12).U32(134).Bytes()},
			{PushID: 3, TableHash: 0x12345678, RecordID: 1, Payload: xfthtest.NewPayload().U32(1).Bytes()},
		},
	}
	biff.AssertNil(cache.WriteFile(filepath.Join(dir, "DBCache.bin")))

	table, err := Open(filepath.Join(dir, "SpellEffect.db2"), WithRegistry(registry))
	biff.AssertNil(err)
	defer table.Close()

	hotfix, err := OpenHotfix(HotfixOptions{Path: filepath.Join(dir, "DBCache.bin")})
	biff.AssertNil(err)
	defer hotfix.Close()

	maps := []map[string]any{}
	it := hotfix.Entries(table)
	for it.Next() {
		maps = append(maps, it.Record().Map())
	}
	biff.AssertNil(it.Err())
	biff.AssertEqual(maps, []map[string]any{
		{"id": uint32(1000), "key_id": uint32(133), "effect": uint64(2), "base_value": int64(-10)},
		{"id": uint32(1001), "key_id": uint32(134), "effect": uint64(6), "base_value": int64(12)},
	})

	_, err = OpenHotfix(HotfixOptions{Path: filepath.Join(dir, "Missing.bin")})
	biff.AssertTrue(errors.Is(err, ErrParse))
	biff.AssertTrue(errors.Is(err, ErrNotFound))

	_, err = OpenHotfix(HotfixOptions{Path: dir})
	biff.AssertTrue(errors.Is(err, ErrParse))

	corrupt := filepath.Join(dir, "Corrupt.bin")
	os.WriteFile(corrupt, []byte("XFTH"), 0666)
	_, err = OpenHotfix(HotfixOptions{Path: corrupt})
	biff.AssertTrue(errors.Is(err, ErrParse))
	biff.AssertFalse(errors.Is(err, ErrNotFound))
}
