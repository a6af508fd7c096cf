package wdc1_test

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fulldump/biff"

	"github.com/fulldump/dbcextract/format"
	"github.com/fulldump/dbcextract/wdc1"
	"github.com/fulldump/dbcextract/wdc1/wdc1test"
)

func openBuilder(t *testing.T, b *wdc1test.Builder) *wdc1.Parser {
	t.Helper()

	filename := filepath.Join(t.TempDir(), "Table.db2")
	if err := b.WriteFile(filename); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	p := wdc1.New(filename)
	if err := p.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		p.Close()
	})

	return p
}

func u32(b []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(b[i*4:])
}

func signed(v int64, bits uint) uint64 {
	return uint64(v) & (1<<bits - 1)
}

func TestParser_InlineID(t *testing.T) {

	b := &wdc1test.Builder{
		TableHash:  0xCAFE0001,
		LayoutHash: 0x0BADF00D,
		Fields: []wdc1test.Field{
			{Storage: wdc1.StorageNone},                     // id
			{Storage: wdc1.StorageNone},                     // name
			{Storage: wdc1.StorageNone, Width: 1, Count: 3}, // flags
			{Storage: wdc1.StorageNone},                     // scale
		},
	}
	hello := b.AddString("Hello")
	world := b.AddString("World")
	b.Rows = []wdc1test.Row{
		{ID: 10, Values: [][]uint64{{10}, {hello}, {1, 2, 3}, {uint64(math.Float32bits(1.5))}}},
		{ID: 20, Values: [][]uint64{{20}, {world}, {4, 5, 6}, {uint64(math.Float32bits(-2))}}},
	}

	p := openBuilder(t, b)

	biff.AssertEqual(p.NumRecords(), 2)
	biff.AssertEqual(p.TableHash(), uint32(0xCAFE0001))
	biff.AssertEqual(p.LayoutHash(), uint32(0x0BADF00D))
	biff.AssertFalse(p.HasIDBlock())
	biff.AssertFalse(p.HasKeyBlock())

	layout := p.Layout()
	biff.AssertEqual(len(layout), 4)
	biff.AssertEqual(layout[0].Name, "id")
	biff.AssertEqual(layout[2], format.Field{Name: "field_2", Kind: format.KindUint, Width: 1, Count: 3})
	biff.AssertEqual(layout.Size(), 15)

	loc, err := p.RecordInfo(1)
	biff.AssertNil(err)
	biff.AssertEqual(loc.ID, uint32(20))
	biff.AssertEqual(loc.Index, 1)

	raw, err := p.Record(loc)
	biff.AssertNil(err)
	biff.AssertEqual(len(raw), 15)
	biff.AssertEqual(u32(raw, 0), uint32(20))
	biff.AssertEqual(raw[8:11], []byte{4, 5, 6})
	biff.AssertEqual(math.Float32frombits(binary.LittleEndian.Uint32(raw[11:])), float32(-2))

	name, err := p.String(binary.LittleEndian.Uint32(raw[4:]))
	biff.AssertNil(err)
	biff.AssertEqual(name, "World")

	_, err = p.RecordInfo(2)
	biff.AssertTrue(errors.Is(err, wdc1.ErrRecordRange))

	_, err = p.String(9999)
	biff.AssertTrue(errors.Is(err, wdc1.ErrStringRange))
}

func TestParser_IDListRelationshipAndCopies(t *testing.T) {

	b := &wdc1test.Builder{
		Fields: []wdc1test.Field{
			{Storage: wdc1.StorageNone},
		},
		IDList:       true,
		Relationship: true,
		Rows: []wdc1test.Row{
			{ID: 5, Key: 500, Values: [][]uint64{{55}}},
			{ID: 7, Key: 700, Values: [][]uint64{{77}}},
			{ID: 9, Key: 900, Values: [][]uint64{{99}}},
		},
		Copies: [][2]uint32{{12, 7}},
	}

	p := openBuilder(t, b)

	biff.AssertTrue(p.HasIDBlock())
	biff.AssertTrue(p.HasKeyBlock())
	biff.AssertEqual(p.NumRecords(), 4)
	biff.AssertEqual(p.Layout()[0].Name, "field_0")

	ids := []uint32{}
	keys := []uint32{}
	values := []uint32{}
	for i := 0; i < p.NumRecords(); i++ {
		loc, err := p.RecordInfo(i)
		biff.AssertNil(err)
		raw, err := p.Record(loc)
		biff.AssertNil(err)
		ids = append(ids, loc.ID)
		keys = append(keys, loc.KeyID)
		values = append(values, u32(raw, 0))
	}
	biff.AssertEqual(ids, []uint32{5, 7, 9, 12})
	biff.AssertEqual(keys, []uint32{500, 700, 900, 700})
	biff.AssertEqual(values, []uint32{55, 77, 99, 77})

	biff.Alternative("DBCInfo", func(a *biff.A) {

		a.Alternative("exact", func(a *biff.A) {
			loc, err := p.DBCInfo(9)
			biff.AssertNil(err)
			biff.AssertEqual(loc.ID, uint32(9))
			biff.AssertEqual(loc.KeyID, uint32(900))
		})

		a.Alternative("copy", func(a *biff.A) {
			loc, err := p.DBCInfo(12)
			biff.AssertNil(err)
			biff.AssertEqual(loc.ID, uint32(12))
			biff.AssertEqual(loc.Index, 3)
		})

		a.Alternative("nearest", func(a *biff.A) {
			loc, err := p.DBCInfo(6)
			biff.AssertNil(err)
			biff.AssertEqual(loc.ID, uint32(7))
		})

		a.Alternative("beyond last", func(a *biff.A) {
			loc, err := p.DBCInfo(100)
			biff.AssertNil(err)
			biff.AssertEqual(loc, format.Locator{})
		})
	})
}

func TestParser_PackedStorages(t *testing.T) {

	b := &wdc1test.Builder{
		Fields: []wdc1test.Field{
			{Storage: wdc1.StorageBitpacked, Bits: 5},
			{Storage: wdc1.StorageBitpackedSigned, Bits: 6},
			{Storage: wdc1.StorageCommonData, Default: 42},
			{Storage: wdc1.StorageBitpackedIndexed, Bits: 2},
			{Storage: wdc1.StorageBitpackedIndexedArray, Bits: 2, Count: 2},
			{Storage: wdc1.StorageNone, Width: 2},
		},
		IDList: true,
		Rows: []wdc1test.Row{
			{ID: 1, Values: [][]uint64{{17}, {signed(-3, 6)}, {42}, {1000}, {1, 2}, {0xBEEF}}},
			{ID: 2, Values: [][]uint64{{3}, {9}, {7}, {2000}, {3, 4}, {0x1234}}},
			{ID: 3, Values: [][]uint64{{31}, {signed(-32, 6)}, {42}, {1000}, {3, 4}, {0}}},
		},
	}

	p := openBuilder(t, b)

	layout := p.Layout()
	biff.AssertEqual(layout[1].Kind, format.KindInt)
	biff.AssertEqual(layout[4].Count, 2)
	biff.AssertEqual(layout[5].Width, 2)
	biff.AssertEqual(layout.Size(), 4*6+2)

	expected := [][]uint32{
		{17, uint32(0xFFFFFFFD), 42, 1000, 1, 2},
		{3, 9, 7, 2000, 3, 4},
		{31, uint32(0xFFFFFFE0), 42, 1000, 3, 4},
	}
	lasts := []uint16{0xBEEF, 0x1234, 0}

	for i := range expected {
		loc, err := p.RecordInfo(i)
		biff.AssertNil(err)
		raw, err := p.Record(loc)
		biff.AssertNil(err)
		biff.AssertEqual(len(raw), 26)

		obtained := []uint32{}
		for j := 0; j < 6; j++ {
			obtained = append(obtained, u32(raw, j))
		}
		biff.AssertEqual(obtained, expected[i])
		biff.AssertEqual(binary.LittleEndian.Uint16(raw[24:]), lasts[i])
	}
}

func TestParser_OpenErrors(t *testing.T) {

	dir := t.TempDir()

	biff.Alternative("Open errors", func(a *biff.A) {

		a.Alternative("missing file", func(a *biff.A) {
			err := wdc1.New(filepath.Join(dir, "missing.db2")).Open()
			biff.AssertTrue(errors.Is(err, os.ErrNotExist))
		})

		a.Alternative("short header", func(a *biff.A) {
			filename := filepath.Join(dir, "short.db2")
			os.WriteFile(filename, []byte("WDC1"), 0666)
			err := wdc1.New(filename).Open()
			biff.AssertTrue(errors.Is(err, wdc1.ErrTruncated))
		})

		a.Alternative("bad magic", func(a *biff.A) {
			content := (&wdc1test.Builder{}).Bytes()
			copy(content, "WDC9")
			filename := filepath.Join(dir, "magic.db2")
			os.WriteFile(filename, content, 0666)
			err := wdc1.New(filename).Open()
			biff.AssertTrue(errors.Is(err, wdc1.ErrBadMagic))
		})

		a.Alternative("offset map", func(a *biff.A) {
			content := (&wdc1test.Builder{}).Bytes()
			binary.LittleEndian.PutUint16(content[44:], wdc1.FlagOffsetMap)
			filename := filepath.Join(dir, "sparse.db2")
			os.WriteFile(filename, content, 0666)
			err := wdc1.New(filename).Open()
			biff.AssertTrue(errors.Is(err, wdc1.ErrSparse))
		})

		a.Alternative("truncated records", func(a *biff.A) {
			b := &wdc1test.Builder{
				Fields: []wdc1test.Field{{Storage: wdc1.StorageNone}},
				Rows:   []wdc1test.Row{{ID: 1, Values: [][]uint64{{1}}}},
			}
			content := b.Bytes()
			filename := filepath.Join(dir, "truncated.db2")
			os.WriteFile(filename, content[:wdc1.HeaderSize+wdc1.FieldStructureSize+2], 0666)
			err := wdc1.New(filename).Open()
			biff.AssertTrue(errors.Is(err, wdc1.ErrTruncated))
		})

		a.Alternative("record section size beyond 32 bits", func(a *biff.A) {
			content := (&wdc1test.Builder{
				Fields: []wdc1test.Field{{Storage: wdc1.StorageNone}},
			}).Bytes()
			binary.LittleEndian.PutUint32(content[4:], 0x10000)  // record_count
			binary.LittleEndian.PutUint32(content[12:], 0x10000) // record_size
			filename := filepath.Join(dir, "wrapped.db2")
			os.WriteFile(filename, content, 0666)
			err := wdc1.New(filename).Open()
			biff.AssertTrue(errors.Is(err, wdc1.ErrTruncated))
		})

		a.Alternative("field count beyond file", func(a *biff.A) {
			content := (&wdc1test.Builder{}).Bytes()
			binary.LittleEndian.PutUint32(content[8:], 0x40000000) // field_count
			filename := filepath.Join(dir, "fields.db2")
			os.WriteFile(filename, content, 0666)
			err := wdc1.New(filename).Open()
			biff.AssertTrue(errors.Is(err, wdc1.ErrTruncated))
		})
	})
}

func TestParser_Closed(t *testing.T) {

	b := &wdc1test.Builder{
		Fields: []wdc1test.Field{{Storage: wdc1.StorageNone}},
		Rows:   []wdc1test.Row{{ID: 1, Values: [][]uint64{{1}}}},
	}
	p := openBuilder(t, b)
	loc, _ := p.RecordInfo(0)

	biff.AssertNil(p.Close())

	_, err := p.Record(loc)
	biff.AssertTrue(errors.Is(err, wdc1.ErrNotOpen))
	_, err = p.DBCInfo(1)
	biff.AssertTrue(errors.Is(err, wdc1.ErrNotOpen))
	_, err = p.String(0)
	biff.AssertTrue(errors.Is(err, wdc1.ErrNotOpen))
}

func TestParser_CloseWhileReading(t *testing.T) {

	b := &wdc1test.Builder{
		Fields: []wdc1test.Field{{Storage: wdc1.StorageNone}},
	}
	for i := uint32(1); i <= 64; i++ {
		b.Rows = append(b.Rows, wdc1test.Row{ID: i, Values: [][]uint64{{uint64(i)}}})
	}
	p := openBuilder(t, b)

	wg := &sync.WaitGroup{}
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < p.NumRecords(); i++ {
				loc, err := p.RecordInfo(i)
				if err != nil {
					return
				}
				raw, err := p.Record(loc)
				if errors.Is(err, wdc1.ErrNotOpen) {
					return
				}
				if err != nil || binary.LittleEndian.Uint32(raw) != loc.ID {
					t.Errorf("record %d: %v", i, err)
					return
				}
			}
		}()
	}
	biff.AssertNil(p.Close())
	wg.Wait()

	_, err := p.Record(format.Locator{})
	biff.AssertTrue(errors.Is(err, wdc1.ErrNotOpen))
}
