// Package wdc1test synthesizes WDC1 files for tests.
package wdc1test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/fulldump/dbcextract/wdc1"
)

type Field struct {
	Storage uint32
	Width   int    // bytes per element, defaults to 4
	Count   int    // elements, defaults to 1
	Bits    int    // bit width for bitpacked storages
	Default uint32 // common data default value
}

type Row struct {
	ID     uint32
	Key    uint32
	Values [][]uint64 // one slice per field
}

// Builder describes a table. When IDList is false the id is read from the
// first field, so Values[0] must hold it.
type Builder struct {
	TableHash    uint32
	LayoutHash   uint32
	Fields       []Field
	IDList       bool
	Relationship bool
	Rows         []Row
	Copies       [][2]uint32 // new id, source id

	strings []byte
}

// AddString appends s to the string table and returns its reference.
func (b *Builder) AddString(s string) uint64 {
	ref := uint64(len(b.strings))
	b.strings = append(b.strings, s...)
	b.strings = append(b.strings, 0)
	return ref
}

func (b *Builder) WriteFile(filename string) error {
	return os.WriteFile(filename, b.Bytes(), 0666)
}

func (b *Builder) Bytes() []byte {

	fields := make([]Field, len(b.Fields))
	for i, f := range b.Fields {
		if f.Width == 0 {
			f.Width = 4
		}
		if f.Count == 0 {
			f.Count = 1
		}
		fields[i] = f
	}

	offsets := make([]int, len(fields))
	sizes := make([]int, len(fields))
	bit := 0
	for i, f := range fields {
		switch f.Storage {
		case wdc1.StorageNone:
			bit = (bit + 7) / 8 * 8
			offsets[i] = bit
			sizes[i] = f.Width * 8 * f.Count
		case wdc1.StorageCommonData:
			offsets[i] = bit
		default:
			offsets[i] = bit
			sizes[i] = f.Bits
		}
		bit += sizes[i]
	}
	recordSize := (bit + 7) / 8

	pallets := make([][]uint32, len(fields))
	palletKeys := make([]map[string]uint64, len(fields))
	common := make([][]uint32, len(fields))

	records := make([]byte, len(b.Rows)*recordSize)
	for r, row := range b.Rows {
		record := records[r*recordSize : (r+1)*recordSize]
		for i, f := range fields {
			values := row.Values[i]
			switch f.Storage {
			case wdc1.StorageNone:
				for n, v := range values {
					putUint(record[offsets[i]/8+n*f.Width:], v, f.Width)
				}
			case wdc1.StorageBitpacked, wdc1.StorageBitpackedSigned:
				putBits(record, offsets[i], f.Bits, values[0])
			case wdc1.StorageCommonData:
				if uint32(values[0]) != f.Default {
					common[i] = append(common[i], row.ID, uint32(values[0]))
				}
			case wdc1.StorageBitpackedIndexed, wdc1.StorageBitpackedIndexedArray:
				if palletKeys[i] == nil {
					palletKeys[i] = map[string]uint64{}
				}
				key := fmt.Sprint(values)
				index, exists := palletKeys[i][key]
				if !exists {
					index = uint64(len(pallets[i]) / len(values))
					palletKeys[i][key] = index
					for _, v := range values {
						pallets[i] = append(pallets[i], uint32(v))
					}
				}
				putBits(record, offsets[i], f.Bits, index)
			}
		}
	}

	idList := []uint32{}
	if b.IDList {
		for _, row := range b.Rows {
			idList = append(idList, row.ID)
		}
	}

	copyTable := []uint32{}
	for _, c := range b.Copies {
		copyTable = append(copyTable, c[0], c[1])
	}

	palletData := []uint32{}
	commonData := []uint32{}
	storage := make([]wdc1.FieldStorageInfo, len(fields))
	for i, f := range fields {
		info := wdc1.FieldStorageInfo{
			OffsetBits:  uint16(offsets[i]),
			SizeBits:    uint16(sizes[i]),
			StorageType: f.Storage,
		}
		switch f.Storage {
		case wdc1.StorageBitpacked, wdc1.StorageBitpackedSigned:
			info.Val1 = uint32(offsets[i])
			info.Val2 = uint32(f.Bits)
		case wdc1.StorageCommonData:
			info.Val1 = f.Default
			info.AdditionalDataSize = uint32(len(common[i]) * 4)
			commonData = append(commonData, common[i]...)
		case wdc1.StorageBitpackedIndexed, wdc1.StorageBitpackedIndexedArray:
			info.Val1 = uint32(offsets[i])
			info.Val2 = uint32(f.Bits)
			if f.Storage == wdc1.StorageBitpackedIndexedArray {
				info.Val3 = uint32(f.Count)
			}
			info.AdditionalDataSize = uint32(len(pallets[i]) * 4)
			palletData = append(palletData, pallets[i]...)
		}
		storage[i] = info
	}

	relationship := []uint32{}
	if b.Relationship {
		minID, maxID := b.idRange()
		relationship = append(relationship, uint32(len(b.Rows)), minID, maxID)
		for r, row := range b.Rows {
			relationship = append(relationship, row.Key, uint32(r))
		}
	}

	minID, maxID := b.idRange()
	h := wdc1.Header{
		Magic:                wdc1.Magic,
		RecordCount:          uint32(len(b.Rows)),
		FieldCount:           uint32(len(fields)),
		RecordSize:           uint32(recordSize),
		StringTableSize:      uint32(len(b.strings)),
		TableHash:            b.TableHash,
		LayoutHash:           b.LayoutHash,
		MinID:                minID,
		MaxID:                maxID,
		CopyTableSize:        uint32(len(copyTable) * 4),
		TotalFieldCount:      uint32(len(fields)),
		IDListSize:           uint32(len(idList) * 4),
		FieldStorageInfoSize: uint32(len(storage) * wdc1.FieldStorageInfoSize),
		CommonDataSize:       uint32(len(commonData) * 4),
		PalletDataSize:       uint32(len(palletData) * 4),
		RelationshipDataSize: uint32(len(relationship) * 4),
	}

	buf := &bytes.Buffer{}
	write(buf, h)
	for i, f := range fields {
		write(buf, wdc1.FieldStructure{
			Size:   int16(32 - f.Width*8),
			Offset: uint16(offsets[i] / 8),
		})
	}
	buf.Write(records)
	buf.Write(b.strings)
	write(buf, idList)
	write(buf, copyTable)
	write(buf, storage)
	write(buf, palletData)
	write(buf, commonData)
	write(buf, relationship)

	return buf.Bytes()
}

func (b *Builder) idRange() (minID, maxID uint32) {
	for i, row := range b.Rows {
		if i == 0 || row.ID < minID {
			minID = row.ID
		}
		if row.ID > maxID {
			maxID = row.ID
		}
	}
	return
}

func write(buf *bytes.Buffer, v interface{}) {
	err := binary.Write(buf, binary.LittleEndian, v)
	if err != nil {
		panic(err)
	}
}

func putUint(dst []byte, v uint64, width int) {
	for b := 0; b < width; b++ {
		dst[b] = byte(v >> (8 * b))
	}
}

func putBits(record []byte, offset, size int, v uint64) {
	for b := 0; b < size; b++ {
		if v>>b&1 == 1 {
			record[(offset+b)/8] |= 1 << ((offset + b) % 8)
		}
	}
}
