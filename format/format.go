// Package format holds the contracts shared by the binary table parsers, the
// record decoders and the table handles built on top of them.
package format

import (
	"fmt"
	"strings"
)

// BlockFieldSize is the byte width of an id block or key block field.
const BlockFieldSize = 4

type Kind uint8

const (
	KindUint Kind = iota
	KindInt
	KindFloat
	KindString
)

var kindNames = map[Kind]string{
	KindUint:   "uint",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for kind, kindName := range kindNames {
		if kindName == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown field kind '%s'", name)
}

// Field describes one column of a normalized record: Count elements of Width
// bytes each, little endian. String fields are 4 byte references resolved
// through a Context.
type Field struct {
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Width int    `json:"width"`
	Count int    `json:"count"`
}

func (f Field) Size() int {
	return f.Width * f.Count
}

type Layout []Field

func (l Layout) Size() int {
	size := 0
	for _, field := range l {
		size += field.Size()
	}
	return size
}

// Locator is the positional metadata needed to fetch and interpret one record.
type Locator struct {
	ID     uint32
	Index  int
	Offset int64
	Size   int
	KeyID  uint32
}

// Framing tells which extra fields a hotfix payload carries around the
// regular record fields: the record id in front (id block) and the parent id
// at the end (key block).
type Framing struct {
	IDBlock  bool `json:"id_block"`
	KeyBlock bool `json:"key_block"`
}

func (f Framing) Expanded() bool {
	return f.IDBlock || f.KeyBlock
}

// Context resolves string references found in normalized records.
type Context interface {
	String(ref uint32) (string, error)
}

// Parser reads one table file.
type Parser interface {
	Context

	Open() error
	Close() error

	NumRecords() int
	// RecordInfo returns the locator of the record at position index.
	RecordInfo(index int) (Locator, error)
	// Record returns the normalized bytes of the record behind loc.
	Record(loc Locator) ([]byte, error)
	// DBCInfo returns the locator for id or, when id is not present, the
	// nearest locator following it. Callers must check Locator.ID.
	DBCInfo(id uint32) (Locator, error)

	TableHash() uint32
	Layout() Layout
	HasIDBlock() bool
	HasKeyBlock() bool
}

// Target is the table a hotfix parser resolves entries for.
type Target interface {
	SchemaName() string
	TableHash() uint32
	Layout() Layout
	Framing() Framing
}

// HotfixParser reads a hotfix cache. Every operation is scoped to a Target
// because entries are only interpretable with the layout of their table.
type HotfixParser interface {
	Context

	Open() error
	Close() error

	NumEntries(t Target) int
	RecordInfo(index int, t Target) (Locator, error)
	Record(loc Locator, t Target) ([]byte, error)
}
