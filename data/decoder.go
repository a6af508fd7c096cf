package data

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/fulldump/dbcextract/format"
)

const RawName = "raw"

var (
	ErrShortRecord   = errors.New("record shorter than layout")
	ErrTrailingBytes = errors.New("record longer than layout")
	ErrBadWidth      = errors.New("invalid field width")
	ErrNoContext     = errors.New("string field without context")
)

type Decoder interface {
	Name() string
	Decode(ctx format.Context, id uint32, raw []byte, keyID uint32) (Record, error)
}

type Schema struct {
	Name   string        `json:"name"`
	Fields format.Layout `json:"fields"`
}

func (s *Schema) Validate() error {
	if s.Name == "" {
		return errors.New("schema without name")
	}
	for i, f := range s.Fields {
		if f.Count < 1 {
			return fmt.Errorf("%s field %d '%s' count %d: %w", s.Name, i, f.Name, f.Count, ErrBadWidth)
		}
		ok := false
		switch f.Kind {
		case format.KindUint, format.KindInt:
			ok = f.Width == 1 || f.Width == 2 || f.Width == 4 || f.Width == 8
		case format.KindFloat:
			ok = f.Width == 4 || f.Width == 8
		case format.KindString:
			ok = f.Width == 4
		}
		if !ok {
			return fmt.Errorf("%s field %d '%s' %s width %d: %w", s.Name, i, f.Name, f.Kind, f.Width, ErrBadWidth)
		}
	}
	return nil
}

// SchemaDecoder decodes records laid out as described by a Schema.
type SchemaDecoder struct {
	schema *Schema
	size   int
}

func NewSchemaDecoder(s *Schema) (*SchemaDecoder, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &SchemaDecoder{
		schema: s,
		size:   s.Fields.Size(),
	}, nil
}

func (d *SchemaDecoder) Name() string {
	return d.schema.Name
}

func (d *SchemaDecoder) Schema() *Schema {
	return d.schema
}

func (d *SchemaDecoder) Decode(ctx format.Context, id uint32, raw []byte, keyID uint32) (Record, error) {

	if len(raw) < d.size {
		return nil, fmt.Errorf("%s %d: %d bytes for %d: %w", d.schema.Name, id, len(raw), d.size, ErrShortRecord)
	}
	if len(raw) > d.size {
		return nil, fmt.Errorf("%s %d: %d bytes for %d: %w", d.schema.Name, id, len(raw), d.size, ErrTrailingBytes)
	}

	r := &TypedRecord{
		schema: d.schema.Name,
		id:     id,
		keyID:  keyID,
		fields: make([]Value, len(d.schema.Fields)),
	}

	offset := 0
	for i, f := range d.schema.Fields {
		values := make([]any, f.Count)
		for n := range values {
			v, err := decodeElement(ctx, f, raw[offset:offset+f.Width])
			if err != nil {
				return nil, fmt.Errorf("%s %d field '%s': %w", d.schema.Name, id, f.Name, err)
			}
			values[n] = v
			offset += f.Width
		}

		r.fields[i].Name = f.Name
		if f.Count == 1 {
			r.fields[i].Value = values[0]
		} else {
			r.fields[i].Value = values
		}
	}

	return r, nil
}

func decodeElement(ctx format.Context, f format.Field, b []byte) (any, error) {

	var buf [8]byte
	copy(buf[:], b)
	u := binary.LittleEndian.Uint64(buf[:])

	switch f.Kind {
	case format.KindUint:
		return u, nil
	case format.KindInt:
		shift := 64 - uint(f.Width)*8
		return int64(u<<shift) >> shift, nil
	case format.KindFloat:
		if f.Width == 4 {
			return float64(math.Float32frombits(uint32(u))), nil
		}
		return math.Float64frombits(u), nil
	case format.KindString:
		if ctx == nil {
			return nil, ErrNoContext
		}
		return ctx.String(uint32(u))
	}

	return nil, fmt.Errorf("unknown kind %s", f.Kind)
}

type RawDecoder struct{}

// Raw is the fallback decoder for tables without a schema.
var Raw = &RawDecoder{}

func (d *RawDecoder) Name() string {
	return RawName
}

func (d *RawDecoder) Decode(ctx format.Context, id uint32, raw []byte, keyID uint32) (Record, error) {
	n := len(raw) / 4
	r := &RawRecord{
		id:    id,
		keyID: keyID,
		words: make([]uint32, n),
	}
	for i := range r.words {
		r.words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	if rest := raw[n*4:]; len(rest) > 0 {
		r.tail = append([]byte{}, rest...)
	}
	return r, nil
}

func rawFieldName(i int) string {
	return "field_" + strconv.Itoa(i)
}
