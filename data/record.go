// Package data turns normalized record bytes into decoded records.
//
// Decoders are looked up by schema name in a Registry. A schema decoder
// knows the column layout of one table, the raw decoder is the fallback for
// tables nobody described.
package data

type Value struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type Record interface {
	ID() uint32
	KeyID() uint32
	Schema() string
	Fields() []Value
	Map() map[string]any
}

type TypedRecord struct {
	schema string
	id     uint32
	keyID  uint32
	fields []Value
}

func (r *TypedRecord) ID() uint32 {
	return r.id
}

func (r *TypedRecord) KeyID() uint32 {
	return r.keyID
}

func (r *TypedRecord) Schema() string {
	return r.schema
}

func (r *TypedRecord) Fields() []Value {
	return r.fields
}

func (r *TypedRecord) Map() map[string]any {
	return recordMap(r)
}

// Field returns the value of the field called name.
func (r *TypedRecord) Field(name string) (any, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

type RawRecord struct {
	id    uint32
	keyID uint32
	words []uint32
	tail  []byte
}

func (r *RawRecord) ID() uint32 {
	return r.id
}

func (r *RawRecord) KeyID() uint32 {
	return r.keyID
}

func (r *RawRecord) Schema() string {
	return RawName
}

// Words are the record bytes read as consecutive little endian uint32.
func (r *RawRecord) Words() []uint32 {
	return r.words
}

// Tail holds the bytes that did not fill a whole word.
func (r *RawRecord) Tail() []byte {
	return r.tail
}

func (r *RawRecord) Fields() []Value {
	fields := make([]Value, 0, len(r.words)+1)
	for i, w := range r.words {
		fields = append(fields, Value{Name: rawFieldName(i), Value: w})
	}
	if len(r.tail) > 0 {
		fields = append(fields, Value{Name: "tail", Value: r.tail})
	}
	return fields
}

func (r *RawRecord) Map() map[string]any {
	return recordMap(r)
}

func recordMap(r Record) map[string]any {
	m := map[string]any{}
	for _, f := range r.Fields() {
		m[f.Name] = f.Value
	}
	m["id"] = r.ID()
	if r.KeyID() != 0 {
		m["key_id"] = r.KeyID()
	}
	return m
}
