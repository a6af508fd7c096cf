// Package xfthtest synthesizes XFTH hotfix caches for tests.
package xfthtest

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/fulldump/dbcextract/xfth"
)

type Entry struct {
	PushID    int32
	UniqueID  uint32
	TableHash uint32
	RecordID  uint32
	Status    uint8 // defaults to xfth.StatusValid
	Payload   []byte
}

type Builder struct {
	Version uint32 // defaults to xfth.HashVersion
	Build   uint32
	Entries []Entry
}

func (b *Builder) WriteFile(filename string) error {
	return os.WriteFile(filename, b.Bytes(), 0666)
}

func (b *Builder) Bytes() []byte {

	version := b.Version
	if version == 0 {
		version = xfth.HashVersion
	}

	buf := &bytes.Buffer{}
	buf.Write(xfth.Magic[:])
	put(buf, version)
	put(buf, b.Build)
	if version >= xfth.HashVersion {
		buf.Write(make([]byte, xfth.HashSize))
	}

	for _, e := range b.Entries {
		status := e.Status
		if status == 0 {
			status = xfth.StatusValid
		}

		buf.Write(xfth.Magic[:])
		put(buf, e.PushID)
		if version >= xfth.HashVersion {
			put(buf, e.UniqueID)
		}
		put(buf, e.TableHash)
		put(buf, e.RecordID)
		put(buf, uint32(len(e.Payload)))
		buf.Write([]byte{status, 0, 0, 0})
		buf.Write(e.Payload)
	}

	return buf.Bytes()
}

func put(buf *bytes.Buffer, v interface{}) {
	err := binary.Write(buf, binary.LittleEndian, v)
	if err != nil {
		panic(err)
	}
}

// Payload builds entry payloads the way the client stores them: numbers
// little endian, strings inline and NUL terminated.
type Payload struct {
	buf []byte
}

func NewPayload() *Payload {
	return &Payload{}
}

func (p *Payload) U8(v uint8) *Payload {
	p.buf = append(p.buf, v)
	return p
}

func (p *Payload) U16(v uint16) *Payload {
	p.buf = binary.LittleEndian.AppendUint16(p.buf, v)
	return p
}

func (p *Payload) U32(v uint32) *Payload {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
	return p
}

func (p *Payload) CString(s string) *Payload {
	p.buf = append(p.buf, s...)
	p.buf = append(p.buf, 0)
	return p
}

func (p *Payload) Bytes() []byte {
	return p.buf
}
