package dbc

import (
	"fmt"
	"io"
	"os"

	"github.com/fulldump/dbcextract/format"
	"github.com/fulldump/dbcextract/wdc1"
)

type ParserConstructor func(path string) format.Parser

var parsers = map[[4]byte]ParserConstructor{
	wdc1.Magic: func(path string) format.Parser {
		return wdc1.New(path)
	},
}

// Supported reports whether magic selects a registered parser.
func Supported(magic [4]byte) bool {
	_, ok := parsers[magic]
	return ok
}

// ReadMagic returns the first four bytes of filename.
func ReadMagic(filename string) ([4]byte, error) {
	magic := [4]byte{}

	f, err := os.Open(filename)
	if err != nil {
		return magic, fmt.Errorf("open file for read: %w", err)
	}
	defer f.Close()

	_, err = io.ReadFull(f, magic[:])
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return [4]byte{}, nil
	}
	if err != nil {
		return magic, fmt.Errorf("read magic: %w", err)
	}

	return magic, nil
}

func parserFor(filename string) (format.Parser, error) {
	magic, err := ReadMagic(filename)
	if err != nil {
		return nil, err
	}

	constructor, ok := parsers[magic]
	if !ok {
		return nil, fmt.Errorf("%w %q in %s", ErrUnsupportedFormat, magic[:], filename)
	}

	return constructor(filename), nil
}
