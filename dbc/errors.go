package dbc

import (
	"errors"
)

var (
	ErrNotFound          = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("no parser found for file format")
	ErrParse             = errors.New("unable to parse file")
	ErrFraming           = errors.New("record shorter than its framing")
)
