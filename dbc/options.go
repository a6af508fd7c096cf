package dbc

import (
	"go.uber.org/zap"

	"github.com/fulldump/dbcextract/data"
)

type options struct {
	logger   *zap.Logger
	registry *data.Registry
	raw      bool
}

type Option func(o *options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func WithRegistry(r *data.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithRaw decodes every record with the raw decoder.
func WithRaw(raw bool) Option {
	return func(o *options) {
		o.raw = raw
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:   zap.NewNop(),
		registry: data.Default,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
