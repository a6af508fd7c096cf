package data

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fulldump/dbcextract/utils"
)

var ErrNoDecoder = errors.New("no decoder registered")

type Registry struct {
	mutex    sync.RWMutex
	decoders map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{
		decoders: map[string]Decoder{},
	}
}

// Register adds d under d.Name(), replacing any previous decoder with the
// same name.
func (r *Registry) Register(d Decoder) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.decoders[d.Name()] = d
}

func (r *Registry) Lookup(name string) (Decoder, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	d, exists := r.decoders[name]
	if !exists {
		return nil, fmt.Errorf("%w for '%s'", ErrNoDecoder, name)
	}
	return d, nil
}

func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return utils.GetKeys(r.decoders)
}

// NewDefaultRegistry returns a registry holding the built-in schemas.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range builtinSchemas {
		d, err := NewSchemaDecoder(s)
		if err != nil {
			panic(err)
		}
		r.Register(d)
	}
	return r
}

var Default = NewDefaultRegistry()
