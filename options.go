package daypack

import (
	"github.com/daypack/daypack/internal/objstore"
	"github.com/daypack/daypack/internal/types"
)

type options struct {
	store  objstore.Store
	logger types.Logger
}

// Option configures runner and restorer construction.
type Option func(*options)

// WithStore injects a remote store instead of opening one from
// configuration. Used by tests and embedders.
func WithStore(store ObjectStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
