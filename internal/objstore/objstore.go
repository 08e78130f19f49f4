// Package objstore is the boundary to the remote object store: an opaque
// key -> blob collaborator with put/get/exists semantics. Backends wrap
// their failures as transient or permanent upload errors so the coordinator
// can decide what to retry.
package objstore

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Get for keys that have never been put.
var ErrNotExist = errors.New("object does not exist")

// Store is an opaque key->blob store.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// IsNotExist reports whether err means the requested key is absent.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}
