package storage

import (
	"context"
	"errors"
)

// ErrNotFound is the storage-level sentinel for a missing key. Callers check
// it with errors.Is, so the bridge stays decoupled from whichever backend
// error represents "no such row" (sql.ErrNoRows, pebble.ErrNotFound,
// redis.Nil).
var ErrNotFound = errors.New("storage: key not found")

// KV is the durable key-value collaborator of the persistence bridge. Any
// implementation honoring get/set semantics is acceptable: an embedded
// database, a file, a remote store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}
