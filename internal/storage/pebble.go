package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// pebbleKV keeps snapshots in an embedded Pebble store. Heavier than the
// sqlite backend but useful where the data directory is shared with other
// pebble-backed tooling.
type pebbleKV struct {
	db *pebble.DB
}

// OpenPebble opens (creating if needed) a pebble store rooted at dir.
func OpenPebble(dir string) (KV, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store: %w", err)
	}
	return &pebbleKV{db: db}, nil
}

func (p *pebbleKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, closer, err := p.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("could not read key %q: %w", key, err)
	}
	out := append([]byte(nil), value...)
	if err := closer.Close(); err != nil {
		return nil, fmt.Errorf("could not release read of key %q: %w", key, err)
	}
	return out, nil
}

func (p *pebbleKV) Set(ctx context.Context, key string, value []byte) error {
	if err := p.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("could not write key %q: %w", key, err)
	}
	return nil
}

func (p *pebbleKV) Close() error {
	return p.db.Close()
}
