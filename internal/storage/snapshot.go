package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"perplexigo/internal/model"
)

// snapshotKey matches the storage key the original web client used, so a
// snapshot written by one stays readable by the other.
const snapshotKey = "perplexity-threads-v1"

// SnapshotStore is the persistence bridge: it serializes the capped
// transcript view to the KV collaborator on every mutation and rehydrates
// it at startup. Storage trouble degrades to an empty in-memory state and a
// log line; it never reaches the user.
type SnapshotStore struct {
	kv KV
}

// NewSnapshotStore wraps a KV backend.
func NewSnapshotStore(kv KV) *SnapshotStore {
	return &SnapshotStore{kv: kv}
}

// Save overwrites the prior snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("could not marshal snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, snapshotKey, data); err != nil {
		return fmt.Errorf("could not persist snapshot: %w", err)
	}
	return nil
}

// Load reads the stored snapshot. Missing or malformed data yields an empty
// snapshot rather than an error: a freshly wiped history beats a client that
// refuses to start.
func (s *SnapshotStore) Load(ctx context.Context) model.Snapshot {
	data, err := s.kv.Get(ctx, snapshotKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("Failed to load snapshot, starting empty", "error", err)
		}
		return model.Snapshot{}
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("Stored snapshot is malformed, starting empty", "error", err)
		return model.Snapshot{}
	}
	return snap
}
