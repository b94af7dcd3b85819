package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perplexigo/internal/model"
)

// memoryKV is a map-backed KV for exercising the bridge without real I/O.
type memoryKV struct {
	data   map[string][]byte
	getErr error
	setErr error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: map[string][]byte{}}
}

func (m *memoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	value, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

func (m *memoryKV) Set(ctx context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memoryKV) Close() error { return nil }

func sampleSnapshot() model.Snapshot {
	return model.Snapshot{
		ActiveThreadID: "t1",
		Threads: []model.Thread{
			{
				ID:           "t1",
				CheckpointID: "ckpt-1",
				Title:        "Weather",
				CreatedAt:    100,
				UpdatedAt:    200,
				Messages: []model.Message{
					{ID: "m1", Role: model.RoleUser, Content: "What's the weather?"},
					{ID: "m2", Role: model.RoleAssistant, Content: "It's sunny", Citations: []string{"https://a.com"}},
				},
			},
			{ID: "t2", Title: "New Chat", CreatedAt: 50, UpdatedAt: 50, Messages: []model.Message{}},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	kv := newMemoryKV()
	bridge := NewSnapshotStore(kv)
	ctx := context.Background()

	want := sampleSnapshot()
	require.NoError(t, bridge.Save(ctx, want))

	got := bridge.Load(ctx)
	assert.Equal(t, want, got)
}

func TestSnapshotOverwritesPrior(t *testing.T) {
	kv := newMemoryKV()
	bridge := NewSnapshotStore(kv)
	ctx := context.Background()

	require.NoError(t, bridge.Save(ctx, sampleSnapshot()))
	require.NoError(t, bridge.Save(ctx, model.Snapshot{ActiveThreadID: "only"}))

	assert.Equal(t, "only", bridge.Load(ctx).ActiveThreadID)
	assert.Len(t, kv.data, 1)
}

func TestLoadDegradesToEmpty(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing snapshot", func(t *testing.T) {
		got := NewSnapshotStore(newMemoryKV()).Load(ctx)
		assert.Empty(t, got.Threads)
		assert.Empty(t, got.ActiveThreadID)
	})

	t.Run("Malformed snapshot", func(t *testing.T) {
		kv := newMemoryKV()
		kv.data[snapshotKey] = []byte("{not json")
		got := NewSnapshotStore(kv).Load(ctx)
		assert.Empty(t, got.Threads)
	})

	t.Run("Backend failure", func(t *testing.T) {
		kv := newMemoryKV()
		kv.getErr = errors.New("connection refused")
		got := NewSnapshotStore(kv).Load(ctx)
		assert.Empty(t, got.Threads)
	})
}

// Snapshots written by the original web client carry optional fields that
// may simply be absent; decoding must tolerate that and unknown extras.
func TestLoadToleratesSparseSchema(t *testing.T) {
	kv := newMemoryKV()
	kv.data[snapshotKey] = []byte(`{
		"threads": [
			{
				"id": "t1",
				"checkpointId": null,
				"title": "Old chat",
				"messages": [
					{"id": "m1", "role": "user", "content": "hi"},
					{"id": "m2", "role": "assistant", "content": "hello", "searchQuery": null}
				],
				"createdAt": 1,
				"updatedAt": 2,
				"someFutureField": true
			}
		],
		"activeThreadId": null
	}`)

	got := NewSnapshotStore(kv).Load(context.Background())
	require.Len(t, got.Threads, 1)
	assert.Empty(t, got.ActiveThreadID)
	assert.Empty(t, got.Threads[0].CheckpointID)
	require.Len(t, got.Threads[0].Messages, 2)
	assert.Nil(t, got.Threads[0].Messages[0].Citations)
	assert.Empty(t, got.Threads[0].Messages[1].SearchQuery)
}

func TestSaveReportsBackendFailure(t *testing.T) {
	kv := newMemoryKV()
	kv.setErr = errors.New("disk full")

	err := NewSnapshotStore(kv).Save(context.Background(), sampleSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
