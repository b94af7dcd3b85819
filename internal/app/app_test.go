package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perplexigo/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		APIBaseURL:     "http://localhost:8000",
		StorageBackend: "sqlite",
		DatabasePath:   filepath.Join(t.TempDir(), "threads.db"),
		LogLevel:       "DEBUG",
	}
}

func TestNewApp(t *testing.T) {
	app, err := NewApp(testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, app)
	defer func() { require.NoError(t, app.Close()) }()

	assert.NotNil(t, app.KV)
	assert.NotNil(t, app.Store)
	assert.NotNil(t, app.Session)
	assert.Empty(t, app.Store.Threads)
}

func TestNewAppRehydratesHistory(t *testing.T) {
	cfg := testConfig(t)

	first, err := NewApp(cfg)
	require.NoError(t, err)
	id := first.Session.NewThread()
	first.Session.RenameThread("Kept across restarts")
	require.NoError(t, first.Close())

	second, err := NewApp(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, second.Close()) }()

	require.Len(t, second.Store.Threads, 1)
	assert.Equal(t, id, second.Store.ActiveThreadID)
	assert.Equal(t, "Kept across restarts", second.Store.Threads[0].Title)
	// Ephemeral session state is never persisted: restarts begin idle.
	assert.False(t, second.Session.IsStreaming())
	assert.Empty(t, second.Session.LastError())
}

func TestNewAppUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageBackend = "cassette-tape"

	_, err := NewApp(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassette-tape")
}

func TestNewAppPebbleBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageBackend = "pebble"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "pebble")

	app, err := NewApp(cfg)
	require.NoError(t, err)
	require.NoError(t, app.Close())
}
