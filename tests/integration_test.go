// End-to-end exercise of the assembled client: a mock Q&A endpoint streams
// scripted frames, the session folds them into the transcript, and the
// snapshot survives a restart from the same database file.
package tests

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perplexigo/internal/app"
	"perplexigo/internal/config"
	"perplexigo/internal/model"
)

func startMockServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		frames := []string{
			`{"type": "checkpoint", "checkpoint_id": "ckpt-99"}`,
			`{"type": "search_start", "query": "weather"}`,
			`{"type": "search_results", "urls": ["https://a.com", "https://a.com", "https://b.com"]}`,
			`: keep-alive`,
			`{"type": "content", "content": "It's"}`,
			`{"type": "content", "content": " sunny"}`,
			"[DONE]",
		}
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func waitIdle(t *testing.T, a *app.App) {
	t.Helper()
	require.Eventually(t, func() bool { return !a.Session.IsStreaming() },
		5*time.Second, 10*time.Millisecond)
}

func TestClientEndToEnd(t *testing.T) {
	server := startMockServer(t)
	cfg := &config.Config{
		APIBaseURL:     server.URL,
		StorageBackend: "sqlite",
		DatabasePath:   filepath.Join(t.TempDir(), "threads.db"),
		LogLevel:       "ERROR",
	}

	client, err := app.NewApp(cfg)
	require.NoError(t, err)

	client.Session.Send("What's the weather?")
	waitIdle(t, client)

	snap := client.Session.Snapshot()
	require.Len(t, snap.Threads, 1)
	th := snap.Threads[0]
	assert.Equal(t, "What's the weather?", th.Title)
	assert.Equal(t, "ckpt-99", th.CheckpointID)
	require.Len(t, th.Messages, 2)

	answer := th.Messages[1]
	assert.Equal(t, model.RoleAssistant, answer.Role)
	assert.Equal(t, "It's sunny", answer.Content)
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, answer.Citations)
	assert.Empty(t, answer.SearchQuery)
	assert.Empty(t, client.Session.LastError())

	require.NoError(t, client.Close())

	// A fresh process over the same database sees the same conversation.
	reopened, err := app.NewApp(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	restored := reopened.Session.Snapshot()
	assert.Equal(t, snap, restored)
	assert.False(t, reopened.Session.IsStreaming())
}

func TestClientSurvivesUnreachableServer(t *testing.T) {
	cfg := &config.Config{
		APIBaseURL:     "http://127.0.0.1:1", // nothing listens here
		StorageBackend: "sqlite",
		DatabasePath:   filepath.Join(t.TempDir(), "threads.db"),
		LogLevel:       "ERROR",
	}

	client, err := app.NewApp(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close()) }()

	client.Session.Send("hello?")
	waitIdle(t, client)

	assert.Equal(t, "Stream error. Please try again.", client.Session.LastError())
	// The user turn is recorded, so /retry has something to replay.
	snap := client.Session.Snapshot()
	require.Len(t, snap.Threads, 1)
	assert.Len(t, snap.Threads[0].Messages, 2)
}
