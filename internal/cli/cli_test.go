package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perplexigo/internal/session"
	"perplexigo/internal/stream"
	"perplexigo/internal/transcript"
)

// endImmediately answers every query with a single content fragment and a
// terminal event, so Run sees a complete conversation without a server.
type endImmediately struct{}

func (endImmediately) Open(ctx context.Context, query, checkpointID string) (stream.Stream, error) {
	return &cannedStream{events: eventChan(
		stream.Event{Type: stream.EventContent, Content: "answer to " + query},
		stream.Event{Type: stream.EventEnd},
	)}, nil
}

type cannedStream struct{ events chan stream.Event }

func (c *cannedStream) Events() <-chan stream.Event { return c.events }
func (c *cannedStream) Err() error                  { return nil }
func (c *cannedStream) Close()                      {}

func eventChan(evs ...stream.Event) chan stream.Event {
	ch := make(chan stream.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch
}

func newTestCLI(t *testing.T, input string) (*CLI, *session.Controller, *bytes.Buffer) {
	t.Helper()
	ctrl := session.NewController(transcript.NewStore(), endImmediately{}, nil)
	out := &bytes.Buffer{}
	return New(ctrl, strings.NewReader(input), out), ctrl, out
}

func TestRunQuitCommand(t *testing.T) {
	c, _, _ := newTestCLI(t, "/quit\n")
	require.NoError(t, c.Run())
}

func TestRunListsThreads(t *testing.T) {
	c, ctrl, out := newTestCLI(t, "/list\n/new\n/list\n/quit\n")
	require.NoError(t, c.Run())

	assert.Contains(t, out.String(), "No threads yet.")
	assert.Contains(t, out.String(), transcript.DefaultTitle)
	assert.Len(t, ctrl.Snapshot().Threads, 1)
}

func TestRunUnknownCommand(t *testing.T) {
	c, _, out := newTestCLI(t, "/teleport\n/quit\n")
	require.NoError(t, c.Run())
	assert.Contains(t, out.String(), "Unknown command")
}

func TestDeleteAndClear(t *testing.T) {
	c, ctrl, _ := newTestCLI(t, "/new\n/new\n/delete 1\n/clear\n/quit\n")
	require.NoError(t, c.Run())
	assert.Empty(t, ctrl.Snapshot().Threads)
}

func TestRenameActiveThread(t *testing.T) {
	c, ctrl, _ := newTestCLI(t, "/new\n/rename Field Notes\n/quit\n")
	require.NoError(t, c.Run())

	snap := ctrl.Snapshot()
	require.Len(t, snap.Threads, 1)
	assert.Equal(t, "Field Notes", snap.Threads[0].Title)
}
