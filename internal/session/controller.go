package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"perplexigo/internal/model"
	"perplexigo/internal/stream"
	"perplexigo/internal/transcript"
)

// streamErrMessage is the single user-visible, retryable error. Partial
// content streamed before the failure is preserved, not rolled back.
const streamErrMessage = "Stream error. Please try again."

// Dialer opens the event channel for one query. stream.Client is the real
// implementation; tests substitute scripted fakes.
type Dialer interface {
	Open(ctx context.Context, query, checkpointID string) (stream.Stream, error)
}

// Persister receives the transcript snapshot after every mutation. Failures
// are logged and swallowed; persistence trouble never reaches the user.
type Persister interface {
	Save(ctx context.Context, snap model.Snapshot) error
}

// Controller orchestrates at most one active channel at a time. It owns all
// transcript mutation: events and user actions funnel through it, so the
// store never sees two writers. State is either idle (no channel) or
// streaming (exactly one channel bound to one thread and one draft).
type Controller struct {
	mu      sync.Mutex
	store   *transcript.Store
	dial    Dialer
	persist Persister

	active       stream.Stream
	activeThread string
	gen          uint64
	streaming    bool
	lastErr      string
	lastUserText string
	sourcesMsgID string
	subscribers  []func()
}

// NewController wires the controller to its collaborators.
func NewController(store *transcript.Store, dial Dialer, persist Persister) *Controller {
	return &Controller{store: store, dial: dial, persist: persist}
}

// Subscribe registers a callback invoked after every observable state
// change. Callbacks run outside the controller lock and must not block.
func (c *Controller) Subscribe(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Send starts a new query. It is a no-op when the text trims to nothing or
// a stream is already active. A thread is created on demand, the user turn
// and an empty assistant draft are appended before the channel opens, and
// any stray prior channel is closed first.
func (c *Controller) Send(text string) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if text == "" || c.streaming {
		c.mu.Unlock()
		return
	}

	th := c.store.Thread(c.store.ActiveThreadID)
	if th == nil {
		th = c.store.Thread(c.store.NewThread())
	}
	threadID := th.ID
	checkpoint := th.CheckpointID
	_, draftID := c.store.AppendUserTurn(threadID, text)

	if c.active != nil {
		c.active.Close()
		c.active = nil
	}

	c.gen++
	gen := c.gen
	c.streaming = true
	c.activeThread = threadID
	c.lastErr = ""
	c.lastUserText = text
	c.sourcesMsgID = ""
	c.persistLocked()
	c.mu.Unlock()
	c.notify()

	sub, err := c.dial.Open(context.Background(), text, checkpoint)

	c.mu.Lock()
	if gen != c.gen {
		// Stopped (or superseded) while dialing; drop the late channel.
		c.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		return
	}
	if err != nil {
		slog.Warn("Failed to open stream", "error", err)
		c.streaming = false
		c.lastErr = streamErrMessage
		c.mu.Unlock()
		c.notify()
		return
	}
	c.active = sub
	c.mu.Unlock()

	go c.consume(sub, threadID, draftID)
}

// Stop cancels the in-flight stream. User-initiated cancellation is not a
// failure: no error is set and the partial draft stays as-is. No-op when
// idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.streaming {
		c.mu.Unlock()
		return
	}
	c.gen++
	if c.active != nil {
		c.active.Close()
		c.active = nil
	}
	c.streaming = false
	c.mu.Unlock()
	c.notify()
}

// Retry replays the last sent user text verbatim, producing a fresh
// assistant draft. No-op when nothing has been sent yet.
func (c *Controller) Retry() {
	c.mu.Lock()
	text := c.lastUserText
	c.mu.Unlock()
	if text == "" {
		return
	}
	c.Send(text)
}

// consume folds the channel's events into the transcript until the terminal
// event, a transport failure, or cancellation. The identity check against
// c.active guarantees a closed channel never mutates the transcript, even
// when events were already in flight at the moment of cancellation.
func (c *Controller) consume(sub stream.Stream, threadID, draftID string) {
	for ev := range sub.Events() {
		c.mu.Lock()
		if c.active != sub {
			c.mu.Unlock()
			return
		}
		c.store.ApplyEvent(threadID, draftID, ev)

		switch ev.Type {
		case stream.EventCheckpoint:
			c.store.SetCheckpoint(threadID, ev.CheckpointID)
		case stream.EventEnd:
			c.active = nil
			c.streaming = false
			c.lastErr = ""
			sub.Close()
		}
		c.persistLocked()
		c.mu.Unlock()
		c.notify()

		if ev.Type == stream.EventEnd {
			return
		}
	}

	// Channel closed without a terminal event: transport failure, unless we
	// closed it ourselves.
	c.mu.Lock()
	if c.active != sub {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.streaming = false
	if err := sub.Err(); err != nil {
		slog.Warn("Stream failed", "thread", threadID, "error", err)
		c.lastErr = streamErrMessage
	}
	c.mu.Unlock()
	c.notify()
}

// NewThread creates an empty thread and makes it active.
func (c *Controller) NewThread() string {
	c.mu.Lock()
	id := c.store.NewThread()
	c.lastErr = ""
	c.sourcesMsgID = ""
	c.persistLocked()
	c.mu.Unlock()
	c.notify()
	return id
}

// SetActiveThread switches the active thread; unknown ids are ignored.
func (c *Controller) SetActiveThread(id string) {
	c.mu.Lock()
	if !c.store.SetActiveThread(id) {
		c.mu.Unlock()
		return
	}
	c.lastErr = ""
	c.sourcesMsgID = ""
	c.persistLocked()
	c.mu.Unlock()
	c.notify()
}

// RenameThread renames the active thread. Empty titles are ignored.
func (c *Controller) RenameThread(title string) {
	c.mu.Lock()
	c.store.Rename(c.store.ActiveThreadID, title)
	c.persistLocked()
	c.mu.Unlock()
	c.notify()
}

// DeleteThread removes a thread. Deleting the thread that owns the active
// channel cancels that channel first, so no background stream is left
// referencing a deleted thread.
func (c *Controller) DeleteThread(id string) {
	c.mu.Lock()
	if c.streaming && c.activeThread == id {
		c.gen++
		if c.active != nil {
			c.active.Close()
			c.active = nil
		}
		c.streaming = false
	}
	c.store.Delete(id)
	c.sourcesMsgID = ""
	c.persistLocked()
	c.mu.Unlock()
	c.notify()
}

// DeleteAllThreads clears the history, cancelling any in-flight stream.
func (c *Controller) DeleteAllThreads() {
	c.mu.Lock()
	c.gen++
	if c.active != nil {
		c.active.Close()
		c.active = nil
	}
	c.streaming = false
	c.store.DeleteAll()
	c.sourcesMsgID = ""
	c.persistLocked()
	c.mu.Unlock()
	c.notify()
}

// OpenSources sets (or clears, with "") the message whose citations the
// presentation layer is focusing on.
func (c *Controller) OpenSources(messageID string) {
	c.mu.Lock()
	c.sourcesMsgID = messageID
	c.mu.Unlock()
	c.notify()
}

// AcknowledgeError dismisses the user-visible error.
func (c *Controller) AcknowledgeError() {
	c.mu.Lock()
	c.lastErr = ""
	c.mu.Unlock()
	c.notify()
}

// IsStreaming reports whether a channel is currently open.
func (c *Controller) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// LastError returns the user-visible error message, empty when none.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ActiveThreadID returns the id of the active thread, empty when none.
func (c *Controller) ActiveThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.ActiveThreadID
}

// Snapshot returns a deep copy of the transcript for rendering.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Snapshot()
}

// SourcesMessage resolves the citation-focus message, if one is set.
func (c *Controller) SourcesMessage() (model.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sourcesMsgID == "" {
		return model.Message{}, false
	}
	for _, th := range c.store.Threads {
		for _, m := range th.Messages {
			if m.ID == c.sourcesMsgID {
				return m.Clone(), true
			}
		}
	}
	return model.Message{}, false
}

// persistLocked snapshots the store and hands it to the persister. Called
// with the controller lock held so writes land in mutation order.
func (c *Controller) persistLocked() {
	if c.persist == nil {
		return
	}
	if err := c.persist.Save(context.Background(), c.store.Snapshot()); err != nil {
		slog.Warn("Failed to persist snapshot", "error", err)
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	subs := append([]func(){}, c.subscribers...)
	c.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}
