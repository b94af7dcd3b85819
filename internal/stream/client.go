package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// doneSentinel is the non-JSON terminal frame some backends emit instead of
// a typed end event.
const doneSentinel = "[DONE]"

// Stream is a live subscription to one in-flight query. Events are delivered
// on the channel returned by Events; the channel closes after the terminal
// event, after a transport failure, or after Close. Err reports the transport
// failure, if any, once the channel has closed.
type Stream interface {
	Events() <-chan Event
	Err() error
	Close()
}

// Client opens answer streams against the Q&A service.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient returns a Client for the given endpoint base. A trailing slash
// on the base URL is tolerated.
func NewClient(baseURL string) *Client {
	return &Client{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Open starts the event stream for a single query. The query text travels as
// a path segment and the checkpoint token, when present, as a query
// parameter, so the server can resume prior conversational context.
//
// Dial-time failures (bad URL, refused connection, non-200 status) are
// returned directly; failures after the stream is established surface
// through Stream.Err exactly once.
func (c *Client) Open(ctx context.Context, query, checkpointID string) (Stream, error) {
	endpoint := c.baseURL + "/chat_stream/" + url.PathEscape(query)
	if checkpointID != "" {
		endpoint += "?checkpoint_id=" + url.QueryEscape(checkpointID)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("could not create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if cErr := resp.Body.Close(); cErr != nil {
			slog.Warn("Failed to close rejected stream body", "error", cErr)
		}
		cancel()
		return nil, fmt.Errorf("stream returned status %d: %s", resp.StatusCode, string(body))
	}

	sub := &subscription{
		events: make(chan Event),
		cancel: cancel,
	}
	go sub.consume(ctx, resp.Body)
	return sub, nil
}

type subscription struct {
	events    chan Event
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *subscription) Events() <-chan Event { return s.events }

// Err reports the transport failure that ended the stream, or nil after
// natural completion or a caller-initiated Close. Valid once the events
// channel has closed.
func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close drops interest in further events. It is idempotent and safe to call
// after natural completion. Events still in flight when Close is called are
// discarded, never delivered.
func (s *subscription) Close() {
	s.closeOnce.Do(s.cancel)
}

// consume reads server-sent event frames until a terminal event, a transport
// failure, or cancellation. Frames that are not valid JSON or carry an
// unknown type are dropped as keep-alive noise.
func (s *subscription) consume(ctx context.Context, body io.ReadCloser) {
	defer close(s.events)
	defer func() {
		if err := body.Close(); err != nil {
			slog.Warn("Failed to close stream body", "error", err)
		}
	}()

	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		if data == doneSentinel {
			s.deliver(ctx, Event{Type: EventEnd})
			return
		}

		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil || !knownType(ev.Type) {
			continue
		}
		if !s.deliver(ctx, ev) {
			return
		}
		if ev.Type == EventEnd {
			return
		}
	}

	// The body ended before a terminal event: natural in-flight cancellation
	// when the caller closed us, a transport failure otherwise.
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	if err := scanner.Err(); err != nil {
		s.err = fmt.Errorf("stream transport failed: %w", err)
	} else {
		s.err = fmt.Errorf("stream closed before completion: %w", io.ErrUnexpectedEOF)
	}
	s.mu.Unlock()
}

func (s *subscription) deliver(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
