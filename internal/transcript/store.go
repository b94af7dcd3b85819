package transcript

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"perplexigo/internal/model"
	"perplexigo/internal/stream"
)

const (
	// MaxThreads caps the history. Every mutation re-sorts by recency and
	// truncates, silently discarding the oldest threads beyond the cap.
	MaxThreads = 10
	// TitleLimit bounds derived and user-provided thread titles, in runes.
	TitleLimit = 48
	// DefaultTitle is used until a thread has any content to derive from.
	DefaultTitle = "New Chat"
)

// Streaming fragments can split mid-sentence; merging must never pile up
// runs of whitespace at chunk boundaries.
var excessWhitespace = regexp.MustCompile(`\s{3,}`)

// Store owns the thread collection. It is pure data plus invariant-
// preserving mutations: no I/O, no locking. The session controller is its
// only mutator and serializes access.
type Store struct {
	Threads        []*model.Thread
	ActiveThreadID string

	now func() int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{now: func() int64 { return time.Now().UnixMilli() }}
}

// Restore seeds the store from a persisted snapshot, replacing any current
// state. The incoming thread list is re-capped on the way in.
func (s *Store) Restore(snap model.Snapshot) {
	s.Threads = make([]*model.Thread, 0, len(snap.Threads))
	for _, t := range snap.Threads {
		th := t.Clone()
		s.Threads = append(s.Threads, &th)
	}
	s.ActiveThreadID = snap.ActiveThreadID
	s.sortAndTrim()
}

// Snapshot returns the persistable view: the capped thread list and the
// active thread id, deep-copied.
func (s *Store) Snapshot() model.Snapshot {
	snap := model.Snapshot{
		Threads:        make([]model.Thread, 0, len(s.Threads)),
		ActiveThreadID: s.ActiveThreadID,
	}
	for _, t := range s.Threads {
		snap.Threads = append(snap.Threads, t.Clone())
	}
	return snap
}

// Thread returns the thread with the given id, or nil.
func (s *Store) Thread(id string) *model.Thread {
	for _, t := range s.Threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// NewThread inserts a new empty thread at the front and makes it active.
func (s *Store) NewThread() string {
	now := s.now()
	th := &model.Thread{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  []model.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Threads = append([]*model.Thread{th}, s.Threads...)
	s.ActiveThreadID = th.ID
	s.sortAndTrim()
	return th.ID
}

// SetActiveThread switches the active thread. Unknown ids are ignored.
func (s *Store) SetActiveThread(id string) bool {
	if s.Thread(id) == nil {
		return false
	}
	s.ActiveThreadID = id
	return true
}

// AppendUserTurn appends a complete user message followed by an empty
// assistant draft, so the caller has a target for stream events before any
// of them arrive. It recomputes the thread title and bumps updatedAt.
func (s *Store) AppendUserTurn(threadID, text string) (userID, draftID string) {
	th := s.Thread(threadID)
	if th == nil {
		return "", ""
	}

	user := model.Message{ID: uuid.NewString(), Role: model.RoleUser, Content: text}
	draft := model.Message{ID: uuid.NewString(), Role: model.RoleAssistant, Content: "", Citations: []string{}}
	th.Messages = append(th.Messages, user, draft)
	th.Title = deriveTitle(th.Messages)
	s.bump(th)
	s.sortAndTrim()
	return user.ID, draft.ID
}

// ApplyEvent routes one stream event to the draft message it targets. If the
// draft has gone missing (deleted out from under a live stream), an empty
// one with the same id is re-inserted so later events still have a target.
func (s *Store) ApplyEvent(threadID, draftID string, ev stream.Event) {
	th := s.Thread(threadID)
	if th == nil {
		return
	}

	idx := -1
	for i := range th.Messages {
		if th.Messages[i].ID == draftID {
			idx = i
			break
		}
	}
	if idx == -1 {
		th.Messages = append(th.Messages, model.Message{
			ID:        draftID,
			Role:      model.RoleAssistant,
			Citations: []string{},
		})
		idx = len(th.Messages) - 1
	}
	msg := &th.Messages[idx]

	switch ev.Type {
	case stream.EventContent:
		msg.Content = appendChunk(msg.Content, ev.Content)
	case stream.EventSearchStart:
		msg.SearchQuery = ev.Query
	case stream.EventSearchResults:
		msg.Citations = mergeURLs(msg.Citations, ev.URLs)
	case stream.EventEnd:
		msg.SearchQuery = ""
		s.bump(th)
	case stream.EventCheckpoint:
		// Token capture lives in SetCheckpoint; the event only marks activity.
		s.bump(th)
	}
	s.sortAndTrim()
}

// SetCheckpoint attaches the server-issued continuation token to the thread.
func (s *Store) SetCheckpoint(threadID, token string) {
	if th := s.Thread(threadID); th != nil {
		th.CheckpointID = token
	}
}

// Rename sets the thread title. Empty titles are ignored; long ones are
// bounded the same way derived titles are.
func (s *Store) Rename(threadID, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	th := s.Thread(threadID)
	if th == nil {
		return
	}
	th.Title = truncate(title, TitleLimit)
	s.bump(th)
	s.sortAndTrim()
}

// Delete removes a thread. When the active thread is deleted, the most
// recently updated remaining thread becomes active.
func (s *Store) Delete(threadID string) {
	kept := s.Threads[:0]
	for _, t := range s.Threads {
		if t.ID != threadID {
			kept = append(kept, t)
		}
	}
	s.Threads = kept
	if s.ActiveThreadID == threadID {
		s.ActiveThreadID = ""
		if len(s.Threads) > 0 {
			s.ActiveThreadID = s.Threads[0].ID
		}
	}
	s.sortAndTrim()
}

// DeleteAll clears the whole history.
func (s *Store) DeleteAll() {
	s.Threads = nil
	s.ActiveThreadID = ""
}

// bump moves the thread's updatedAt forward, never backward.
func (s *Store) bump(th *model.Thread) {
	if now := s.now(); now > th.UpdatedAt {
		th.UpdatedAt = now
	}
}

// sortAndTrim enforces the capacity invariant as a pure function of the
// current set: most recently updated first, truncated to MaxThreads.
func (s *Store) sortAndTrim() {
	sort.SliceStable(s.Threads, func(i, j int) bool {
		return s.Threads[i].UpdatedAt > s.Threads[j].UpdatedAt
	})
	if len(s.Threads) > MaxThreads {
		s.Threads = s.Threads[:MaxThreads]
	}
}

// deriveTitle picks the first non-empty user content, then the first
// non-empty assistant content, then the default label.
func deriveTitle(messages []model.Message) string {
	for _, role := range []model.Role{model.RoleUser, model.RoleAssistant} {
		for _, m := range messages {
			if m.Role != role {
				continue
			}
			if content := strings.TrimSpace(m.Content); content != "" {
				return truncate(content, TitleLimit)
			}
		}
	}
	return DefaultTitle
}

// appendChunk concatenates a streamed fragment onto the draft content,
// collapsing accidental whitespace runs introduced at chunk boundaries.
func appendChunk(prev, chunk string) string {
	if prev == "" {
		return chunk
	}
	if chunk == "" {
		return prev
	}
	return excessWhitespace.ReplaceAllString(prev+chunk, "  ")
}

// mergeURLs unions a batch of citation URLs into the existing list,
// preserving insertion order and dropping duplicates.
func mergeURLs(existing, batch []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(batch))
	out := make([]string, 0, len(existing)+len(batch))
	for _, lists := range [][]string{existing, batch} {
		for _, u := range lists {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

// truncate shortens a string to a rune bound.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
