package model

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a thread. User messages are created complete
// and never change; assistant messages start as an empty draft and are
// filled in field by field while the answer streams.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Citations holds the de-duplicated source URLs, in insertion order.
	Citations []string `json:"citations,omitempty"`
	// SearchQuery is the transient "searching: ..." indicator. It is set by
	// a search_start event and cleared when the stream ends.
	SearchQuery string `json:"searchQuery,omitempty"`
}

// Thread stores one conversation and its metadata.
type Thread struct {
	ID string `json:"id"`
	// CheckpointID is the opaque continuation handle issued by the server.
	// Empty means no checkpoint; the next send starts a fresh context.
	CheckpointID string    `json:"checkpointId"`
	Title        string    `json:"title"`
	Messages     []Message `json:"messages"`
	CreatedAt    int64     `json:"createdAt"`
	UpdatedAt    int64     `json:"updatedAt"`
}

// Snapshot is the persisted view of the transcript: the capped thread list
// plus the active thread id. Ephemeral session state is never part of it.
type Snapshot struct {
	Threads        []Thread `json:"threads"`
	ActiveThreadID string   `json:"activeThreadId"`
}

// Clone returns a deep copy, so snapshots can be handed out without
// sharing the underlying message slices.
func (t Thread) Clone() Thread {
	out := t
	out.Messages = make([]Message, len(t.Messages))
	for i, m := range t.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Citations != nil {
		out.Citations = append([]string(nil), m.Citations...)
	}
	return out
}
