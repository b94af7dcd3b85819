package stream

// EventType tags the closed set of frames the answer stream can carry.
type EventType string

const (
	// EventCheckpoint hands back a continuation token. Informational; the
	// session attaches it to the thread for the next send.
	EventCheckpoint EventType = "checkpoint"
	// EventContent is an incremental text fragment for the assistant draft.
	EventContent EventType = "content"
	// EventSearchStart signals a sub-search began.
	EventSearchStart EventType = "search_start"
	// EventSearchResults is a batch of citation URLs to merge.
	EventSearchResults EventType = "search_results"
	// EventEnd is terminal. The literal "[DONE]" frame maps to it as well.
	EventEnd EventType = "end"
)

// Event is one decoded frame from the answer stream. The populated payload
// field depends on Type; the rest stay zero.
type Event struct {
	Type         EventType `json:"type"`
	CheckpointID string    `json:"checkpoint_id,omitempty"`
	Content      string    `json:"content,omitempty"`
	Query        string    `json:"query,omitempty"`
	URLs         []string  `json:"urls,omitempty"`
}

func knownType(t EventType) bool {
	switch t {
	case EventCheckpoint, EventContent, EventSearchStart, EventSearchResults, EventEnd:
		return true
	}
	return false
}
