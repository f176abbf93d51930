package llm

import "iter"

// EventType identifies the kind of delta carried by an Event.
type EventType string

const (
	// EventContent is a text content delta.
	EventContent EventType = "content"
	// EventUsage carries token usage, normally as the final event. A usage
	// event arriving before an error is the provider's best-effort partial
	// count for a stream that died midway.
	EventUsage EventType = "usage"
	// EventDone signals normal stream completion.
	EventDone EventType = "done"
)

// Usage is the provider-reported token count for one chat turn.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Event is a single delta yielded while streaming a model response.
type Event struct {
	Type         EventType
	Text         string
	Usage        *Usage
	FinishReason string
}

// Stream is a lazy, finite, non-restartable sequence of events terminated by
// a usage record and a done event. Callers must consume it (ranging over
// Iter, breaking early is fine) — the underlying HTTP response body is only
// released when the iterator finishes or is abandoned via a loop break.
type Stream struct {
	iterator iter.Seq2[Event, error]
}

// NewStream wraps a raw iterator. The iterator yields events with a nil
// error for normal deltas and a non-nil error exactly once to signal a
// mid-stream failure, after which it must return.
func NewStream(iterator iter.Seq2[Event, error]) *Stream {
	return &Stream{iterator: iterator}
}

// Iter returns the underlying iterator for range-over-func loops.
func (s *Stream) Iter() iter.Seq2[Event, error] {
	return s.iterator
}

// Collect consumes the whole stream and returns the accumulated text and
// usage. A mid-stream error returns the partial text alongside the error.
func (s *Stream) Collect() (text string, usage *Usage, err error) {
	for event, iterErr := range s.iterator {
		if iterErr != nil {
			return text, usage, iterErr
		}
		switch event.Type {
		case EventContent:
			text += event.Text
		case EventUsage:
			usage = event.Usage
		}
	}
	return text, usage, nil
}
