package domain

import (
	"context"
	"time"
)

// EventType identifies the kind of change being published to observers.
type EventType string

const (
	EventTranscriptChanged EventType = "transcript.changed"
	EventStreamUpdated     EventType = "stream.updated"
	EventStatusChanged     EventType = "status.changed"
	EventToolUpdated       EventType = "tool.updated"
	EventQuestionPending   EventType = "question.pending"
	EventQuestionCleared   EventType = "question.cleared"
	EventSessionLost       EventType = "session.lost"
	EventHistoryLoaded     EventType = "history.loaded"
	EventHistoryFailed     EventType = "history.failed"
	EventFrameDropped      EventType = "frame.dropped"
)

// Event is the envelope published on the event bus. Payload holds one of the
// *Payload types below, or nil.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Payload   any
}

// TranscriptPayload accompanies EventTranscriptChanged.
type TranscriptPayload struct {
	Appended *Message // nil when the transcript was replaced wholesale
	Count    int
}

// StreamPayload accompanies EventStreamUpdated.
type StreamPayload struct {
	StreamID  string
	Streaming bool
	Thinking  bool
	Partial   string
}

// StatusPayload accompanies EventStatusChanged.
type StatusPayload struct {
	Status ConnectionStatus
}

// HistoryPayload accompanies EventHistoryLoaded and EventHistoryFailed.
type HistoryPayload struct {
	FromCache bool
	Stale     bool
	Count     int
	Err       error
}

// FrameDroppedPayload accompanies EventFrameDropped.
type FrameDroppedPayload struct {
	Err error
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for client events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close prevents new publishes.
	Close()
}
