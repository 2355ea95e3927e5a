package conversation

import (
	"context"
	"errors"
)

// ErrSubscribeUnsupported is returned when the backing store cannot stream events
var ErrSubscribeUnsupported = errors.New("store does not support subscriptions")

// Store is the ordered, append-only message log of one conversation.
// Append never sorts or assigns ordering keys; callers append in chronological order.
type Store interface {
	Append(ctx context.Context, msg Message) error
	// All returns a copy of the log, oldest first
	All(ctx context.Context) ([]Message, error)
	// Clear empties the log; All returns nothing once it has returned
	Clear(ctx context.Context) error
}

// EventType names a change to a conversation log
type EventType string

// Event types
const (
	EventAppended EventType = "appended"
	EventCleared  EventType = "cleared"
)

// Event describes one change to a conversation log
type Event struct {
	Type    EventType `json:"type"`
	Message *Message  `json:"message,omitempty"`
}

// Subscriber is implemented by stores that can stream changes.
// The returned cancel func releases the subscription; the channel is closed after it
// runs or once ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}
