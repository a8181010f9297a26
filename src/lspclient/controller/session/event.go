package session

import (
	"github.com/gofrs/uuid"
)

// EventType identifies a session lifecycle transition.
type EventType int

const (
	// EventStarted is emitted once the initialize handshake completed.
	EventStarted EventType = iota
	// EventCrashed is emitted when the server or its transport failed.
	EventCrashed
	// EventClosed is emitted after a clean shutdown.
	EventClosed
)

// String returns a human-readable event name.
func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventCrashed:
		return "crashed"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers on every lifecycle transition.
type Event struct {
	Type    EventType
	Session uuid.UUID
	Server  string
	// Err is the *errors.SessionCrashedError for EventCrashed.
	Err error
}

// Listener receives session events. It is called synchronously and must not block.
type Listener func(Event)
