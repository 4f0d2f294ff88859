package server

import (
	"fmt"
	"time"
)

// EventType identifies a factory or connection lifecycle event.
type EventType int

const (
	// EventListening is published once the factory's dispatch loop has
	// registered the listening socket and is ready to accept.
	EventListening EventType = iota

	// EventConnOpened is published for every connection the factory accepts
	// and registers, exactly once per connection.
	EventConnOpened

	// EventConnClosed is published exactly once when a connection closes,
	// regardless of which path (peer disconnect, error, idle, stop) closed it.
	EventConnClosed

	// EventServerException is published for failures that stop the whole
	// factory: bind errors, accept faults on the listening socket, and the
	// poller closing underneath an active loop.
	EventServerException
)

func (t EventType) String() string {
	switch t {
	case EventListening:
		return "listening"
	case EventConnOpened:
		return "conn-opened"
	case EventConnClosed:
		return "conn-closed"
	case EventServerException:
		return "server-exception"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event carries one lifecycle notification out of the factory.
type Event struct {
	Type    EventType
	Factory string // factory component name
	ConnID  string // set for connection events
	Remote  string // remote address, set for connection events
	Port    int    // effective listening port, set for EventListening
	Err     error  // set for EventServerException and error-driven closes
	At      time.Time
}

// EventPublisher receives factory and connection lifecycle events. Publish is
// invoked from the dispatch loop and from workers; implementations must not
// block for long.
type EventPublisher interface {
	Publish(e Event)
}

// EventChan is a channel-backed EventPublisher that drops events when the
// channel is full rather than stalling the factory.
type EventChan chan Event

func (c EventChan) Publish(e Event) {
	select {
	case c <- e:
	default:
	}
}
