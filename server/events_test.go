package server

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestEventChanDropsWhenFull(t *testing.T) {
	ch := make(EventChan, 1)
	ch.Publish(Event{Type: EventConnOpened})
	ch.Publish(Event{Type: EventConnClosed}) // full: dropped, not blocked

	e := <-ch
	assert.Equal(t, EventConnOpened, e.Type)
	select {
	case extra := <-ch:
		t.Fatalf("expected the overflow event to be dropped, got %v", extra.Type)
	default:
	}
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "listening", EventListening.String())
	assert.Equal(t, "conn-opened", EventConnOpened.String())
	assert.Equal(t, "conn-closed", EventConnClosed.String())
	assert.Equal(t, "server-exception", EventServerException.String())
	assert.Equal(t, "event(99)", EventType(99).String())
}
