package server

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"
)

const testWait = 5 * time.Second

// collector is a Listener that records every delivery per connection and
// can be told to push back on specific connections.
type collector struct {
	mu         sync.Mutex
	byConn     map[string][]byte
	deliveries []delivery
	reject     map[string]int // remaining deliveries to reject per conn id
}

type delivery struct {
	connID string
	data   []byte
	at     time.Time
}

func newCollector() *collector {
	return &collector{
		byConn: make(map[string][]byte),
		reject: make(map[string]int),
	}
}

func (l *collector) OnData(c *Conn, data []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := append([]byte(nil), data...)
	l.deliveries = append(l.deliveries, delivery{connID: c.ID(), data: cp, at: time.Now()})
	l.byConn[c.ID()] = append(l.byConn[c.ID()], cp...)
	if n := l.reject[c.ID()]; n > 0 {
		l.reject[c.ID()] = n - 1
		return false
	}
	return true
}

func (l *collector) rejectNext(connID string, n int) {
	l.mu.Lock()
	l.reject[connID] = n
	l.mu.Unlock()
}

func (l *collector) received(connID string) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.byConn[connID]...)
}

func (l *collector) totalConns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byConn)
}

func (l *collector) deliveryTimes() []delivery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]delivery(nil), l.deliveries...)
}

// startTestFactory builds and starts a factory on an ephemeral port with a
// buffered event sink, stopping it when the test finishes.
func startTestFactory(t *testing.T, cfg Config, l Listener) (*Factory, EventChan) {
	t.Helper()
	events := make(EventChan, 256)
	f := NewFactory(cfg)
	f.SetListener(l)
	f.SetEventPublisher(events)
	if err := f.Start(); err != nil {
		t.Fatalf("start factory: %v", err)
	}
	t.Cleanup(func() { f.Stop() })
	return f, events
}

func dialTest(t *testing.T, f *Factory) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", f.Port()), testWait)
	if err != nil {
		t.Fatalf("dial %d: %v", f.Port(), err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// nextEvent waits for the next event of the wanted type, discarding others.
func nextEvent(t *testing.T, events EventChan, want EventType) Event {
	t.Helper()
	deadline := time.After(testWait)
	for {
		select {
		case e := <-events:
			if e.Type == want {
				return e
			}
		case <-deadline:
			t.Fatalf("no %v event within %v", want, testWait)
		}
	}
}

// countEvents drains events already published, tallying by type.
func countEvents(events EventChan) map[EventType]int {
	counts := make(map[EventType]int)
	for {
		select {
		case e := <-events:
			counts[e.Type]++
		default:
			return counts
		}
	}
}
