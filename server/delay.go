package server

import (
	"github.com/eapache/queue"
	"sync"
	"time"
)

type delayEntry struct {
	c  *Conn
	at time.Time
}

// delayScheduler holds connections whose reads were deferred and releases
// them once their retry deadline passes. Every deferral uses the same
// delay, so the FIFO order of the queue is also deadline order and the
// head is always the nearest deadline.
//
// Cancellation is lazy: the fd is dropped from the index and the queue
// entry is discarded when it surfaces. Entries are validated against the
// index by identity, so a recycled fd deferred again never resurrects a
// stale entry.
type delayScheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	q       *queue.Queue
	entries map[int]*delayEntry
}

func newDelayScheduler(delay time.Duration) *delayScheduler {
	return &delayScheduler{
		delay:   delay,
		q:       queue.New(),
		entries: make(map[int]*delayEntry),
	}
}

// Defer schedules c's read retry at now+delay. A connection already
// pending keeps its earlier deadline.
func (d *delayScheduler) Defer(c *Conn, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[c.fd]; ok {
		return
	}
	e := &delayEntry{c: c, at: now.Add(d.delay)}
	d.entries[c.fd] = e
	d.q.Add(e)
}

// Cancel forgets any pending retry for fd.
func (d *delayScheduler) Cancel(fd int) {
	d.mu.Lock()
	delete(d.entries, fd)
	d.mu.Unlock()
}

// Next reports the nearest pending deadline.
func (d *delayScheduler) Next() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.q.Length() > 0 {
		e := d.q.Peek().(*delayEntry)
		if d.entries[e.c.fd] == e {
			return e.at, true
		}
		d.q.Remove()
	}
	return time.Time{}, false
}

// Expired pops every entry due at or before now.
func (d *delayScheduler) Expired(now time.Time) []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Conn
	for d.q.Length() > 0 {
		e := d.q.Peek().(*delayEntry)
		if d.entries[e.c.fd] != e {
			d.q.Remove()
			continue
		}
		if e.at.After(now) {
			break
		}
		d.q.Remove()
		delete(d.entries, e.c.fd)
		out = append(out, e.c)
	}
	return out
}

func (d *delayScheduler) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
