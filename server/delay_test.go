package server

import (
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestDelaySchedulerDeferAndExpire(t *testing.T) {
	d := newDelayScheduler(100 * time.Millisecond)
	c := &Conn{fd: 3}
	now := time.Now()

	d.Defer(c, now)
	assert.Equal(t, 1, d.Len())

	next, ok := d.Next()
	assert.True(t, ok)
	assert.Equal(t, now.Add(100*time.Millisecond), next)

	assert.Empty(t, d.Expired(now.Add(50*time.Millisecond)), "before the deadline nothing expires")

	expired := d.Expired(now.Add(100 * time.Millisecond))
	assert.Len(t, expired, 1)
	assert.Same(t, c, expired[0])
	assert.Equal(t, 0, d.Len())

	_, ok = d.Next()
	assert.False(t, ok)
}

func TestDelaySchedulerKeepsEarliestDeadline(t *testing.T) {
	d := newDelayScheduler(100 * time.Millisecond)
	c := &Conn{fd: 3}
	now := time.Now()

	d.Defer(c, now)
	d.Defer(c, now.Add(80*time.Millisecond)) // repeat while pending

	assert.Equal(t, 1, d.Len(), "one pending retry per connection")
	next, _ := d.Next()
	assert.Equal(t, now.Add(100*time.Millisecond), next, "the first deadline wins")
}

func TestDelaySchedulerExpireOrder(t *testing.T) {
	d := newDelayScheduler(100 * time.Millisecond)
	a, b := &Conn{fd: 1}, &Conn{fd: 2}
	now := time.Now()

	d.Defer(a, now)
	d.Defer(b, now.Add(30*time.Millisecond))

	expired := d.Expired(now.Add(100 * time.Millisecond))
	assert.Len(t, expired, 1)
	assert.Same(t, a, expired[0], "only the earlier deadline is due")

	expired = d.Expired(now.Add(130 * time.Millisecond))
	assert.Len(t, expired, 1)
	assert.Same(t, b, expired[0])
}

func TestDelaySchedulerCancel(t *testing.T) {
	d := newDelayScheduler(100 * time.Millisecond)
	c := &Conn{fd: 3}
	now := time.Now()

	d.Defer(c, now)
	d.Cancel(3)
	assert.Equal(t, 0, d.Len())

	_, ok := d.Next()
	assert.False(t, ok, "cancelled entry must not surface as a deadline")
	assert.Empty(t, d.Expired(now.Add(time.Second)))
}

func TestDelaySchedulerRecycledFd(t *testing.T) {
	d := newDelayScheduler(100 * time.Millisecond)
	old := &Conn{fd: 3}
	next := &Conn{fd: 3}
	now := time.Now()

	d.Defer(old, now)
	d.Cancel(3) // old connection closed
	d.Defer(next, now.Add(50*time.Millisecond))

	expired := d.Expired(now.Add(time.Second))
	assert.Len(t, expired, 1)
	assert.Same(t, next, expired[0], "the stale queue entry must not resurface the old owner")
}
