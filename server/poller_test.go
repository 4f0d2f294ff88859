package server

import (
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
	"testing"
	"time"
)

func newTestPoller(t *testing.T) *Poller {
	t.Helper()
	p, err := NewPoller()
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func testSocketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

// waitReadyFor polls until fd shows up in a wait batch or the deadline
// passes, returning the last observed readiness.
func waitReadyFor(t *testing.T, p *Poller, fd int, d time.Duration) (Ready, bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		ready, err := p.Wait(50 * time.Millisecond)
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
		for _, ev := range ready {
			if ev.Fd == fd {
				return ev, true
			}
		}
	}
	return Ready{}, false
}

func TestPollerWaitTimesOut(t *testing.T) {
	p := newTestPoller(t)

	start := time.Now()
	ready, err := p.Wait(50 * time.Millisecond)
	elapsed := time.Since(start)

	assert.NoError(t, err)
	assert.Empty(t, ready)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond, "wait should block for the timeout")
	assert.Less(t, elapsed, 2*time.Second)
}

func TestPollerWakeUnblocksWait(t *testing.T) {
	p := newTestPoller(t)

	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(0)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	p.Wake()

	select {
	case err := <-done:
		assert.NoError(t, err, "wake should be a benign interrupt")
	case <-time.After(testWait):
		t.Fatal("Wake did not unblock an indefinite Wait")
	}
}

func TestPollerCloseUnblocksWait(t *testing.T) {
	p := newTestPoller(t)

	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(0)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, p.Close())

	select {
	case err := <-done:
		assert.Equal(t, ErrPollerClosed, err)
	case <-time.After(testWait):
		t.Fatal("Close did not unblock an indefinite Wait")
	}
}

func TestPollerReadReadiness(t *testing.T) {
	p := newTestPoller(t)
	a, b := testSocketpair(t)

	assert.NoError(t, p.AddRead(a))

	// Nothing written yet: no readiness.
	_, found := waitReadyFor(t, p, a, 200*time.Millisecond)
	assert.False(t, found, "no data should mean no readable event")

	_, err := unix.Write(b, []byte("x"))
	assert.NoError(t, err)

	ev, found := waitReadyFor(t, p, a, testWait)
	assert.True(t, found, "pending data should surface a readable event")
	assert.True(t, ev.Readable)
}

func TestPollerPauseAndResumeRead(t *testing.T) {
	p := newTestPoller(t)
	a, b := testSocketpair(t)

	assert.NoError(t, p.AddRead(a))
	_, err := unix.Write(b, []byte("x"))
	assert.NoError(t, err)

	assert.NoError(t, p.PauseRead(a))
	_, found := waitReadyFor(t, p, a, 200*time.Millisecond)
	assert.False(t, found, "paused fd must stay silent despite pending data")

	assert.NoError(t, p.ResumeRead(a))
	ev, found := waitReadyFor(t, p, a, testWait)
	assert.True(t, found, "resume must surface the still-pending data")
	assert.True(t, ev.Readable)
}

func TestPollerWriteInterest(t *testing.T) {
	p := newTestPoller(t)
	a, _ := testSocketpair(t)

	assert.NoError(t, p.AddRead(a))
	assert.NoError(t, p.ArmWrite(a))

	ev, found := waitReadyFor(t, p, a, testWait)
	assert.True(t, found, "an idle socket is writable once write interest is armed")
	assert.True(t, ev.Writable)

	assert.NoError(t, p.DisarmWrite(a))
	_, found = waitReadyFor(t, p, a, 200*time.Millisecond)
	assert.False(t, found, "disarmed fd should stop reporting writable")
}

func TestPollerDelete(t *testing.T) {
	p := newTestPoller(t)
	a, b := testSocketpair(t)

	assert.NoError(t, p.AddRead(a))
	assert.NoError(t, p.Delete(a))

	_, err := unix.Write(b, []byte("x"))
	assert.NoError(t, err)
	_, found := waitReadyFor(t, p, a, 200*time.Millisecond)
	assert.False(t, found, "deleted fd must not report events")

	assert.NoError(t, p.Delete(a), "deleting an unknown fd is a no-op")
}

func TestPollerModifyUnknownFd(t *testing.T) {
	p := newTestPoller(t)
	assert.NoError(t, p.PauseRead(12345))
	assert.NoError(t, p.ResumeRead(12345))
	assert.NoError(t, p.ArmWrite(12345))
}

func TestPollerOpsAfterClose(t *testing.T) {
	p := newTestPoller(t)
	a, _ := testSocketpair(t)
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close(), "close is idempotent")

	assert.Equal(t, ErrPollerClosed, p.AddRead(a))
	assert.Equal(t, ErrPollerClosed, p.PauseRead(a))
	assert.Equal(t, ErrPollerClosed, p.Delete(a))
	_, err := p.Wait(10 * time.Millisecond)
	assert.Equal(t, ErrPollerClosed, err)
	p.Wake() // must not panic
}
