//go:build linux

package server

import (
	"bytes"
	"fmt"
	"github.com/fzft/go-tcp-reactor/log"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Connection states. A connection starts in StateHandshaking when the
// factory carries a Handshaker, otherwise directly in StateOpen.
const (
	StateHandshaking int32 = iota
	StateOpen
	StateClosed
)

// Conn is one accepted non-blocking socket. Reads are driven by the
// dispatch loop and serialized per connection; Write and Close are safe
// from any goroutine.
type Conn struct {
	id     string
	fd     int
	remote string

	f      *Factory
	poller *Poller

	state    atomic.Int32
	lastRead atomic.Int64
	openedAt time.Time

	outMu sync.Mutex
	out   bytes.Buffer
}

func newConn(f *Factory, p *Poller, fd int, remote string, now time.Time) *Conn {
	c := &Conn{
		id:       remote + ":" + uuid.NewString(),
		fd:       fd,
		remote:   remote,
		f:        f,
		poller:   p,
		openedAt: now,
	}
	if f.handshaker != nil {
		c.state.Store(StateHandshaking)
	} else {
		c.state.Store(StateOpen)
	}
	c.lastRead.Store(now.UnixNano())
	return c
}

// ID is the connection's unique identity, remote address plus a GUID.
func (c *Conn) ID() string { return c.id }

// RemoteAddr is the peer's ip:port.
func (c *Conn) RemoteAddr() string { return c.remote }

// OpenedAt is when the connection was accepted.
func (c *Conn) OpenedAt() time.Time { return c.openedAt }

func (c *Conn) markLastRead(now time.Time) { c.lastRead.Store(now.UnixNano()) }

func (c *Conn) lastReadAt() time.Time { return time.Unix(0, c.lastRead.Load()) }

func (c *Conn) finishHandshake() { c.state.CompareAndSwap(StateHandshaking, StateOpen) }

func (c *Conn) isClosed() bool { return c.state.Load() == StateClosed }

// Write queues b for delivery. It writes through to the socket when
// possible and buffers the remainder when the socket is not writable,
// arming write interest so the dispatch loop flushes it later. A
// successful return means all of b is either sent or buffered.
func (c *Conn) Write(b []byte) (int, error) {
	if c.isClosed() {
		return 0, ErrConnClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.out.Len() > 0 {
		// Keep ordering behind the queued backlog.
		c.out.Write(b)
		return len(b), nil
	}
	sent := 0
	for sent < len(b) {
		n, err := unix.Write(c.fd, b[sent:])
		if n > 0 {
			sent += n
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			break
		}
		return sent, fmt.Errorf("write %s: %w", c.id, err)
	}
	if sent < len(b) {
		c.out.Write(b[sent:])
		c.armWrite()
	}
	return len(b), nil
}

func (c *Conn) armWrite() {
	if err := c.poller.ArmWrite(c.fd); err != nil && err != ErrPollerClosed {
		log.Logger.Warn("arm write", zap.String("conn", c.id), zap.Error(err))
	}
}

// flush pushes buffered output to the socket, disarming write interest
// once the backlog drains. Called by the dispatch loop on writable
// events.
func (c *Conn) flush() error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	for c.out.Len() > 0 {
		n, err := unix.Write(c.fd, c.out.Bytes())
		if n > 0 {
			c.out.Next(n)
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		return fmt.Errorf("flush %s: %w", c.id, err)
	}
	if err := c.poller.DisarmWrite(c.fd); err != nil && err != ErrPollerClosed {
		return err
	}
	return nil
}

// ReadAvailable drains the bytes currently pending on the socket. It is
// meant for Handshaker implementations, which run under the same
// serialized worker rule as ordinary reads.
func (c *Conn) ReadAvailable() ([]byte, error) {
	if c.isClosed() {
		return nil, ErrConnClosed
	}
	scratch := c.f.bufs.Get()
	data, err := c.readAvailable(scratch)
	c.f.bufs.Put(scratch)
	return data, err
}

// readAvailable drains what the socket currently holds, appending chunk
// by chunk into a fresh slice. io.EOF reports the peer's close, after
// any data read before it.
func (c *Conn) readAvailable(scratch []byte) ([]byte, error) {
	var data []byte
	for {
		n, err := unix.Read(c.fd, scratch)
		if n > 0 {
			data = append(data, scratch[:n]...)
			if n < len(scratch) {
				// Short read, the socket buffer is drained.
				return data, nil
			}
			continue
		}
		if n == 0 && err == nil {
			return data, io.EOF
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return data, nil
		}
		return data, fmt.Errorf("read %s: %w", c.id, err)
	}
}

// Close tears the connection down: deregisters it everywhere, releases
// the fd and publishes EventConnClosed. Idempotent and safe from any
// goroutine.
func (c *Conn) Close() error {
	c.closeInternal(nil)
	return nil
}

func (c *Conn) closeInternal(cause error) {
	if !c.transitionClosed() {
		return
	}
	f := c.f
	// Registry first so the fd number can be recycled without colliding
	// with a stale entry.
	f.conns.Remove(c.fd, c)
	f.delayed.Cancel(c.fd)
	if err := c.poller.Delete(c.fd); err != nil && err != ErrPollerClosed {
		log.Logger.Debug("epoll delete", zap.String("conn", c.id), zap.Error(err))
	}
	if err := unix.Close(c.fd); err != nil {
		log.Logger.Debug("close fd", zap.String("conn", c.id), zap.Error(err))
	}
	f.publish(Event{Type: EventConnClosed, Factory: f.cfg.Name, ConnID: c.id, Remote: c.remote, Err: cause, At: time.Now()})
	if cause != nil {
		log.Logger.Debug("connection closed", zap.String("conn", c.id), zap.NamedError("cause", cause))
	} else {
		log.Logger.Debug("connection closed", zap.String("conn", c.id))
	}
}

func (c *Conn) transitionClosed() bool {
	for {
		s := c.state.Load()
		if s == StateClosed {
			return false
		}
		if c.state.CompareAndSwap(s, StateClosed) {
			return true
		}
	}
}
