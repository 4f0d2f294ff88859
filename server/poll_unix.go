//go:build linux

package server

import (
	"golang.org/x/sys/unix"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

const (
	readEvents  = unix.EPOLLPRI | unix.EPOLLIN
	writeEvents = unix.EPOLLOUT

	maxPollEvents = 1024
)

// Ready is one fd's outcome of a Wait cycle.
type Ready struct {
	Fd       int
	Readable bool
	Writable bool
	Err      bool
}

// Poller multiplexes socket readiness over a single epoll instance. An
// eventfd is registered alongside the sockets so other goroutines can
// interrupt a blocked Wait with Wake or Close.
//
// Interest changes and Close are safe from any goroutine; Wait must stay
// on a single goroutine.
type Poller struct {
	epfd int
	efd  int

	closed atomic.Bool

	mu       sync.Mutex
	interest map[int]uint32

	events []unix.EpollEvent
	ready  []Ready
}

func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	p := &Poller{
		epfd:     epfd,
		efd:      efd,
		interest: make(map[int]uint32),
		events:   make([]unix.EpollEvent, maxPollEvents),
		ready:    make([]Ready, 0, maxPollEvents),
	}
	if err = p.ctl(unix.EPOLL_CTL_ADD, efd, readEvents); err != nil {
		unix.Close(efd)
		unix.Close(epfd)
		return nil, err
	}
	p.interest[efd] = readEvents
	return p, nil
}

func (p *Poller) ctl(op, fd int, events uint32) error {
	return unix.EpollCtl(p.epfd, op, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

// AddRead registers fd with read interest.
func (p *Poller) AddRead(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if err := p.ctl(unix.EPOLL_CTL_ADD, fd, readEvents); err != nil {
		return err
	}
	p.interest[fd] = readEvents
	return nil
}

// PauseRead drops read interest while keeping the registration, so the fd
// stays known to the epoll set but produces no read events.
func (p *Poller) PauseRead(fd int) error {
	return p.modify(fd, func(ev uint32) uint32 { return ev &^ readEvents })
}

// ResumeRead restores read interest dropped by PauseRead.
func (p *Poller) ResumeRead(fd int) error {
	return p.modify(fd, func(ev uint32) uint32 { return ev | readEvents })
}

// ArmWrite adds write interest so the next Wait reports the fd writable.
func (p *Poller) ArmWrite(fd int) error {
	return p.modify(fd, func(ev uint32) uint32 { return ev | writeEvents })
}

// DisarmWrite removes write interest once an output backlog has drained.
func (p *Poller) DisarmWrite(fd int) error {
	return p.modify(fd, func(ev uint32) uint32 { return ev &^ writeEvents })
}

func (p *Poller) modify(fd int, f func(uint32) uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return ErrPollerClosed
	}
	old, ok := p.interest[fd]
	if !ok {
		// Already removed, nothing to adjust.
		return nil
	}
	next := f(old)
	if next == old {
		return nil
	}
	if err := p.ctl(unix.EPOLL_CTL_MOD, fd, next); err != nil {
		return err
	}
	p.interest[fd] = next
	return nil
}

// Delete removes fd from the epoll set. Unknown fds are a no-op.
func (p *Poller) Delete(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if _, ok := p.interest[fd]; !ok {
		return nil
	}
	delete(p.interest, fd)
	return p.ctl(unix.EPOLL_CTL_DEL, fd, 0)
}

// Wake interrupts a blocked Wait. Safe to call concurrently and after
// Close, where it degrades to a no-op.
func (p *Poller) Wake() {
	if p.closed.Load() {
		return
	}
	v := uint64(1)
	// The write end may race a concurrent Close; the worst case is a
	// harmless EBADF we discard.
	_, _ = unix.Write(p.efd, (*(*[8]byte)(unsafe.Pointer(&v)))[:])
}

// Wait blocks until at least one fd is ready, the timeout lapses, or the
// poller is woken. timeout <= 0 blocks indefinitely. A nil, nil return is
// a timeout or a spurious wake; callers just loop.
func (p *Poller) Wait(timeout time.Duration) ([]Ready, error) {
	if p.closed.Load() {
		return nil, ErrPollerClosed
	}
	msec := -1
	if timeout > 0 {
		msec = int(timeout / time.Millisecond)
		if msec == 0 {
			msec = 1
		}
	}
	n, err := unix.EpollWait(p.epfd, p.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		if p.closed.Load() {
			return nil, ErrPollerClosed
		}
		return nil, err
	}
	p.ready = p.ready[:0]
	for i := 0; i < n; i++ {
		ev := &p.events[i]
		fd := int(ev.Fd)
		if fd == p.efd {
			if p.closed.Load() {
				return nil, ErrPollerClosed
			}
			p.drainWake()
			continue
		}
		p.ready = append(p.ready, Ready{
			Fd:       fd,
			Readable: ev.Events&readEvents != 0,
			Writable: ev.Events&writeEvents != 0,
			Err:      ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		})
	}
	return p.ready, nil
}

func (p *Poller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.efd, buf[:]); err != nil {
			return
		}
	}
}

// Close wakes any blocked Wait and tears the epoll instance down.
// Idempotent.
func (p *Poller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	v := uint64(1)
	_, _ = unix.Write(p.efd, (*(*[8]byte)(unsafe.Pointer(&v)))[:])
	p.mu.Lock()
	defer p.mu.Unlock()
	err := unix.Close(p.efd)
	if cerr := unix.Close(p.epfd); err == nil {
		err = cerr
	}
	p.interest = nil
	return err
}
