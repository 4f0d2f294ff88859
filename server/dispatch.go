package server

import (
	"fmt"
	"github.com/fzft/go-tcp-reactor/log"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"io"
	"time"
)

// dispatch is the factory's single multiplexing loop. It alternates
// waiting, accepting and handing read-ready connections to the executor
// until the factory goes inactive. All accept decisions and interest
// changes for dispatch originate here; workers only resume interest for
// connections handed to them.
func (f *Factory) dispatch(p *Poller, lnfd int) {
	for f.active.Load() {
		f.rearmExpired(p)
		ready, err := p.Wait(f.waitTimeout())
		if err != nil {
			if err == ErrPollerClosed {
				if f.active.Load() {
					log.Logger.Error("poller closed while active",
						zap.String("factory", f.cfg.Name))
					f.publish(Event{Type: EventServerException, Factory: f.cfg.Name, Err: ErrPollerClosed, At: time.Now()})
				}
				return
			}
			log.Logger.Warn("poll wait", zap.String("factory", f.cfg.Name), zap.Error(err))
			continue
		}
		for _, ev := range ready {
			if ev.Fd == lnfd {
				if aerr := f.acceptPending(p, lnfd); aerr != nil {
					if f.active.Load() {
						log.Logger.Error("listener fault",
							zap.String("factory", f.cfg.Name),
							zap.Int("port", f.Port()),
							zap.Error(aerr))
						f.publish(Event{Type: EventServerException, Factory: f.cfg.Name, Err: aerr, At: time.Now()})
						f.Stop()
					}
					return
				}
				continue
			}
			f.handleConnEvent(p, ev)
		}
		f.harvestTimeouts()
	}
}

// waitTimeout bounds the next Wait by the configured so-timeout, the
// nearest deferred-read deadline and the nearest handshake deadline. Zero
// means wait indefinitely; with deadlines pending the wait never
// overshoots the nearest one.
func (f *Factory) waitTimeout() time.Duration {
	timeout := f.cfg.SoTimeout
	if timeout < 0 {
		timeout = 0
	}
	bound := func(until time.Duration) {
		if until < time.Millisecond {
			until = time.Millisecond
		}
		if timeout == 0 || until < timeout {
			timeout = until
		}
	}
	if next, ok := f.delayed.Next(); ok {
		bound(time.Until(next))
	}
	if f.handshaker != nil && f.cfg.HandshakeTimeout > 0 {
		for _, c := range f.conns.Snapshot() {
			if c.state.Load() == StateHandshaking {
				bound(time.Until(c.openedAt.Add(f.cfg.HandshakeTimeout)))
			}
		}
	}
	return timeout
}

// rearmExpired restores read interest for connections whose deferred-read
// deadline has passed. With level-triggered readiness, pending data makes
// them readable again on the very next wait.
func (f *Factory) rearmExpired(p *Poller) {
	for _, c := range f.delayed.Expired(time.Now()) {
		if c.isClosed() {
			continue
		}
		if err := p.ResumeRead(c.fd); err != nil && err != ErrPollerClosed {
			log.Logger.Debug("resume read", zap.String("conn", c.id), zap.Error(err))
		}
	}
}

// acceptPending drains every connection currently pending on the listening
// socket. Per-socket setup failures are isolated; only a fault of the
// listening socket itself is returned.
func (f *Factory) acceptPending(p *Poller, lnfd int) error {
	for {
		nfd, sa, err := unix.Accept4(lnfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return nil
			case unix.EINTR, unix.ECONNABORTED:
				continue
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		remote := sockaddrToString(sa)
		if f.shuttingDown.Load() {
			log.Logger.Info("rejecting connection during shutdown",
				zap.String("factory", f.cfg.Name),
				zap.String("remote", remote))
			unix.Close(nfd)
			continue
		}
		f.initConn(p, nfd, remote)
	}
}

func (f *Factory) initConn(p *Poller, fd int, remote string) {
	if f.tuner != nil {
		if err := f.tuner.Tune(fd); err != nil {
			log.Logger.Warn("tune socket", zap.String("remote", remote), zap.Error(err))
			unix.Close(fd)
			return
		}
	}
	c := newConn(f, p, fd, remote, time.Now())
	f.conns.Insert(fd, c)
	if err := p.AddRead(fd); err != nil {
		f.conns.Remove(fd, c)
		unix.Close(fd)
		log.Logger.Warn("register connection", zap.String("remote", remote), zap.Error(err))
		return
	}
	log.Logger.Debug("connection accepted", zap.String("conn", c.id))
	f.publish(Event{Type: EventConnOpened, Factory: f.cfg.Name, ConnID: c.id, Remote: remote, At: time.Now()})
}

func (f *Factory) handleConnEvent(p *Poller, ev Ready) {
	c, ok := f.conns.Lookup(ev.Fd)
	if !ok {
		// Closed between readiness and dispatch, benign.
		log.Logger.Debug("event for untracked fd", zap.Int("fd", ev.Fd))
		return
	}
	if ev.Err {
		var cause error
		if errno, serr := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR); serr == nil && errno != 0 {
			cause = unix.Errno(errno)
		}
		c.closeInternal(cause)
		return
	}
	if ev.Writable {
		if err := c.flush(); err != nil {
			log.Logger.Debug("flush failed", zap.String("conn", c.id), zap.Error(err))
			c.closeInternal(err)
			return
		}
	}
	if ev.Readable {
		f.dispatchRead(p, c)
	}
}

// dispatchRead pauses the connection's read interest and hands it to the
// executor, so the same connection never runs two read tasks at once. A
// rejected submission becomes a deferred read retried after the delay.
func (f *Factory) dispatchRead(p *Poller, c *Conn) {
	if err := p.PauseRead(c.fd); err != nil && err != ErrPollerClosed {
		log.Logger.Debug("pause read", zap.String("conn", c.id), zap.Error(err))
	}
	c.markLastRead(time.Now())
	f.delayed.Cancel(c.fd)
	if err := f.exec.Submit(func() { f.runRead(p, c) }); err != nil {
		log.Logger.Debug("read deferred", zap.String("conn", c.id), zap.Error(err))
		f.delayed.Defer(c, time.Now())
	}
}

// runRead is the worker-side read task.
func (f *Factory) runRead(p *Poller, c *Conn) {
	if c.isClosed() {
		return
	}
	if c.state.Load() == StateHandshaking {
		f.runHandshake(p, c)
		return
	}
	scratch := f.bufs.Get()
	data, err := c.readAvailable(scratch)
	f.bufs.Put(scratch)
	if len(data) > 0 {
		c.markLastRead(time.Now())
		if !f.listener.OnData(c, data) && err == nil {
			// Backpressure: keep the read paused and wake the loop so it
			// schedules the retry.
			f.delayed.Defer(c, time.Now())
			p.Wake()
			return
		}
	}
	if err != nil {
		if err == io.EOF {
			c.closeInternal(nil)
		} else {
			log.Logger.Debug("read failed", zap.String("conn", c.id), zap.Error(err))
			c.closeInternal(err)
		}
		return
	}
	if rerr := p.ResumeRead(c.fd); rerr != nil && rerr != ErrPollerClosed {
		log.Logger.Debug("resume read", zap.String("conn", c.id), zap.Error(rerr))
	}
}

func (f *Factory) runHandshake(p *Poller, c *Conn) {
	done, err := f.handshaker.Handshake(c)
	if err != nil {
		log.Logger.Debug("handshake failed", zap.String("conn", c.id), zap.Error(err))
		c.closeInternal(err)
		return
	}
	c.markLastRead(time.Now())
	if done {
		c.finishHandshake()
		log.Logger.Debug("handshake complete", zap.String("conn", c.id))
	}
	if rerr := p.ResumeRead(c.fd); rerr != nil && rerr != ErrPollerClosed {
		log.Logger.Debug("resume read", zap.String("conn", c.id), zap.Error(rerr))
	}
}

// harvestTimeouts closes connections that overstayed the idle threshold or
// stalled in the handshake.
func (f *Factory) harvestTimeouts() {
	so := f.cfg.SoTimeout
	hs := f.cfg.HandshakeTimeout
	if so <= 0 && (f.handshaker == nil || hs <= 0) {
		return
	}
	now := time.Now()
	for _, c := range f.conns.Snapshot() {
		switch c.state.Load() {
		case StateOpen:
			if so > 0 && now.Sub(c.lastReadAt()) >= so {
				log.Logger.Info("closing idle connection",
					zap.String("conn", c.id),
					zap.Duration("idle", now.Sub(c.lastReadAt())))
				c.closeInternal(ErrIdleTimeout)
			}
		case StateHandshaking:
			if hs > 0 && now.Sub(c.openedAt) >= hs {
				log.Logger.Info("closing stalled handshake", zap.String("conn", c.id))
				c.closeInternal(ErrHandshakeTimeout)
			}
		}
	}
}
