package server

import (
	"fmt"
	"github.com/fzft/go-tcp-reactor/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"sync"
	"sync/atomic"
	"time"
)

// Factory owns one listening socket, the poller multiplexing it together
// with every accepted connection, and the dispatch loop goroutine driving
// both. It is the only component with lifecycle authority: Start binds and
// launches, Stop unblocks the loop and tears everything down.
//
// A Factory is single-use. Once stopped it cannot be started again; build
// a new one.
//
// Collaborators (listener, event publisher, tuner, handshaker, executor)
// are wired through the setters before Start.
type Factory struct {
	cfg Config

	mu      sync.Mutex
	started bool

	active       atomic.Bool
	listening    atomic.Bool
	shuttingDown atomic.Bool

	listener   Listener
	handshaker Handshaker
	tuner      SocketTuner
	events     EventPublisher
	exec       TaskExecutor
	ownPool    *workerPool

	poller    *Poller
	lnfd      int
	boundPort int
	boundAddr string

	conns   *registry
	delayed *delayScheduler
	bufs    bufferProvider

	done chan struct{}
}

func NewFactory(cfg Config) *Factory {
	f := &Factory{
		cfg:     cfg,
		conns:   newRegistry(),
		delayed: newDelayScheduler(cfg.readDelay()),
		lnfd:    -1,
		done:    make(chan struct{}),
	}
	f.tuner = tunerFromConfig(cfg)
	if cfg.UsingDirectBuffers {
		f.bufs = newPooledBuffers()
	} else {
		f.bufs = heapBuffers{}
	}
	return f
}

// SetListener wires the data consumer. Required before Start.
func (f *Factory) SetListener(l Listener) { f.listener = l }

// SetEventPublisher wires the lifecycle event sink. Optional.
func (f *Factory) SetEventPublisher(p EventPublisher) { f.events = p }

// SetSocketTuner replaces the config-driven post-accept socket tuning.
func (f *Factory) SetSocketTuner(t SocketTuner) { f.tuner = t }

// SetHandshaker makes accepted connections negotiate before normal reads.
func (f *Factory) SetHandshaker(h Handshaker) { f.handshaker = h }

// SetTaskExecutor replaces the internally built worker pool. A supplied
// executor is the caller's to close; the factory only closes pools it
// built itself.
func (f *Factory) SetTaskExecutor(e TaskExecutor) { f.exec = e }

// Start binds the listening socket and launches the dispatch loop,
// returning once the factory is listening (or the bind failed). The port
// may be 0 for an ephemeral one; Port reports the effective value
// afterwards.
func (f *Factory) Start() error {
	f.mu.Lock()
	if f.listener == nil {
		f.mu.Unlock()
		log.Logger.Info("no listener registered, not starting", zap.String("factory", f.cfg.Name))
		return ErrNoListener
	}
	if f.started {
		f.mu.Unlock()
		if f.active.Load() {
			return nil
		}
		return ErrFactoryStopped
	}
	f.started = true
	if f.exec == nil {
		f.ownPool = newWorkerPool(f.cfg.Workers, f.cfg.queueDepth())
		f.exec = f.ownPool
	}
	f.active.Store(true)
	started := make(chan error, 1)
	go f.run(started)
	f.mu.Unlock()
	return <-started
}

func (f *Factory) run(started chan<- error) {
	defer close(f.done)
	defer f.listening.Store(false)

	fail := func(err error) {
		log.Logger.Error("start failed",
			zap.String("factory", f.cfg.Name),
			zap.Int("port", f.cfg.Port),
			zap.Error(err))
		f.publish(Event{Type: EventServerException, Factory: f.cfg.Name, Err: err, At: time.Now()})
		f.active.Store(false)
		f.mu.Lock()
		pool := f.ownPool
		f.ownPool = nil
		f.mu.Unlock()
		if pool != nil {
			pool.Close()
		}
		started <- err
	}

	lnfd, port, addr, err := listenTCP(f.cfg.LocalAddress, f.cfg.Port, f.cfg.backlog())
	if err != nil {
		fail(err)
		return
	}
	p, err := NewPoller()
	if err != nil {
		unix.Close(lnfd)
		fail(fmt.Errorf("poller: %w", err))
		return
	}
	if err = p.AddRead(lnfd); err != nil {
		p.Close()
		unix.Close(lnfd)
		fail(fmt.Errorf("register listener: %w", err))
		return
	}

	f.mu.Lock()
	if !f.active.Load() {
		// Stopped while binding; hand nothing to the loop.
		f.mu.Unlock()
		p.Close()
		unix.Close(lnfd)
		started <- nil
		return
	}
	f.poller = p
	f.lnfd = lnfd
	f.boundPort = port
	f.boundAddr = addr
	f.mu.Unlock()

	f.listening.Store(true)
	log.Logger.Info("listening",
		zap.String("factory", f.cfg.Name),
		zap.String("addr", addr))
	f.publish(Event{Type: EventListening, Factory: f.cfg.Name, Port: port, At: time.Now()})
	started <- nil

	f.dispatch(p, lnfd)
}

// Stop unblocks the dispatch loop by closing the poller, closes the
// listening socket, then closes every tracked connection. Idempotent; safe
// from any goroutine, including the dispatch loop itself.
func (f *Factory) Stop() error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	f.shuttingDown.Store(true)
	if !f.active.CompareAndSwap(true, false) {
		return nil
	}
	log.Logger.Info("stopping", zap.String("factory", f.cfg.Name))

	f.mu.Lock()
	p := f.poller
	lnfd := f.lnfd
	f.poller = nil
	f.lnfd = -1
	pool := f.ownPool
	f.ownPool = nil
	f.mu.Unlock()

	var err error
	if p != nil {
		err = multierr.Append(err, p.Close())
	}
	if lnfd >= 0 {
		if cerr := unix.Close(lnfd); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close listener: %w", cerr))
		}
	}
	for _, c := range f.conns.Drain() {
		err = multierr.Append(err, c.Close())
	}
	if pool != nil {
		pool.Close()
	}
	return err
}

// Active reports whether the factory is between Start and Stop.
func (f *Factory) Active() bool { return f.active.Load() }

// Listening reports whether the dispatch loop is serving the bound socket.
func (f *Factory) Listening() bool { return f.listening.Load() }

// Name is the configured component name.
func (f *Factory) Name() string { return f.cfg.Name }

// Port is the effective listening port: the bound one once available,
// otherwise the configured value.
func (f *Factory) Port() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boundPort > 0 {
		return f.boundPort
	}
	return f.cfg.Port
}

// ServerAddr is the bound listening address, empty before Start succeeds.
func (f *Factory) ServerAddr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.boundAddr
}

// OpenConnIDs snapshots the identities of all tracked connections.
func (f *Factory) OpenConnIDs() []string {
	conns := f.conns.Snapshot()
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID())
	}
	return ids
}

// CloseConn closes the tracked connection with the given identity,
// reporting whether one was found.
func (f *Factory) CloseConn(id string) bool {
	for _, c := range f.conns.Snapshot() {
		if c.ID() == id {
			c.Close()
			return true
		}
	}
	return false
}

func (f *Factory) publish(e Event) {
	if f.events == nil {
		return
	}
	f.events.Publish(e)
}
