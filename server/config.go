package server

import "time"

const (
	DefaultBacklog    = 128
	DefaultReadDelay  = 100 * time.Millisecond
	DefaultQueueDepth = 64

	// readChunkSize is the unit a worker drains a socket with.
	readChunkSize = 16 * 1024
)

// Config carries everything a Factory needs to bind, accept and dispatch.
// The zero value is usable for tests: ephemeral port, all interfaces,
// default backlog and read delay, no timeouts.
type Config struct {
	// Name identifies the factory in logs and events.
	Name string

	// Port to listen on; 0 picks an ephemeral port, resolved after bind.
	Port int

	// LocalAddress is the bind interface; empty means all interfaces.
	LocalAddress string

	// Backlog is the OS pending-connection queue size. Negative values are
	// treated as their absolute value; 0 means DefaultBacklog.
	Backlog int

	// SoTimeout bounds each multiplex wait cycle and doubles as the idle
	// threshold: open connections with no read activity for this long are
	// closed. Zero or negative means no bound (wait indefinitely, never
	// close idle connections).
	SoTimeout time.Duration

	// ReadDelay is how long a deferred read waits before it is retried.
	// Zero means DefaultReadDelay.
	ReadDelay time.Duration

	// HandshakeTimeout bounds how long a connection may sit in
	// StateHandshaking before the loop closes it. Only meaningful when a
	// Handshaker is registered; zero disables the bound.
	HandshakeTimeout time.Duration

	// UsingDirectBuffers selects pooled read buffers over a fresh
	// allocation per read.
	UsingDirectBuffers bool

	// Post-accept socket attributes applied by the default tuner.
	KeepAlive      bool
	NoDelay        bool
	RecvBufferSize int // 0 leaves the kernel default
	SendBufferSize int // 0 leaves the kernel default

	// Workers sizes the default worker pool when no TaskExecutor is
	// injected; 0 means runtime.NumCPU().
	Workers int

	// QueueDepth bounds the default pool's pending tasks; submissions
	// beyond it are rejected, which defers the read. 0 means
	// DefaultQueueDepth.
	QueueDepth int
}

func (c Config) backlog() int {
	b := c.Backlog
	if b < 0 {
		b = -b
	}
	if b == 0 {
		b = DefaultBacklog
	}
	return b
}

func (c Config) readDelay() time.Duration {
	if c.ReadDelay <= 0 {
		return DefaultReadDelay
	}
	return c.ReadDelay
}

func (c Config) queueDepth() int {
	if c.QueueDepth <= 0 {
		return DefaultQueueDepth
	}
	return c.QueueDepth
}
