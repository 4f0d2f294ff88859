package server

// Listener consumes the bytes a worker reads from a connection. The byte
// stream is opaque to the factory; framing and interpretation belong to the
// listener.
type Listener interface {
	// OnData hands over the bytes just read. It runs on a worker goroutine,
	// never concurrently for the same connection. Returning false signals
	// backpressure: the factory defers the connection's next read by the
	// configured read delay instead of re-arming it immediately.
	OnData(c *Conn, data []byte) bool
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(c *Conn, data []byte) bool

func (f ListenerFunc) OnData(c *Conn, data []byte) bool { return f(c, data) }

// Handshaker upgrades a freshly accepted connection before normal reads
// begin. A factory configured with one creates connections in
// StateHandshaking and dispatches readiness to Handshake until it reports
// done; connections stuck in the handshake past the configured timeout are
// closed by the dispatch loop.
type Handshaker interface {
	// Handshake advances the negotiation using whatever bytes are currently
	// readable on c. It runs on a worker goroutine under the same
	// one-task-per-connection rule as reads.
	Handshake(c *Conn) (done bool, err error)
}

// SocketTuner applies OS-level options to an accepted socket before it is
// registered. The default tuner drives keep-alive, no-delay and buffer sizes
// from the factory config; supply a custom one to override.
type SocketTuner interface {
	Tune(fd int) error
}
