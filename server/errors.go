package server

import "errors"

var (
	// ErrNoListener is returned by Start when no Listener has been registered.
	// A factory with nobody to hand bytes to must not begin accepting.
	ErrNoListener = errors.New("no listener registered")

	// ErrPollerClosed is reported by Poller.Wait once the poller has been
	// closed; a blocked Wait observes it instead of hanging until timeout.
	ErrPollerClosed = errors.New("poller closed")

	// ErrConnClosed is returned by operations on a connection that has
	// already transitioned to StateClosed.
	ErrConnClosed = errors.New("connection closed")

	// ErrPoolSaturated is returned by a TaskExecutor whose pending queue is
	// full. The dispatch loop reacts by delaying the read.
	ErrPoolSaturated = errors.New("worker pool saturated")

	// ErrPoolClosed is returned by Submit on a closed TaskExecutor.
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrFactoryStopped is returned by Start on a factory that has already
	// been stopped. Factories are single-use; build a new one to listen
	// again.
	ErrFactoryStopped = errors.New("factory already stopped")

	// ErrIdleTimeout is the close cause for connections with no read
	// activity within the configured so-timeout.
	ErrIdleTimeout = errors.New("idle timeout")

	// ErrHandshakeTimeout is the close cause for connections that did not
	// finish their handshake within the configured bound.
	ErrHandshakeTimeout = errors.New("handshake timeout")
)
