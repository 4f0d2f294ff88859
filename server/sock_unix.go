//go:build linux

package server

import (
	"fmt"
	"golang.org/x/sys/unix"
	"net"
)

// listenTCP opens a non-blocking listening socket on addr:port and returns
// its fd together with the bound port and address, so an ephemeral port 0
// resolves to the real one.
func listenTCP(addr string, port, backlog int) (fd, boundPort int, boundAddr string, err error) {
	var (
		family int
		sa     unix.Sockaddr
	)
	ip := net.IPv4zero
	if addr != "" {
		ip = net.ParseIP(addr)
		if ip == nil {
			return 0, 0, "", fmt.Errorf("parse local address %q: invalid ip", addr)
		}
	}
	if ip4 := ip.To4(); ip4 != nil {
		family = unix.AF_INET
		sa4 := &unix.SockaddrInet4{Port: port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		family = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: port}
		copy(sa6.Addr[:], ip.To16())
		sa = sa6
	}

	fd, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return 0, 0, "", fmt.Errorf("socket: %w", err)
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, 0, "", fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err = unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, 0, "", fmt.Errorf("bind %s:%d: %w", ip, port, err)
	}
	if err = unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return 0, 0, "", fmt.Errorf("listen: %w", err)
	}
	local, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return 0, 0, "", fmt.Errorf("getsockname: %w", err)
	}
	boundAddr = sockaddrToString(local)
	switch l := local.(type) {
	case *unix.SockaddrInet4:
		boundPort = l.Port
	case *unix.SockaddrInet6:
		boundPort = l.Port
	}
	return fd, boundPort, boundAddr, nil
}

func sockaddrToString(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), fmt.Sprintf("%d", sa.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), fmt.Sprintf("%d", sa.Port))
	default:
		return ""
	}
}

// tunerFromConfig builds the default SocketTuner applying the configured
// post-accept socket attributes.
func tunerFromConfig(cfg Config) SocketTuner {
	return socketTunerFunc(func(fd int) error {
		if cfg.KeepAlive {
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
				return fmt.Errorf("setsockopt SO_KEEPALIVE: %w", err)
			}
		}
		if cfg.NoDelay {
			if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
				return fmt.Errorf("setsockopt TCP_NODELAY: %w", err)
			}
		}
		if cfg.RecvBufferSize > 0 {
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.RecvBufferSize); err != nil {
				return fmt.Errorf("setsockopt SO_RCVBUF: %w", err)
			}
		}
		if cfg.SendBufferSize > 0 {
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.SendBufferSize); err != nil {
				return fmt.Errorf("setsockopt SO_SNDBUF: %w", err)
			}
		}
		return nil
	})
}

type socketTunerFunc func(fd int) error

func (f socketTunerFunc) Tune(fd int) error { return f(fd) }
