package cmd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const DefaultDialTimeout = 5 * time.Second

// Client is a small blocking TCP client for poking a running server. The
// wire is an opaque byte stream, so replies are collected until the line
// goes quiet rather than parsed.
type Client struct {
	host    string
	port    int
	timeout time.Duration
	conn    net.Conn
}

func NewClient(host string, port int) *Client {
	return &Client{host: host, port: port, timeout: DefaultDialTimeout}
}

// SetTimeout overrides the dial and write deadline, default 5s.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

func (c *Client) Addr() string {
	return net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port))
}

func (c *Client) Connected() bool {
	return c.conn != nil
}

func (c *Client) Connect() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.Addr(), c.timeout)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.Addr(), err)
	}
	c.conn = conn
	return nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) Send(data []byte) error {
	if c.conn == nil {
		return errors.New("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(data); err != nil {
		c.Close()
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// RecvUntilIdle reads whatever the server pushes back, returning once the
// stream has been quiet for idle. A closed peer surfaces as io.EOF only
// when nothing was collected first.
func (c *Client) RecvUntilIdle(idle time.Duration) ([]byte, error) {
	if c.conn == nil {
		return nil, errors.New("not connected")
	}
	var out []byte
	buf := make([]byte, 4096)
	for {
		c.conn.SetReadDeadline(time.Now().Add(idle))
		n, err := c.conn.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return out, nil
			}
			if err == io.EOF {
				c.Close()
				if len(out) > 0 {
					return out, nil
				}
				return nil, io.EOF
			}
			c.Close()
			return out, err
		}
	}
}
