package cmd

import (
	"github.com/fzft/go-tcp-reactor/server"
	"github.com/stretchr/testify/assert"
	"io"
	"net"
	"testing"
	"time"
)

func startEchoServer(t *testing.T) *server.Factory {
	t.Helper()
	f := server.NewFactory(server.Config{Name: "cli-test", Workers: 2})
	f.SetListener(server.ListenerFunc(func(c *server.Conn, data []byte) bool {
		c.Write(data)
		return true
	}))
	err := f.Start()
	assert.NoError(t, err, "factory should start")
	t.Cleanup(func() { f.Stop() })
	return f
}

func TestClientRoundTrip(t *testing.T) {
	f := startEchoServer(t)

	client := NewClient("127.0.0.1", f.Port())
	err := client.Connect()
	assert.NoError(t, err, "client should connect")
	defer client.Close()
	assert.True(t, client.Connected(), "client should report connected")

	err = client.Send([]byte("ping"))
	assert.NoError(t, err, "send should succeed")

	reply, err := client.RecvUntilIdle(200 * time.Millisecond)
	assert.NoError(t, err, "recv should not fail on a live connection")
	assert.Equal(t, "ping", string(reply), "echo server should return the payload")
}

func TestClientSendWithoutConnect(t *testing.T) {
	client := NewClient("127.0.0.1", 1)
	err := client.Send([]byte("x"))
	assert.Error(t, err, "send before connect should fail")
	assert.False(t, client.Connected(), "client should not report connected")
}

func TestClientRecvSeesPeerClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err, "listener should bind")
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	client := NewClient("127.0.0.1", ln.Addr().(*net.TCPAddr).Port)
	err = client.Connect()
	assert.NoError(t, err, "client should connect")

	_, err = client.RecvUntilIdle(time.Second)
	assert.Equal(t, io.EOF, err, "closed peer with no data should surface EOF")
	assert.False(t, client.Connected(), "connection should be torn down after EOF")
}

func TestFormatReply(t *testing.T) {
	assert.Equal(t, "hello", formatReply([]byte("hello\r\n")), "trailing newline should be trimmed")
	assert.Equal(t, "a\nb", formatReply([]byte("a\nb\n")), "inner newlines should survive")
	assert.Equal(t, `"\x00v1"`, formatReply([]byte("\x00v1")), "binary replies should be quoted")
}
