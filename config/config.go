package config

import (
	"github.com/fzft/go-tcp-reactor/server"
	"time"
)

// Config is the root configuration for one reactor instance.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Workers WorkersConfig `yaml:"workers"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds the listening socket and dispatch settings.
type ServerConfig struct {
	Name               string        `yaml:"name"`
	Port               int           `yaml:"port"` // 0 picks an ephemeral port
	LocalAddress       string        `yaml:"local_address"`
	Backlog            int           `yaml:"backlog"`
	SoTimeout          time.Duration `yaml:"so_timeout"`
	ReadDelay          time.Duration `yaml:"read_delay"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	UsingDirectBuffers bool          `yaml:"using_direct_buffers"`
	KeepAlive          bool          `yaml:"keep_alive"`
	NoDelay            bool          `yaml:"no_delay"`
	RecvBufferSize     int           `yaml:"recv_buffer_size"`
	SendBufferSize     int           `yaml:"send_buffer_size"`
}

// WorkersConfig sizes the read worker pool.
type WorkersConfig struct {
	Count      int `yaml:"count"` // 0 means one per CPU
	QueueDepth int `yaml:"queue_depth"`
}

// LogConfig selects logging behavior.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Factory maps the loaded configuration onto a factory Config.
func (c *Config) Factory() server.Config {
	return server.Config{
		Name:               c.Server.Name,
		Port:               c.Server.Port,
		LocalAddress:       c.Server.LocalAddress,
		Backlog:            c.Server.Backlog,
		SoTimeout:          c.Server.SoTimeout,
		ReadDelay:          c.Server.ReadDelay,
		HandshakeTimeout:   c.Server.HandshakeTimeout,
		UsingDirectBuffers: c.Server.UsingDirectBuffers,
		KeepAlive:          c.Server.KeepAlive,
		NoDelay:            c.Server.NoDelay,
		RecvBufferSize:     c.Server.RecvBufferSize,
		SendBufferSize:     c.Server.SendBufferSize,
		Workers:            c.Workers.Count,
		QueueDepth:         c.Workers.QueueDepth,
	}
}
