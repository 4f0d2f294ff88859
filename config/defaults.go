package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultName       = "tcp-server"
	DefaultBacklog    = 128
	DefaultReadDelay  = 100 * time.Millisecond
	DefaultQueueDepth = 64
	DefaultLogLevel   = "info"
)

func (c *Config) applyDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = DefaultName
	}
	if c.Server.Backlog == 0 {
		c.Server.Backlog = DefaultBacklog
	}
	if c.Server.ReadDelay == 0 {
		c.Server.ReadDelay = DefaultReadDelay
	}
	if c.Workers.QueueDepth == 0 {
		c.Workers.QueueDepth = DefaultQueueDepth
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
