package config

import (
	"errors"
	"fmt"
)

// Validate checks that all values are in range. Runs after defaults are
// applied.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadDelay <= 0 {
		return errors.New("server.read_delay must be positive")
	}
	if c.Server.RecvBufferSize < 0 {
		return errors.New("server.recv_buffer_size must be >= 0")
	}
	if c.Server.SendBufferSize < 0 {
		return errors.New("server.send_buffer_size must be >= 0")
	}
	if c.Workers.Count < 0 {
		return errors.New("workers.count must be >= 0")
	}
	if c.Workers.QueueDepth < 1 {
		return errors.New("workers.queue_depth must be >= 1")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	return nil
}
