// internal/engine/contextmanager/config.go
package contextmanager

import (
	"fmt"
	"time"
)

type Config struct {
	KeyPrefix    string
	TTL          time.Duration
	HistoryLimit int
}

func DefaultConfig() *Config {
	return &Config{
		KeyPrefix:    "conv:ctx",
		TTL:          24 * time.Hour,
		HistoryLimit: 10,
	}
}

func (c *Config) Validate() error {
	if c.KeyPrefix == "" {
		return fmt.Errorf("key prefix is required")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("context ttl must be positive, got %s", c.TTL)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive, got %d", c.HistoryLimit)
	}
	return nil
}
