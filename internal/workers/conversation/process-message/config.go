// internal/workers/conversation/process-message/config.go
package processmessage

import "time"

type Config struct {
	Timeout          time.Duration
	MaxMessageLength int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:          15 * time.Second,
		MaxMessageLength: 2000,
	}
}
