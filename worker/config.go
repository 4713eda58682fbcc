package worker

import (
	"fmt"
	"time"

	"github.com/kbukum/meshflow/codec"
	"github.com/kbukum/meshflow/resilience"
)

// Config holds worker server configuration.
type Config struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	// MaxRequestBytes bounds fetch request bodies.
	MaxRequestBytes int64 `yaml:"max_request_bytes" mapstructure:"max_request_bytes"`
	// MaxConcurrent fetches run at once; MaxWait is how long a fetch waits for a slot.
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxWait       time.Duration `yaml:"max_wait" mapstructure:"max_wait"`
	Codec         codec.Config  `yaml:"codec" mapstructure:"codec"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 7400
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.MaxRequestBytes == 0 {
		c.MaxRequestBytes = 1 << 20
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 4
	}
	c.Codec.ApplyDefaults()
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("worker.port must be between 0 and 65535 (got: %d)", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("worker timeouts must be non-negative")
	}
	if c.MaxRequestBytes < 0 {
		return fmt.Errorf("worker.max_request_bytes must be non-negative (got: %d)", c.MaxRequestBytes)
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("worker.max_concurrent must be non-negative (got: %d)", c.MaxConcurrent)
	}
	if c.MaxWait < 0 {
		return fmt.Errorf("worker.max_wait must be non-negative (got: %s)", c.MaxWait)
	}
	return nil
}

func (c *Config) bulkhead() resilience.BulkheadConfig {
	return resilience.BulkheadConfig{Name: "worker", MaxConcurrent: c.MaxConcurrent, MaxWait: c.MaxWait}
}
