package resource

import "github.com/kbukum/meshflow/validation"

// Config holds handle manager settings.
type Config struct {
	// MaxOpenHandles bounds the number of idle open handles.
	MaxOpenHandles int `mapstructure:"max_open_handles" yaml:"max_open_handles" validate:"gte=0"`
}

// ApplyDefaults sets sensible defaults for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxOpenHandles == 0 {
		c.MaxOpenHandles = 64
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
