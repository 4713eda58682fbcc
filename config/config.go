package config

import (
	"fmt"

	"github.com/kbukum/meshflow/codec"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/observability"
	"github.com/kbukum/meshflow/resource"
	"github.com/kbukum/meshflow/validation"
	"github.com/kbukum/meshflow/worker"
)

// Config is the complete meshflow configuration.
type Config struct {
	BaseConfig    `yaml:",inline" mapstructure:",squash"`
	Logging       logger.Config        `yaml:"logging" mapstructure:"logging"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
	Engine        EngineConfig         `yaml:"engine" mapstructure:"engine"`
	Transport     codec.Config         `yaml:"transport" mapstructure:"transport"`
	Resource      resource.Config      `yaml:"resource" mapstructure:"resource"`
	Worker        worker.Config        `yaml:"worker" mapstructure:"worker"`
	Pipelines     PipelineConfig       `yaml:"pipelines" mapstructure:"pipelines"`
}

// ApplyDefaults fills every section. The worker frames use the transport
// codec unless configured otherwise.
func (c *Config) ApplyDefaults() {
	c.BaseConfig.ApplyDefaults()
	c.Logging.ApplyDefaults()
	if c.Debug && c.Logging.Level == "info" {
		c.Logging.Level = "debug"
	}
	c.Observability.ApplyDefaults()
	c.Engine.ApplyDefaults()
	c.Transport.ApplyDefaults()
	c.Resource.ApplyDefaults()
	if c.Worker.Codec == (codec.Config{}) {
		c.Worker.Codec = c.Transport
	}
	c.Worker.ApplyDefaults()
	c.Pipelines.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.BaseConfig.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Resource.Validate(); err != nil {
		return fmt.Errorf("resource: %w", err)
	}
	if err := c.Worker.Validate(); err != nil {
		return err
	}
	return nil
}
