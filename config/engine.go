package config

import (
	"fmt"

	"github.com/kbukum/meshflow/loadbalance"
)

// EngineConfig controls how pipelines are executed.
type EngineConfig struct {
	// Mode is static, streaming or dynamic.
	Mode string `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=static streaming dynamic"`
	// Ranks is the number of in-process ranks.
	Ranks int `yaml:"ranks" mapstructure:"ranks" validate:"gte=0"`
	// MemoryCeilingBytes bounds the estimated size of one streamed pass.
	MemoryCeilingBytes int64 `yaml:"memory_ceiling_bytes" mapstructure:"memory_ceiling_bytes" validate:"gte=0"`
	// ChunkSize bounds the number of domains per streamed or dynamic pass.
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size" validate:"gte=0"`
	MaxPasses int `yaml:"max_passes" mapstructure:"max_passes" validate:"gte=0"`
	// Tracing wraps every stage in a span.
	Tracing bool `yaml:"tracing" mapstructure:"tracing"`
}

// ApplyDefaults fills zero values.
func (c *EngineConfig) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = string(loadbalance.ModeStatic)
	}
	if c.Ranks == 0 {
		c.Ranks = 1
	}
	if c.ChunkSize == 0 && c.Mode == string(loadbalance.ModeDynamic) {
		c.ChunkSize = 1
	}
	if c.MaxPasses == 0 {
		c.MaxPasses = 10000
	}
}

// Validate checks combinations the struct tags cannot express.
func (c *EngineConfig) Validate() error {
	if c.Mode == string(loadbalance.ModeStreaming) && c.ChunkSize == 0 && c.MemoryCeilingBytes == 0 {
		return fmt.Errorf("engine: streaming needs chunk_size or memory_ceiling_bytes")
	}
	return nil
}

// Scheduler builds the scheduler the engine section describes. cost may be
// nil; a streaming scheduler then sizes passes from the bytes they deliver.
func (c *EngineConfig) Scheduler(cost loadbalance.CostFunc) (loadbalance.Scheduler, error) {
	mode, err := loadbalance.ParseMode(c.Mode)
	if err != nil {
		return nil, err
	}
	return loadbalance.New(mode, c.MemoryCeilingBytes, c.ChunkSize, cost)
}

// PipelineConfig locates pipeline definitions.
type PipelineConfig struct {
	// Dirs are searched in order for <name>.yaml and <name>.yml.
	Dirs []string `yaml:"dirs" mapstructure:"dirs"`
}

// ApplyDefaults fills zero values.
func (c *PipelineConfig) ApplyDefaults() {
	if len(c.Dirs) == 0 {
		c.Dirs = []string{"./pipelines"}
	}
}
