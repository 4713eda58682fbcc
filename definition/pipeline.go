package definition

import (
	"fmt"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/loadbalance"
	"github.com/kbukum/meshflow/validation"
)

// Pipeline is a YAML-defined pipeline.
type Pipeline struct {
	// Name is the pipeline identifier.
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description,omitempty"`
	// Source is required for runnable pipelines. Pipelines that are only
	// included by others carry filters alone.
	Source  *StageDef  `yaml:"source,omitempty"`
	Filters []StageDef `yaml:"filters,omitempty" validate:"dive"`
	Sink    *StageDef  `yaml:"sink,omitempty"`
	// Contract is the request the sink issues.
	Contract contract.Spec `yaml:"contract"`
	// Domains is the domain set to distribute; empty means whatever the
	// source holds, executed unrestricted on rank 0.
	Domains  []int       `yaml:"domains,omitempty"`
	Schedule ScheduleDef `yaml:"schedule"`
}

// StageDef defines one stage.
type StageDef struct {
	// Component is the registry lookup key. Exactly one of Component and
	// Include is set for filters.
	Component string `yaml:"component,omitempty"`
	// Include names another pipeline whose filters form a facade here.
	Include string `yaml:"include,omitempty"`
	// Name overrides the stage name; it defaults to the component or include.
	Name   string `yaml:"name,omitempty"`
	Policy string `yaml:"policy,omitempty" validate:"omitempty,oneof=drop fatal"`
	Params Params `yaml:"params,omitempty"`
}

// StageName returns the name the stage is built with.
func (d StageDef) StageName() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Component != "":
		return d.Component
	default:
		return d.Include
	}
}

// ScheduleDef selects the load-balancing scheduler.
type ScheduleDef struct {
	Mode          string `yaml:"mode" validate:"omitempty,oneof=static streaming dynamic"`
	MemoryCeiling int64  `yaml:"memory_ceiling" validate:"gte=0"`
	ChunkSize     int    `yaml:"chunk_size" validate:"gte=0"`
	MaxPasses     int    `yaml:"max_passes" validate:"gte=0"`
}

// Scheduler builds the scheduler described by s. cost may be nil; a
// streaming scheduler then sizes passes from the bytes they deliver.
func (s ScheduleDef) Scheduler(cost loadbalance.CostFunc) (loadbalance.Scheduler, error) {
	mode, err := loadbalance.ParseMode(s.Mode)
	if err != nil {
		return nil, err
	}
	return loadbalance.New(mode, s.MemoryCeiling, s.ChunkSize, cost)
}

// Runnable reports whether p has both ends of a pipeline.
func (p *Pipeline) Runnable() bool { return p.Source != nil && p.Sink != nil }

// Validate checks the definition's structure.
func (p *Pipeline) Validate() error {
	if err := validation.Validate(p); err != nil {
		return err
	}
	v := validation.New()
	if p.Source != nil {
		v.Required("source.component", p.Source.Component)
		v.Check(p.Source.Include == "", "source.include", "sources cannot be included")
	}
	if p.Sink != nil {
		v.Required("sink.component", p.Sink.Component)
		v.Check(p.Sink.Include == "", "sink.include", "sinks cannot be included")
	}
	v.Check(p.Source != nil || p.Sink == nil, "source", "a pipeline with a sink needs a source")
	names := make([]string, 0, len(p.Filters))
	for i, f := range p.Filters {
		field := fmt.Sprintf("filters[%d]", i)
		v.Check((f.Component == "") != (f.Include == ""), field, "exactly one of component and include is required")
		names = append(names, f.StageName())
	}
	v.Unique("filters", names)
	if _, err := contract.FromSpec(p.Contract); err != nil {
		v.AddError("contract", err.Error())
	}
	return v.Validate()
}
