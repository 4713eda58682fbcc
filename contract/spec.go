package contract

import (
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/validation"
)

// Spec is the serializable form of a Contract, used in pipeline definitions
// and on the worker wire.
type Spec struct {
	Variables        []VariableSpec `json:"variables,omitempty" yaml:"variables" validate:"dive"`
	AllDomains       bool           `json:"all_domains" yaml:"all_domains"`
	Domains          []int          `json:"domains,omitempty" yaml:"domains" validate:"omitempty,unique,dive,gte=0"`
	Timestep         int            `json:"timestep" yaml:"timestep" validate:"gte=0"`
	Materials        []string       `json:"materials,omitempty" yaml:"materials" validate:"omitempty,unique"`
	GhostWidth       int            `json:"ghost_width" yaml:"ghost_width" validate:"gte=0,lte=8"`
	Representation   string         `json:"representation,omitempty" yaml:"representation" validate:"omitempty,oneof=mesh image none"`
	PipelineIndex    int            `json:"pipeline_index" yaml:"pipeline_index" validate:"gte=0"`
	UseLoadBalancing bool           `json:"use_load_balancing" yaml:"use_load_balancing"`
	CanStream        bool           `json:"can_stream" yaml:"can_stream"`
	FilterCount      int            `json:"filter_count,omitempty" yaml:"-"`
}

// VariableSpec is the serializable form of a Variable.
type VariableSpec struct {
	Name       string `json:"name" yaml:"name" validate:"required"`
	Centering  string `json:"centering,omitempty" yaml:"centering" validate:"omitempty,oneof=nodal zonal unknown node zone cell"`
	ProducedBy string `json:"produced_by,omitempty" yaml:"produced_by"`
}

// DefaultSpec returns the spec of New(): all domains, streaming and load
// balancing allowed.
func DefaultSpec() Spec {
	return Spec{AllDomains: true, UseLoadBalancing: true, CanStream: true}
}

// Spec converts the contract to its serializable form.
func (c *Contract) Spec() Spec {
	s := Spec{
		AllDomains:       c.allDomains,
		Domains:          c.Domains(),
		Timestep:         c.timestep,
		Materials:        c.Materials(),
		GhostWidth:       c.ghostWidth,
		Representation:   c.representation.String(),
		PipelineIndex:    c.pipelineIndex,
		UseLoadBalancing: c.useLoadBalancing,
		CanStream:        c.canStream,
		FilterCount:      c.filterCount,
	}
	if !c.allDomains && s.Domains == nil {
		s.Domains = []int{}
	}
	for _, v := range c.variables {
		s.Variables = append(s.Variables, VariableSpec{
			Name:       v.Name,
			Centering:  v.Centering.String(),
			ProducedBy: v.ProducedBy,
		})
	}
	return s
}

// FromSpec validates s and builds the contract it describes.
func FromSpec(s Spec) (*Contract, error) {
	if err := validation.Validate(s); err != nil {
		return nil, err
	}
	repr, err := ParseRepresentation(s.Representation)
	if err != nil {
		return nil, errors.InvalidInput("representation", err.Error())
	}
	c := &Contract{
		allDomains:       s.AllDomains,
		timestep:         s.Timestep,
		ghostWidth:       s.GhostWidth,
		representation:   repr,
		pipelineIndex:    s.PipelineIndex,
		useLoadBalancing: s.UseLoadBalancing,
		canStream:        s.CanStream,
		filterCount:      s.FilterCount,
	}
	if !s.AllDomains {
		c.domains = normalize(append([]int{}, s.Domains...))
	}
	if s.Materials != nil {
		c = c.RestrictMaterials(s.Materials...)
	}
	for _, vs := range s.Variables {
		centering, err := ParseCentering(vs.Centering)
		if err != nil {
			return nil, errors.InvalidInput("centering", err.Error())
		}
		c.addVariable(Variable{Name: vs.Name, Centering: centering, ProducedBy: vs.ProducedBy})
	}
	return c, nil
}
