// Package contract describes what a downstream consumer needs from the
// pipeline.
//
// A Contract is immutable by convention: every With*/Restrict* method returns
// a modified clone and leaves the receiver untouched. Filters rewrite the
// contract they receive into the contract their input must satisfy, and may
// only add requirements (Covers checks this). Once a contract is handed to a
// source it is read-only for that fetch; a later pass builds a new one.
package contract

import (
	"fmt"
	"slices"
	"strings"
)

// Centering is where a variable's values live on the mesh.
type Centering int

const (
	CenteringUnknown Centering = iota
	CenteringNodal
	CenteringZonal
)

// String returns the name used in configuration and on the wire.
func (c Centering) String() string {
	switch c {
	case CenteringNodal:
		return "nodal"
	case CenteringZonal:
		return "zonal"
	default:
		return "unknown"
	}
}

// ParseCentering parses a centering name; the empty string is unknown.
func ParseCentering(s string) (Centering, error) {
	switch strings.ToLower(s) {
	case "", "unknown":
		return CenteringUnknown, nil
	case "nodal", "node":
		return CenteringNodal, nil
	case "zonal", "zone", "cell":
		return CenteringZonal, nil
	}
	return CenteringUnknown, fmt.Errorf("contract: unknown centering %q", s)
}

// MarshalText encodes the centering by name.
func (c Centering) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText decodes a centering name.
func (c *Centering) UnmarshalText(b []byte) error {
	v, err := ParseCentering(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Representation is the form the consumer wants the result in.
type Representation int

const (
	RepresentationMesh Representation = iota
	RepresentationImage
	RepresentationNone
)

// String returns the name used in configuration and on the wire.
func (r Representation) String() string {
	switch r {
	case RepresentationImage:
		return "image"
	case RepresentationNone:
		return "none"
	default:
		return "mesh"
	}
}

// ParseRepresentation parses a representation name; the empty string is mesh.
func ParseRepresentation(s string) (Representation, error) {
	switch strings.ToLower(s) {
	case "", "mesh":
		return RepresentationMesh, nil
	case "image":
		return RepresentationImage, nil
	case "none":
		return RepresentationNone, nil
	}
	return RepresentationMesh, fmt.Errorf("contract: unknown representation %q", s)
}

// Variable is one requested variable.
type Variable struct {
	Name      string
	Centering Centering
	// ProducedBy names the stage that derives this variable downstream of the
	// source. Sources only read variables with an empty ProducedBy.
	ProducedBy string
}

// Contract is a request for data flowing upstream through the pipeline.
type Contract struct {
	variables        []Variable
	allDomains       bool
	domains          []int
	timestep         int
	materials        []string
	ghostWidth       int
	representation   Representation
	pipelineIndex    int
	useLoadBalancing bool
	canStream        bool
	filterCount      int
}

// New creates a contract for all domains of timestep 0, mesh representation.
func New(vars ...Variable) *Contract {
	c := &Contract{allDomains: true, canStream: true, useLoadBalancing: true}
	for _, v := range vars {
		c.addVariable(v)
	}
	return c
}

// Clone returns a deep copy.
func (c *Contract) Clone() *Contract {
	out := *c
	out.variables = slices.Clone(c.variables)
	out.domains = slices.Clone(c.domains)
	out.materials = slices.Clone(c.materials)
	return &out
}

// --- Accessors ---

// Variables returns a copy of the requested variables in request order.
func (c *Contract) Variables() []Variable { return slices.Clone(c.variables) }

// VariableNames returns the names of all requested variables.
func (c *Contract) VariableNames() []string {
	names := make([]string, len(c.variables))
	for i, v := range c.variables {
		names[i] = v.Name
	}
	return names
}

// Variable looks up a requested variable by name.
func (c *Contract) Variable(name string) (Variable, bool) {
	for _, v := range c.variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// HasVariable reports whether name is requested.
func (c *Contract) HasVariable(name string) bool {
	_, ok := c.Variable(name)
	return ok
}

// ReadVariables returns the variables a source must read itself.
func (c *Contract) ReadVariables() []Variable {
	var out []Variable
	for _, v := range c.variables {
		if v.ProducedBy == "" {
			out = append(out, v)
		}
	}
	return out
}

// AllDomains reports whether the request is unrestricted by domain.
func (c *Contract) AllDomains() bool { return c.allDomains }

// Domains returns the requested domain ids, or nil when all domains are requested.
func (c *Contract) Domains() []int {
	if c.allDomains {
		return nil
	}
	return slices.Clone(c.domains)
}

// NeedsDomain reports whether domain id falls inside the restriction.
func (c *Contract) NeedsDomain(id int) bool {
	if c.allDomains {
		return true
	}
	_, found := slices.BinarySearch(c.domains, id)
	return found
}

// Timestep returns the requested timestep.
func (c *Contract) Timestep() int { return c.timestep }

// Materials returns the requested material subset, or nil for all materials.
func (c *Contract) Materials() []string { return slices.Clone(c.materials) }

// GhostWidth returns the requested ghost layer width; zero means no ghost data.
func (c *Contract) GhostWidth() int { return c.ghostWidth }

// Representation returns the desired representation.
func (c *Contract) Representation() Representation { return c.representation }

// PipelineIndex identifies the logical execution this contract belongs to.
func (c *Contract) PipelineIndex() int { return c.pipelineIndex }

// UseLoadBalancing reports whether domains may be distributed across ranks.
func (c *Contract) UseLoadBalancing() bool { return c.useLoadBalancing }

// CanStream reports whether the request may be split into several passes.
func (c *Contract) CanStream() bool { return c.canStream }

// FilterCount returns how many filters rewrote this contract on its way upstream.
func (c *Contract) FilterCount() int { return c.filterCount }

// --- Modifiers (each returns a new contract) ---

// WithVariable adds a variable need. An existing need is kept; its centering
// is filled in if it was unknown.
func (c *Contract) WithVariable(name string, centering Centering) *Contract {
	out := c.Clone()
	out.addVariable(Variable{Name: name, Centering: centering})
	return out
}

// WithDerivedVariable marks name as produced by stage downstream of the source.
// The variable stays requested.
func (c *Contract) WithDerivedVariable(name, stage string) *Contract {
	out := c.Clone()
	out.addVariable(Variable{Name: name})
	for i := range out.variables {
		if out.variables[i].Name == name {
			out.variables[i].ProducedBy = stage
		}
	}
	return out
}

// WithGhostWidth raises the ghost width to at least w.
func (c *Contract) WithGhostWidth(w int) *Contract {
	out := c.Clone()
	out.ghostWidth = max(out.ghostWidth, w)
	return out
}

// WithDomains adds domains to an explicit restriction. It has no effect when
// all domains are already requested.
func (c *Contract) WithDomains(ids ...int) *Contract {
	out := c.Clone()
	if out.allDomains {
		return out
	}
	out.domains = normalize(append(out.domains, ids...))
	return out
}

// WithAllDomains lifts any domain restriction.
func (c *Contract) WithAllDomains() *Contract {
	out := c.Clone()
	out.allDomains = true
	out.domains = nil
	return out
}

// RestrictTo narrows the request to the given domains. Used by the controller
// to build per-rank, per-pass contracts; filters must not call it.
func (c *Contract) RestrictTo(ids []int) *Contract {
	out := c.Clone()
	ids = normalize(slices.Clone(ids))
	if !c.allDomains {
		ids = slices.DeleteFunc(ids, func(id int) bool { return !c.NeedsDomain(id) })
	}
	out.allDomains = false
	out.domains = ids
	return out
}

// WithTimestep selects a timestep.
func (c *Contract) WithTimestep(t int) *Contract {
	out := c.Clone()
	out.timestep = t
	return out
}

// WithMaterials adds materials to the requested subset. When no subset was
// requested (all materials) it stays unrestricted.
func (c *Contract) WithMaterials(names ...string) *Contract {
	out := c.Clone()
	if out.materials == nil {
		return out
	}
	for _, m := range names {
		if !slices.Contains(out.materials, m) {
			out.materials = append(out.materials, m)
		}
	}
	slices.Sort(out.materials)
	return out
}

// RestrictMaterials requests only the given materials.
func (c *Contract) RestrictMaterials(names ...string) *Contract {
	out := c.Clone()
	out.materials = slices.Clone(names)
	slices.Sort(out.materials)
	out.materials = slices.Compact(out.materials)
	return out
}

// WithRepresentation sets the desired representation.
func (c *Contract) WithRepresentation(r Representation) *Contract {
	out := c.Clone()
	out.representation = r
	return out
}

// WithPipelineIndex stamps the logical execution index.
func (c *Contract) WithPipelineIndex(i int) *Contract {
	out := c.Clone()
	out.pipelineIndex = i
	return out
}

// WithLoadBalancing enables or disables distributing domains across ranks.
func (c *Contract) WithLoadBalancing(on bool) *Contract {
	out := c.Clone()
	out.useLoadBalancing = on
	return out
}

// WithStreaming enables or disables splitting the request into several passes.
func (c *Contract) WithStreaming(on bool) *Contract {
	out := c.Clone()
	out.canStream = on
	return out
}

// CountFilter records that one more filter rewrote the contract.
func (c *Contract) CountFilter() *Contract {
	out := c.Clone()
	out.filterCount++
	return out
}

// --- Comparison ---

// Covers reports whether c requests at least everything other requests.
func (c *Contract) Covers(other *Contract) bool {
	return len(c.Missing(other)) == 0
}

// Missing lists the requirements of other that c drops.
func (c *Contract) Missing(other *Contract) []string {
	var missing []string
	for _, v := range other.variables {
		have, ok := c.Variable(v.Name)
		switch {
		case !ok:
			missing = append(missing, "variable "+v.Name)
		case v.Centering != CenteringUnknown && have.Centering != CenteringUnknown && have.Centering != v.Centering:
			missing = append(missing, fmt.Sprintf("%s centering of %s", v.Centering, v.Name))
		}
	}
	if c.representation != other.representation {
		missing = append(missing, "representation "+other.representation.String())
	}
	if other.allDomains && !c.allDomains {
		missing = append(missing, "all domains")
	} else if !other.allDomains {
		for _, id := range other.domains {
			if !c.NeedsDomain(id) {
				missing = append(missing, fmt.Sprintf("domain %d", id))
			}
		}
	}
	if c.ghostWidth < other.ghostWidth {
		missing = append(missing, fmt.Sprintf("ghost width %d", other.ghostWidth))
	}
	if c.timestep != other.timestep {
		missing = append(missing, fmt.Sprintf("timestep %d", other.timestep))
	}
	if c.materials != nil {
		if other.materials == nil {
			missing = append(missing, "all materials")
		} else {
			for _, m := range other.materials {
				if !slices.Contains(c.materials, m) {
					missing = append(missing, "material "+m)
				}
			}
		}
	}
	return missing
}

// String formats the contract for logs.
func (c *Contract) String() string {
	domains := "all"
	if !c.allDomains {
		domains = fmt.Sprint(c.domains)
	}
	return fmt.Sprintf("contract{index=%d vars=%v domains=%s ghost=%d t=%d repr=%s}",
		c.pipelineIndex, c.VariableNames(), domains, c.ghostWidth, c.timestep, c.representation)
}

func (c *Contract) addVariable(v Variable) {
	for i := range c.variables {
		if c.variables[i].Name == v.Name {
			if c.variables[i].Centering == CenteringUnknown {
				c.variables[i].Centering = v.Centering
			}
			return
		}
	}
	c.variables = append(c.variables, v)
}

func normalize(ids []int) []int {
	slices.Sort(ids)
	return slices.Compact(ids)
}
