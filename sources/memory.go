package sources

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
)

// Memory serves fragments held in memory. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	steps    map[int][]datatree.Fragment
	topology int
	policy   *flow.Policy
}

// NewMemory creates a reader holding frags as timestep 0.
func NewMemory(frags ...datatree.Fragment) *Memory {
	m := &Memory{steps: make(map[int][]datatree.Fragment)}
	m.steps[0] = slices.Clone(frags)
	return m
}

// SetTimestep replaces the fragments of timestep t.
func (m *Memory) SetTimestep(t int, frags ...datatree.Fragment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[t] = slices.Clone(frags)
}

// SetTopologicalDimension declares a topological dimension different from
// the spatial one, e.g. 2 for surfaces in 3-d space.
func (m *Memory) SetTopologicalDimension(d int) { m.topology = d }

// SetFailurePolicy declares how malformed fragments are handled.
func (m *Memory) SetFailurePolicy(p flow.Policy) { m.policy = &p }

// FetchDataset returns the requested fragments of the requested timestep.
func (m *Memory) FetchDataset(ctx context.Context, c *contract.Contract, _ flow.ExtentsRecorder) (*datatree.Tree, error) {
	m.mu.RLock()
	frags, ok := m.steps[c.Timestep()]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.InvalidInput("timestep", fmt.Sprintf("timestep %d not available", c.Timestep()))
	}
	out := make([]datatree.Fragment, 0, len(frags))
	for _, f := range frags {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if sel, ok := selectFragment(c, f); ok {
			out = append(out, sel)
		}
	}
	return datatree.FromFragments(out...), nil
}

// Variables lists the fields of every timestep.
func (m *Memory) Variables() []contract.Variable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	steps := make([]int, 0, len(m.steps))
	for t := range m.steps {
		steps = append(steps, t)
	}
	slices.Sort(steps)
	var all []datatree.Fragment
	for _, t := range steps {
		all = append(all, m.steps[t]...)
	}
	return variablesOf(all)
}

// Domains returns the sorted domain ids of timestep 0.
func (m *Memory) Domains() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int, 0, len(m.steps[0]))
	for _, f := range m.steps[0] {
		ids = append(ids, f.Domain)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// TopologicalDimension returns the declared topological dimension, or 0.
func (m *Memory) TopologicalDimension() int { return m.topology }

// FailurePolicy returns the declared policy, defaulting to drop.
func (m *Memory) FailurePolicy() flow.Policy {
	if m.policy == nil {
		return flow.PolicyDrop
	}
	return *m.policy
}

// Lines builds n one-dimensional domains: domain i spans [i, i+1] with
// cells equal cells, a nodal field "x" holding the coordinate and a zonal
// field "domain" holding i+1.
func Lines(n, cells int) []datatree.Fragment {
	if cells < 1 {
		cells = 1
	}
	frags := make([]datatree.Fragment, n)
	for i := range frags {
		mesh := &datatree.Mesh{Dimension: 1, NumCells: cells}
		x := make([]float64, cells+1)
		for p := range x {
			x[p] = float64(i) + float64(p)/float64(cells)
			mesh.Points = append(mesh.Points, []float64{x[p]})
		}
		zonal := make([]float64, cells)
		for k := range zonal {
			mesh.Cells = append(mesh.Cells, []int{k, k + 1})
			zonal[k] = float64(i + 1)
		}
		mesh.Fields = map[string]datatree.Field{
			"x":      {Centering: contract.CenteringNodal, Values: x},
			"domain": {Centering: contract.CenteringZonal, Values: zonal},
		}
		frags[i] = datatree.Fragment{Domain: i, Label: fmt.Sprintf("line-%d", i), Mesh: mesh}
	}
	return frags
}
