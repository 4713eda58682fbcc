package filters

import (
	"context"
	"fmt"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/flow"
)

// CellSplit cuts every fragment into up to pieces fragments of contiguous
// cells. The pieces keep the domain id of the fragment they came from.
type CellSplit struct {
	pieces int
}

// NewCellSplit creates the filter.
func NewCellSplit(pieces int) *CellSplit {
	return &CellSplit{pieces: max(pieces, 1)}
}

func (*CellSplit) Cardinality() flow.Cardinality { return flow.OneToMany }

func (s *CellSplit) ExecuteData(_ context.Context, f datatree.Fragment) ([]datatree.Fragment, error) {
	n := min(s.pieces, f.Mesh.NumCells)
	if n <= 1 {
		return []datatree.Fragment{f}, nil
	}
	out := make([]datatree.Fragment, 0, n)
	for k := range n {
		lo, hi := k*f.Mesh.NumCells/n, (k+1)*f.Mesh.NumCells/n
		mesh, err := subMesh(f.Mesh, lo, hi)
		if err != nil {
			return nil, err
		}
		out = append(out, datatree.Fragment{Domain: f.Domain, Label: fmt.Sprintf("%s/%d", f.Label, k), Mesh: mesh})
	}
	return out, nil
}

// subMesh extracts cells [lo, hi) with the points they use.
func subMesh(m *datatree.Mesh, lo, hi int) (*datatree.Mesh, error) {
	remap := make(map[int]int)
	var used []int
	cells := make([][]int, 0, hi-lo)
	for _, cell := range m.Cells[lo:hi] {
		out := make([]int, len(cell))
		for i, p := range cell {
			if p < 0 || p >= len(m.Points) {
				return nil, fmt.Errorf("cell references point %d of %d", p, len(m.Points))
			}
			q, ok := remap[p]
			if !ok {
				q = len(used)
				remap[p] = q
				used = append(used, p)
			}
			out[i] = q
		}
		cells = append(cells, out)
	}

	sub := &datatree.Mesh{
		Dimension:   m.Dimension,
		NumCells:    hi - lo,
		Cells:       cells,
		GhostLayers: m.GhostLayers,
		Materials:   m.Materials,
		Points:      make([][]float64, len(used)),
		Fields:      make(map[string]datatree.Field, len(m.Fields)),
	}
	for i, p := range used {
		sub.Points[i] = m.Points[p]
	}
	for name, field := range m.Fields {
		zonal := field.Centering == contract.CenteringZonal ||
			field.Centering == contract.CenteringUnknown && len(field.Values) == m.NumCells
		switch {
		case zonal && len(field.Values) == m.NumCells:
			sub.Fields[name] = datatree.Field{Centering: field.Centering, Values: field.Values[lo:hi:hi]}
		case !zonal && len(field.Values) == len(m.Points):
			values := make([]float64, len(used))
			for i, p := range used {
				values[i] = field.Values[p]
			}
			sub.Fields[name] = datatree.Field{Centering: field.Centering, Values: values}
		default:
			return nil, fmt.Errorf("field %s has %d values for %d points and %d cells", name, len(field.Values), len(m.Points), m.NumCells)
		}
	}
	return sub, nil
}
