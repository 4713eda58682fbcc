package filters

import (
	"context"
	"slices"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
)

// Append merges every fragment of an object into a single fragment. Only
// fields carried by every fragment with the same centering survive. The
// merged fragment takes the lowest domain id present.
type Append struct {
	stage string
}

// NewAppend creates the filter; stage names the objects it produces.
func NewAppend(stage string) *Append {
	return &Append{stage: stage}
}

func (*Append) Cardinality() flow.Cardinality { return flow.ManyToOne }

func (a *Append) Execute(_ context.Context, in *dataobject.Object, _ *contract.Contract) (*dataobject.Object, error) {
	if in.IsEmpty() {
		return in, nil
	}
	tree, err := in.Tree()
	if err != nil {
		return nil, errors.TypeMismatch(a.stage, dataobject.KindMeshCollection.String(), in.Kind().String())
	}
	leaves := tree.Leaves()
	if len(leaves) == 1 {
		return in, nil
	}

	first := leaves[0].Mesh
	merged := &datatree.Mesh{Dimension: first.Dimension, GhostLayers: first.GhostLayers, Fields: make(map[string]datatree.Field)}
	common := make(map[string]contract.Centering, len(first.Fields))
	for name, f := range first.Fields {
		common[name] = f.Centering
	}
	domain := leaves[0].Domain
	for _, leaf := range leaves {
		m := leaf.Mesh
		if m.Dimension != merged.Dimension {
			return nil, errors.DataIntegrity(leaf.Domain, "cannot append meshes of different dimension")
		}
		for name, c := range common {
			if f, ok := m.Fields[name]; !ok || f.Centering != c {
				delete(common, name)
			}
		}
		domain = min(domain, leaf.Domain)
		merged.GhostLayers = min(merged.GhostLayers, m.GhostLayers)
		for _, mat := range m.Materials {
			if !slices.Contains(merged.Materials, mat) {
				merged.Materials = append(merged.Materials, mat)
			}
		}
	}
	slices.Sort(merged.Materials)

	for _, leaf := range leaves {
		m := leaf.Mesh
		offset := len(merged.Points)
		merged.Points = append(merged.Points, m.Points...)
		for _, cell := range m.Cells {
			shifted := make([]int, len(cell))
			for i, p := range cell {
				shifted[i] = p + offset
			}
			merged.Cells = append(merged.Cells, shifted)
		}
		merged.NumCells += m.NumCells
		for name, c := range common {
			f := merged.Fields[name]
			f.Centering = c
			f.Values = append(f.Values, m.Fields[name].Values...)
			merged.Fields[name] = f
		}
	}

	attrs := in.Attributes()
	attrs.Variables = slices.DeleteFunc(attrs.Variables, func(v contract.Variable) bool {
		_, ok := common[v.Name]
		return !ok
	})
	for name := range attrs.DataExtents {
		if _, ok := common[name]; !ok {
			delete(attrs.DataExtents, name)
		}
	}
	frag := datatree.Fragment{Domain: domain, Label: "appended", Mesh: merged}
	return in.DeriveMesh(a.stage, datatree.Leaf(frag), attrs), nil
}
