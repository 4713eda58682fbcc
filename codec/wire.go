package codec

import (
	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/extents"
)

type wireObject struct {
	Source     string            `json:"source"`
	Attributes wireAttributes    `json:"attributes"`
	Tree       *wireTree         `json:"tree,omitempty"`
	Image      *dataobject.Image `json:"image,omitempty"`
}

type wireAttributes struct {
	TopologicalDimension int                     `json:"topological_dimension"`
	SpatialDimension     int                     `json:"spatial_dimension"`
	Variables            []contract.VariableSpec `json:"variables,omitempty"`
	GhostWidth           int                     `json:"ghost_width,omitempty"`
	SpatialExtents       *wireExtents            `json:"spatial_extents,omitempty"`
	DataExtents          map[string]*wireExtents `json:"data_extents,omitempty"`
}

type wireExtents struct {
	Dimension int       `json:"dimension"`
	Bounds    []float64 `json:"bounds"`
}

type wireTree struct {
	Label    string             `json:"label,omitempty"`
	Leaf     *datatree.Fragment `json:"leaf,omitempty"`
	Children []*wireTree        `json:"children,omitempty"`
}

func toWireTree(t *datatree.Tree) *wireTree {
	if t == nil {
		return nil
	}
	if f, ok := t.Fragment(); ok {
		return &wireTree{Leaf: &f}
	}
	w := &wireTree{Label: t.Label()}
	for _, c := range t.Children() {
		w.Children = append(w.Children, toWireTree(c))
	}
	return w
}

func fromWireTree(w *wireTree) *datatree.Tree {
	if w == nil {
		return nil
	}
	if w.Leaf != nil {
		return datatree.Leaf(*w.Leaf)
	}
	children := make([]*datatree.Tree, 0, len(w.Children))
	for _, c := range w.Children {
		children = append(children, fromWireTree(c))
	}
	return datatree.Node(w.Label, children...)
}

func toWireExtents(e *extents.Extents) *wireExtents {
	if !e.HasExtents() {
		return nil
	}
	return &wireExtents{Dimension: e.Dimension(), Bounds: e.Bounds()}
}

func fromWireExtents(w *wireExtents) (*extents.Extents, error) {
	if w == nil {
		return nil, nil
	}
	return extents.FromBounds(w.Bounds...)
}

func toWireAttributes(a dataobject.Attributes) wireAttributes {
	w := wireAttributes{
		TopologicalDimension: a.TopologicalDimension,
		SpatialDimension:     a.SpatialDimension,
		GhostWidth:           a.GhostWidth,
		SpatialExtents:       toWireExtents(a.SpatialExtents),
	}
	for _, v := range a.Variables {
		w.Variables = append(w.Variables, contract.VariableSpec{
			Name: v.Name, Centering: v.Centering.String(), ProducedBy: v.ProducedBy,
		})
	}
	for name, e := range a.DataExtents {
		if we := toWireExtents(e); we != nil {
			if w.DataExtents == nil {
				w.DataExtents = make(map[string]*wireExtents)
			}
			w.DataExtents[name] = we
		}
	}
	return w
}

func fromWireAttributes(w wireAttributes) (dataobject.Attributes, error) {
	a := dataobject.Attributes{
		TopologicalDimension: w.TopologicalDimension,
		SpatialDimension:     w.SpatialDimension,
		GhostWidth:           w.GhostWidth,
	}
	var err error
	if a.SpatialExtents, err = fromWireExtents(w.SpatialExtents); err != nil {
		return a, err
	}
	for _, v := range w.Variables {
		c, err := contract.ParseCentering(v.Centering)
		if err != nil {
			return a, err
		}
		a.Variables = append(a.Variables, contract.Variable{Name: v.Name, Centering: c, ProducedBy: v.ProducedBy})
	}
	for name, we := range w.DataExtents {
		e, err := fromWireExtents(we)
		if err != nil {
			return a, err
		}
		if a.DataExtents == nil {
			a.DataExtents = make(map[string]*extents.Extents)
		}
		a.DataExtents[name] = e
	}
	return a, nil
}
