package dataobject

import (
	"maps"
	"slices"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/extents"
)

// Attributes describes a payload without touching it, so downstream stages
// can validate their contract before execution.
type Attributes struct {
	TopologicalDimension int
	SpatialDimension     int
	Variables            []contract.Variable
	GhostWidth           int
	SpatialExtents       *extents.Extents
	DataExtents          map[string]*extents.Extents
}

// Clone returns a deep copy.
func (a Attributes) Clone() Attributes {
	out := a
	out.Variables = slices.Clone(a.Variables)
	out.SpatialExtents = a.SpatialExtents.Clone()
	if a.DataExtents != nil {
		out.DataExtents = make(map[string]*extents.Extents, len(a.DataExtents))
		for k, v := range a.DataExtents {
			out.DataExtents[k] = v.Clone()
		}
	}
	return out
}

// Variable returns the attributes of the named variable.
func (a Attributes) Variable(name string) (contract.Variable, bool) {
	i := slices.IndexFunc(a.Variables, func(v contract.Variable) bool { return v.Name == name })
	if i < 0 {
		return contract.Variable{}, false
	}
	return a.Variables[i], true
}

// HasVariable reports whether the payload carries the named variable.
func (a Attributes) HasVariable(name string) bool {
	_, ok := a.Variable(name)
	return ok
}

// WithVariable returns a copy that also lists v, replacing a same-named entry.
func (a Attributes) WithVariable(v contract.Variable) Attributes {
	out := a.Clone()
	if i := slices.IndexFunc(out.Variables, func(x contract.Variable) bool { return x.Name == v.Name }); i >= 0 {
		out.Variables[i] = v
	} else {
		out.Variables = append(out.Variables, v)
	}
	return out
}

// VariableNames returns the sorted variable names.
func (a Attributes) VariableNames() []string {
	names := make([]string, 0, len(a.Variables))
	for _, v := range a.Variables {
		names = append(names, v.Name)
	}
	slices.Sort(names)
	return names
}

// DataExtentsNames returns the sorted names that have data extents.
func (a Attributes) DataExtentsNames() []string {
	return slices.Sorted(maps.Keys(a.DataExtents))
}
