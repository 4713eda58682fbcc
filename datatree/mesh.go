package datatree

import (
	"fmt"
	"maps"
	"math"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/extents"
)

// Field is one variable's values on a mesh.
type Field struct {
	Centering contract.Centering `json:"centering" yaml:"centering"`
	Values    []float64          `json:"values" yaml:"values"`
}

// Mesh is a single fragment's geometry and fields.
//
// Meshes are shared between trees once built. Code that needs a different
// mesh creates one (WithField, Clone) instead of writing into an existing one.
type Mesh struct {
	Dimension int              `json:"dimension" yaml:"dimension"`
	Points    [][]float64      `json:"points" yaml:"points"`
	NumCells  int              `json:"num_cells" yaml:"num_cells"`
	Cells     [][]int          `json:"cells,omitempty" yaml:"cells"`
	Fields    map[string]Field `json:"fields,omitempty" yaml:"fields"`
	// GhostLayers is the number of ghost cell layers included around the domain.
	GhostLayers int      `json:"ghost_layers,omitempty" yaml:"ghost_layers"`
	Materials   []string `json:"materials,omitempty" yaml:"materials"`
}

// NumPoints returns the number of points.
func (m *Mesh) NumPoints() int { return len(m.Points) }

// Field returns the named field.
func (m *Mesh) Field(name string) (Field, bool) {
	f, ok := m.Fields[name]
	return f, ok
}

// WithField returns a mesh sharing m's geometry with one field added or replaced.
func (m *Mesh) WithField(name string, f Field) *Mesh {
	out := *m
	out.Fields = maps.Clone(m.Fields)
	if out.Fields == nil {
		out.Fields = make(map[string]Field, 1)
	}
	out.Fields[name] = f
	return &out
}

// WithoutFields returns a mesh sharing m's geometry with only the named fields kept.
func (m *Mesh) WithoutFields(keep func(name string) bool) *Mesh {
	out := *m
	out.Fields = make(map[string]Field, len(m.Fields))
	for name, f := range m.Fields {
		if keep(name) {
			out.Fields[name] = f
		}
	}
	return &out
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	out := *m
	out.Points = make([][]float64, len(m.Points))
	for i, p := range m.Points {
		out.Points[i] = append([]float64(nil), p...)
	}
	out.Cells = make([][]int, len(m.Cells))
	for i, c := range m.Cells {
		out.Cells[i] = append([]int(nil), c...)
	}
	out.Fields = make(map[string]Field, len(m.Fields))
	for name, f := range m.Fields {
		out.Fields[name] = Field{Centering: f.Centering, Values: append([]float64(nil), f.Values...)}
	}
	out.Materials = append([]string(nil), m.Materials...)
	return &out
}

// SpatialExtents returns the bounding box of the mesh points.
func (m *Mesh) SpatialExtents() (*extents.Extents, error) {
	return extents.FromPoints(m.Dimension, m.Points)
}

// DataExtents returns the value range of a field, or empty extents when the
// field is missing.
func (m *Mesh) DataExtents(name string) *extents.Extents {
	f, ok := m.Fields[name]
	if !ok {
		return extents.New(1)
	}
	return extents.FromValues(f.Values)
}

// SizeBytes estimates the in-memory payload size.
func (m *Mesh) SizeBytes() int64 {
	size := int64(len(m.Points) * m.Dimension * 8)
	for _, c := range m.Cells {
		size += int64(len(c) * 8)
	}
	for _, f := range m.Fields {
		size += int64(len(f.Values) * 8)
	}
	return size
}

// Check reports the first well-formedness problem found, or nil.
func (m *Mesh) Check() error {
	if m.Dimension < 1 || m.Dimension > 3 {
		return fmt.Errorf("dimension %d out of range", m.Dimension)
	}
	if m.NumCells < 0 {
		return fmt.Errorf("negative cell count %d", m.NumCells)
	}
	if len(m.Cells) != m.NumCells {
		return fmt.Errorf("declares %d cells but has %d", m.NumCells, len(m.Cells))
	}
	for i, p := range m.Points {
		if len(p) != m.Dimension {
			return fmt.Errorf("point %d has %d coordinates, want %d", i, len(p), m.Dimension)
		}
		for _, x := range p {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("point %d has non-finite coordinate", i)
			}
		}
	}
	n := len(m.Points)
	for i, c := range m.Cells {
		if len(c) == 0 {
			return fmt.Errorf("cell %d has no points", i)
		}
		for _, idx := range c {
			if idx < 0 || idx >= n {
				return fmt.Errorf("cell %d references point %d of %d", i, idx, n)
			}
		}
	}
	for name, f := range m.Fields {
		want := -1
		switch f.Centering {
		case contract.CenteringNodal:
			want = n
		case contract.CenteringZonal:
			want = m.NumCells
		}
		if want >= 0 && len(f.Values) != want {
			return fmt.Errorf("field %q has %d %s values, want %d", name, len(f.Values), f.Centering, want)
		}
	}
	return nil
}
