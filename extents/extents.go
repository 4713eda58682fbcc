// Package extents accumulates per-dimension (min, max) bounds.
//
// Merge takes the minimum of minimums and the maximum of maximums, so it is
// idempotent, commutative and associative: partial observations gathered in
// any order, on any rank, across any number of streamed passes produce the
// same final extents.
package extents

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Extents is a fixed-size array of (min, max) pairs, one per dimension.
// The zero value is not usable; call New.
type Extents struct {
	dim    int
	set    bool
	bounds []float64 // min0, max0, min1, max1, ...
}

// New returns empty extents of the given dimension.
func New(dim int) *Extents {
	if dim < 1 {
		dim = 1
	}
	return &Extents{dim: dim, bounds: make([]float64, 2*dim)}
}

// FromBounds builds extents from a min/max interleaved slice.
func FromBounds(bounds ...float64) (*Extents, error) {
	if len(bounds) == 0 || len(bounds)%2 != 0 {
		return nil, fmt.Errorf("extents: need an even, non-zero number of bounds, got %d", len(bounds))
	}
	e := New(len(bounds) / 2)
	if err := e.Set(bounds); err != nil {
		return nil, err
	}
	return e, nil
}

// FromPoints computes the bounding box of points, each having dim coordinates.
// It returns empty extents when there are no points.
func FromPoints(dim int, points [][]float64) (*Extents, error) {
	e := New(dim)
	if len(points) == 0 {
		return e, nil
	}
	axis := make([]float64, len(points))
	for d := 0; d < dim; d++ {
		for i, p := range points {
			if len(p) != dim {
				return nil, fmt.Errorf("extents: point %d has %d coordinates, want %d", i, len(p), dim)
			}
			axis[i] = p[d]
		}
		e.bounds[2*d] = floats.Min(axis)
		e.bounds[2*d+1] = floats.Max(axis)
	}
	e.set = true
	return e, nil
}

// FromValues computes one-dimensional data extents of values.
func FromValues(values []float64) *Extents {
	e := New(1)
	if len(values) == 0 {
		return e
	}
	e.bounds[0] = floats.Min(values)
	e.bounds[1] = floats.Max(values)
	e.set = true
	return e
}

// Dimension returns the number of dimensions.
func (e *Extents) Dimension() int { return e.dim }

// HasExtents reports whether at least one Set or non-empty Merge happened.
func (e *Extents) HasExtents() bool { return e != nil && e.set }

// Set replaces the bounds.
func (e *Extents) Set(bounds []float64) error {
	if len(bounds) != 2*e.dim {
		return fmt.Errorf("extents: need %d bounds, got %d", 2*e.dim, len(bounds))
	}
	for d := 0; d < e.dim; d++ {
		if bounds[2*d] > bounds[2*d+1] {
			return fmt.Errorf("extents: dimension %d has min %g > max %g", d, bounds[2*d], bounds[2*d+1])
		}
	}
	copy(e.bounds, bounds)
	e.set = true
	return nil
}

// Merge widens e to include other. Merging empty extents is a no-op.
func (e *Extents) Merge(other *Extents) error {
	if !other.HasExtents() {
		return nil
	}
	if other.dim != e.dim {
		return fmt.Errorf("extents: cannot merge %d-d into %d-d", other.dim, e.dim)
	}
	if !e.set {
		copy(e.bounds, other.bounds)
		e.set = true
		return nil
	}
	for d := 0; d < e.dim; d++ {
		e.bounds[2*d] = math.Min(e.bounds[2*d], other.bounds[2*d])
		e.bounds[2*d+1] = math.Max(e.bounds[2*d+1], other.bounds[2*d+1])
	}
	return nil
}

// Bounds returns a copy of the min/max interleaved bounds, or nil when empty.
func (e *Extents) Bounds() []float64 {
	if !e.HasExtents() {
		return nil
	}
	return append([]float64(nil), e.bounds...)
}

// Range returns the (min, max) pair of dimension d.
func (e *Extents) Range(d int) (float64, float64) {
	return e.bounds[2*d], e.bounds[2*d+1]
}

// Clear resets e to the empty state.
func (e *Extents) Clear() {
	for i := range e.bounds {
		e.bounds[i] = 0
	}
	e.set = false
}

// Clone returns an independent copy.
func (e *Extents) Clone() *Extents {
	if e == nil {
		return nil
	}
	return &Extents{dim: e.dim, set: e.set, bounds: append([]float64(nil), e.bounds...)}
}

// Equal reports whether both extents are empty or hold identical bounds.
func (e *Extents) Equal(other *Extents) bool {
	if !e.HasExtents() || !other.HasExtents() {
		return e.HasExtents() == other.HasExtents()
	}
	return e.dim == other.dim && floats.Equal(e.bounds, other.bounds)
}

// String formats the bounds for logs.
func (e *Extents) String() string {
	if !e.HasExtents() {
		return "[]"
	}
	return fmt.Sprint(e.bounds)
}

// Merged folds observations into fresh extents of dimension dim.
func Merged(dim int, observations ...*Extents) (*Extents, error) {
	out := New(dim)
	for _, o := range observations {
		if err := out.Merge(o); err != nil {
			return nil, err
		}
	}
	return out, nil
}
