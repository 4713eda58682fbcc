package filters

import (
	"context"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/errors"
)

// Scale multiplies point coordinates. A single factor applies to every axis;
// otherwise there is one factor per axis.
type Scale struct {
	factors []float64
}

// NewScale creates a geometric scale filter. Zero factors are rejected since
// they collapse the mesh.
func NewScale(factors ...float64) (*Scale, error) {
	if len(factors) == 0 || len(factors) > 3 {
		return nil, errors.InvalidInput("factors", fmt.Sprintf("need 1 to 3 factors, got %d", len(factors)))
	}
	if slices.Contains(factors, 0) {
		return nil, errors.InvalidInput("factors", "factors must be non-zero")
	}
	return &Scale{factors: slices.Clone(factors)}, nil
}

func (s *Scale) ExecuteData(_ context.Context, f datatree.Fragment) ([]datatree.Fragment, error) {
	dim := f.Mesh.Dimension
	factors := s.factors
	if len(factors) == 1 {
		factors = slices.Repeat(factors, dim)
	}
	if len(factors) != dim {
		return nil, fmt.Errorf("%d factors for a %d-d mesh", len(factors), dim)
	}
	mesh := *f.Mesh
	mesh.Points = make([][]float64, len(f.Mesh.Points))
	for i, p := range f.Mesh.Points {
		mesh.Points[i] = make([]float64, dim)
		floats.MulTo(mesh.Points[i], p, factors)
	}
	f.Mesh = &mesh
	return []datatree.Fragment{f}, nil
}
