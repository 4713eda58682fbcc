package filters

import (
	"context"
	"fmt"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/datatree"
)

// GhostRequirement asks upstream for ghost layers of at least width around
// every domain. With require set, fragments arriving with fewer layers fail.
type GhostRequirement struct {
	width   int
	require bool
}

// NewGhostRequirement creates the filter.
func NewGhostRequirement(width int, require bool) *GhostRequirement {
	return &GhostRequirement{width: max(width, 0), require: require}
}

// Width returns the requested ghost width.
func (g *GhostRequirement) Width() int { return g.width }

func (g *GhostRequirement) ModifyContract(_ context.Context, c *contract.Contract) (*contract.Contract, error) {
	return c.WithGhostWidth(g.width), nil
}

func (g *GhostRequirement) ExecuteData(_ context.Context, f datatree.Fragment) ([]datatree.Fragment, error) {
	if g.require && f.Mesh.GhostLayers < g.width {
		return nil, fmt.Errorf("has %d ghost layers, need %d", f.Mesh.GhostLayers, g.width)
	}
	return []datatree.Fragment{f}, nil
}
