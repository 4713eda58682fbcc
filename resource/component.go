package resource

import (
	"context"
	"fmt"

	"github.com/kbukum/meshflow/component"
)

// Component configures the default manager on Start and resets it on Stop.
type Component struct {
	*component.Lazy
	cfg Config
}

// NewComponent creates the handle manager component for the registry.
func NewComponent(cfg Config) *Component {
	c := &Component{cfg: cfg}
	c.Lazy = component.NewLazy("resource", func(context.Context) error {
		return Configure(c.cfg)
	}).WithCloser(Reset).WithHealthCheck(func(context.Context) error {
		m := Default()
		if s := m.Stats(); s.Open > m.Limit() {
			return fmt.Errorf("%d handles open, %d in use, limit %d", s.Open, s.InUse, m.Limit())
		}
		return nil
	})
	return c
}

// Describe returns the startup summary.
func (c *Component) Describe() component.Description {
	cfg := c.cfg
	cfg.ApplyDefaults()
	return component.Description{
		Name:    "Handle manager",
		Type:    "resource",
		Details: fmt.Sprintf("max_open=%d", cfg.MaxOpenHandles),
	}
}

var _ component.Component = (*Component)(nil)
