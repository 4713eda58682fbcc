package worker

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kbukum/meshflow/component"
)

const componentName = "worker"

var (
	_ component.Component     = (*Component)(nil)
	_ component.Describable   = (*Component)(nil)
	_ component.RouteProvider = (*Component)(nil)
)

// Component runs a Server under a component registry.
type Component struct {
	server *Server
}

// NewComponent wraps s.
func NewComponent(s *Server) *Component {
	return &Component{server: s}
}

func (c *Component) Name() string { return componentName }

func (c *Component) Start(ctx context.Context) error { return c.server.Start(ctx) }

func (c *Component) Stop(ctx context.Context) error { return c.server.Stop(ctx) }

// Health is degraded while every fetch slot is taken and unhealthy without
// any published dataset.
func (c *Component) Health(context.Context) component.Health {
	status, msg := c.server.state()
	return component.Health{Name: componentName, Status: status, Message: msg}
}

func (c *Component) Describe() component.Description {
	cfg := c.server.config
	return component.Description{
		Name:    "Worker",
		Type:    "worker",
		Details: fmt.Sprintf("%s:%d h2c, datasets %s", cfg.Host, cfg.Port, strings.Join(c.server.Datasets(), ",")),
		Port:    cfg.Port,
	}
}

// Routes lists the served routes, fetch first.
func (c *Component) Routes() []component.Route {
	info := c.server.engine.Routes()
	routes := make([]component.Route, 0, len(info))
	for _, r := range info {
		routes = append(routes, component.Route{Method: r.Method, Path: r.Path, Handler: handlerName(r.Handler)})
	}
	slices.SortFunc(routes, func(a, b component.Route) int {
		if a.Method != b.Method {
			return strings.Compare(b.Method, a.Method)
		}
		return strings.Compare(a.Path, b.Path)
	})
	return routes
}

// handlerName trims gin's handler path down to the method name, e.g.
// "github.com/kbukum/meshflow/worker.(*Server).fetch-fm" becomes "fetch".
func handlerName(full string) string {
	name := strings.TrimSuffix(full, "-fm")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
