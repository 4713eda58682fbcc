package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kbukum/meshflow/component"
)

// Summary prints what a process started with.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	pipelines       []string
}

// NewSummary creates a new startup summary.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// TrackPipeline records a pipeline the process runs or serves.
func (s *Summary) TrackPipeline(name string) {
	s.pipelines = append(s.pipelines, name)
}

// Display writes the summary, including the live health of registry, to w.
func (s *Summary) Display(ctx context.Context, w io.Writer, registry *component.Registry) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "\n%s %s started in %.2fs\n", s.serviceName, s.version, s.startupDuration.Seconds())

	if registry != nil {
		descs := registry.Describe()
		if len(descs) > 0 {
			fmt.Fprintf(w, "\nComponents\n")
			for i, d := range descs {
				details := d.Details
				if d.Port > 0 {
					details = fmt.Sprintf("%s (:%d)", details, d.Port)
				}
				fmt.Fprintf(w, "   %s %s [%s]: %s\n", branch(i, len(descs)), d.Name, d.Type, details)
			}
		}

		routes := registry.Routes()
		if len(routes) > 0 {
			fmt.Fprintf(w, "\nRoutes (%d)\n", len(routes))
			for i, r := range routes {
				fmt.Fprintf(w, "   %s %-7s %s -> %s\n", branch(i, len(routes)), r.Method, r.Path, r.Handler)
			}
		}
	}

	if len(s.pipelines) > 0 {
		fmt.Fprintf(w, "\nPipelines\n")
		for i, p := range s.pipelines {
			fmt.Fprintf(w, "   %s %s\n", branch(i, len(s.pipelines)), p)
		}
	}

	if registry != nil {
		health := registry.HealthAll(ctx)
		if len(health) > 0 {
			fmt.Fprintf(w, "\nHealth\n")
			for i, h := range health {
				msg := ""
				if h.Message != "" {
					msg = " (" + h.Message + ")"
				}
				fmt.Fprintf(w, "   %s %s: %s%s\n", branch(i, len(health)), h.Name, strings.ToLower(string(h.Status)), msg)
			}
		}
	}
	fmt.Fprintln(w)
}

func branch(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}
