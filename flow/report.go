package flow

import (
	"context"
	"slices"
	"sync"

	"github.com/kbukum/meshflow/logger"
)

// Warning is a recovered per-fragment failure.
type Warning struct {
	Stage  string
	Domain int
	Label  string
	Err    error
}

// Report collects warnings raised during one or more passes.
type Report struct {
	mu       sync.Mutex
	warnings []Warning
}

// NewReport creates an empty report.
func NewReport() *Report { return &Report{} }

// Warn records a warning.
func (r *Report) Warn(w Warning) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, w)
}

// Warnings returns a copy of the recorded warnings in order.
func (r *Report) Warnings() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.warnings)
}

// Len returns the number of warnings.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

// Domains returns the sorted, distinct domains that raised warnings.
func (r *Report) Domains() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, 0, len(r.warnings))
	for _, w := range r.warnings {
		ids = append(ids, w.Domain)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Reset drops all warnings.
func (r *Report) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = nil
}

type reportKey struct{}

// WithReport stores r in ctx.
func WithReport(ctx context.Context, r *Report) context.Context {
	return context.WithValue(ctx, reportKey{}, r)
}

// ReportFrom returns the report in ctx, or nil.
func ReportFrom(ctx context.Context) *Report {
	r, _ := ctx.Value(reportKey{}).(*Report)
	return r
}

// warn logs w and adds it to the report in ctx, if any.
func warn(ctx context.Context, log *logger.Logger, w Warning) {
	log.Warn("fragment dropped", logger.Fields(
		logger.FieldDomain, w.Domain,
		"label", w.Label,
		logger.FieldError, w.Err.Error(),
	))
	if r := ReportFrom(ctx); r != nil {
		r.Warn(w)
	}
}
