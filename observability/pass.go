package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PassContext carries observability state for one pipeline pass.
type PassContext struct {
	Pipeline      string
	Rank          int
	PipelineIndex int
	Pass          int
	StartTime     time.Time
	Metrics       *PipelineMetrics
}

// NewPassContext creates a pass context starting now. metrics may be nil.
func NewPassContext(pipeline string, rank, pipelineIndex, pass int, metrics *PipelineMetrics) *PassContext {
	return &PassContext{
		Pipeline:      pipeline,
		Rank:          rank,
		PipelineIndex: pipelineIndex,
		Pass:          pass,
		StartTime:     time.Now(),
		Metrics:       metrics,
	}
}

type passContextKey struct{}

// WithPassContext stores pc in ctx.
func WithPassContext(ctx context.Context, pc *PassContext) context.Context {
	return context.WithValue(ctx, passContextKey{}, pc)
}

// PassContextFromContext returns the pass context in ctx, or nil.
func PassContextFromContext(ctx context.Context) *PassContext {
	if pc, ok := ctx.Value(passContextKey{}).(*PassContext); ok {
		return pc
	}
	return nil
}

// MetricsFromContext returns the metrics of the pass in ctx, or nil.
func MetricsFromContext(ctx context.Context) *PipelineMetrics {
	if pc := PassContextFromContext(ctx); pc != nil {
		return pc.Metrics
	}
	return nil
}

// Start opens the pass span and stores pc in the returned context.
func (pc *PassContext) Start(ctx context.Context) (context.Context, trace.Span) {
	ctx, span := StartSpan(WithPassContext(ctx, pc), SpanPass)
	span.SetAttributes(
		attribute.String(AttrPipeline, pc.Pipeline),
		attribute.Int(AttrRank, pc.Rank),
		attribute.Int(AttrPipelineIndex, pc.PipelineIndex),
		attribute.Int(AttrPass, pc.Pass),
	)
	return ctx, span
}

// End closes the span and records the pass metric.
func (pc *PassContext) End(ctx context.Context, span trace.Span, err error) {
	duration := time.Since(pc.StartTime)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	}
	span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	span.End()
	pc.Metrics.RecordPass(ctx, pc.Pipeline, pc.Rank, status, duration)
}

// Duration returns the time elapsed since the pass started.
func (pc *PassContext) Duration() time.Duration {
	return time.Since(pc.StartTime)
}
