package flow

import (
	"context"
	"time"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/observability"
)

// WithTracing wraps a Producer with OpenTelemetry span creation.
// Each update creates a span named after the stage kind.
func WithTracing(p Producer) Producer {
	return &tracingProducer{wrapped: wrapped{p}}
}

type wrapped struct{ inner Producer }

func (w wrapped) Name() string    { return w.inner.Name() }
func (w wrapped) Kind() StageKind { return w.inner.Kind() }

func (w wrapped) Negotiate(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	return w.inner.Negotiate(ctx, c)
}

func (w wrapped) StreamingCleanUp(ctx context.Context) {
	if c, ok := w.inner.(StreamingCleaner); ok {
		c.StreamingCleanUp(ctx)
	}
}

func (w wrapped) DynamicLoadBalanceCleanUp(ctx context.Context) {
	if c, ok := w.inner.(LoadBalanceCleaner); ok {
		c.DynamicLoadBalanceCleanUp(ctx)
	}
}

// Unwrap returns the decorated producer.
func (w wrapped) Unwrap() Producer { return w.inner }

type tracingProducer struct{ wrapped }

func (p *tracingProducer) Update(ctx context.Context, c *contract.Contract) (*dataobject.Object, error) {
	name := observability.SpanExecute
	if p.Kind().Descriptor().Role == RoleOriginating {
		name = observability.SpanFetch
	}
	ctx, span := observability.StartSpan(ctx, name)
	defer span.End()

	observability.SetSpanAttribute(ctx, observability.AttrStage, p.Name())
	observability.SetSpanAttribute(ctx, observability.AttrStageKind, p.Kind().String())
	observability.SetSpanAttribute(ctx, observability.AttrPipelineIndex, c.PipelineIndex())
	if ids := c.Domains(); ids != nil {
		observability.SetSpanAttribute(ctx, observability.AttrDomains, ids)
	}

	obj, err := p.inner.Update(ctx, c)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return obj, err
}

// WithLogging wraps a Producer with update logging.
func WithLogging(p Producer, log *logger.Logger) Producer {
	return &loggingProducer{wrapped: wrapped{p}, log: log.WithStage(p.Name())}
}

type loggingProducer struct {
	wrapped
	log *logger.Logger
}

func (p *loggingProducer) Update(ctx context.Context, c *contract.Contract) (*dataobject.Object, error) {
	start := time.Now()
	obj, err := p.inner.Update(ctx, c)
	fields := logger.Fields(
		logger.FieldPipelineIndex, c.PipelineIndex(),
		logger.FieldDuration, time.Since(start).String(),
	)
	if err != nil {
		fields[logger.FieldError] = err.Error()
		p.log.Error("stage failed", fields)
		return nil, err
	}
	fields["object"] = obj.String()
	p.log.Debug("stage completed", fields)
	return obj, nil
}
