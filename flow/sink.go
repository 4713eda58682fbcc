package flow

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/observability"
)

// Consumer receives the final data object of every pass. It must not keep
// obj beyond the call unless it retains it.
type Consumer interface {
	Consume(ctx context.Context, obj *dataobject.Object, info PassInfo) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, obj *dataobject.Object, info PassInfo) error

func (fn ConsumerFunc) Consume(ctx context.Context, obj *dataobject.Object, info PassInfo) error {
	return fn(ctx, obj, info)
}

// StreamingCleaner is implemented by stages that keep state across the
// passes of a streamed execution.
type StreamingCleaner interface {
	StreamingCleanUp(ctx context.Context)
}

// LoadBalanceCleaner is implemented by stages that keep state across the
// passes of a dynamically balanced execution.
type LoadBalanceCleaner interface {
	DynamicLoadBalanceCleanUp(ctx context.Context)
}

// Sink terminates a pipeline.
type Sink struct {
	name     string
	consumer Consumer
	input    Producer
	expect   *dataobject.Kind
	log      *logger.Logger

	mu        sync.Mutex
	index     int
	delivered int64
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// ExpectKind makes the sink reject objects of any other kind.
func ExpectKind(k dataobject.Kind) SinkOption {
	return func(s *Sink) { s.expect = &k }
}

// WithSinkLogger sets the sink logger.
func WithSinkLogger(l *logger.Logger) SinkOption {
	return func(s *Sink) { s.log = l.WithStage(s.name) }
}

// NewSink creates a sink feeding consumer from input.
func NewSink(name string, consumer Consumer, input Producer, opts ...SinkOption) (*Sink, error) {
	if input == nil {
		return nil, errors.InvalidInput("input", "sink "+name+" has no input")
	}
	if consumer == nil {
		return nil, errors.InvalidInput("consumer", "sink "+name+" has no consumer")
	}
	s := &Sink{name: name, consumer: consumer, input: input, log: logger.GetGlobalLogger().WithStage(name)}
	if d, ok := consumer.(DatasetCarrier); ok {
		k := d.PayloadKind()
		s.expect = &k
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Sink) Name() string    { return s.name }
func (s *Sink) Kind() StageKind { return KindSink }
func (s *Sink) Role() Role      { return RoleTerminating }

// Input returns the stage the sink pulls from.
func (s *Sink) Input() Producer { return s.input }

// Consumer returns the consumer the sink delivers to.
func (s *Sink) Consumer() Consumer { return s.consumer }

// NextPipelineIndex reserves the index of a new logical execution.
func (s *Sink) NextPipelineIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index++
	return s.index
}

// PipelineIndex returns the last reserved index.
func (s *Sink) PipelineIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// LastDelivered returns the payload size of the last delivered object.
func (s *Sink) LastDelivered() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

// Negotiate reports the contract as it arrives at the source.
func (s *Sink) Negotiate(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	return s.input.Negotiate(ctx, c)
}

// Execute pulls data for c through the pipeline and hands it to the consumer.
// The object is released once the consumer returns.
func (s *Sink) Execute(ctx context.Context, c *contract.Contract) error {
	obj, err := s.input.Update(ctx, c)
	if err != nil {
		return err
	}
	defer obj.Release()

	if s.expect != nil && obj.Kind() != *s.expect && obj.Kind() != dataobject.KindEmpty {
		return errors.TypeMismatch(s.name, s.expect.String(), obj.Kind().String())
	}

	start := time.Now()
	info := PassInfoFrom(ctx)
	if info.Contract == nil {
		info.Contract = c
	}
	metrics := observability.MetricsFromContext(ctx)
	if err := s.consumer.Consume(ctx, obj, info); err != nil {
		metrics.RecordError(ctx, errors.KindOf(err).String(), s.name)
		metrics.RecordStage(ctx, s.name, "consume", "error", time.Since(start))
		return err
	}
	metrics.RecordStage(ctx, s.name, "consume", "ok", time.Since(start))
	metrics.RecordDelivered(ctx, s.name, obj.SizeBytes())
	s.mu.Lock()
	s.delivered = obj.SizeBytes()
	s.mu.Unlock()

	s.log.Debug("delivered", logger.Fields(
		logger.FieldPipelineIndex, info.PipelineIndex,
		logger.FieldPass, info.Pass,
		"bytes", obj.SizeBytes(),
	))
	return enterPhase(ctx, PhaseDelivered)
}

// StreamingCleanUp clears per-execution state from the consumer and every
// upstream stage.
func (s *Sink) StreamingCleanUp(ctx context.Context) {
	if c, ok := s.consumer.(StreamingCleaner); ok {
		c.StreamingCleanUp(ctx)
	}
	if c, ok := s.input.(StreamingCleaner); ok {
		c.StreamingCleanUp(ctx)
	}
}

// DynamicLoadBalanceCleanUp clears per-execution state from the consumer and
// every upstream stage.
func (s *Sink) DynamicLoadBalanceCleanUp(ctx context.Context) {
	if c, ok := s.consumer.(LoadBalanceCleaner); ok {
		c.DynamicLoadBalanceCleanUp(ctx)
	}
	if c, ok := s.input.(LoadBalanceCleaner); ok {
		c.DynamicLoadBalanceCleanUp(ctx)
	}
}
