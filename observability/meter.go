package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/meshflow/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// PipelineMetrics holds the instruments recorded while passes execute.
// A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	passTotal        metric.Int64Counter
	passDuration     metric.Float64Histogram
	stageDuration    metric.Float64Histogram
	domainsFetched   metric.Int64Counter
	fragmentsDropped metric.Int64Counter
	bytesDelivered   metric.Int64Counter
	errorTotal       metric.Int64Counter
}

// NewPipelineMetrics creates the instruments on meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.passTotal, "pipeline.pass.total", "Completed pipeline passes"},
		{&m.domainsFetched, "pipeline.domains.fetched", "Domains fetched by sources"},
		{&m.fragmentsDropped, "pipeline.fragments.dropped", "Fragments dropped by the failure policy"},
		{&m.bytesDelivered, "pipeline.bytes.delivered", "Payload bytes handed to sinks"},
		{&m.errorTotal, "pipeline.error.total", "Errors by kind and stage"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}
	if m.passDuration, err = meter.Float64Histogram("pipeline.pass.duration",
		metric.WithDescription("Duration of pipeline passes in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating pipeline.pass.duration histogram: %w", err)
	}
	if m.stageDuration, err = meter.Float64Histogram("pipeline.stage.duration",
		metric.WithDescription("Duration of stage steps in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating pipeline.stage.duration histogram: %w", err)
	}
	return m, nil
}

// RecordPass records one completed or failed pass.
func (m *PipelineMetrics) RecordPass(ctx context.Context, pipeline string, rank int, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.Int("rank", rank),
		attribute.String("status", status),
	)
	m.passTotal.Add(ctx, 1, attrs)
	m.passDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStage records one stage step (fetch, execute, consume).
func (m *PipelineMetrics) RecordStage(ctx context.Context, stage, step, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("step", step),
		attribute.String("status", status),
	))
}

// RecordFetch counts the domains a source fetched.
func (m *PipelineMetrics) RecordFetch(ctx context.Context, stage string, domains int) {
	if m == nil {
		return
	}
	m.domainsFetched.Add(ctx, int64(domains), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordDropped counts fragments dropped by a stage.
func (m *PipelineMetrics) RecordDropped(ctx context.Context, stage string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.fragmentsDropped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordDelivered counts payload bytes handed to a sink.
func (m *PipelineMetrics) RecordDelivered(ctx context.Context, sink string, bytes int64) {
	if m == nil {
		return
	}
	m.bytesDelivered.Add(ctx, bytes, metric.WithAttributes(attribute.String("sink", sink)))
}

// RecordError records an error by kind and stage.
func (m *PipelineMetrics) RecordError(ctx context.Context, kind, stage string) {
	if m == nil {
		return
	}
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("stage", stage),
	))
}
