package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("meshflow")
	if cfg.ServiceName != "meshflow" || cfg.SampleRate != 1.0 || !cfg.Insecure {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Endpoint != "localhost:4318" || cfg.SampleRate != 1.0 || cfg.MetricInterval != 15*time.Second {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{}, "meshflow", "dev", "development")
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestPipelineMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewPipelineMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	m.RecordPass(ctx, "extents", 0, "ok", 10*time.Millisecond)
	m.RecordFetch(ctx, "reader", 3)
	m.RecordDropped(ctx, "reader", 1)
	m.RecordDelivered(ctx, "query", 128)
	m.RecordStage(ctx, "scale", "execute", "ok", time.Millisecond)
	m.RecordError(ctx, "fragment", "reader")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}
	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			found[metric.Name] = true
		}
	}
	for _, name := range []string{
		"pipeline.pass.total", "pipeline.pass.duration", "pipeline.domains.fetched",
		"pipeline.fragments.dropped", "pipeline.bytes.delivered", "pipeline.stage.duration",
		"pipeline.error.total",
	} {
		if !found[name] {
			t.Errorf("metric %s not recorded", name)
		}
	}
}

func TestPipelineMetrics_NilIsNoop(t *testing.T) {
	var m *PipelineMetrics
	ctx := context.Background()
	m.RecordPass(ctx, "p", 0, "ok", time.Second)
	m.RecordFetch(ctx, "s", 1)
	m.RecordDropped(ctx, "s", 1)
	m.RecordDelivered(ctx, "s", 1)
	m.RecordStage(ctx, "s", "fetch", "ok", time.Second)
	m.RecordError(ctx, "k", "s")
}

func TestNewPipelineMetrics_Noop(t *testing.T) {
	if _, err := NewPipelineMetrics(noop.NewMeterProvider().Meter("test")); err != nil {
		t.Fatal(err)
	}
}

func TestPassContext_SpanAndContext(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	pc := NewPassContext("extents", 1, 4, 2, nil)
	ctx, span := pc.Start(context.Background())
	if PassContextFromContext(ctx) != pc {
		t.Fatal("pass context not stored")
	}
	if MetricsFromContext(ctx) != nil {
		t.Error("expected nil metrics")
	}
	pc.End(ctx, span, fmt.Errorf("boom"))

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != SpanPass {
		t.Fatalf("unexpected spans %v", spans)
	}
	attrs := map[string]bool{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = true
	}
	for _, key := range []string{AttrPipeline, AttrRank, AttrPipelineIndex, AttrPass, AttrStatus, AttrErrorMessage} {
		if !attrs[key] {
			t.Errorf("missing attribute %s", key)
		}
	}
}

func TestPassContextFromContext_NotSet(t *testing.T) {
	if PassContextFromContext(context.Background()) != nil {
		t.Error("expected nil")
	}
}

func TestSetSpanAttributeAndError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	ctx, span := StartSpan(context.Background(), SpanFetch)
	SetSpanAttribute(ctx, AttrStage, "reader")
	SetSpanAttribute(ctx, AttrDomains, []int{0, 2})
	SetSpanAttribute(ctx, "unsupported", struct{}{})
	SetSpanError(ctx, fmt.Errorf("transport down"))
	span.End()

	got := exporter.GetSpans()[0]
	if len(got.Events) == 0 {
		t.Error("expected error event")
	}
	if got.Status.Description != "transport down" {
		t.Errorf("unexpected status %+v", got.Status)
	}
}

func TestSetSpanAttribute_NoSpan(t *testing.T) {
	SetSpanAttribute(context.Background(), "key", "value")
	SetSpanError(context.Background(), fmt.Errorf("no span"))
}

func TestServiceHealth_AddComponent(t *testing.T) {
	sh := NewServiceHealth("worker", "1.0.0")
	sh.AddComponent(Health{Name: "handles", Status: HealthStatusUp})
	if sh.Status != HealthStatusUp {
		t.Errorf("expected up, got %s", sh.Status)
	}
	sh.AddComponent(Health{Name: "store", Status: HealthStatusDegraded})
	if sh.Status != HealthStatusDegraded {
		t.Errorf("expected degraded, got %s", sh.Status)
	}
	sh.AddComponent(Health{Name: "remote", Status: HealthStatusDown})
	sh.AddComponent(Health{Name: "cache", Status: HealthStatusDegraded})
	if sh.Status != HealthStatusDown {
		t.Errorf("degraded must not override down, got %s", sh.Status)
	}
}

func TestStatusOf(t *testing.T) {
	tests := map[string]HealthStatus{
		"healthy":   HealthStatusUp,
		"Degraded":  HealthStatusDegraded,
		"unhealthy": HealthStatusDown,
		"":          HealthStatusDown,
	}
	for in, want := range tests {
		if got := StatusOf(in); got != want {
			t.Errorf("StatusOf(%q) = %s, want %s", in, got, want)
		}
	}
}
