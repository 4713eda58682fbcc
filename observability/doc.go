// Package observability provides OpenTelemetry tracing and metrics for
// pipeline passes.
//
// Tracing and metrics export:
//
//	shutdown, err := observability.Setup(ctx, cfg.Observability, "meshflow", version.Version, "production")
//	defer shutdown(ctx)
//
// Per-pass instrumentation:
//
//	metrics, _ := observability.NewPipelineMetrics(observability.Meter("meshflow"))
//	pc := observability.NewPassContext("extents", rank, index, pass, metrics)
//	ctx, span := pc.Start(ctx)
//	defer pc.End(ctx, span, err)
//
// Health reports served by workers:
//
//	health := observability.NewServiceHealth("meshflow-worker", version.GetShortVersion())
//	health.AddComponent(observability.Health{Name: "fetch", Status: observability.StatusOf("healthy")})
package observability
