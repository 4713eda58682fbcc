// Package component defines lifecycle-managed services of a meshflow process.
//
// The worker endpoint, the handle manager and the telemetry exporters are
// components: they are started in registration order before pipelines run
// and stopped in reverse order on shutdown.
package component
