// Package bootstrap orchestrates the lifecycle of a meshflow process.
//
// An App owns the loaded configuration, the global logger, telemetry and the
// component registry. Long-running processes call Run, which blocks until a
// shutdown signal; finite work such as executing one pipeline goes through
// RunTask.
//
//	app, err := bootstrap.NewApp(cfg)
//	app.RegisterComponent(worker.NewComponent(srv))
//	app.Run(ctx)
package bootstrap
