package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/meshflow/component"
	"github.com/kbukum/meshflow/config"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/observability"
	"github.com/kbukum/meshflow/resource"
	"github.com/kbukum/meshflow/version"
)

// App is a meshflow process with uniform lifecycle management.
type App struct {
	Name       string
	Version    string
	Cfg        *config.Config
	Components *component.Registry
	Logger     *logger.Logger
	Metrics    *observability.PipelineMetrics
	Summary    *Summary

	gracefulTimeout time.Duration
	summaryOut      io.Writer
	telemetry       func(context.Context) error

	onStart []Hook
	onReady []Hook
	onStop  []Hook
}

// NewApp creates an application from a loaded configuration. It applies
// defaults, validates the config, initializes the logger and registers the
// shared resource manager.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	o := resolveOptions(opts)
	ver := cfg.Version
	if ver == "" {
		ver = version.GetShortVersion()
	}
	app := &App{
		Name:            cfg.Name,
		Version:         ver,
		Cfg:             cfg,
		gracefulTimeout: 15 * time.Second,
		summaryOut:      os.Stderr,
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}
	if o.summaryOut != nil {
		app.summaryOut = o.summaryOut
	}
	if o.logger != nil {
		app.Logger = o.logger
	} else {
		logger.Init(cfg.Logging, cfg.Name)
		app.Logger = logger.GetGlobalLogger()
	}

	metrics, err := observability.NewPipelineMetrics(observability.Meter(cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("pipeline metrics: %w", err)
	}
	app.Metrics = metrics
	app.Components = component.NewRegistry(app.Logger)
	if err := app.Components.Register(resource.NewComponent(cfg.Resource)); err != nil {
		return nil, err
	}
	app.Summary = NewSummary(app.Name, app.Version)
	return app, nil
}

// RegisterComponent adds a component to the application's registry.
func (a *App) RegisterComponent(c component.Component) error {
	return a.Components.Register(c)
}

// ReadyCheck verifies that all registered components are healthy.
func (a *App) ReadyCheck(ctx context.Context) error {
	var unhealthy []string
	for _, h := range a.Components.HealthAll(ctx) {
		if h.Status != component.StatusHealthy {
			detail := h.Name + "=" + string(h.Status)
			if h.Message != "" {
				detail += "(" + h.Message + ")"
			}
			unhealthy = append(unhealthy, detail)
		}
	}
	if len(unhealthy) > 0 {
		return fmt.Errorf("unhealthy components: %v", unhealthy)
	}
	return nil
}

// HealthChecks reports every registered component for monitoring endpoints.
func (a *App) HealthChecks(ctx context.Context) []observability.Health {
	results := a.Components.HealthAll(ctx)
	out := make([]observability.Health, 0, len(results))
	for _, h := range results {
		out = append(out, observability.Health{
			Name:    h.Name,
			Status:  observability.StatusOf(string(h.Status)),
			Message: h.Message,
		})
	}
	return out
}

// Run starts the application and blocks until a shutdown signal or ctx is
// done, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.startup(ctx); err != nil {
		_ = a.stop()
		return err
	}
	a.Logger.Info("Application ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)
	return a.stop()
}

// RunTask starts the application, runs task and shuts down when the task
// returns. The task's context is canceled on SIGINT or SIGTERM.
func (a *App) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.startup(ctx); err != nil {
		_ = a.stop()
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			a.Logger.Info("Received signal, canceling task", logger.Fields("signal", sig.String()))
			cancel()
		case <-taskCtx.Done():
		}
	}()

	taskErr := task(taskCtx)
	if stopErr := a.stop(); stopErr != nil && taskErr == nil {
		return stopErr
	}
	return taskErr
}

func (a *App) startup(ctx context.Context) error {
	start := time.Now()
	a.Logger.Info("Starting application", logger.Fields("name", a.Name, "version", a.Version))

	shutdown, err := observability.Setup(ctx, a.Cfg.Observability, a.Name, a.Version, a.Cfg.Environment)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.telemetry = shutdown

	if err := a.Components.StartAll(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	if err := runHooks(ctx, a.onStart); err != nil {
		return fmt.Errorf("onStart hook failed: %w", err)
	}
	if err := a.ReadyCheck(ctx); err != nil {
		a.Logger.Warn("Ready check reported issues", logger.Fields(logger.FieldError, err.Error()))
	}
	if err := runHooks(ctx, a.onReady); err != nil {
		return fmt.Errorf("onReady hook failed: %w", err)
	}

	a.Summary.SetStartupDuration(time.Since(start))
	a.Summary.Display(ctx, a.summaryOut, a.Components)
	return nil
}

// WaitForSignal blocks until an interrupt or term signal, or until ctx is done.
func (a *App) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("Received shutdown signal", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		a.Logger.Info("Context canceled, shutting down")
		return nil
	}
}

// stop runs the stop hooks, stops every component in reverse order and
// flushes telemetry, all within the graceful timeout.
func (a *App) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var errs []error
	if err := runHooks(ctx, a.onStop); err != nil {
		a.Logger.Error("OnStop hook error", logger.Fields(logger.FieldError, err.Error()))
		errs = append(errs, err)
	}
	if err := a.Components.StopAll(ctx); err != nil {
		a.Logger.Error("Shutdown completed with errors", logger.Fields(logger.FieldError, err.Error()))
		errs = append(errs, err)
	}
	if a.telemetry != nil {
		if err := a.telemetry(ctx); err != nil {
			a.Logger.Warn("Telemetry flush failed", logger.Fields(logger.FieldError, err.Error()))
		}
		a.telemetry = nil
	}
	a.Logger.Debug("Application shutdown complete")
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
