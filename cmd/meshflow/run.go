package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"slices"

	"github.com/bytedance/sonic"

	"github.com/kbukum/meshflow/config"
	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/definition"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/loadbalance"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/sinks"
)

// runReport is what the run command prints.
type runReport struct {
	Pipeline string         `json:"pipeline"`
	Mode     string         `json:"mode"`
	Ranks    []rankReport   `json:"ranks"`
	Warnings []string       `json:"warnings,omitempty"`
	Result   map[string]any `json:"result,omitempty"`
}

type rankReport struct {
	Rank    int   `json:"rank"`
	Passes  int   `json:"passes"`
	Domains []int `json:"domains"`
}

func runCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "configuration file")
	ranks := fs.Int("ranks", 0, "number of in-process ranks (default from config)")
	mode := fs.String("mode", "", "scheduling mode: static, streaming or dynamic")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run: expected one pipeline, got %d", fs.NArg())
	}

	a, err := newApp(*configFile, stderr, func(cfg *config.Config) {
		if *ranks > 0 {
			cfg.Engine.Ranks = *ranks
		}
	})
	if err != nil {
		return err
	}

	var report *runReport
	err = a.RunTask(ctx, func(ctx context.Context) error {
		var err error
		report, err = a.run(ctx, fs.Arg(0), *mode)
		return err
	})
	if err != nil {
		return err
	}
	out, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(out))
	return err
}

// schedule picks the scheduler for p. The pipeline's own schedule wins over
// the engine section; an explicit mode overrides both.
func (a *app) schedule(p *definition.Pipeline, mode string) (func() (loadbalance.Scheduler, error), int, error) {
	if mode != "" {
		if _, err := loadbalance.ParseMode(mode); err != nil {
			return nil, 0, err
		}
	}
	maxPasses := a.Cfg.Engine.MaxPasses
	if p.Schedule.MaxPasses > 0 {
		maxPasses = p.Schedule.MaxPasses
	}
	if p.Schedule.Mode != "" {
		def := p.Schedule
		if mode != "" {
			def.Mode = mode
		}
		return func() (loadbalance.Scheduler, error) { return def.Scheduler(nil) }, maxPasses, nil
	}
	engine := a.Cfg.Engine
	if mode != "" {
		engine.Mode = mode
		engine.ApplyDefaults()
		if err := engine.Validate(); err != nil {
			return nil, 0, errors.InvalidInput("mode", err.Error())
		}
	}
	return func() (loadbalance.Scheduler, error) { return engine.Scheduler(nil) }, maxPasses, nil
}

func (a *app) run(ctx context.Context, ref, mode string) (*runReport, error) {
	p, loader, err := a.pipeline(ref)
	if err != nil {
		return nil, err
	}
	if !p.Runnable() {
		return nil, errors.InvalidInput("pipeline", p.Name+" has no source or no sink")
	}
	newScheduler, maxPasses, err := a.schedule(p, mode)
	if err != nil {
		return nil, err
	}

	builder := definition.NewBuilder(a.registry, loader, definition.WithTracing(a.Cfg.Engine.Tracing))
	tracker := dataobject.NewTracker()
	built := make([]*definition.Built, a.Cfg.Engine.Ranks)
	build := func(rank int, comm loadbalance.Communicator) (*loadbalance.Controller, error) {
		b, err := builder.Build(p, definition.Env{Rank: rank, Logger: a.Logger, Tracker: tracker})
		if err != nil {
			return nil, err
		}
		sched, err := newScheduler()
		if err != nil {
			return nil, err
		}
		built[rank] = b
		return loadbalance.NewController(p.Name, b.Sink,
			loadbalance.WithCommunicator(comm),
			loadbalance.WithScheduler(sched),
			loadbalance.WithMaxPasses(maxPasses),
			loadbalance.WithMetrics(a.Metrics),
			loadbalance.WithLogger(a.Logger.WithRank(rank)),
		), nil
	}

	req, err := contract.FromSpec(p.Contract)
	if err != nil {
		return nil, err
	}
	results, err := loadbalance.RunGroup(ctx, a.Cfg.Engine.Ranks, build, req, p.Domains)
	defer release(built)
	if err != nil {
		return nil, err
	}

	report := &runReport{Pipeline: p.Name, Mode: a.modeOf(p, mode)}
	for _, res := range results {
		if res == nil {
			continue
		}
		report.Ranks = append(report.Ranks, rankReport{Rank: res.Rank, Passes: res.Passes, Domains: res.Domains()})
	}
	for _, w := range loadbalance.Warnings(results) {
		report.Warnings = append(report.Warnings, formatWarning(w))
	}
	if built[0] != nil {
		if s, ok := built[0].Sink.Consumer().(sinks.Summarizer); ok {
			report.Result = s.Summary()
		}
	}
	a.Logger.Info("pipeline finished", logger.Fields(
		"pipeline", p.Name,
		"ranks", len(report.Ranks),
		"warnings", len(report.Warnings),
	))
	return report, nil
}

func (a *app) modeOf(p *definition.Pipeline, mode string) string {
	switch {
	case mode != "":
		return mode
	case p.Schedule.Mode != "":
		return p.Schedule.Mode
	}
	return a.Cfg.Engine.Mode
}

func formatWarning(w flow.Warning) string {
	if w.Domain >= 0 {
		return fmt.Sprintf("%s: domain %d: %v", w.Stage, w.Domain, w.Err)
	}
	return fmt.Sprintf("%s: %v", w.Stage, w.Err)
}

// release drops the objects collector sinks still hold.
func release(built []*definition.Built) {
	for _, b := range slices.DeleteFunc(slices.Clone(built), func(b *definition.Built) bool { return b == nil }) {
		if c, ok := b.Sink.Consumer().(*sinks.Collector); ok {
			c.Release()
		}
	}
}
