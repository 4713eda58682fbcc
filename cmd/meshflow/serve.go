package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/kbukum/meshflow/config"
	"github.com/kbukum/meshflow/definition"
	"github.com/kbukum/meshflow/worker"
)

func serveCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "configuration file")
	port := fs.Int("port", 0, "listen port (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("serve: expected at least one dataset=pipeline argument")
	}

	a, err := newApp(*configFile, stderr, func(cfg *config.Config) {
		if *port > 0 {
			cfg.Worker.Port = *port
		}
	})
	if err != nil {
		return err
	}

	srv := worker.New(a.Cfg.Worker, worker.WithLogger(a.Logger), worker.WithHealthChecks(a.HealthChecks))
	for _, arg := range fs.Args() {
		if err := a.publish(srv, arg); err != nil {
			return err
		}
	}
	if err := a.RegisterComponent(worker.NewComponent(srv)); err != nil {
		return err
	}
	a.OnReady(func(context.Context) error {
		_, err := fmt.Fprintf(stdout, "serving %s on %s\n", strings.Join(srv.Datasets(), ", "), srv.Addr())
		return err
	})
	return a.Run(ctx)
}

// publish builds the producer side of the pipeline named in a
// dataset=pipeline argument and serves it. A bare pipeline reference is
// served under the pipeline's name.
func (a *app) publish(srv *worker.Server, arg string) error {
	dataset, ref, ok := strings.Cut(arg, "=")
	if !ok {
		ref, dataset = dataset, ""
	}
	p, loader, err := a.pipeline(ref)
	if err != nil {
		return err
	}
	if dataset == "" {
		dataset = p.Name
	}
	builder := definition.NewBuilder(a.registry, loader, definition.WithTracing(a.Cfg.Engine.Tracing))
	_, tail, err := builder.BuildProducer(p, definition.Env{Logger: a.Logger})
	if err != nil {
		return err
	}
	srv.Serve(dataset, tail)
	a.Summary.TrackPipeline(dataset + " = " + p.Name)
	return nil
}
