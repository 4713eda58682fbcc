package main

import (
	"io"
	"path/filepath"

	"github.com/kbukum/meshflow/bootstrap"
	"github.com/kbukum/meshflow/config"
	"github.com/kbukum/meshflow/definition"
	"github.com/kbukum/meshflow/filters"
	"github.com/kbukum/meshflow/sinks"
	"github.com/kbukum/meshflow/sources"
)

// app is the process state shared by the commands.
type app struct {
	*bootstrap.App
	registry *definition.Registry
}

func newRegistry() *definition.Registry {
	r := definition.NewRegistry()
	sources.Register(r)
	filters.Register(r)
	sinks.Register(r)
	return r
}

// newApp loads the configuration, lets tune adjust it from flags and
// bootstraps the process. The startup summary goes to summary.
func newApp(configFile string, summary io.Writer, tune func(*config.Config)) (*app, error) {
	var opts []config.LoaderOption
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	cfg, err := config.Load("meshflow", opts...)
	if err != nil {
		return nil, err
	}
	if tune != nil {
		tune(cfg)
	}
	b, err := bootstrap.NewApp(cfg, bootstrap.WithSummaryOutput(summary))
	if err != nil {
		return nil, err
	}
	return &app{App: b, registry: newRegistry()}, nil
}

// pipeline resolves ref as a definition file when it has a YAML extension
// and as a name in the configured directories otherwise. Includes of a file
// are looked up next to it first.
func (a *app) pipeline(ref string) (*definition.Pipeline, definition.Loader, error) {
	switch filepath.Ext(ref) {
	case ".yaml", ".yml":
		p, err := definition.LoadFile(ref)
		if err != nil {
			return nil, nil, err
		}
		dirs := append([]string{filepath.Dir(ref)}, a.Cfg.Pipelines.Dirs...)
		return p, definition.NewFileLoader(dirs...), nil
	}
	loader := definition.NewFileLoader(a.Cfg.Pipelines.Dirs...)
	p, err := loader.Load(ref)
	if err != nil {
		return nil, nil, err
	}
	return p, loader, nil
}
