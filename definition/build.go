package definition

import (
	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/logger"
)

// Built is a pipeline instance ready to run on one rank.
type Built struct {
	Definition *Pipeline
	// Source is the undecorated source stage.
	Source flow.Producer
	// Tail is the last stage before the sink.
	Tail     flow.Producer
	Sink     *flow.Sink
	Contract *contract.Contract
}

// Builder turns definitions into stages.
type Builder struct {
	registry *Registry
	loader   Loader
	tracing  bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithTracing wraps every built stage in a tracing decorator.
func WithTracing(on bool) BuilderOption {
	return func(b *Builder) { b.tracing = on }
}

// NewBuilder creates a builder resolving components in registry and includes
// through loader. loader may be nil when no definition uses includes.
func NewBuilder(registry *Registry, loader Loader, opts ...BuilderOption) *Builder {
	b := &Builder{registry: registry, loader: loader}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build creates a fresh instance of p. Every call returns new stages, so
// each rank builds its own.
func (b *Builder) Build(p *Pipeline, env Env) (*Built, error) {
	if !p.Runnable() {
		return nil, errors.InvalidInput("pipeline", p.Name+" has no source or no sink")
	}
	req, err := contract.FromSpec(p.Contract)
	if err != nil {
		return nil, err
	}
	env = b.env(env)
	src, tail, err := b.producer(p, env)
	if err != nil {
		return nil, err
	}

	cf, err := b.registry.consumer(p.Sink.Component)
	if err != nil {
		return nil, err
	}
	consumer, err := cf(env, *p.Sink)
	if err != nil {
		return nil, err
	}
	sink, err := flow.NewSink(p.Sink.StageName(), consumer, tail, flow.WithSinkLogger(env.Logger))
	if err != nil {
		return nil, err
	}
	return &Built{Definition: p, Source: src, Tail: tail, Sink: sink, Contract: req}, nil
}

// BuildProducer creates the source and filters of p without a sink, for
// pipelines served to remote ranks. It returns the source and the last stage.
func (b *Builder) BuildProducer(p *Pipeline, env Env) (src, tail flow.Producer, err error) {
	if p.Source == nil {
		return nil, nil, errors.InvalidInput("pipeline", p.Name+" has no source")
	}
	return b.producer(p, b.env(env))
}

func (b *Builder) producer(p *Pipeline, env Env) (src, tail flow.Producer, err error) {
	factory, err := b.registry.source(p.Source.Component)
	if err != nil {
		return nil, nil, err
	}
	src, err = factory(env, *p.Source)
	if err != nil {
		return nil, nil, err
	}
	stack := map[string]bool{p.Name: true}
	tail, err = b.chain(env, p.Filters, b.decorate(env, src), stack)
	if err != nil {
		return nil, nil, err
	}
	return src, tail, nil
}

func (b *Builder) env(env Env) Env {
	if env.Logger == nil {
		env.Logger = logger.GetGlobalLogger()
	}
	env.Logger = env.Logger.WithRank(env.Rank)
	return env
}

// chain builds defs in order on top of input. stack holds the pipelines
// currently being expanded, for cycle detection.
func (b *Builder) chain(env Env, defs []StageDef, input flow.Producer, stack map[string]bool) (flow.Producer, error) {
	cur := input
	for _, def := range defs {
		var (
			next flow.Producer
			err  error
		)
		if def.Include != "" {
			next, err = b.include(env, def, cur, stack)
		} else {
			next, err = b.filter(env, def, cur)
		}
		if err != nil {
			return nil, err
		}
		cur = b.decorate(env, next)
	}
	return cur, nil
}

func (b *Builder) filter(env Env, def StageDef, input flow.Producer) (flow.Producer, error) {
	factory, err := b.registry.filter(def.Component)
	if err != nil {
		return nil, err
	}
	return factory(env, def, input)
}

func (b *Builder) include(env Env, def StageDef, input flow.Producer, stack map[string]bool) (flow.Producer, error) {
	if stack[def.Include] {
		return nil, errors.InvalidInput("include", "circular include of pipeline "+def.Include)
	}
	if b.loader == nil {
		return nil, errors.InvalidInput("include", "no loader for include "+def.Include)
	}
	sub, err := b.loader.Load(def.Include)
	if err != nil {
		return nil, err
	}
	stack[def.Include] = true
	defer delete(stack, def.Include)

	return flow.NewFacade(def.StageName(), input, func(in flow.Producer) (flow.Producer, error) {
		if len(sub.Filters) == 0 {
			return nil, errors.InvalidInput("include", "pipeline "+def.Include+" has no filters")
		}
		return b.chain(env, sub.Filters, in, stack)
	})
}

// decorate logs every update of p and, when enabled, traces it.
func (b *Builder) decorate(env Env, p flow.Producer) flow.Producer {
	if b.tracing {
		p = flow.WithTracing(p)
	}
	return flow.WithLogging(p, env.Logger)
}

// ParsedPolicy parses the stage's policy, defaulting to drop.
func (d StageDef) ParsedPolicy() (flow.Policy, error) {
	return flow.ParsePolicy(d.Policy)
}
