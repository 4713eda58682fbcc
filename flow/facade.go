package flow

import (
	"context"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/errors"
)

// Facade presents a private chain of stages as a single filter. Its
// contract rewrite and its execution are those of the chain as a whole.
type Facade struct {
	name  string
	input Producer
	inner Producer
}

// NewFacade builds the inner chain with build, which receives the facade's
// input and returns the tail of the chain.
func NewFacade(name string, input Producer, build func(input Producer) (Producer, error)) (*Facade, error) {
	if input == nil {
		return nil, errors.InvalidInput("input", "facade "+name+" has no input")
	}
	inner, err := build(input)
	if err != nil {
		return nil, err
	}
	if inner == nil {
		return nil, errors.InvalidInput("build", "facade "+name+" built no stages")
	}
	return &Facade{name: name, input: input, inner: inner}, nil
}

func (f *Facade) Name() string    { return f.name }
func (f *Facade) Kind() StageKind { return KindFacade }
func (f *Facade) Role() Role      { return RoleIntermediate }

// Input returns the stage feeding the inner chain.
func (f *Facade) Input() Producer { return f.input }

// Inner returns the tail of the inner chain.
func (f *Facade) Inner() Producer { return f.inner }

func (f *Facade) Negotiate(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	return f.inner.Negotiate(ctx, c)
}

func (f *Facade) Update(ctx context.Context, c *contract.Contract) (*dataobject.Object, error) {
	return f.inner.Update(ctx, c)
}

func (f *Facade) StreamingCleanUp(ctx context.Context) {
	if c, ok := f.inner.(StreamingCleaner); ok {
		c.StreamingCleanUp(ctx)
	}
}

func (f *Facade) DynamicLoadBalanceCleanUp(ctx context.Context) {
	if c, ok := f.inner.(LoadBalanceCleaner); ok {
		c.DynamicLoadBalanceCleanUp(ctx)
	}
}
