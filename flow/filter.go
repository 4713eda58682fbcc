package flow

import (
	"context"
	"time"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/extents"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/observability"
)

// Producer is anything a downstream stage can pull data from.
type Producer interface {
	Name() string
	Kind() StageKind
	// Negotiate rewrites c on its way upstream and returns the contract as it
	// arrives at the originating source, without moving data.
	Negotiate(ctx context.Context, c *contract.Contract) (*contract.Contract, error)
	// Update produces the data object satisfying c. The caller owns one
	// reference of the result.
	Update(ctx context.Context, c *contract.Contract) (*dataobject.Object, error)
}

// LeafTransformer transforms one fragment at a time. Returning no fragments
// drops the leaf; returning several splits it.
type LeafTransformer interface {
	ExecuteData(ctx context.Context, f datatree.Fragment) ([]datatree.Fragment, error)
}

// ObjectTransformer transforms a whole data object. The returned object is
// owned by the caller; returning in itself is allowed.
type ObjectTransformer interface {
	Execute(ctx context.Context, in *dataobject.Object, c *contract.Contract) (*dataobject.Object, error)
}

// ContractModifier adds the filter's own needs to the contract. The result
// must request at least everything the input contract requests.
type ContractModifier interface {
	ModifyContract(ctx context.Context, c *contract.Contract) (*contract.Contract, error)
}

// PreExecutor runs once before the transform of every pass.
type PreExecutor interface {
	PreExecute(ctx context.Context, c *contract.Contract) error
}

// PostExecutor runs once after the transform of every pass.
type PostExecutor interface {
	PostExecute(ctx context.Context, out *dataobject.Object) error
}

// AttributeUpdater adjusts output attributes after the transform.
type AttributeUpdater interface {
	UpdateAttributes(a dataobject.Attributes) dataobject.Attributes
}

// Cardinality is how many output fragments one input fragment may yield.
type Cardinality int

const (
	OneToOne Cardinality = iota
	OneToMany
	ManyToOne
)

// CardinalityDeclarer is implemented by leaf transformers that split fragments.
type CardinalityDeclarer interface {
	Cardinality() Cardinality
}

// Filter is an intermediate stage.
type Filter struct {
	name   string
	impl   any
	leaf   LeafTransformer
	whole  ObjectTransformer
	input  Producer
	policy Policy
	card   Cardinality
	log    *logger.Logger
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithFilterPolicy overrides the failure policy for per-fragment errors.
func WithFilterPolicy(p Policy) FilterOption {
	return func(f *Filter) { f.policy = p }
}

// WithFilterLogger sets the filter logger.
func WithFilterLogger(l *logger.Logger) FilterOption {
	return func(f *Filter) { f.log = l.WithStage(f.name) }
}

// NewFilter wraps impl, which must implement LeafTransformer or
// ObjectTransformer, into a stage reading from input.
func NewFilter(name string, impl any, input Producer, opts ...FilterOption) (*Filter, error) {
	if input == nil {
		return nil, errors.InvalidInput("input", "filter "+name+" has no input")
	}
	f := &Filter{
		name:   name,
		impl:   impl,
		input:  input,
		policy: PolicyDrop,
		log:    logger.GetGlobalLogger().WithStage(name),
	}
	switch t := impl.(type) {
	case ObjectTransformer:
		f.whole = t
	case LeafTransformer:
		f.leaf = t
	default:
		return nil, errors.InvalidInput("impl", "filter "+name+" implements neither ExecuteData nor Execute")
	}
	if d, ok := impl.(PolicyDeclarer); ok {
		f.policy = d.FailurePolicy()
	}
	if d, ok := impl.(CardinalityDeclarer); ok {
		f.card = d.Cardinality()
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Filter) Name() string    { return f.name }
func (f *Filter) Kind() StageKind { return KindFilter }
func (f *Filter) Role() Role      { return RoleIntermediate }

// Input returns the upstream stage.
func (f *Filter) Input() Producer { return f.input }

// Policy returns the failure policy applied to per-fragment errors.
func (f *Filter) Policy() Policy { return f.policy }

// Contract rewrites c into the contract this filter's input must satisfy.
func (f *Filter) Contract(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	m, ok := f.impl.(ContractModifier)
	if !ok {
		return c.CountFilter(), nil
	}
	out, err := m.ModifyContract(ctx, c.Clone())
	if err != nil {
		if _, ok := errors.AsAppError(err); ok {
			return nil, err
		}
		return nil, errors.IncompatibleContract(f.name, err.Error())
	}
	if out == nil {
		return nil, errors.IncompatibleContract(f.name, "modifier returned no contract")
	}
	if missing := out.Missing(c); len(missing) > 0 {
		return nil, errors.IncompatibleContract(f.name, "drops requirements").WithDetail("missing", missing)
	}
	return out.CountFilter(), nil
}

// Negotiate rewrites c and passes it upstream.
func (f *Filter) Negotiate(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	up, err := f.Contract(ctx, c)
	if err != nil {
		return nil, err
	}
	return f.input.Negotiate(ctx, up)
}

// Update rewrites c, pulls the input and transforms it.
func (f *Filter) Update(ctx context.Context, c *contract.Contract) (*dataobject.Object, error) {
	up, err := f.Contract(ctx, c)
	if err != nil {
		return nil, err
	}
	in, err := f.input.Update(ctx, up)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	start := time.Now()
	out, err := f.run(ctx, in, up)
	metrics := observability.MetricsFromContext(ctx)
	if err != nil {
		metrics.RecordError(ctx, errors.KindOf(err).String(), f.name)
		metrics.RecordStage(ctx, f.name, "execute", "error", time.Since(start))
		return nil, err
	}
	metrics.RecordStage(ctx, f.name, "execute", "ok", time.Since(start))
	return out, nil
}

func (f *Filter) run(ctx context.Context, in *dataobject.Object, c *contract.Contract) (*dataobject.Object, error) {
	if pre, ok := f.impl.(PreExecutor); ok {
		if err := pre.PreExecute(ctx, c); err != nil {
			return nil, err
		}
	}

	var (
		out *dataobject.Object
		err error
	)
	switch {
	case in.IsEmpty() && f.leaf != nil:
		out = in.Retain()
	case f.whole != nil:
		out, err = f.whole.Execute(ctx, in, c)
		if err == nil && out == nil {
			err = errors.Internal(nil).WithDetail("stage", f.name)
		}
	default:
		out, err = f.executeLeaves(ctx, in)
	}
	if err != nil {
		return nil, err
	}
	if out == in {
		out = in.Retain()
	}

	if post, ok := f.impl.(PostExecutor); ok {
		if err := post.PostExecute(ctx, out); err != nil {
			out.Release()
			return nil, err
		}
	}
	return out, nil
}

// executeLeaves maps every fragment through the leaf transformer. Fragment
// failures are dropped with a warning unless the policy says otherwise.
func (f *Filter) executeLeaves(ctx context.Context, in *dataobject.Object) (*dataobject.Object, error) {
	tree, err := in.Tree()
	if err != nil {
		return nil, errors.TypeMismatch(f.name, dataobject.KindMeshCollection.String(), in.Kind().String())
	}
	dropped := 0
	out, err := tree.Map(func(frag datatree.Fragment) ([]datatree.Fragment, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := f.leaf.ExecuteData(ctx, frag)
		if err != nil {
			if _, ok := errors.AsAppError(err); !ok && ctx.Err() == nil {
				err = errors.FragmentFailed(f.name, frag.Domain, err)
			}
			if !recoverable(f.policy, err) {
				return nil, err
			}
			dropped++
			warn(ctx, f.log, Warning{Stage: f.name, Domain: frag.Domain, Label: frag.Label, Err: err})
			return nil, nil
		}
		if f.card == OneToOne && len(res) > 1 {
			return nil, errors.Internal(nil).
				WithDetail("stage", f.name).
				WithDetail("reason", "one-to-one transform produced several fragments")
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	observability.MetricsFromContext(ctx).RecordDropped(ctx, f.name, dropped)
	if out == tree {
		return in.Retain(), nil
	}

	attrs := in.Attributes()
	recompute(&attrs, out)
	if u, ok := f.impl.(AttributeUpdater); ok {
		attrs = u.UpdateAttributes(attrs)
	}
	return in.DeriveMesh(f.name, out, attrs), nil
}

// recompute refreshes the extents in attrs from the leaves of tree.
func recompute(attrs *dataobject.Attributes, tree *datatree.Tree) {
	leaves := tree.Leaves()
	dim := attrs.SpatialDimension
	if dim == 0 && len(leaves) > 0 {
		dim = leaves[0].Mesh.Dimension
		attrs.SpatialDimension = dim
	}
	spatial := extents.New(dim)
	for _, f := range leaves {
		if e, err := f.Mesh.SpatialExtents(); err == nil {
			_ = spatial.Merge(e)
		}
	}
	attrs.SpatialExtents = spatial

	data := make(map[string]*extents.Extents)
	for _, v := range attrs.Variables {
		e := extents.New(1)
		for _, f := range leaves {
			_ = e.Merge(f.Mesh.DataExtents(v.Name))
		}
		data[v.Name] = e
	}
	for _, f := range leaves {
		for name := range f.Mesh.Fields {
			if _, ok := data[name]; ok {
				continue
			}
			e := extents.New(1)
			for _, g := range leaves {
				_ = e.Merge(g.Mesh.DataExtents(name))
			}
			data[name] = e
		}
	}
	attrs.DataExtents = data
}

// StreamingCleanUp forwards to the implementation and then upstream.
func (f *Filter) StreamingCleanUp(ctx context.Context) {
	if c, ok := f.impl.(StreamingCleaner); ok {
		c.StreamingCleanUp(ctx)
	}
	if c, ok := f.input.(StreamingCleaner); ok {
		c.StreamingCleanUp(ctx)
	}
}

// DynamicLoadBalanceCleanUp forwards to the implementation and then upstream.
func (f *Filter) DynamicLoadBalanceCleanUp(ctx context.Context) {
	if c, ok := f.impl.(LoadBalanceCleaner); ok {
		c.DynamicLoadBalanceCleanUp(ctx)
	}
	if c, ok := f.input.(LoadBalanceCleaner); ok {
		c.DynamicLoadBalanceCleanUp(ctx)
	}
}
