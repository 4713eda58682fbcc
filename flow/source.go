package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/extents"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/observability"
	"github.com/kbukum/meshflow/resilience"
)

// ExtentsRecorder receives per-domain extents while a reader fetches.
type ExtentsRecorder interface {
	MergeExtents(domain int, spatial *extents.Extents, data map[string]*extents.Extents) error
}

// DatasetReader is the plugin interface of dataset-originating sources. It
// must not read domains outside c's restriction.
type DatasetReader interface {
	FetchDataset(ctx context.Context, c *contract.Contract, rec ExtentsRecorder) (*datatree.Tree, error)
}

// ImageReader is the plugin interface of image-originating sources.
type ImageReader interface {
	FetchImage(ctx context.Context, c *contract.Contract) (*dataobject.Image, error)
}

// VariableLister is implemented by readers that know which variables they
// can provide. Requests for anything else fail negotiation.
type VariableLister interface {
	Variables() []contract.Variable
}

// TopologyDescriber is implemented by readers whose topological dimension
// differs from the spatial one.
type TopologyDescriber interface {
	TopologicalDimension() int
}

// Source originates a pipeline: it turns a contract directly into data.
type Source struct {
	name    string
	kind    StageKind
	dataset DatasetReader
	image   ImageReader
	plugin  any
	policy  Policy
	retry   resilience.RetryConfig
	tracker *dataobject.Tracker
	log     *logger.Logger

	mu      sync.Mutex
	spatial *extents.Extents
	data    map[string]*extents.Extents
	current *contract.Contract
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithSourcePolicy overrides the failure policy for malformed fragments.
func WithSourcePolicy(p Policy) SourceOption {
	return func(s *Source) { s.policy = p }
}

// WithRetry sets the retry behaviour for transport failures.
func WithRetry(cfg resilience.RetryConfig) SourceOption {
	return func(s *Source) { s.retry = cfg }
}

// WithTracker counts every object the source creates in t.
func WithTracker(t *dataobject.Tracker) SourceOption {
	return func(s *Source) { s.tracker = t }
}

// WithSourceLogger sets the source logger.
func WithSourceLogger(l *logger.Logger) SourceOption {
	return func(s *Source) { s.log = l.WithStage(s.name) }
}

func newSource(name string, kind StageKind, plugin any, opts []SourceOption) *Source {
	s := &Source{
		name:   name,
		kind:   kind,
		plugin: plugin,
		policy: PolicyDrop,
		retry:  resilience.DefaultRetryConfig(),
		log:    logger.GetGlobalLogger().WithStage(name),
		data:   make(map[string]*extents.Extents),
	}
	if d, ok := plugin.(PolicyDeclarer); ok {
		s.policy = d.FailurePolicy()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDatasetSource creates a dataset-originating source around r.
func NewDatasetSource(name string, r DatasetReader, opts ...SourceOption) *Source {
	s := newSource(name, KindDatasetSource, r, opts)
	s.dataset = r
	return s
}

// NewImageSource creates an image-originating source around r.
func NewImageSource(name string, r ImageReader, opts ...SourceOption) *Source {
	s := newSource(name, KindImageSource, r, opts)
	s.image = r
	return s
}

func (s *Source) Name() string    { return s.name }
func (s *Source) Kind() StageKind { return s.kind }
func (s *Source) Role() Role      { return RoleOriginating }

// Policy returns the failure policy applied to malformed fragments.
func (s *Source) Policy() Policy { return s.policy }

// PayloadKind returns the kind of object Fetch produces.
func (s *Source) PayloadKind() dataobject.Kind { return s.kind.Descriptor().Payload }

// Contract returns the contract of the most recent fetch, or nil.
func (s *Source) Contract() *contract.Contract {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Negotiate checks that the reader can satisfy c and returns it unchanged.
func (s *Source) Negotiate(_ context.Context, c *contract.Contract) (*contract.Contract, error) {
	if s.kind == KindImageSource {
		if c.Representation() == contract.RepresentationMesh {
			return nil, errors.IncompatibleContract(s.name, "image source cannot produce a mesh")
		}
		return c, nil
	}
	if c.Representation() == contract.RepresentationImage {
		return nil, errors.IncompatibleContract(s.name, "dataset source cannot produce an image")
	}
	lister, ok := s.plugin.(VariableLister)
	if !ok {
		return c, nil
	}
	known := make(map[string]bool)
	for _, v := range lister.Variables() {
		known[v.Name] = true
	}
	for _, v := range c.ReadVariables() {
		if !known[v.Name] {
			return nil, errors.UnknownVariable(s.name, v.Name)
		}
	}
	return c, nil
}

// Update fetches the data for c. It is the Producer entry point.
func (s *Source) Update(ctx context.Context, c *contract.Contract) (*dataobject.Object, error) {
	return s.Fetch(ctx, c)
}

// Fetch turns c into a data object. Malformed fragments are dropped or fail
// the fetch according to the source policy; unreachable storage fails it.
func (s *Source) Fetch(ctx context.Context, c *contract.Contract) (*dataobject.Object, error) {
	if _, err := s.Negotiate(ctx, c); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()

	if err := enterPhase(ctx, PhaseFetching); err != nil {
		return nil, err
	}
	start := time.Now()
	var (
		obj *dataobject.Object
		err error
	)
	if s.kind == KindImageSource {
		obj, err = s.fetchImage(ctx, c)
	} else {
		obj, err = s.fetchDataset(ctx, c)
	}
	metrics := observability.MetricsFromContext(ctx)
	if err != nil {
		metrics.RecordError(ctx, errors.KindOf(err).String(), s.name)
		metrics.RecordStage(ctx, s.name, "fetch", "error", time.Since(start))
		return nil, err
	}
	metrics.RecordStage(ctx, s.name, "fetch", "ok", time.Since(start))

	if err := enterPhase(ctx, PhaseTransforming); err != nil {
		obj.Release()
		return nil, err
	}
	return obj, nil
}

func (s *Source) fetchDataset(ctx context.Context, c *contract.Contract) (*dataobject.Object, error) {
	var pending *pendingExtents
	tree, err := resilience.Retry(ctx, s.retry, func() (*datatree.Tree, error) {
		pending = newPendingExtents()
		tree, err := s.dataset.FetchDataset(ctx, c, pending)
		return tree, s.classify(err)
	})
	if err != nil {
		return nil, err
	}

	tree = s.contain(c, tree)
	tree, err = s.verify(ctx, tree)
	if err != nil {
		return nil, err
	}

	attrs, err := s.commit(c, tree, pending)
	if err != nil {
		return nil, err
	}
	observability.MetricsFromContext(ctx).RecordFetch(ctx, s.name, len(tree.Domains()))
	s.log.Debug("fetched", logger.Fields(
		logger.FieldDomains, tree.Domains(),
		logger.FieldPipelineIndex, c.PipelineIndex(),
	))
	return dataobject.NewMesh(s.name, tree, attrs, dataobject.WithTracker(s.tracker)), nil
}

func (s *Source) fetchImage(ctx context.Context, c *contract.Contract) (*dataobject.Object, error) {
	img, err := resilience.Retry(ctx, s.retry, func() (*dataobject.Image, error) {
		img, err := s.image.FetchImage(ctx, c)
		return img, s.classify(err)
	})
	if err != nil {
		return nil, err
	}
	if img == nil {
		return dataobject.NewEmpty(s.name, dataobject.WithTracker(s.tracker)), nil
	}
	if cerr := img.Check(); cerr != nil {
		ierr := errors.DataIntegrity(-1, cerr.Error())
		if s.policy == PolicyFatal {
			return nil, ierr
		}
		warn(ctx, s.log, Warning{Stage: s.name, Domain: -1, Err: ierr})
		observability.MetricsFromContext(ctx).RecordDropped(ctx, s.name, 1)
		return dataobject.NewEmpty(s.name, dataobject.WithTracker(s.tracker)), nil
	}
	return dataobject.NewImage(s.name, img, dataobject.Attributes{TopologicalDimension: 2, SpatialDimension: 2},
		dataobject.WithTracker(s.tracker)), nil
}

// classify keeps pipeline errors as they are and reports anything else as a
// transport failure of the source, which makes it retryable.
func (s *Source) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	return errors.TransportFailure(s.name, err)
}

// contain drops leaves for domains the contract did not ask for.
func (s *Source) contain(c *contract.Contract, tree *datatree.Tree) *datatree.Tree {
	if c.AllDomains() {
		return tree
	}
	return tree.Prune(func(f datatree.Fragment) bool {
		if c.NeedsDomain(f.Domain) {
			return true
		}
		s.log.Warn("reader returned unrequested domain", logger.Fields(logger.FieldDomain, f.Domain))
		return false
	})
}

// verify checks every fragment's well-formedness before anything downstream
// touches it.
func (s *Source) verify(ctx context.Context, tree *datatree.Tree) (*datatree.Tree, error) {
	dropped := 0
	out, err := tree.Map(func(f datatree.Fragment) ([]datatree.Fragment, error) {
		var problem error
		if f.Mesh == nil {
			problem = fmt.Errorf("fragment has no mesh")
		} else {
			problem = f.Mesh.Check()
		}
		if problem == nil {
			return []datatree.Fragment{f}, nil
		}
		ierr := errors.DataIntegrity(f.Domain, problem.Error()).WithDetail("label", f.Label)
		if s.policy == PolicyFatal {
			return nil, ierr
		}
		dropped++
		warn(ctx, s.log, Warning{Stage: s.name, Domain: f.Domain, Label: f.Label, Err: ierr})
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	observability.MetricsFromContext(ctx).RecordDropped(ctx, s.name, dropped)
	return out, nil
}

// commit merges the extents of the verified fragments into the running
// extents and returns the attributes of this fetch. Extents a reader reported
// for a domain win over extents computed from the mesh.
func (s *Source) commit(c *contract.Contract, tree *datatree.Tree, pending *pendingExtents) (dataobject.Attributes, error) {
	attrs := dataobject.Attributes{GhostWidth: c.GhostWidth(), DataExtents: make(map[string]*extents.Extents)}
	leaves := tree.Leaves()
	if len(leaves) > 0 {
		attrs.SpatialDimension = leaves[0].Mesh.Dimension
	}
	attrs.TopologicalDimension = attrs.SpatialDimension
	if td, ok := s.plugin.(TopologyDescriber); ok && td.TopologicalDimension() > 0 {
		attrs.TopologicalDimension = td.TopologicalDimension()
	}
	attrs.SpatialExtents = extents.New(attrs.SpatialDimension)

	for _, v := range c.ReadVariables() {
		for _, f := range leaves {
			if field, ok := f.Mesh.Field(v.Name); ok && v.Centering == contract.CenteringUnknown {
				v.Centering = field.Centering
				break
			}
		}
		attrs.Variables = append(attrs.Variables, v)
		attrs.DataExtents[v.Name] = extents.New(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range leaves {
		spatial := pending.spatialFor(f)
		if err := attrs.SpatialExtents.Merge(spatial); err != nil {
			return attrs, errors.DataIntegrity(f.Domain, err.Error())
		}
		data := make(map[string]*extents.Extents, len(attrs.DataExtents))
		for name, e := range attrs.DataExtents {
			data[name] = pending.dataFor(f, name)
			if err := e.Merge(data[name]); err != nil {
				return attrs, errors.DataIntegrity(f.Domain, err.Error())
			}
		}
		if err := s.mergeLocked(spatial, data); err != nil {
			return attrs, err
		}
	}
	return attrs, nil
}

// MergeExtents folds one domain's extents into the running extents. Readers
// call it through the recorder passed to FetchDataset.
func (s *Source) MergeExtents(_ int, spatial *extents.Extents, data map[string]*extents.Extents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(spatial, data)
}

func (s *Source) mergeLocked(spatial *extents.Extents, data map[string]*extents.Extents) error {
	if spatial.HasExtents() {
		if s.spatial == nil {
			s.spatial = extents.New(spatial.Dimension())
		}
		if err := s.spatial.Merge(spatial); err != nil {
			return errors.Internal(err)
		}
	}
	for name, e := range data {
		if !e.HasExtents() {
			continue
		}
		if s.data[name] == nil {
			s.data[name] = extents.New(e.Dimension())
		}
		if err := s.data[name].Merge(e); err != nil {
			return errors.Internal(err)
		}
	}
	return nil
}

// SpatialExtents returns the spatial extents accumulated over every fetch
// since the last reset, or nil before the first fetch.
func (s *Source) SpatialExtents() *extents.Extents {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spatial.Clone()
}

// DataExtents returns the accumulated value range of a variable.
func (s *Source) DataExtents(name string) *extents.Extents {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[name].Clone()
}

// ResetExtents clears the accumulated extents.
func (s *Source) ResetExtents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spatial = nil
	s.data = make(map[string]*extents.Extents)
}

// StreamingCleanUp forwards to the reader if it keeps per-pass state.
func (s *Source) StreamingCleanUp(ctx context.Context) {
	if c, ok := s.plugin.(StreamingCleaner); ok {
		c.StreamingCleanUp(ctx)
	}
}

// DynamicLoadBalanceCleanUp forwards to the reader if it keeps per-pass state.
func (s *Source) DynamicLoadBalanceCleanUp(ctx context.Context) {
	if c, ok := s.plugin.(LoadBalanceCleaner); ok {
		c.DynamicLoadBalanceCleanUp(ctx)
	}
}

// pendingExtents buffers what a reader reports during one fetch attempt so
// that only verified domains reach the running extents.
type pendingExtents struct {
	mu      sync.Mutex
	spatial map[int]*extents.Extents
	data    map[int]map[string]*extents.Extents
}

func newPendingExtents() *pendingExtents {
	return &pendingExtents{
		spatial: make(map[int]*extents.Extents),
		data:    make(map[int]map[string]*extents.Extents),
	}
}

func (p *pendingExtents) MergeExtents(domain int, spatial *extents.Extents, data map[string]*extents.Extents) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if spatial.HasExtents() {
		if cur, ok := p.spatial[domain]; ok {
			if err := cur.Merge(spatial); err != nil {
				return err
			}
		} else {
			p.spatial[domain] = spatial.Clone()
		}
	}
	if len(data) > 0 && p.data[domain] == nil {
		p.data[domain] = make(map[string]*extents.Extents)
	}
	for name, e := range data {
		if cur, ok := p.data[domain][name]; ok {
			if err := cur.Merge(e); err != nil {
				return err
			}
		} else {
			p.data[domain][name] = e.Clone()
		}
	}
	return nil
}

func (p *pendingExtents) spatialFor(f datatree.Fragment) *extents.Extents {
	if e, ok := p.spatial[f.Domain]; ok {
		return e
	}
	e, _ := f.Mesh.SpatialExtents()
	return e
}

func (p *pendingExtents) dataFor(f datatree.Fragment, name string) *extents.Extents {
	if e, ok := p.data[f.Domain][name]; ok {
		return e
	}
	return f.Mesh.DataExtents(name)
}
