package flow

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/extents"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/resilience"
)

// segment builds a 1-d mesh covering [x0, x1] with nodal temperature and
// pressure fields.
func segment(x0, x1 float64) *datatree.Mesh {
	return &datatree.Mesh{
		Dimension: 1,
		Points:    [][]float64{{x0}, {x1}},
		NumCells:  1,
		Cells:     [][]int{{0, 1}},
		Fields: map[string]datatree.Field{
			"temperature": {Centering: contract.CenteringNodal, Values: []float64{x0 * 10, x1 * 10}},
			"pressure":    {Centering: contract.CenteringNodal, Values: []float64{1, 2}},
		},
	}
}

// threeDomains is A: [0,1], B: [1,2], C: [2,3].
func threeDomains() []datatree.Fragment {
	return []datatree.Fragment{
		{Domain: 0, Label: "A", Mesh: segment(0, 1)},
		{Domain: 1, Label: "B", Mesh: segment(1, 2)},
		{Domain: 2, Label: "C", Mesh: segment(2, 3)},
	}
}

type fakeReader struct {
	mu        sync.Mutex
	fragments []datatree.Fragment
	order     []int
	err       error
	calls     int
	seen      []*contract.Contract
	report    bool
	cleanups  int
}

func (r *fakeReader) FetchDataset(_ context.Context, c *contract.Contract, rec ExtentsRecorder) (*datatree.Tree, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.seen = append(r.seen, c)
	if r.err != nil {
		return nil, r.err
	}
	frags := slices.Clone(r.fragments)
	if r.order != nil {
		frags = frags[:0]
		for _, i := range r.order {
			frags = append(frags, r.fragments[i])
		}
	}
	var out []datatree.Fragment
	for _, f := range frags {
		if !c.NeedsDomain(f.Domain) {
			continue
		}
		out = append(out, f)
		if r.report && f.Mesh.Check() == nil {
			e, _ := f.Mesh.SpatialExtents()
			if err := rec.MergeExtents(f.Domain, e, nil); err != nil {
				return nil, err
			}
		}
	}
	return datatree.FromFragments(out...), nil
}

func (r *fakeReader) Variables() []contract.Variable {
	return []contract.Variable{{Name: "temperature"}, {Name: "pressure"}}
}

func (r *fakeReader) StreamingCleanUp(context.Context) {
	r.mu.Lock()
	r.cleanups++
	r.mu.Unlock()
}

func (r *fakeReader) lastContract() *contract.Contract {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seen) == 0 {
		return nil
	}
	return r.seen[len(r.seen)-1]
}

func newTestSource(r DatasetReader, tracker *dataobject.Tracker, opts ...SourceOption) *Source {
	base := []SourceOption{
		WithTracker(tracker),
		WithSourceLogger(logger.Nop()),
		WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
	}
	return NewDatasetSource("reader", r, append(base, opts...)...)
}

// derive computes temperature_scaled from temperature and pressure.
type derive struct{}

func (derive) ModifyContract(_ context.Context, c *contract.Contract) (*contract.Contract, error) {
	return c.WithVariable("temperature", contract.CenteringNodal).
		WithVariable("pressure", contract.CenteringNodal).
		WithDerivedVariable("temperature_scaled", "derive"), nil
}

func (derive) ExecuteData(_ context.Context, f datatree.Fragment) ([]datatree.Fragment, error) {
	t, ok := f.Mesh.Field("temperature")
	if !ok {
		return nil, fmt.Errorf("domain %d has no temperature", f.Domain)
	}
	p, _ := f.Mesh.Field("pressure")
	vals := make([]float64, len(t.Values))
	for i := range vals {
		vals[i] = t.Values[i] * p.Values[i]
	}
	f.Mesh = f.Mesh.WithField("temperature_scaled", datatree.Field{Centering: t.Centering, Values: vals})
	return []datatree.Fragment{f}, nil
}

func (derive) UpdateAttributes(a dataobject.Attributes) dataobject.Attributes {
	return a.WithVariable(contract.Variable{Name: "temperature_scaled", Centering: contract.CenteringNodal})
}

// leafFunc adapts a function to LeafTransformer.
type leafFunc func(f datatree.Fragment) ([]datatree.Fragment, error)

func (fn leafFunc) ExecuteData(_ context.Context, f datatree.Fragment) ([]datatree.Fragment, error) {
	return fn(f)
}

// dropper is a modifier that forgets everything downstream asked for.
type dropper struct{ leafFunc }

func (dropper) ModifyContract(context.Context, *contract.Contract) (*contract.Contract, error) {
	return contract.New(), nil
}

// collector remembers what it was handed.
type collector struct {
	mu      sync.Mutex
	domains [][]int
	spatial *extents.Extents
	kinds   []dataobject.Kind
	infos   []PassInfo
}

func (c *collector) Consume(_ context.Context, obj *dataobject.Object, info PassInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, obj.Kind())
	c.infos = append(c.infos, info)
	if obj.Kind() != dataobject.KindMeshCollection {
		return nil
	}
	tree, err := obj.Tree()
	if err != nil {
		return err
	}
	c.domains = append(c.domains, tree.Domains())
	if c.spatial == nil {
		c.spatial = extents.New(1)
	}
	return c.spatial.Merge(obj.Attributes().SpatialExtents)
}
