package loadbalance

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/extents"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/resilience"
)

// lineReader serves domain i as the segment [i, i+1] carrying one zonal
// value equal to i+1.
type lineReader struct {
	mu       sync.Mutex
	fail     map[int]bool
	fetched  []int
	cleanups int
	lbClean  int
}

func (r *lineReader) FetchDataset(_ context.Context, c *contract.Contract, _ flow.ExtentsRecorder) (*datatree.Tree, error) {
	var frags []datatree.Fragment
	for _, id := range c.Domains() {
		if r.fail[id] {
			return nil, errors.TransportFailure(fmt.Sprintf("domain %d", id), nil)
		}
		x := float64(id)
		frags = append(frags, datatree.Fragment{
			Domain: id,
			Label:  fmt.Sprintf("d%d", id),
			Mesh: &datatree.Mesh{
				Dimension: 1,
				Points:    [][]float64{{x}, {x + 1}},
				NumCells:  1,
				Cells:     [][]int{{0, 1}},
				Fields: map[string]datatree.Field{
					"value": {Centering: contract.CenteringZonal, Values: []float64{x + 1}},
				},
			},
		})
	}
	r.mu.Lock()
	r.fetched = append(r.fetched, c.Domains()...)
	r.mu.Unlock()
	return datatree.FromFragments(frags...), nil
}

func (r *lineReader) StreamingCleanUp(context.Context) {
	r.mu.Lock()
	r.cleanups++
	r.mu.Unlock()
}

func (r *lineReader) DynamicLoadBalanceCleanUp(context.Context) {
	r.mu.Lock()
	r.lbClean++
	r.mu.Unlock()
}

// summary accumulates the spatial extents and the sum of "value" over every
// pass it sees, and merges both across ranks in Finalize.
type summary struct {
	spatial *extents.Extents
	sum     float64
	passes  int
	global  *extents.Extents
	total   float64
}

func newSummary() *summary { return &summary{spatial: extents.New(1)} }

func (s *summary) Consume(_ context.Context, obj *dataobject.Object, _ flow.PassInfo) error {
	s.passes++
	tree, err := obj.Tree()
	if err != nil {
		return err
	}
	for _, f := range tree.Leaves() {
		e, _ := f.Mesh.SpatialExtents()
		if err := s.spatial.Merge(e); err != nil {
			return err
		}
		v, _ := f.Mesh.Field("value")
		for _, x := range v.Values {
			s.sum += x
		}
	}
	return nil
}

type partial struct {
	Bounds []float64
	Sum    float64
}

func (s *summary) Finalize(ctx context.Context, comm Communicator) error {
	all, err := comm.AllGather(ctx, partial{Bounds: s.spatial.Bounds(), Sum: s.sum})
	if err != nil {
		return err
	}
	s.global = extents.New(1)
	s.total = 0
	for _, v := range all {
		p := v.(partial)
		s.total += p.Sum
		if p.Bounds == nil {
			continue
		}
		e, err := extents.FromBounds(p.Bounds...)
		if err != nil {
			return err
		}
		if err := s.global.Merge(e); err != nil {
			return err
		}
	}
	return nil
}

type rankPipeline struct {
	reader  *lineReader
	source  *flow.Source
	sink    *flow.Sink
	summary *summary
	tracker *dataobject.Tracker
}

func newRankPipeline(fail map[int]bool) *rankPipeline {
	p := &rankPipeline{reader: &lineReader{fail: fail}, summary: newSummary(), tracker: dataobject.NewTracker()}
	p.source = flow.NewDatasetSource("lines", p.reader,
		flow.WithTracker(p.tracker),
		flow.WithSourceLogger(logger.Nop()),
		flow.WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
	)
	p.sink, _ = flow.NewSink("summary", p.summary, p.source, flow.WithSinkLogger(logger.Nop()))
	return p
}

func domainRange(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}
