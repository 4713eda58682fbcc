package sinks

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/extents"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/loadbalance"
)

// ExtentsQuery accumulates the spatial extents and the data extents of the
// delivered objects. It reads attributes only and never touches the payload.
type ExtentsQuery struct {
	mu      sync.Mutex
	spatial *extents.Extents
	data    map[string]*extents.Extents
	result  *ExtentsResult
}

// ExtentsResult is the outcome of an extents query.
type ExtentsResult struct {
	Spatial *extents.Extents
	Data    map[string]*extents.Extents
}

// extentsPartial is what each rank contributes in Finalize.
type extentsPartial struct {
	Spatial []float64
	Data    map[string][]float64
}

// NewExtentsQuery creates the query.
func NewExtentsQuery() *ExtentsQuery {
	return &ExtentsQuery{data: make(map[string]*extents.Extents)}
}

func (q *ExtentsQuery) Consume(_ context.Context, obj *dataobject.Object, _ flow.PassInfo) error {
	if obj.IsEmpty() {
		return nil
	}
	attrs := obj.Attributes()
	q.mu.Lock()
	defer q.mu.Unlock()
	if attrs.SpatialExtents.HasExtents() {
		if q.spatial == nil {
			q.spatial = extents.New(attrs.SpatialExtents.Dimension())
		}
		if err := q.spatial.Merge(attrs.SpatialExtents); err != nil {
			return errors.DataIntegrity(-1, err.Error())
		}
	}
	for name, e := range attrs.DataExtents {
		if !e.HasExtents() {
			continue
		}
		if q.data[name] == nil {
			q.data[name] = extents.New(e.Dimension())
		}
		if err := q.data[name].Merge(e); err != nil {
			return errors.DataIntegrity(-1, err.Error())
		}
	}
	return nil
}

// Partial returns what this rank has seen so far.
func (q *ExtentsQuery) Partial() ExtentsResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := ExtentsResult{Spatial: q.spatial.Clone(), Data: make(map[string]*extents.Extents, len(q.data))}
	for name, e := range q.data {
		out.Data[name] = e.Clone()
	}
	return out
}

// Result returns the merged result of the last finalized execution, or nil.
func (q *ExtentsQuery) Result() *ExtentsResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.result
}

// Finalize merges the partial extents of every rank.
func (q *ExtentsQuery) Finalize(ctx context.Context, comm loadbalance.Communicator) error {
	mine := q.Partial()
	p := extentsPartial{Spatial: mine.Spatial.Bounds(), Data: make(map[string][]float64, len(mine.Data))}
	for name, e := range mine.Data {
		p.Data[name] = e.Bounds()
	}
	all, err := comm.AllGather(ctx, p)
	if err != nil {
		return err
	}

	res := &ExtentsResult{Data: make(map[string]*extents.Extents)}
	for _, v := range all {
		part, ok := v.(extentsPartial)
		if !ok {
			return errors.Internal(nil).WithDetail("reason", "unexpected extents contribution")
		}
		if part.Spatial != nil {
			e, err := extents.FromBounds(part.Spatial...)
			if err != nil {
				return errors.Internal(err)
			}
			if res.Spatial == nil {
				res.Spatial = extents.New(e.Dimension())
			}
			if err := res.Spatial.Merge(e); err != nil {
				return errors.DataIntegrity(-1, err.Error())
			}
		}
		for _, name := range slices.Sorted(maps.Keys(part.Data)) {
			e, err := extents.FromBounds(part.Data[name]...)
			if err != nil {
				continue
			}
			if res.Data[name] == nil {
				res.Data[name] = extents.New(e.Dimension())
			}
			if err := res.Data[name].Merge(e); err != nil {
				return errors.DataIntegrity(-1, err.Error())
			}
		}
	}
	q.mu.Lock()
	q.result = res
	q.mu.Unlock()
	return nil
}

// StreamingCleanUp forgets the partial extents once an execution ends. The
// finalized result is kept.
func (q *ExtentsQuery) StreamingCleanUp(context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.spatial = nil
	q.data = make(map[string]*extents.Extents)
}
