package sinks

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/loadbalance"
	"github.com/kbukum/meshflow/stream"
)

// Sum is the total and count of a variable's values.
type Sum struct {
	Total float64
	Count int
}

// Mean returns Total/Count, or 0 without values.
func (s Sum) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Total / float64(s.Count)
}

// SumQuery sums one variable over every fragment it is handed. Ghost
// values are included as delivered, so callers asking for ghost layers
// should strip them first.
type SumQuery struct {
	variable string

	mu      sync.Mutex
	partial Sum
	result  *Sum
}

// NewSumQuery creates a query over variable.
func NewSumQuery(variable string) *SumQuery {
	return &SumQuery{variable: variable}
}

// Variable returns the summed variable.
func (q *SumQuery) Variable() string { return q.variable }

func (q *SumQuery) Consume(ctx context.Context, obj *dataobject.Object, _ flow.PassInfo) error {
	if obj.IsEmpty() {
		return nil
	}
	tree, err := obj.Tree()
	if err != nil {
		return errors.TypeMismatch("sum", dataobject.KindMeshCollection.String(), obj.Kind().String())
	}
	values := stream.Map(
		stream.Filter(stream.FromSlice(tree.Leaves()), func(f datatree.Fragment) bool {
			_, ok := f.Mesh.Field(q.variable)
			return ok
		}),
		func(_ context.Context, f datatree.Fragment) ([]float64, error) {
			field, _ := f.Mesh.Field(q.variable)
			return field.Values, nil
		},
	)
	sum, err := stream.Reduce(ctx, values, Sum{}, func(acc Sum, v []float64) Sum {
		return Sum{Total: acc.Total + floats.Sum(v), Count: acc.Count + len(v)}
	})
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.partial.Total += sum.Total
	q.partial.Count += sum.Count
	return nil
}

// Partial returns what this rank has summed so far.
func (q *SumQuery) Partial() Sum {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.partial
}

// Result returns the sum over all ranks of the last finalized execution, or nil.
func (q *SumQuery) Result() *Sum {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.result
}

// Finalize adds up the partial sums of every rank.
func (q *SumQuery) Finalize(ctx context.Context, comm loadbalance.Communicator) error {
	all, err := comm.AllGather(ctx, q.Partial())
	if err != nil {
		return err
	}
	totals := make([]float64, len(all))
	var count int
	for i, v := range all {
		s, ok := v.(Sum)
		if !ok {
			return errors.Internal(nil).WithDetail("reason", "unexpected sum contribution")
		}
		totals[i] = s.Total
		count += s.Count
	}
	q.mu.Lock()
	q.result = &Sum{Total: floats.Sum(totals), Count: count}
	q.mu.Unlock()
	return nil
}

// StreamingCleanUp resets the partial sum once an execution ends.
func (q *SumQuery) StreamingCleanUp(context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.partial = Sum{}
}
