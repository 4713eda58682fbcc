package loadbalance

import (
	"context"
	"sync"

	"github.com/kbukum/meshflow/errors"
)

// Communicator connects the cooperating ranks of one execution. Every
// collective call must be made by all ranks in the same order.
type Communicator interface {
	Rank() int
	Size() int
	// AllGather contributes v and returns every rank's contribution indexed
	// by rank.
	AllGather(ctx context.Context, v any) ([]any, error)
	Barrier(ctx context.Context) error
}

// Solo is the communicator of a single-rank execution.
type Solo struct{}

func (Solo) Rank() int { return 0 }
func (Solo) Size() int { return 1 }

func (Solo) AllGather(_ context.Context, v any) ([]any, error) {
	return []any{v}, nil
}

func (Solo) Barrier(context.Context) error {
	return nil
}

// LocalGroup connects ranks running as goroutines of one process.
type LocalGroup struct {
	size int

	mu     sync.Mutex
	round  *round
	closed bool
}

type round struct {
	values  []any
	arrived int
	done    chan struct{}
}

// NewLocalGroup creates a group of size ranks.
func NewLocalGroup(size int) *LocalGroup {
	if size < 1 {
		size = 1
	}
	g := &LocalGroup{size: size}
	g.round = g.newRound()
	return g
}

func (g *LocalGroup) newRound() *round {
	return &round{values: make([]any, g.size), done: make(chan struct{})}
}

// Size returns the number of ranks.
func (g *LocalGroup) Size() int { return g.size }

// Member returns the communicator of one rank.
func (g *LocalGroup) Member(rank int) Communicator {
	return &localMember{group: g, rank: rank}
}

// Members returns the communicators of all ranks in rank order.
func (g *LocalGroup) Members() []Communicator {
	out := make([]Communicator, g.size)
	for r := range out {
		out[r] = g.Member(r)
	}
	return out
}

// Close fails every pending and future collective. A rank that gives up
// closes the group so its peers do not wait forever.
func (g *LocalGroup) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	close(g.round.done)
}

var errGroupClosed = errors.New(errors.ErrCodeInternal, errors.KindInternal, "rank group closed")

func (g *LocalGroup) gather(ctx context.Context, rank int, v any) ([]any, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, errGroupClosed
	}
	r := g.round
	r.values[rank] = v
	r.arrived++
	if r.arrived == g.size {
		g.round = g.newRound()
		close(r.done)
	}
	g.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r.arrived < g.size {
		return nil, errGroupClosed
	}
	return append([]any(nil), r.values...), nil
}

type localMember struct {
	group *LocalGroup
	rank  int
}

func (m *localMember) Rank() int { return m.rank }
func (m *localMember) Size() int { return m.group.size }

func (m *localMember) AllGather(ctx context.Context, v any) ([]any, error) {
	return m.group.gather(ctx, m.rank, v)
}

func (m *localMember) Barrier(ctx context.Context) error {
	_, err := m.group.gather(ctx, m.rank, nil)
	return err
}

// AnyTrue reports whether any rank contributed true.
func AnyTrue(ctx context.Context, comm Communicator, v bool) (bool, error) {
	all, err := comm.AllGather(ctx, v)
	if err != nil {
		return false, err
	}
	for _, x := range all {
		if b, _ := x.(bool); b {
			return true, nil
		}
	}
	return false, nil
}
