package loadbalance

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/extents"
	"github.com/kbukum/meshflow/logger"
)

func TestPartition_CompleteAndDisjoint(t *testing.T) {
	tests := []struct {
		domains int
		ranks   int
	}{
		{0, 1}, {1, 1}, {3, 1}, {3, 3}, {2, 5}, {10, 3}, {17, 4}, {100, 7},
	}
	for _, tc := range tests {
		blocks := Partition(domainRange(tc.domains), tc.ranks)
		checkPartition(t, blocks, tc.domains, tc.ranks)
		for _, b := range blocks {
			if d := len(b) - len(blocks[0]); d > 0 || d < -1 {
				t.Errorf("%d/%d: unbalanced blocks %v", tc.domains, tc.ranks, blocks)
			}
		}
	}
}

func TestPartitionWeighted_CompleteAndDisjoint(t *testing.T) {
	tests := [][]float64{
		{1, 1, 1},
		{3, 1},
		{0, 1, 0},
		{0, 0},
		{0.1, 5, 2.5, 1},
	}
	for _, w := range tests {
		for _, n := range []int{0, 1, 7, 23} {
			checkPartition(t, PartitionWeighted(domainRange(n), w), n, len(w))
		}
	}
	got := PartitionWeighted(domainRange(8), []float64{3, 1})
	if len(got[0]) != 6 || len(got[1]) != 2 {
		t.Errorf("expected a 6/2 split, got %v", got)
	}
	if got := PartitionWeighted(domainRange(4), []float64{0, 1}); len(got[0]) != 0 {
		t.Errorf("zero weight should get nothing, got %v", got)
	}
}

func checkPartition(t *testing.T, blocks [][]int, n, ranks int) {
	t.Helper()
	if len(blocks) != ranks {
		t.Fatalf("expected %d blocks, got %d", ranks, len(blocks))
	}
	seen := make(map[int]int)
	for _, b := range blocks {
		for _, id := range b {
			seen[id]++
		}
	}
	if len(seen) != n {
		t.Errorf("expected %d domains covered, got %d in %v", n, len(seen), blocks)
	}
	for id, c := range seen {
		if c != 1 {
			t.Errorf("domain %d assigned %d times", id, c)
		}
	}
}

func TestChunks(t *testing.T) {
	got := Chunks([]int{1, 2, 3, 4, 5}, 2)
	if len(got) != 3 || !slices.Equal(got[2], []int{5}) {
		t.Errorf("unexpected chunks %v", got)
	}
}

func TestMachine_Transitions(t *testing.T) {
	m := NewMachine(4)
	for _, s := range []State{StateRequesting, StateFetching, StateTransforming, StateDelivered, StateRequesting} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("legal transition to %s rejected: %v", s, err)
		}
	}
	err := m.Transition(StateDelivered)
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
	m.Abort()
	if m.State() != StateIdle {
		t.Errorf("abort should return to idle, got %s", m.State())
	}
	if h := m.History(); h[0] != StateIdle || h[len(h)-1] != StateIdle {
		t.Errorf("unexpected history %v", h)
	}
}

func TestLocalGroup_AllGather(t *testing.T) {
	g := NewLocalGroup(4)
	var wg sync.WaitGroup
	results := make([][]any, 4)
	for r, comm := range g.Members() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < 3; round++ {
				all, err := comm.AllGather(context.Background(), r*10+round)
				if err != nil {
					t.Error(err)
					return
				}
				results[r] = all
			}
		}()
	}
	wg.Wait()
	for r, all := range results {
		for i, v := range all {
			if v.(int) != i*10+2 {
				t.Errorf("rank %d saw %v", r, all)
			}
		}
	}
}

func TestLocalGroup_CloseReleasesWaiters(t *testing.T) {
	g := NewLocalGroup(2)
	errc := make(chan error, 1)
	go func() { errc <- g.Member(0).Barrier(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	g.Close()
	select {
	case err := <-errc:
		if err == nil {
			t.Error("expected an error after close")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
}

func TestController_ExtentsScenario(t *testing.T) {
	want, _ := extents.FromBounds(0, 3)
	tests := []struct {
		name       string
		domains    []int
		sched      Scheduler
		wantPasses int
	}{
		{name: "ABC", domains: []int{0, 1, 2}, sched: NewStatic(), wantPasses: 1},
		{name: "CAB", domains: []int{2, 0, 1}, sched: NewStatic(), wantPasses: 1},
		{name: "three streamed passes", domains: []int{2, 0, 1}, sched: NewStreaming(0, 1, nil), wantPasses: 3},
		{name: "streamed by memory", domains: []int{0, 1, 2}, sched: NewStreaming(100, 0, func(int) int64 { return 100 }), wantPasses: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newRankPipeline(nil)
			c := NewController("extents", p.sink, WithScheduler(tc.sched), WithLogger(logger.Nop()))
			res, err := c.Run(context.Background(), contract.New(), tc.domains)
			if err != nil {
				t.Fatal(err)
			}
			if res.Passes != tc.wantPasses {
				t.Errorf("expected %d passes, got %d", tc.wantPasses, res.Passes)
			}
			if !p.summary.global.Equal(want) {
				t.Errorf("expected %s, got %s", want, p.summary.global)
			}
			if !p.source.SpatialExtents().Equal(want) {
				t.Errorf("source extents %s", p.source.SpatialExtents())
			}
			if p.tracker.Live() != 0 {
				t.Errorf("leaked %d objects", p.tracker.Live())
			}
			if p.reader.cleanups != 1 {
				t.Errorf("expected one streaming cleanup, got %d", p.reader.cleanups)
			}
		})
	}
}

func TestRunGroup_StreamingEquivalence(t *testing.T) {
	const n = 13
	wantSum := float64(n * (n + 1) / 2)
	modes := map[string]func() Scheduler{
		"static":      func() Scheduler { return NewStatic() },
		"stream-1":    func() Scheduler { return NewStreaming(0, 1, nil) },
		"stream-2":    func() Scheduler { return NewStreaming(0, 2, nil) },
		"stream-5":    func() Scheduler { return NewStreaming(0, 5, nil) },
		"stream-cost": func() Scheduler { return NewStreaming(100, 0, func(int) int64 { return 40 }) },
		"dynamic":     func() Scheduler { return NewDynamic(2) },
	}
	for name, mk := range modes {
		for _, ranks := range []int{1, 3, 4} {
			pipes := make([]*rankPipeline, ranks)
			build := func(rank int, comm Communicator) (*Controller, error) {
				pipes[rank] = newRankPipeline(nil)
				return NewController(name, pipes[rank].sink,
					WithCommunicator(comm), WithScheduler(mk()), WithLogger(logger.Nop())), nil
			}
			results, err := RunGroup(context.Background(), ranks, build, contract.New(), domainRange(n))
			if err != nil {
				t.Fatalf("%s/%d: %v", name, ranks, err)
			}

			var assigned [][]int
			passes := results[0].Passes
			for r, res := range results {
				assigned = append(assigned, res.Domains())
				if res.Passes != passes {
					t.Errorf("%s/%d: rank %d ran %d passes, rank 0 ran %d", name, ranks, r, res.Passes, passes)
				}
				if p := pipes[r]; p.summary.total != wantSum {
					t.Errorf("%s/%d: rank %d total %g, want %g", name, ranks, r, p.summary.total, wantSum)
				}
				if pipes[r].tracker.Live() != 0 {
					t.Errorf("%s/%d: rank %d leaked objects", name, ranks, r)
				}
			}
			checkPartition(t, assigned, n, ranks)
		}
	}
}

func TestDynamic_FasterRankTakesMore(t *testing.T) {
	d := NewDynamic(4)
	d.Reset(0, 2, domainRange(40))
	// Rank 0 reported 30 domains/s, rank 1 10 domains/s.
	comm := fixedGather{values: []any{30.0, 10.0}}
	first, err := d.Next(context.Background(), comm, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 6 {
		t.Errorf("expected 6 of 8 domains for the faster rank, got %v", first)
	}
	if !slices.Equal(d.Throughputs(), []float64{30, 10}) {
		t.Errorf("unexpected throughputs %v", d.Throughputs())
	}
}

type fixedGather struct{ values []any }

func (fixedGather) Rank() int { return 0 }
func (fixedGather) Size() int { return 2 }

func (f fixedGather) AllGather(context.Context, any) ([]any, error) { return f.values, nil }

func (fixedGather) Barrier(context.Context) error { return nil }

func TestStreaming_SingleDomainOverCeiling(t *testing.T) {
	p := newRankPipeline(nil)
	sched := NewStreaming(100, 0, func(id int) int64 {
		if id == 1 {
			return 500
		}
		return 10
	})
	c := NewController("big", p.sink, WithScheduler(sched), WithLogger(logger.Nop()))
	_, err := c.Run(context.Background(), contract.New(), []int{0, 1, 2})
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeResourceExhausted {
		t.Fatalf("expected resource exhausted, got %v", err)
	}
	if p.reader.cleanups != 1 {
		t.Error("cleanup must run after a failed execution")
	}
	if p.tracker.Live() != 0 {
		t.Errorf("leaked %d objects", p.tracker.Live())
	}
}

func TestStreaming_AdaptsToDeliveredSize(t *testing.T) {
	s := NewStreaming(100, 0, func(int) int64 { return 25 })
	s.Reset(0, 1, domainRange(12))
	first, _ := s.Next(context.Background(), Solo{}, nil)
	if len(first) != 4 {
		t.Fatalf("expected 4 domains under the ceiling, got %v", first)
	}
	// The pass delivered twice the estimate.
	if err := s.Observe(&PassStats{Domains: first, Bytes: 200}); err != nil {
		t.Fatal(err)
	}
	second, _ := s.Next(context.Background(), Solo{}, nil)
	if len(second) != 2 {
		t.Errorf("expected the chunk to shrink to 2, got %v", second)
	}
}

func TestStreaming_LearnsWithoutCostFunction(t *testing.T) {
	s := NewStreaming(100, 0, nil)
	s.Reset(0, 1, domainRange(6))
	first, _ := s.Next(context.Background(), Solo{}, nil)
	if !slices.Equal(first, []int{0}) {
		t.Fatalf("expected a single-domain first pass, got %v", first)
	}
	if err := s.Observe(&PassStats{Domains: first, Bytes: 40}); err != nil {
		t.Fatal(err)
	}
	second, _ := s.Next(context.Background(), Solo{}, nil)
	if !slices.Equal(second, []int{1, 2}) {
		t.Errorf("expected two 40-byte domains under a 100-byte ceiling, got %v", second)
	}
	// A heavier pass raises the per-domain estimate.
	if err := s.Observe(&PassStats{Domains: second, Bytes: 180}); err != nil {
		t.Fatal(err)
	}
	third, _ := s.Next(context.Background(), Solo{}, nil)
	if !slices.Equal(third, []int{3}) {
		t.Errorf("expected one 90-byte domain, got %v", third)
	}
}

func TestController_StreamingCeilingWithoutCost(t *testing.T) {
	// Each line domain delivers 40 bytes.
	tests := []struct {
		name    string
		ceiling int64
		want    []int
		wantErr bool
	}{
		{name: "fits two per pass", ceiling: 100, want: []int{1, 2, 2, 1}},
		{name: "fits one per pass", ceiling: 40, want: []int{1, 1, 1, 1, 1, 1}},
		{name: "single domain over ceiling", ceiling: 1, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newRankPipeline(nil)
			sched, err := New(ModeStreaming, tc.ceiling, 0, nil)
			if err != nil {
				t.Fatal(err)
			}
			c := NewController("ceiling", p.sink, WithScheduler(sched), WithLogger(logger.Nop()))
			res, err := c.Run(context.Background(), contract.New(), domainRange(6))
			if tc.wantErr {
				appErr, ok := errors.AsAppError(err)
				if !ok || appErr.Code != errors.ErrCodeResourceExhausted {
					t.Fatalf("expected resource exhausted, got %v", err)
				}
				if p.tracker.Live() != 0 {
					t.Errorf("leaked %d objects", p.tracker.Live())
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var sizes []int
			for _, a := range res.Assignments {
				sizes = append(sizes, len(a))
			}
			if !slices.Equal(sizes, tc.want) {
				t.Errorf("expected pass sizes %v, got %v", tc.want, sizes)
			}
			if !slices.Equal(res.Domains(), domainRange(6)) {
				t.Errorf("expected every domain once, got %v", res.Assignments)
			}
			if p.summary.total != 21 {
				t.Errorf("expected total 21, got %g", p.summary.total)
			}
		})
	}
}

func TestController_StreamingDisabledByContract(t *testing.T) {
	p := newRankPipeline(nil)
	c := NewController("nostream", p.sink, WithScheduler(NewStreaming(0, 1, nil)), WithLogger(logger.Nop()))
	res, err := c.Run(context.Background(), contract.New().WithStreaming(false), domainRange(5))
	if err != nil {
		t.Fatal(err)
	}
	if res.Passes != 1 {
		t.Errorf("expected a single pass, got %d", res.Passes)
	}
}

func TestController_GuideRequestsMorePasses(t *testing.T) {
	p := newRankPipeline(nil)
	calls := 0
	guide := func(_ context.Context, idx int) (bool, error) {
		calls++
		return calls < 3, nil
	}
	c := NewController("guided", p.sink, WithGuide(guide), WithLogger(logger.Nop()))
	res, err := c.Run(context.Background(), contract.New(), domainRange(3))
	if err != nil {
		t.Fatal(err)
	}
	if res.Passes != 3 || calls != 3 {
		t.Errorf("expected 3 passes and 3 guide calls, got %d and %d", res.Passes, calls)
	}
	if res.PipelineIndex != 1 {
		t.Errorf("expected pipeline index 1, got %d", res.PipelineIndex)
	}
	for i, a := range res.Assignments {
		if !slices.Equal(a, []int{0, 1, 2}) {
			t.Errorf("pass %d: a single rank sweeps every domain again, got %v", i, a)
		}
	}
}

func TestController_GuideReassignsDomains(t *testing.T) {
	tests := []struct {
		name  string
		sched func() Scheduler
		want  [][][]int
	}{
		{
			name:  "static",
			sched: func() Scheduler { return NewStatic() },
			want: [][][]int{
				{{0, 1}, {2, 3}},
				{{2, 3}, {0, 1}},
			},
		},
		{
			// Rank 0 streams {0,1}, rank 1 {2,3}; after the first pass the
			// leftovers {1,3} are dealt out rotated.
			name:  "streaming",
			sched: func() Scheduler { return NewStreaming(0, 1, nil) },
			want: [][][]int{
				{{0}, {3}},
				{{2}, {1}},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			const ranks = 2
			pipes := make([]*rankPipeline, ranks)
			build := func(rank int, comm Communicator) (*Controller, error) {
				pipes[rank] = newRankPipeline(nil)
				calls := 0
				guide := func(context.Context, int) (bool, error) {
					calls++
					return calls == 1, nil
				}
				return NewController("rebalanced", pipes[rank].sink, WithCommunicator(comm),
					WithScheduler(tc.sched()), WithGuide(guide), WithLogger(logger.Nop())), nil
			}
			results, err := RunGroup(context.Background(), ranks, build, contract.New(), domainRange(4))
			if err != nil {
				t.Fatal(err)
			}
			for r, res := range results {
				if len(res.Assignments) != len(tc.want[r]) {
					t.Fatalf("rank %d: expected %v, got %v", r, tc.want[r], res.Assignments)
				}
				for i := range res.Assignments {
					if !slices.Equal(res.Assignments[i], tc.want[r][i]) {
						t.Errorf("rank %d pass %d: expected %v, got %v", r, i, tc.want[r][i], res.Assignments[i])
					}
				}
				if pipes[r].tracker.Live() != 0 {
					t.Errorf("rank %d leaked objects", r)
				}
			}
		})
	}
}

func TestDynamic_RebalanceRefillsDrainedPool(t *testing.T) {
	d := NewDynamic(2)
	d.Reset(0, 1, domainRange(2))
	if got, _ := d.Next(context.Background(), Solo{}, nil); !slices.Equal(got, []int{0, 1}) {
		t.Fatalf("unexpected first batch %v", got)
	}
	if d.Pending() {
		t.Fatal("pool should be drained")
	}
	if err := d.Rebalance(context.Background(), Solo{}); err != nil {
		t.Fatal(err)
	}
	if got, _ := d.Next(context.Background(), Solo{}, nil); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("expected the domain set again, got %v", got)
	}
}

func TestController_MaxPasses(t *testing.T) {
	p := newRankPipeline(nil)
	always := func(context.Context, int) (bool, error) { return true, nil }
	c := NewController("runaway", p.sink, WithGuide(always), WithMaxPasses(4), WithLogger(logger.Nop()))
	_, err := c.Run(context.Background(), contract.New(), domainRange(2))
	if errors.KindOf(err) != errors.KindResource {
		t.Fatalf("expected resource error, got %v", err)
	}
}

func TestRunGroup_FailureStopsEveryRank(t *testing.T) {
	const ranks = 3
	pipes := make([]*rankPipeline, ranks)
	build := func(rank int, comm Communicator) (*Controller, error) {
		pipes[rank] = newRankPipeline(map[int]bool{7: true})
		return NewController("failing", pipes[rank].sink,
			WithCommunicator(comm), WithScheduler(NewStreaming(0, 1, nil)), WithLogger(logger.Nop())), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := RunGroup(ctx, ranks, build, contract.New(), domainRange(9))
	if errors.KindOf(err) != errors.KindTransport {
		t.Fatalf("expected the transport failure, got %v", err)
	}
	for r, p := range pipes {
		if p.reader.cleanups != 1 {
			t.Errorf("rank %d: cleanup ran %d times", r, p.reader.cleanups)
		}
		if p.tracker.Live() != 0 {
			t.Errorf("rank %d leaked objects", r)
		}
	}
}

func TestController_RepeatedRunsDoNotLeak(t *testing.T) {
	p := newRankPipeline(nil)
	c := NewController("repeat", p.sink, WithScheduler(NewDynamic(1)), WithLogger(logger.Nop()))
	for i := 0; i < 4; i++ {
		res, err := c.Run(context.Background(), contract.New(), domainRange(3))
		if err != nil {
			t.Fatal(err)
		}
		if res.PipelineIndex != i+1 {
			t.Errorf("expected index %d, got %d", i+1, res.PipelineIndex)
		}
	}
	if p.tracker.Live() != 0 || p.tracker.Created() != 12 {
		t.Errorf("live=%d created=%d", p.tracker.Live(), p.tracker.Created())
	}
	if p.reader.lbClean != 4 {
		t.Errorf("expected 4 load-balance cleanups, got %d", p.reader.lbClean)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeStatic {
		t.Errorf("empty mode: %v %v", m, err)
	}
	if _, err := ParseMode("round-robin"); err == nil {
		t.Error("expected error for unknown mode")
	}
	s, err := New(ModeStreaming, 10, 2, nil)
	if err != nil || s.Mode() != ModeStreaming {
		t.Errorf("New(streaming) = %v, %v", s, err)
	}
}
