package loadbalance

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kbukum/meshflow/errors"
)

// Mode names a scheduling strategy.
type Mode string

const (
	ModeStatic    Mode = "static"
	ModeStreaming Mode = "streaming"
	ModeDynamic   Mode = "dynamic"
)

// ParseMode parses a mode name; the empty string is static.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeStatic:
		return ModeStatic, nil
	case ModeStreaming, ModeDynamic:
		return Mode(s), nil
	}
	return "", errors.InvalidInput("mode", fmt.Sprintf("unknown scheduling mode %q", s))
}

// PassStats describes a finished pass on one rank.
type PassStats struct {
	Pass     int
	Domains  []int
	Bytes    int64
	Duration time.Duration
}

// Scheduler decides which domains this rank fetches in each pass.
//
// Next is called once per pass by every rank, in lockstep. It may use comm
// for collective decisions. An empty assignment is valid and means the rank
// idles for that pass.
type Scheduler interface {
	Mode() Mode
	Reset(rank, size int, domains []int)
	Next(ctx context.Context, comm Communicator, last *PassStats) ([]int, error)
	// Pending reports whether this rank still has unassigned work.
	Pending() bool
}

// Rebalancer is implemented by schedulers that can hand out a new domain
// assignment when the guide asks for one. Every rank calls Rebalance in
// lockstep after the same pass.
type Rebalancer interface {
	Rebalance(ctx context.Context, comm Communicator) error
}

// reassign pools the unfetched domains of every rank and returns this rank's
// share of them. When nothing is left the whole domain set is swept again.
// Shares rotate with round, so a rank's block moves to another rank each time.
func reassign(ctx context.Context, comm Communicator, rank, size int, remaining, all []int, round int) ([]int, error) {
	gathered, err := comm.AllGather(ctx, slices.Clone(remaining))
	if err != nil {
		return nil, err
	}
	pool := remaining
	if size > 1 {
		pool = nil
		for _, v := range gathered {
			ids, _ := v.([]int)
			pool = append(pool, ids...)
		}
	}
	if len(pool) == 0 {
		pool = all
	}
	return Partition(pool, size)[(rank+round)%size], nil
}

// Static assigns each rank its block of the domain set in a single pass.
type Static struct {
	rank, size int
	all        []int
	round      int
	block      []int
	done       bool
}

// NewStatic creates a static scheduler.
func NewStatic() *Static { return &Static{} }

func (s *Static) Mode() Mode { return ModeStatic }

func (s *Static) Reset(rank, size int, domains []int) {
	s.rank, s.size, s.round = rank, max(size, 1), 0
	s.all = normalize(domains)
	s.block = Partition(domains, size)[rank]
	s.done = false
}

func (s *Static) Next(context.Context, Communicator, *PassStats) ([]int, error) {
	if s.done {
		return nil, nil
	}
	s.done = true
	return s.block, nil
}

func (s *Static) Pending() bool { return !s.done }

// Rebalance gives this rank a rotated block for one more pass.
func (s *Static) Rebalance(ctx context.Context, comm Communicator) error {
	var remaining []int
	if !s.done {
		remaining = s.block
	}
	s.round++
	block, err := reassign(ctx, comm, s.rank, s.size, remaining, s.all, s.round)
	if err != nil {
		return err
	}
	s.block, s.done = block, false
	return nil
}

// CostFunc estimates the memory a domain occupies once fetched.
type CostFunc func(domain int) int64

// PassObserver is implemented by schedulers that learn from every delivered
// pass. The controller calls Observe right after the pass and fails the
// execution when it returns an error.
type PassObserver interface {
	Observe(stats *PassStats) error
}

// Streaming splits this rank's block into passes whose estimated cost stays
// under a memory ceiling. With a cost function the estimate is scaled up when
// a delivered pass turns out heavier than the ceiling. Without one the first
// pass fetches a single domain and later passes are sized from the largest
// per-domain payload delivered so far.
type Streaming struct {
	ceiling   int64
	chunkSize int
	cost      CostFunc

	rank, size int
	all        []int
	round      int
	queue      []int
	scale   float64
	learned bool
	// observed is the largest delivered bytes per domain.
	observed int64
}

// NewStreaming creates a streaming scheduler. A zero ceiling disables the
// memory check; a zero chunk size disables the count limit. cost may be nil.
func NewStreaming(ceiling int64, chunkSize int, cost CostFunc) *Streaming {
	return &Streaming{ceiling: ceiling, chunkSize: chunkSize, cost: cost, scale: 1}
}

func (s *Streaming) Mode() Mode { return ModeStreaming }

func (s *Streaming) Reset(rank, size int, domains []int) {
	s.rank, s.size, s.round = rank, max(size, 1), 0
	s.all = normalize(domains)
	s.queue = Partition(domains, size)[rank]
	s.scale = 1
	s.learned = false
	s.observed = 0
}

func (s *Streaming) Pending() bool { return len(s.queue) > 0 }

func (s *Streaming) Next(context.Context, Communicator, *PassStats) ([]int, error) {
	if len(s.queue) == 0 {
		return nil, nil
	}
	limit := s.chunkSize
	if s.ceiling > 0 && s.cost == nil && !s.learned {
		limit = 1
	}
	var (
		take  int
		total int64
	)
	for take < len(s.queue) {
		if limit > 0 && take == limit {
			break
		}
		c := s.estimate(s.queue[take])
		if s.ceiling > 0 && c > s.ceiling && take == 0 && s.cost != nil {
			return nil, errors.ResourceExhausted(fmt.Sprintf("domain %d", s.queue[0]), c, s.ceiling)
		}
		if s.ceiling > 0 && total+c > s.ceiling && take > 0 {
			break
		}
		total += c
		take++
	}
	out := slices.Clone(s.queue[:take])
	s.queue = s.queue[take:]
	return out, nil
}

// Observe adapts the estimates to what the pass delivered. A single domain
// that alone exceeds the ceiling cannot be split further and is fatal.
func (s *Streaming) Observe(last *PassStats) error {
	n := int64(len(last.Domains))
	if s.ceiling <= 0 || n == 0 {
		return nil
	}
	if n == 1 && last.Bytes > s.ceiling {
		return errors.ResourceExhausted(fmt.Sprintf("domain %d", last.Domains[0]), last.Bytes, s.ceiling)
	}
	if s.cost == nil {
		s.learned = true
		s.observed = max(s.observed, (last.Bytes+n-1)/n)
		return nil
	}
	if last.Bytes <= s.ceiling {
		return nil
	}
	var est int64
	for _, id := range last.Domains {
		est += s.estimate(id)
	}
	if est > 0 && last.Bytes > est {
		s.scale *= float64(last.Bytes) / float64(est)
	}
	return nil
}

// Rebalance pools the unstreamed domains of all ranks and deals them out
// again, rotated. The learned estimates are kept.
func (s *Streaming) Rebalance(ctx context.Context, comm Communicator) error {
	s.round++
	queue, err := reassign(ctx, comm, s.rank, s.size, s.queue, s.all, s.round)
	if err != nil {
		return err
	}
	s.queue = queue
	return nil
}

func (s *Streaming) estimate(id int) int64 {
	if s.cost == nil {
		return s.observed
	}
	return int64(float64(s.cost(id)) * s.scale)
}

// Dynamic hands out domains from a shared pool a batch at a time. Before each
// pass the ranks exchange their measured throughput and split the next batch
// in proportion to it, so faster ranks take more. Every rank holds the same
// pool and sees the same throughputs, so all ranks compute the same split
// without a coordinator.
type Dynamic struct {
	chunkSize int
	rank      int
	size      int
	all       []int
	pool      []int
	perRank   []float64
}

// NewDynamic creates a dynamic scheduler that hands out about chunkSize
// domains per rank per pass.
func NewDynamic(chunkSize int) *Dynamic {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &Dynamic{chunkSize: chunkSize}
}

func (d *Dynamic) Mode() Mode { return ModeDynamic }

func (d *Dynamic) Reset(rank, size int, domains []int) {
	d.rank, d.size = rank, size
	d.all = normalize(domains)
	d.pool = slices.Clone(d.all)
	d.perRank = make([]float64, size)
	for r := range d.perRank {
		d.perRank[r] = 1
	}
}

func (d *Dynamic) Pending() bool { return len(d.pool) > 0 }

func (d *Dynamic) Next(ctx context.Context, comm Communicator, last *PassStats) ([]int, error) {
	var mine float64
	if last != nil && len(last.Domains) > 0 && last.Duration > 0 {
		mine = float64(len(last.Domains)) / last.Duration.Seconds()
	}
	all, err := comm.AllGather(ctx, mine)
	if err != nil {
		return nil, err
	}
	for r, v := range all {
		if r >= d.size {
			break
		}
		if t, _ := v.(float64); t > 0 {
			d.perRank[r] = t
		}
	}
	if len(d.pool) == 0 {
		return nil, nil
	}
	batch := min(len(d.pool), d.chunkSize*d.size)
	split := PartitionWeighted(d.pool[:batch], d.perRank)
	d.pool = d.pool[batch:]
	return split[d.rank], nil
}

// Rebalance refills a drained pool with the whole domain set. The pool is
// the same on every rank, so no exchange is needed.
func (d *Dynamic) Rebalance(context.Context, Communicator) error {
	if len(d.pool) == 0 {
		d.pool = slices.Clone(d.all)
	}
	return nil
}

// Throughputs returns the latest throughput estimate of every rank.
func (d *Dynamic) Throughputs() []float64 { return slices.Clone(d.perRank) }

// New returns the scheduler for mode.
func New(mode Mode, ceiling int64, chunkSize int, cost CostFunc) (Scheduler, error) {
	switch mode {
	case ModeStatic, "":
		return NewStatic(), nil
	case ModeStreaming:
		return NewStreaming(ceiling, chunkSize, cost), nil
	case ModeDynamic:
		return NewDynamic(chunkSize), nil
	}
	return nil, errors.InvalidInput("mode", fmt.Sprintf("unknown scheduling mode %q", mode))
}
