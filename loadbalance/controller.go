package loadbalance

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/observability"
)

// GuideFunc is polled once after every pass. Returning true reports that load
// is imbalanced: every rank gets a new domain assignment from its scheduler
// and runs another pass of the same pipeline index.
type GuideFunc func(ctx context.Context, pipelineIndex int) (bool, error)

// Finalizer is implemented by consumers that merge per-rank partial results
// once the last pass has been delivered. Every rank calls it.
type Finalizer interface {
	Finalize(ctx context.Context, comm Communicator) error
}

// DefaultMaxPasses bounds the pass loop of one pipeline index.
const DefaultMaxPasses = 1024

// ErrPeerFailed is returned by ranks that stopped because another rank failed.
var ErrPeerFailed = errors.New(errors.ErrCodeInternal, errors.KindInternal, "a peer rank failed the pass")

// Result summarises one logical execution on one rank.
type Result struct {
	PipelineIndex int
	Rank          int
	Passes        int
	// Assignments holds the domains this rank fetched, one entry per pass.
	Assignments [][]int
	Report      *flow.Report
}

// Domains returns every domain this rank fetched, sorted.
func (r *Result) Domains() []int {
	var out []int
	for _, a := range r.Assignments {
		out = append(out, a...)
	}
	return normalize(out)
}

// Controller drives the pass loop of one pipeline on one rank.
type Controller struct {
	name      string
	sink      *flow.Sink
	comm      Communicator
	sched     Scheduler
	guide     GuideFunc
	maxPasses int
	metrics   *observability.PipelineMetrics
	log       *logger.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithGuide installs the guide function.
func WithGuide(g GuideFunc) Option {
	return func(c *Controller) { c.guide = g }
}

// WithScheduler overrides the default static scheduler.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.sched = s }
}

// WithCommunicator joins the controller to a group of ranks.
func WithCommunicator(comm Communicator) Option {
	return func(c *Controller) { c.comm = comm }
}

// WithMaxPasses bounds the number of passes per execution.
func WithMaxPasses(n int) Option {
	return func(c *Controller) { c.maxPasses = n }
}

// WithMetrics records pass metrics into m.
func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the controller logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// NewController creates a controller for the pipeline ending in sink.
func NewController(name string, sink *flow.Sink, opts ...Option) *Controller {
	c := &Controller{
		name:      name,
		sink:      sink,
		comm:      Solo{},
		sched:     NewStatic(),
		maxPasses: DefaultMaxPasses,
		log:       logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithComponent(name).WithRank(c.comm.Rank())
	return c
}

// Scheduler returns the scheduler in use.
func (c *Controller) Scheduler() Scheduler { return c.sched }

// Run executes req over domains as one logical pipeline index, in as many
// passes as the scheduler and the guide ask for. Per-pass cleanup hooks run
// whether or not the execution succeeds.
func (c *Controller) Run(ctx context.Context, req *contract.Contract, domains []int) (*Result, error) {
	index := c.sink.NextPipelineIndex()
	req = req.WithPipelineIndex(index)
	rank, size := c.comm.Rank(), c.comm.Size()
	res := &Result{PipelineIndex: index, Rank: rank, Report: flow.NewReport()}
	log := c.log.WithFields(logger.Fields(logger.FieldPipelineIndex, index))

	sched := c.sched
	if !req.CanStream() && sched.Mode() == ModeStreaming {
		sched = NewStatic()
	}
	if req.UseLoadBalancing() {
		sched.Reset(rank, size, domains)
	} else if rank == 0 {
		sched.Reset(0, 1, domains)
	} else {
		sched.Reset(0, 1, nil)
	}

	defer c.cleanup(ctx, sched)

	// Without a domain list the request covers whatever the source holds.
	whole := len(domains) == 0

	m := NewMachine(index)
	ctx = flow.WithReport(ctx, res.Report)

	var last *PassStats
	for pass := 0; ; pass++ {
		stats, err := c.pass(ctx, m, sched, req, pass, last, whole)
		more, rebalance := false, false
		if err == nil {
			res.Passes++
			res.Assignments = append(res.Assignments, stats.Domains)
			last = stats
			if o, ok := sched.(PassObserver); ok {
				err = o.Observe(stats)
			}
			if err == nil {
				more, rebalance, err = c.wantsMore(ctx, sched, index)
			}
		}

		// Ranks agree on stopping even when one of them failed so nobody is
		// left waiting in a collective.
		status, gerr := c.comm.AllGather(ctx, passVote{More: more, Rebalance: rebalance, Failed: err != nil})
		if err != nil {
			m.Abort()
			log.Error("pass failed", logger.Fields(logger.FieldPass, pass, logger.FieldError, err.Error()))
			return res, err
		}
		if gerr != nil {
			m.Abort()
			return res, gerr
		}
		more, rebalance, failed := tally(status)
		if failed {
			m.Abort()
			return res, ErrPeerFailed
		}
		if !more {
			if err := m.Transition(StateIdle); err != nil {
				return res, err
			}
			break
		}
		if pass+1 >= c.maxPasses {
			m.Abort()
			return res, errors.ResourceExhausted("passes", int64(pass+1), int64(c.maxPasses))
		}
		if r, ok := sched.(Rebalancer); ok && rebalance {
			if err := r.Rebalance(ctx, c.comm); err != nil {
				m.Abort()
				return res, err
			}
			log.Debug("domains reassigned", logger.Fields(logger.FieldPass, pass))
		}
	}

	if f, ok := c.sink.Consumer().(Finalizer); ok {
		if err := f.Finalize(ctx, c.comm); err != nil {
			return res, err
		}
	}
	log.Debug("execution finished", logger.Fields("passes", res.Passes, logger.FieldDomains, res.Domains()))
	return res, nil
}

type passVote struct {
	More      bool
	Rebalance bool
	Failed    bool
}

func tally(status []any) (more, rebalance, failed bool) {
	for _, s := range status {
		v, _ := s.(passVote)
		more = more || v.More
		rebalance = rebalance || v.Rebalance
		failed = failed || v.Failed
	}
	return more, rebalance, failed
}

// wantsMore polls the scheduler and the guide. rebalance is set when the
// guide asked for a new assignment.
func (c *Controller) wantsMore(ctx context.Context, sched Scheduler, index int) (more, rebalance bool, err error) {
	more = sched.Pending()
	if c.guide != nil {
		g, err := c.guide(ctx, index)
		if err != nil {
			return false, false, err
		}
		more, rebalance = more || g, g
	}
	return more, rebalance, nil
}

// pass runs one pass and leaves m in the delivered state.
// With whole set the request is not restricted by domain and only rank 0
// executes it.
func (c *Controller) pass(ctx context.Context, m *Machine, sched Scheduler, req *contract.Contract, pass int, last *PassStats, whole bool) (*PassStats, error) {
	if m.State() == StateDelivered || m.State() == StateIdle {
		if err := m.Transition(StateRequesting); err != nil {
			return nil, err
		}
	}
	ids, err := sched.Next(ctx, c.comm, last)
	if err != nil {
		return nil, err
	}
	ids = slices.Clone(ids)
	if ids == nil {
		ids = []int{}
	}

	pc := observability.NewPassContext(c.name, c.comm.Rank(), req.PipelineIndex(), pass, c.metrics)
	ctx, span := pc.Start(ctx)
	observability.SetSpanAttribute(ctx, observability.AttrDomains, ids)

	stats := &PassStats{Pass: pass, Domains: ids}
	idle := len(ids) == 0
	if whole {
		idle = pass > 0 || c.comm.Rank() != 0
	}
	if idle {
		for _, s := range []State{StateFetching, StateTransforming, StateDelivered} {
			if err := m.Transition(s); err != nil {
				pc.End(ctx, span, err)
				return nil, err
			}
		}
		pc.End(ctx, span, nil)
		return stats, nil
	}

	pctx := flow.WithPassInfo(ctx, flow.PassInfo{
		PipelineIndex: req.PipelineIndex(),
		Pass:          pass,
		Rank:          c.comm.Rank(),
		Ranks:         c.comm.Size(),
		Domains:       ids,
	})
	pctx = flow.WithPhaseObserver(pctx, func(_ context.Context, p flow.Phase) error {
		// Pipelines merging several sources report each phase more than once.
		if to := phaseState(p); to > m.State() {
			return m.Transition(to)
		}
		return nil
	})

	sub := req.RestrictTo(ids)
	if whole {
		sub = req
	}
	start := time.Now()
	err = c.sink.Execute(pctx, sub)
	stats.Duration = time.Since(start)
	pc.End(ctx, span, err)
	if err != nil {
		return nil, err
	}
	if m.State() != StateDelivered {
		return nil, errors.InvalidState(m.State().String(), StateDelivered.String()).
			WithDetail("reason", fmt.Sprintf("pass %d ended without delivery", pass))
	}
	stats.Bytes = c.sink.LastDelivered()
	c.log.Debug("pass delivered", logger.Fields(
		logger.FieldPass, pass,
		logger.FieldDomains, ids,
		logger.FieldDuration, stats.Duration.String(),
	))
	return stats, nil
}

func phaseState(p flow.Phase) State {
	switch p {
	case flow.PhaseFetching:
		return StateFetching
	case flow.PhaseTransforming:
		return StateTransforming
	default:
		return StateDelivered
	}
}

func (c *Controller) cleanup(ctx context.Context, sched Scheduler) {
	ctx = context.WithoutCancel(ctx)
	c.sink.StreamingCleanUp(ctx)
	if sched.Mode() == ModeDynamic {
		c.sink.DynamicLoadBalanceCleanUp(ctx)
	}
}
