package loadbalance

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
)

// RankFactory builds the private pipeline instance of one rank. Ranks never
// share stage instances.
type RankFactory func(rank int, comm Communicator) (*Controller, error)

// RunGroup runs one logical execution on ranks goroutines connected by a
// LocalGroup and returns the per-rank results indexed by rank. The first
// failing rank's error is returned; the group is closed on failure so that no
// rank stays blocked in a collective.
func RunGroup(ctx context.Context, ranks int, build RankFactory, req *contract.Contract, domains []int) ([]*Result, error) {
	group := NewLocalGroup(ranks)
	members := group.Members()

	controllers := make([]*Controller, len(members))
	for r, comm := range members {
		c, err := build(r, comm)
		if err != nil {
			return nil, err
		}
		controllers[r] = c
	}

	results := make([]*Result, len(members))
	g, gctx := errgroup.WithContext(ctx)
	for r, c := range controllers {
		g.Go(func() error {
			res, err := c.Run(gctx, req, domains)
			results[r] = res
			if errors.Is(err, ErrPeerFailed) {
				return nil
			}
			if err != nil {
				group.Close()
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Warnings merges the reports of all ranks.
func Warnings(results []*Result) []flow.Warning {
	var out []flow.Warning
	for _, r := range results {
		if r != nil && r.Report != nil {
			out = append(out, r.Report.Warnings()...)
		}
	}
	return out
}
