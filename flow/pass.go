package flow

import (
	"context"
	"slices"

	"github.com/kbukum/meshflow/contract"
)

// Phase is a step of a pass reported by the stages as it happens.
type Phase int

const (
	PhaseFetching Phase = iota
	PhaseTransforming
	PhaseDelivered
)

func (p Phase) String() string {
	switch p {
	case PhaseFetching:
		return "fetching"
	case PhaseTransforming:
		return "transforming"
	default:
		return "delivered"
	}
}

// PhaseObserver is told when a pass enters a phase.
type PhaseObserver func(ctx context.Context, p Phase) error

type phaseKey struct{}

// WithPhaseObserver stores fn in ctx.
func WithPhaseObserver(ctx context.Context, fn PhaseObserver) context.Context {
	return context.WithValue(ctx, phaseKey{}, fn)
}

func enterPhase(ctx context.Context, p Phase) error {
	if fn, ok := ctx.Value(phaseKey{}).(PhaseObserver); ok && fn != nil {
		return fn(ctx, p)
	}
	return nil
}

// PassInfo describes the pass a consumer is handed data for.
type PassInfo struct {
	PipelineIndex int
	Pass          int
	Rank          int
	Ranks         int
	// Domains assigned to this rank for the pass; nil when unrestricted.
	Domains  []int
	Contract *contract.Contract
}

type passInfoKey struct{}

// WithPassInfo stores info in ctx.
func WithPassInfo(ctx context.Context, info PassInfo) context.Context {
	info.Domains = slices.Clone(info.Domains)
	return context.WithValue(ctx, passInfoKey{}, info)
}

// PassInfoFrom returns the pass info in ctx. Outside a controller-driven
// pass it describes a single pass on a single rank.
func PassInfoFrom(ctx context.Context) PassInfo {
	if info, ok := ctx.Value(passInfoKey{}).(PassInfo); ok {
		return info
	}
	return PassInfo{Ranks: 1}
}
