package flow

import (
	"context"

	"github.com/kbukum/meshflow/errors"
)

// Policy decides what happens when a single fragment fails.
type Policy int

const (
	// PolicyDrop drops the failing fragment, records a warning and continues.
	PolicyDrop Policy = iota
	// PolicyFatal fails the whole pass.
	PolicyFatal
)

func (p Policy) String() string {
	if p == PolicyFatal {
		return "fatal"
	}
	return "drop"
}

// ParsePolicy parses "drop" or "fatal"; the empty string is drop.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "drop":
		return PolicyDrop, nil
	case "fatal":
		return PolicyFatal, nil
	}
	return PolicyDrop, errors.InvalidInput("policy", "must be drop or fatal, got "+s)
}

// PolicyDeclarer is implemented by filter and reader plugins that carry their
// own failure policy. An explicit policy option still wins.
type PolicyDeclarer interface {
	FailurePolicy() Policy
}

// recoverable reports whether err is a per-fragment failure that policy p
// allows dropping. Contract, transport and resource failures and
// cancellation always abort the pass.
func recoverable(p Policy, err error) bool {
	if p == PolicyFatal {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if _, ok := errors.AsAppError(err); !ok {
		return true
	}
	return errors.IsFragment(err)
}
