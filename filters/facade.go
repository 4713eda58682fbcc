package filters

import (
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
)

// Step builds one stage of a composite filter on top of in.
type Step func(in flow.Producer) (flow.Producer, error)

// Use wraps impl into a filter step.
func Use(name string, impl any, opts ...flow.FilterOption) Step {
	return func(in flow.Producer) (flow.Producer, error) {
		return flow.NewFilter(name, impl, in, opts...)
	}
}

// Compose presents steps, applied in order, as one filter named name.
func Compose(name string, input flow.Producer, steps ...Step) (*flow.Facade, error) {
	if len(steps) == 0 {
		return nil, errors.InvalidInput("steps", "composite "+name+" has no steps")
	}
	return flow.NewFacade(name, input, func(in flow.Producer) (flow.Producer, error) {
		cur := in
		for _, step := range steps {
			next, err := step(cur)
			if err != nil {
				return nil, err
			}
			cur = next
		}
		return cur, nil
	})
}

// Magnitude is a composite computing the magnitude of the component fields
// into output and cutting every fragment into pieces for downstream stages.
func Magnitude(name, output string, pieces int, input flow.Producer, components []string, opts ...flow.FilterOption) (*flow.Facade, error) {
	derive, err := NewDerivedVariable(name+"/magnitude", output, OpMagnitude, 1, components...)
	if err != nil {
		return nil, err
	}
	return Compose(name, input,
		Use(name+"/magnitude", derive, opts...),
		Use(name+"/split", NewCellSplit(pieces), opts...),
	)
}
