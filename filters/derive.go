package filters

import (
	"context"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/errors"
)

// Op combines the input fields of a DerivedVariable element by element.
type Op string

const (
	OpScale     Op = "scale"
	OpSum       Op = "sum"
	OpProduct   Op = "product"
	OpMagnitude Op = "magnitude"
)

// DerivedVariable computes a new field from existing ones. Its inputs are
// added to the contract so the source reads them even when nothing
// downstream asked for them, and the output is marked as produced here.
type DerivedVariable struct {
	stage  string
	output string
	inputs []string
	op     Op
	factor float64
}

// NewDerivedVariable creates a filter computing output = factor * op(inputs).
// A zero factor means 1. OpScale takes exactly one input.
func NewDerivedVariable(stage, output string, op Op, factor float64, inputs ...string) (*DerivedVariable, error) {
	switch {
	case output == "":
		return nil, errors.InvalidInput("output", "derived variable needs a name")
	case len(inputs) == 0:
		return nil, errors.InvalidInput("inputs", output+" has no inputs")
	case slices.Contains(inputs, output):
		return nil, errors.InvalidInput("inputs", output+" cannot depend on itself")
	}
	switch op {
	case OpScale:
		if len(inputs) != 1 {
			return nil, errors.InvalidInput("inputs", "scale takes exactly one input")
		}
	case OpSum, OpProduct, OpMagnitude:
	default:
		return nil, errors.InvalidInput("op", fmt.Sprintf("unknown op %q", op))
	}
	if factor == 0 {
		factor = 1
	}
	return &DerivedVariable{stage: stage, output: output, inputs: slices.Clone(inputs), op: op, factor: factor}, nil
}

// Output returns the name of the computed variable.
func (d *DerivedVariable) Output() string { return d.output }

func (d *DerivedVariable) ModifyContract(_ context.Context, c *contract.Contract) (*contract.Contract, error) {
	if v, ok := c.Variable(d.output); ok && v.ProducedBy != "" && v.ProducedBy != d.stage {
		return nil, errors.IncompatibleContract(d.stage, fmt.Sprintf("%s is already produced by %s", d.output, v.ProducedBy))
	}
	for _, in := range d.inputs {
		c = c.WithVariable(in, contract.CenteringUnknown)
	}
	return c.WithDerivedVariable(d.output, d.stage), nil
}

func (d *DerivedVariable) ExecuteData(_ context.Context, f datatree.Fragment) ([]datatree.Fragment, error) {
	first, ok := f.Mesh.Field(d.inputs[0])
	if !ok {
		return nil, fmt.Errorf("missing input %s", d.inputs[0])
	}
	out := slices.Clone(first.Values)
	if d.op == OpMagnitude {
		floats.Mul(out, out)
	}
	for _, name := range d.inputs[1:] {
		field, ok := f.Mesh.Field(name)
		if !ok {
			return nil, fmt.Errorf("missing input %s", name)
		}
		if field.Centering != first.Centering || len(field.Values) != len(out) {
			return nil, fmt.Errorf("input %s does not match %s", name, d.inputs[0])
		}
		switch d.op {
		case OpSum:
			floats.Add(out, field.Values)
		case OpProduct:
			floats.Mul(out, field.Values)
		case OpMagnitude:
			sq := slices.Clone(field.Values)
			floats.Mul(sq, sq)
			floats.Add(out, sq)
		}
	}
	if d.op == OpMagnitude {
		for i, v := range out {
			out[i] = math.Sqrt(v)
		}
	}
	floats.Scale(d.factor, out)
	f.Mesh = f.Mesh.WithField(d.output, datatree.Field{Centering: first.Centering, Values: out})
	return []datatree.Fragment{f}, nil
}

func (d *DerivedVariable) UpdateAttributes(a dataobject.Attributes) dataobject.Attributes {
	v := contract.Variable{Name: d.output, ProducedBy: d.stage}
	if in, ok := a.Variable(d.inputs[0]); ok {
		v.Centering = in.Centering
	}
	return a.WithVariable(v)
}
