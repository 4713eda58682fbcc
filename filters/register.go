package filters

import (
	"github.com/kbukum/meshflow/definition"
	"github.com/kbukum/meshflow/flow"
)

type deriveParams struct {
	Output string   `yaml:"output" validate:"required"`
	Inputs []string `yaml:"inputs" validate:"required,min=1,dive,required"`
	Op     string   `yaml:"op" validate:"omitempty,oneof=scale sum product magnitude"`
	Factor float64  `yaml:"factor"`
}

type ghostParams struct {
	Width   int  `yaml:"width" validate:"gte=0,lte=16"`
	Require bool `yaml:"require"`
}

type scaleParams struct {
	Factors []float64 `yaml:"factors" validate:"required,min=1,max=3"`
}

type splitParams struct {
	Pieces int `yaml:"pieces" validate:"gte=1"`
}

type magnitudeParams struct {
	Output     string   `yaml:"output" validate:"required"`
	Components []string `yaml:"components" validate:"required,min=1,dive,required"`
	Pieces     int      `yaml:"pieces" validate:"gte=1"`
}

// Register adds the "derive", "ghost", "scale", "split", "append" and
// "magnitude" filter components.
func Register(r *definition.Registry) {
	r.RegisterFilter("derive", func(env definition.Env, def definition.StageDef, in flow.Producer) (flow.Producer, error) {
		p := deriveParams{Op: string(OpSum)}
		if err := def.Params.Decode(&p); err != nil {
			return nil, err
		}
		d, err := NewDerivedVariable(def.StageName(), p.Output, Op(p.Op), p.Factor, p.Inputs...)
		if err != nil {
			return nil, err
		}
		return build(env, def, d, in)
	})
	r.RegisterFilter("ghost", func(env definition.Env, def definition.StageDef, in flow.Producer) (flow.Producer, error) {
		p := ghostParams{Width: 1}
		if err := def.Params.Decode(&p); err != nil {
			return nil, err
		}
		return build(env, def, NewGhostRequirement(p.Width, p.Require), in)
	})
	r.RegisterFilter("scale", func(env definition.Env, def definition.StageDef, in flow.Producer) (flow.Producer, error) {
		var p scaleParams
		if err := def.Params.Decode(&p); err != nil {
			return nil, err
		}
		s, err := NewScale(p.Factors...)
		if err != nil {
			return nil, err
		}
		return build(env, def, s, in)
	})
	r.RegisterFilter("split", func(env definition.Env, def definition.StageDef, in flow.Producer) (flow.Producer, error) {
		p := splitParams{Pieces: 2}
		if err := def.Params.Decode(&p); err != nil {
			return nil, err
		}
		return build(env, def, NewCellSplit(p.Pieces), in)
	})
	r.RegisterFilter("append", func(env definition.Env, def definition.StageDef, in flow.Producer) (flow.Producer, error) {
		if err := def.Params.Decode(&struct{}{}); err != nil {
			return nil, err
		}
		return build(env, def, NewAppend(def.StageName()), in)
	})
	r.RegisterFilter("magnitude", func(env definition.Env, def definition.StageDef, in flow.Producer) (flow.Producer, error) {
		p := magnitudeParams{Pieces: 1}
		if err := def.Params.Decode(&p); err != nil {
			return nil, err
		}
		opts, err := options(env, def)
		if err != nil {
			return nil, err
		}
		return Magnitude(def.StageName(), p.Output, p.Pieces, in, p.Components, opts...)
	})
}

func build(env definition.Env, def definition.StageDef, impl any, in flow.Producer) (flow.Producer, error) {
	opts, err := options(env, def)
	if err != nil {
		return nil, err
	}
	return flow.NewFilter(def.StageName(), impl, in, opts...)
}

func options(env definition.Env, def definition.StageDef) ([]flow.FilterOption, error) {
	var opts []flow.FilterOption
	if env.Logger != nil {
		opts = append(opts, flow.WithFilterLogger(env.Logger))
	}
	if def.Policy != "" {
		p, err := def.ParsedPolicy()
		if err != nil {
			return nil, err
		}
		opts = append(opts, flow.WithFilterPolicy(p))
	}
	return opts, nil
}
