package sinks

import (
	"github.com/kbukum/meshflow/codec"
	"github.com/kbukum/meshflow/definition"
	"github.com/kbukum/meshflow/flow"
)

// Summarizer is implemented by consumers that can describe their result.
type Summarizer interface {
	Summary() map[string]any
}

type sumParams struct {
	Variable string `yaml:"variable" validate:"required"`
}

type exportParams struct {
	Dir   string       `yaml:"dir" validate:"required"`
	Codec codec.Config `yaml:"codec"`
}

// Register adds the "extents", "sum", "collect" and "export" consumers.
func Register(r *definition.Registry) {
	r.RegisterConsumer("extents", func(_ definition.Env, def definition.StageDef) (flow.Consumer, error) {
		if err := def.Params.Decode(&struct{}{}); err != nil {
			return nil, err
		}
		return NewExtentsQuery(), nil
	})
	r.RegisterConsumer("sum", func(_ definition.Env, def definition.StageDef) (flow.Consumer, error) {
		var p sumParams
		if err := def.Params.Decode(&p); err != nil {
			return nil, err
		}
		return NewSumQuery(p.Variable), nil
	})
	r.RegisterConsumer("collect", func(_ definition.Env, def definition.StageDef) (flow.Consumer, error) {
		if err := def.Params.Decode(&struct{}{}); err != nil {
			return nil, err
		}
		return NewCollector(), nil
	})
	r.RegisterConsumer("export", func(_ definition.Env, def definition.StageDef) (flow.Consumer, error) {
		var p exportParams
		if err := def.Params.Decode(&p); err != nil {
			return nil, err
		}
		return NewExporter(p.Dir, p.Codec)
	})
}

func (q *ExtentsQuery) Summary() map[string]any {
	res := q.Result()
	if res == nil {
		p := q.Partial()
		res = &p
	}
	out := map[string]any{"spatial": res.Spatial.Bounds()}
	for name, e := range res.Data {
		out["data."+name] = e.Bounds()
	}
	return out
}

func (q *SumQuery) Summary() map[string]any {
	s := q.Partial()
	if res := q.Result(); res != nil {
		s = *res
	}
	return map[string]any{"variable": q.variable, "total": s.Total, "count": s.Count, "mean": s.Mean()}
}

func (c *Collector) Summary() map[string]any {
	return map[string]any{"deliveries": len(c.Deliveries()), "domains": c.Domains()}
}

func (e *Exporter) Summary() map[string]any {
	return map[string]any{"dir": e.dir, "files": len(e.Files())}
}
