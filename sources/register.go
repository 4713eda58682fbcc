package sources

import (
	"github.com/kbukum/meshflow/definition"
	"github.com/kbukum/meshflow/flow"
)

type linesParams struct {
	Domains int `yaml:"domains" validate:"gte=1"`
	Cells   int `yaml:"cells" validate:"gte=0"`
}

type fileParams struct {
	Manifest string `yaml:"manifest" validate:"required"`
}

type imageParams struct {
	Width  int     `yaml:"width" validate:"gte=1"`
	Height int     `yaml:"height" validate:"gte=1"`
	Color  [4]byte `yaml:"color"`
}

// Register adds the "lines", "file", "remote" and "image" source components.
func Register(r *definition.Registry) {
	r.RegisterSource("lines", func(env definition.Env, def definition.StageDef) (flow.Producer, error) {
		p := linesParams{Domains: 1, Cells: 1}
		if err := def.Params.Decode(&p); err != nil {
			return nil, err
		}
		return dataset(env, def, NewMemory(Lines(p.Domains, p.Cells)...))
	})
	r.RegisterSource("file", func(env definition.Env, def definition.StageDef) (flow.Producer, error) {
		var p fileParams
		if err := def.Params.Decode(&p); err != nil {
			return nil, err
		}
		f, err := NewFile(p.Manifest, nil)
		if err != nil {
			return nil, err
		}
		return dataset(env, def, f)
	})
	r.RegisterSource("remote", func(env definition.Env, def definition.StageDef) (flow.Producer, error) {
		var cfg RemoteConfig
		if err := def.Params.Decode(&cfg); err != nil {
			return nil, err
		}
		return dataset(env, def, NewRemote(cfg))
	})
	r.RegisterSource("image", func(env definition.Env, def definition.StageDef) (flow.Producer, error) {
		p := imageParams{Width: 1, Height: 1, Color: [4]byte{0, 0, 0, 255}}
		if err := def.Params.Decode(&p); err != nil {
			return nil, err
		}
		opts, err := options(env, def)
		if err != nil {
			return nil, err
		}
		return flow.NewImageSource(def.StageName(), NewCachedImage(SolidImage(p.Width, p.Height, p.Color)), opts...), nil
	})
}

func dataset(env definition.Env, def definition.StageDef, r flow.DatasetReader) (flow.Producer, error) {
	opts, err := options(env, def)
	if err != nil {
		return nil, err
	}
	return flow.NewDatasetSource(def.StageName(), r, opts...), nil
}

func options(env definition.Env, def definition.StageDef) ([]flow.SourceOption, error) {
	var opts []flow.SourceOption
	if env.Logger != nil {
		opts = append(opts, flow.WithSourceLogger(env.Logger))
	}
	if env.Tracker != nil {
		opts = append(opts, flow.WithTracker(env.Tracker))
	}
	if def.Policy != "" {
		p, err := def.ParsedPolicy()
		if err != nil {
			return nil, err
		}
		opts = append(opts, flow.WithSourcePolicy(p))
	}
	return opts, nil
}
