package definition

import (
	"github.com/go-viper/mapstructure/v2"

	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/validation"
)

// Params holds a stage's free-form parameters.
type Params map[string]any

// Decode copies p into the struct out, matching yaml tags and converting
// scalar types where needed, then validates out.
func (p Params) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           out,
	})
	if err != nil {
		return errors.Internal(err)
	}
	if err := dec.Decode(map[string]any(p)); err != nil {
		return errors.InvalidInput("params", err.Error())
	}
	return validation.Validate(out)
}

// String returns a string parameter or def.
func (p Params) String(key, def string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return def
}
