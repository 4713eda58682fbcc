// Package validation validates configuration, pipeline definitions and
// contract requests.
//
// Struct tag validation uses go-playground/validator; programmatic checks
// collect field errors and convert them to a single *errors.AppError.
//
//	type EngineConfig struct {
//	    Ranks int `validate:"min=1"`
//	}
//	err := validation.Validate(cfg)
//
//	v := validation.New()
//	v.Check(name != "", "name", "is required")
//	err := v.Validate()
package validation
