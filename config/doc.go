// Package config loads meshflow configuration.
//
// Values come from a YAML file found next to the binary or under config/,
// then from a .env file, then from the environment, each overriding the
// previous. Environment keys map onto nested keys by underscores, so
// MESHFLOW_ENGINE_CHUNK_SIZE and ENGINE_CHUNK_SIZE both set engine.chunk_size.
//
//	cfg, err := config.Load("meshflow", config.WithConfigFile("meshflow.yml"))
//
// Load applies defaults and validates every section; LoadConfig only
// unmarshals, for callers bringing their own struct.
package config
