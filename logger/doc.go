// Package logger provides structured logging for meshflow using zerolog.
//
// Stages, the load-balance controller and the worker each take a component
// logger; pass-scoped loggers carry the pipeline index, pass number and rank
// so that interleaved output from cooperating ranks can be told apart.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.GetGlobalLogger().WithStage("source").WithPass(3, 0)
//	log.Debug("domain fetched", logger.Fields(logger.FieldDomain, 2))
package logger
