// Package errors provides the pipeline error taxonomy.
//
// Every failure crossing a stage boundary is an *AppError carrying a Kind
// (fragment, contract, transport, resource, internal) and a machine-readable
// code. Callers pattern-match on the kind instead of relying on where the
// error was caught:
//
//	obj, err := sink.Execute(ctx, c)
//	switch errors.KindOf(err) {
//	case errors.KindFragment:
//	    // recovered locally unless the stage declared it fatal
//	case errors.KindContract, errors.KindTransport:
//	    // pass aborted, no partial result
//	}
package errors
