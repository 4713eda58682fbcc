// Package flow implements the stages of a demand-driven pipeline.
//
// A pass starts at a Sink. Sink.Execute hands its contract to its input,
// and every Filter on the way upstream rewrites the contract into what its
// own input must satisfy (ModifyContract) before asking further. The Source
// at the top fetches exactly what the final contract asks for, verifies it,
// and returns a data object. Execution then unwinds downstream: each Filter
// transforms the object it received, releases it, and returns its own
// output, until the Sink consumes the result.
//
//	src := flow.NewDatasetSource("reader", reader)
//	derived, _ := flow.NewFilter("scale", filters.NewDerivedVariable(...), src)
//	sink := flow.NewSink("query", query, derived)
//	err := sink.Execute(ctx, contract.New(contract.Variable{Name: "temperature_scaled"}))
//
// Per-fragment failures are handled by each stage's failure Policy; contract
// and transport failures always abort the pass. Warnings for dropped
// fragments are collected in the Report carried by the context.
package flow
