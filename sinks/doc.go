// Package sinks provides consumers that terminate pipelines.
//
// ExtentsQuery and SumQuery accumulate over every pass of an execution and
// implement loadbalance.Finalizer, so that after the last pass each rank
// holds the result over all ranks. Collector keeps delivered objects for
// inspection; Exporter writes them as codec frames.
package sinks
