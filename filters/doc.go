// Package filters provides concrete pipeline filters built on the flow
// plugin interfaces, and Register, which adds them to a definition registry.
//
// Leaf filters (DerivedVariable, GhostRequirement, Scale, CellSplit) transform
// one fragment at a time and leave failure handling to the stage policy.
// Append works on the whole object and merges every fragment into one.
package filters
