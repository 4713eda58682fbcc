// Package sources provides the readers that originate meshflow pipelines.
//
// Every reader implements flow.DatasetReader or flow.ImageReader and is
// wrapped in a flow.Source, which handles negotiation, verification, retry
// and extents bookkeeping. Readers only return fragments of requested
// domains and materials, with the requested variables.
//
//   - Memory serves fragments held in memory, per timestep.
//   - File reads a YAML manifest and per-domain YAML mesh files through a
//     resource.Manager.
//   - Remote fetches from a meshflow worker over HTTP.
//   - CachedImage serves rendered images, re-rendering only when the
//     request changes.
package sources
