// Package definition loads YAML pipeline definitions and builds them into
// flow stages.
//
// A definition names a source, a filter chain and a sink by registry key:
//
//	name: temperature-extents
//	source:
//	  component: file
//	  params: {dir: ./data}
//	filters:
//	  - component: derive
//	    params: {output: temperature_scaled, inputs: [temperature, pressure], op: product}
//	  - include: smoothing
//	sink:
//	  component: extents
//	contract:
//	  variables: [{name: temperature_scaled, centering: nodal}]
//	domains: [0, 1, 2]
//	schedule:
//	  mode: streaming
//	  chunk_size: 1
//
// An include entry refers to another definition by name; its filter chain
// is built as a facade in place of the entry. Includes may nest; cycles are
// rejected.
package definition
