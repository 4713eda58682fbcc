package flow

import "github.com/kbukum/meshflow/dataobject"

// StageKind is the closed set of stage kinds.
type StageKind int

const (
	KindDatasetSource StageKind = iota
	KindImageSource
	KindFilter
	KindFacade
	KindSink
)

// Role is the position a stage takes in a pipeline.
type Role int

const (
	RoleOriginating Role = iota
	RoleIntermediate
	RoleTerminating
)

func (r Role) String() string {
	switch r {
	case RoleOriginating:
		return "originating"
	case RoleTerminating:
		return "terminating"
	default:
		return "intermediate"
	}
}

// Descriptor is the static description of a stage kind.
type Descriptor struct {
	Kind      StageKind
	Name      string
	Role      Role
	HasInput  bool
	HasOutput bool
	// Payload is the data object kind the stage emits; sinks emit nothing.
	Payload     dataobject.Kind
	Description string
}

var descriptors = [...]Descriptor{
	KindDatasetSource: {
		Kind: KindDatasetSource, Name: "dataset-source", Role: RoleOriginating,
		HasOutput: true, Payload: dataobject.KindMeshCollection,
		Description: "fetches the requested domains of a dataset into a data tree",
	},
	KindImageSource: {
		Kind: KindImageSource, Name: "image-source", Role: RoleOriginating,
		HasOutput: true, Payload: dataobject.KindImage,
		Description: "fetches a previously rendered or cached image",
	},
	KindFilter: {
		Kind: KindFilter, Name: "filter", Role: RoleIntermediate,
		HasInput: true, HasOutput: true, Payload: dataobject.KindMeshCollection,
		Description: "rewrites the contract upstream and transforms data downstream",
	},
	KindFacade: {
		Kind: KindFacade, Name: "facade", Role: RoleIntermediate,
		HasInput: true, HasOutput: true, Payload: dataobject.KindMeshCollection,
		Description: "a private chain of filters presented as one filter",
	},
	KindSink: {
		Kind: KindSink, Name: "sink", Role: RoleTerminating,
		HasInput: true, Payload: dataobject.KindEmpty,
		Description: "consumes the final data object of a pass",
	},
}

// Descriptor returns the static descriptor of k.
func (k StageKind) Descriptor() Descriptor {
	if k < 0 || int(k) >= len(descriptors) {
		return Descriptor{Kind: k, Name: "unknown", Role: RoleIntermediate}
	}
	return descriptors[k]
}

func (k StageKind) String() string { return k.Descriptor().Name }

// Descriptors returns the descriptor table in kind order.
func Descriptors() []Descriptor {
	return append([]Descriptor(nil), descriptors[:]...)
}

// PipelineRole is implemented by every stage.
type PipelineRole interface {
	Role() Role
}

// DatasetCarrier is implemented by stages whose output shape is known before
// execution. A source is both a DatasetCarrier and an originating
// PipelineRole; its verifier belongs to the originating role.
type DatasetCarrier interface {
	PayloadKind() dataobject.Kind
}
