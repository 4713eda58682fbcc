// Package dataobject defines the reference-counted unit of data flowing along
// a pipeline edge.
//
// An Object is one of three kinds (mesh collection, image, empty) fixed at
// construction. The producer holds the first reference; every stage or
// consumer that keeps the object beyond the call that handed it over must
// Retain it and later Release it. The last Release drops the payload.
package dataobject

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/errors"
)

// Kind is the payload variant of an Object.
type Kind int

const (
	KindEmpty Kind = iota
	KindMeshCollection
	KindImage
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindMeshCollection:
		return "mesh"
	case KindImage:
		return "image"
	default:
		return "empty"
	}
}

// Image is a rendered or cached raster payload.
type Image struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Pixels []byte    `json:"pixels"`          // RGBA, row-major
	Depth  []float32 `json:"depth,omitempty"` // optional z-buffer
}

// SizeBytes returns the payload size.
func (img *Image) SizeBytes() int64 {
	return int64(len(img.Pixels) + 4*len(img.Depth))
}

// Check reports whether the buffers match the declared size.
func (img *Image) Check() error {
	if img.Width < 0 || img.Height < 0 {
		return fmt.Errorf("negative image size %dx%d", img.Width, img.Height)
	}
	if len(img.Pixels) != 4*img.Width*img.Height {
		return fmt.Errorf("image %dx%d has %d pixel bytes", img.Width, img.Height, len(img.Pixels))
	}
	if img.Depth != nil && len(img.Depth) != img.Width*img.Height {
		return fmt.Errorf("image %dx%d has %d depth values", img.Width, img.Height, len(img.Depth))
	}
	return nil
}

// Object is a reference-counted, kind-tagged payload.
type Object struct {
	id      uuid.UUID
	kind    Kind
	source  string
	attrs   Attributes
	tree    *datatree.Tree
	image   *Image
	size    int64
	refs    atomic.Int32
	tracker *Tracker
}

// Option configures a new Object.
type Option func(*Object)

// WithTracker counts the object in t while it is alive.
func WithTracker(t *Tracker) Option {
	return func(o *Object) { o.tracker = t }
}

func newObject(kind Kind, source string, attrs Attributes, opts []Option) *Object {
	o := &Object{id: uuid.New(), kind: kind, source: source, attrs: attrs.Clone()}
	for _, opt := range opts {
		opt(o)
	}
	o.refs.Store(1)
	return o
}

// NewEmpty creates an object meaning "no data produced".
func NewEmpty(source string, opts ...Option) *Object {
	o := newObject(KindEmpty, source, Attributes{}, opts)
	o.tracker.add(0)
	return o
}

// NewMesh creates a mesh-collection object owning tree.
func NewMesh(source string, tree *datatree.Tree, attrs Attributes, opts ...Option) *Object {
	o := newObject(KindMeshCollection, source, attrs, opts)
	o.tree = tree
	o.size = tree.SizeBytes()
	o.tracker.add(o.size)
	return o
}

// NewImage creates an image object owning img.
func NewImage(source string, img *Image, attrs Attributes, opts ...Option) *Object {
	o := newObject(KindImage, source, attrs, opts)
	o.image = img
	if img != nil {
		o.size = img.SizeBytes()
	}
	o.tracker.add(o.size)
	return o
}

// DeriveMesh creates a mesh object produced from o, sharing o's tracker.
func (o *Object) DeriveMesh(source string, tree *datatree.Tree, attrs Attributes) *Object {
	return NewMesh(source, tree, attrs, WithTracker(o.tracker))
}

// DeriveImage creates an image object produced from o, sharing o's tracker.
func (o *Object) DeriveImage(source string, img *Image, attrs Attributes) *Object {
	return NewImage(source, img, attrs, WithTracker(o.tracker))
}

// DeriveEmpty creates an empty object produced from o, sharing o's tracker.
func (o *Object) DeriveEmpty(source string) *Object {
	return NewEmpty(source, WithTracker(o.tracker))
}

// Tracker returns the tracker the object is counted in, possibly nil.
func (o *Object) Tracker() *Tracker { return o.tracker }

// ID returns the unique object id.
func (o *Object) ID() uuid.UUID { return o.id }

// Kind returns the payload variant.
func (o *Object) Kind() Kind { return o.kind }

// Source returns the name of the stage that produced the object.
func (o *Object) Source() string { return o.source }

// Attributes returns a copy of the metadata describing the payload.
func (o *Object) Attributes() Attributes { return o.attrs.Clone() }

// SizeBytes returns the payload size recorded at construction.
func (o *Object) SizeBytes() int64 { return o.size }

// IsEmpty reports whether the object carries no data.
func (o *Object) IsEmpty() bool {
	switch o.kind {
	case KindMeshCollection:
		return o.tree.IsEmpty()
	case KindImage:
		return o.image == nil
	default:
		return true
	}
}

// Tree returns the mesh payload, or a type-mismatch error for other kinds.
func (o *Object) Tree() (*datatree.Tree, error) {
	if o.kind != KindMeshCollection {
		return nil, errors.TypeMismatch(o.source, KindMeshCollection.String(), o.kind.String())
	}
	o.mustBeLive()
	return o.tree, nil
}

// Image returns the image payload, or a type-mismatch error for other kinds.
func (o *Object) Image() (*Image, error) {
	if o.kind != KindImage {
		return nil, errors.TypeMismatch(o.source, KindImage.String(), o.kind.String())
	}
	o.mustBeLive()
	return o.image, nil
}

// Retain adds a reference and returns o.
func (o *Object) Retain() *Object {
	if o.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("dataobject: retain of released object %s", o.id))
	}
	return o
}

// Release drops a reference. The last release frees the payload.
func (o *Object) Release() {
	n := o.refs.Add(-1)
	switch {
	case n == 0:
		o.tree = nil
		o.image = nil
		o.tracker.remove(o.size)
	case n < 0:
		panic(fmt.Sprintf("dataobject: release of released object %s", o.id))
	}
}

// RefCount returns the current number of references.
func (o *Object) RefCount() int { return int(o.refs.Load()) }

// Released reports whether the payload has been freed.
func (o *Object) Released() bool { return o.refs.Load() <= 0 }

func (o *Object) mustBeLive() {
	if o.Released() {
		panic(fmt.Sprintf("dataobject: use of released object %s", o.id))
	}
}

// String formats the object for logs.
func (o *Object) String() string {
	return fmt.Sprintf("%s[%s from %s, %d bytes, refs=%d]", o.kind, o.id.String()[:8], o.source, o.size, o.RefCount())
}
