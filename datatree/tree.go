// Package datatree holds the recursive, domain-addressed container of mesh
// fragments carried by a mesh data object.
//
// Trees are persistent: Map, Prune and Merge return new trees and share every
// subtree they did not change, so a filter that replaces a few leaves never
// copies the rest.
package datatree

import (
	"slices"
)

// Fragment is one leaf: a mesh piece belonging to a domain.
type Fragment struct {
	Domain int    `json:"domain"`
	Label  string `json:"label,omitempty"`
	Mesh   *Mesh  `json:"mesh"`
}

// Tree is either a leaf holding a fragment or an interior node with children.
// A nil *Tree is a valid empty tree.
type Tree struct {
	label    string
	leaf     *Fragment
	children []*Tree
}

// Leaf wraps one fragment.
func Leaf(f Fragment) *Tree {
	return &Tree{leaf: &f}
}

// Node builds an interior node. Nil and empty children are dropped.
func Node(label string, children ...*Tree) *Tree {
	t := &Tree{label: label}
	for _, c := range children {
		if !c.IsEmpty() {
			t.children = append(t.children, c)
		}
	}
	return t
}

// FromFragments builds a flat tree with one leaf per fragment, in order.
func FromFragments(frags ...Fragment) *Tree {
	leaves := make([]*Tree, len(frags))
	for i, f := range frags {
		leaves[i] = Leaf(f)
	}
	return Node("", leaves...)
}

// IsEmpty reports whether the tree holds no leaves.
func (t *Tree) IsEmpty() bool {
	if t == nil {
		return true
	}
	if t.leaf != nil {
		return false
	}
	for _, c := range t.children {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// IsLeaf reports whether t is a single leaf.
func (t *Tree) IsLeaf() bool { return t != nil && t.leaf != nil }

// Label returns the node label; leaves report their fragment label.
func (t *Tree) Label() string {
	if t == nil {
		return ""
	}
	if t.leaf != nil {
		return t.leaf.Label
	}
	return t.label
}

// Fragment returns the leaf fragment.
func (t *Tree) Fragment() (Fragment, bool) {
	if !t.IsLeaf() {
		return Fragment{}, false
	}
	return *t.leaf, true
}

// Children returns the direct children of an interior node.
func (t *Tree) Children() []*Tree {
	if t == nil {
		return nil
	}
	return slices.Clone(t.children)
}

// Leaves returns every fragment in depth-first order.
func (t *Tree) Leaves() []Fragment {
	var out []Fragment
	t.walk(func(f Fragment) { out = append(out, f) })
	return out
}

// NumLeaves counts the fragments.
func (t *Tree) NumLeaves() int {
	n := 0
	t.walk(func(Fragment) { n++ })
	return n
}

// Domains returns the sorted, distinct domain ids present.
func (t *Tree) Domains() []int {
	var ids []int
	t.walk(func(f Fragment) { ids = append(ids, f.Domain) })
	slices.Sort(ids)
	return slices.Compact(ids)
}

// SizeBytes sums the mesh sizes of all leaves.
func (t *Tree) SizeBytes() int64 {
	var n int64
	t.walk(func(f Fragment) {
		if f.Mesh != nil {
			n += f.Mesh.SizeBytes()
		}
	})
	return n
}

// Map applies fn to every leaf and returns the rebuilt tree. A leaf mapped to
// no fragments disappears; a leaf mapped to several becomes a node labelled
// like the original leaf. Subtrees whose leaves all come back unchanged are
// shared with t. Map stops at the first error.
func (t *Tree) Map(fn func(Fragment) ([]Fragment, error)) (*Tree, error) {
	if t == nil {
		return nil, nil
	}
	if t.leaf != nil {
		out, err := fn(*t.leaf)
		if err != nil {
			return nil, err
		}
		switch len(out) {
		case 0:
			return nil, nil
		case 1:
			if out[0] == *t.leaf {
				return t, nil
			}
			return Leaf(out[0]), nil
		default:
			return Node(t.leaf.Label, FromFragments(out...).children...), nil
		}
	}
	changed := false
	children := make([]*Tree, 0, len(t.children))
	for _, c := range t.children {
		mapped, err := c.Map(fn)
		if err != nil {
			return nil, err
		}
		if mapped != c {
			changed = true
		}
		children = append(children, mapped)
	}
	if !changed {
		return t, nil
	}
	return Node(t.label, children...), nil
}

// Prune returns the tree without the leaves for which keep is false.
func (t *Tree) Prune(keep func(Fragment) bool) *Tree {
	out, _ := t.Map(func(f Fragment) ([]Fragment, error) {
		if keep(f) {
			return []Fragment{f}, nil
		}
		return nil, nil
	})
	return out
}

// Merge returns a node holding t followed by others.
func (t *Tree) Merge(others ...*Tree) *Tree {
	return Node("", append([]*Tree{t}, others...)...)
}

func (t *Tree) walk(fn func(Fragment)) {
	if t == nil {
		return
	}
	if t.leaf != nil {
		fn(*t.leaf)
		return
	}
	for _, c := range t.children {
		c.walk(fn)
	}
}
