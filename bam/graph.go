// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package bam

// Handle identifies an object within one Graph. Handles are 1-based table
// indices; the zero value Null is the "no object" sentinel and never names
// a real object.
type Handle uint32

// Null is the handle a null pointer slot resolves to.
const Null Handle = 0

// Valid reports whether the handle names an object.
func (h Handle) Valid() bool {
	return h != Null
}

type slot struct {
	object     Object
	typeID     uint16
	typeName   string
	version    Version
	targets    []Handle
	unresolved bool
}

// Graph is a fully decoded, fully linked object table. It is immutable
// once Decode returns and safe for concurrent reads.
type Graph struct {
	version  Version
	slots    []slot
	roots    []Handle
	warnings []string
}

// Version returns the stream version the graph was decoded from.
func (g *Graph) Version() Version {
	return g.version
}

// Len returns the number of objects in the table.
func (g *Graph) Len() int {
	return len(g.slots)
}

// Roots returns the graph's root handles.
func (g *Graph) Roots() []Handle {
	return g.roots
}

// Get returns the object behind a handle. It returns nil, false for Null,
// out-of-range handles, and slots left unresolved by the lenient
// unknown-type policy.
func (g *Graph) Get(h Handle) (Object, bool) {
	s, ok := g.slot(h)
	if !ok || s.unresolved {
		return nil, false
	}
	return s.object, true
}

// TypeName returns the registered name of the object's type, or "" for
// handles that do not name a resolved object.
func (g *Graph) TypeName(h Handle) string {
	s, ok := g.slot(h)
	if !ok {
		return ""
	}
	return s.typeName
}

// Pointers returns the object's resolved pointer targets in slot order.
// Null entries are preserved. The slice is shared; do not modify it.
func (g *Graph) Pointers(h Handle) []Handle {
	s, ok := g.slot(h)
	if !ok {
		return nil
	}
	return s.targets
}

// Unresolved reports whether the handle names a slot whose type was
// unknown and skipped under the lenient policy.
func (g *Graph) Unresolved(h Handle) bool {
	s, ok := g.slot(h)
	return ok && s.unresolved
}

// Warnings returns non-fatal notes collected during decode, such as
// objects carrying versions newer than any registered layout.
func (g *Graph) Warnings() []string {
	return g.warnings
}

func (g *Graph) slot(h Handle) (*slot, bool) {
	if h == Null || int(h) > len(g.slots) {
		return nil, false
	}
	return &g.slots[h-1], true
}
