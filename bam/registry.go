// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package bam

import (
	"fmt"

	"github.com/pkg/errors"
)

// Version is an object stream revision pair.
type Version struct {
	Major uint16
	Minor uint16
}

// Less reports whether v precedes other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Object is a decoded stream object. Fillin populates its non-pointer
// state from the record's field bytes; pointer-valued state arrives later
// through Linker, if implemented.
type Object interface {
	Fillin(d *Datagram, version Version) error
}

// Linker is implemented by objects that keep their resolved references.
// Link is called exactly once per pointer slot, in slot order, after every
// object in the stream has been decoded.
type Linker interface {
	Link(slot int, target Handle) error
}

// Factory constructs an empty Object ready for Fillin.
type Factory func() Object

type binding struct {
	min     Version
	max     Version
	name    string
	factory Factory
}

// Registry maps type ids discovered in object streams to construction and
// field-decoding logic. Populate it completely before the first decode;
// after that it must be treated as read-only, which makes concurrent
// lookups from parallel decodes safe without locking.
type Registry struct {
	types map[uint16][]binding
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[uint16][]binding)}
}

// Register associates a factory with typeID for stream versions min
// through max inclusive. A type id may be registered several times with
// disjoint ranges to express layout evolution; overlapping ranges are a
// configuration error and panic.
func (r *Registry) Register(typeID uint16, name string, min, max Version, factory Factory) {
	if max.Less(min) {
		panic(fmt.Sprintf("bam: type %q (%d): range %s..%s is inverted", name, typeID, min, max))
	}
	for _, b := range r.types[typeID] {
		if !max.Less(b.min) && !b.max.Less(min) {
			panic(fmt.Sprintf("bam: type %q (%d): range %s..%s overlaps %s..%s",
				name, typeID, min, max, b.min, b.max))
		}
	}
	r.types[typeID] = append(r.types[typeID], binding{min: min, max: max, name: name, factory: factory})
}

// Lookup finds the binding covering typeID at version. When version is
// newer than every registered range the newest binding is returned along
// with newest=true; the caller decodes with that layout and records a
// warning. Versions older than every registered range fail
// ErrUnsupportedVersion, and ids with no bindings at all fail
// ErrUnknownType.
func (r *Registry) Lookup(typeID uint16, version Version) (Factory, string, bool, error) {
	bindings := r.types[typeID]
	if len(bindings) == 0 {
		return nil, "", false, errors.Wrapf(ErrUnknownType, "type id %d", typeID)
	}

	var newest *binding
	for i := range bindings {
		b := &bindings[i]
		if !version.Less(b.min) && !b.max.Less(version) {
			return b.factory, b.name, false, nil
		}
		if newest == nil || newest.max.Less(b.max) {
			newest = b
		}
	}

	if version.Less(newest.min) {
		return nil, "", false, errors.Wrapf(ErrUnsupportedVersion,
			"type %q (%d) has no layout for version %s", newest.name, typeID, version)
	}
	return newest.factory, newest.name, true, nil
}

// DefaultRegistry is the registry Decode consults unless WithRegistry
// overrides it. Packages providing object types register themselves here
// from init functions.
var DefaultRegistry = NewRegistry()

// Register adds a binding to DefaultRegistry.
func Register(typeID uint16, name string, min, max Version, factory Factory) {
	DefaultRegistry.Register(typeID, name, min, max, factory)
}
