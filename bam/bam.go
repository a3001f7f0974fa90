// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

/*
Package bam decodes serialized object graphs from the binary stream format
the Panda3D engine stores model and scene data in.

A stream is a sequence of length-delimited datagrams: a header naming the
format version and byte order, a preamble naming the object count and root
ids, then one record per object. Records carry a type id that is resolved
through a Registry of factories, raw field bytes the factory decodes, and
a list of pointer target ids. Pointers may reference objects that appear
later in the stream, or form cycles, so decoding runs in two phases: a
streaming phase that builds every object without touching relationships,
and a resolving phase that converts every recorded target id into a
validated Handle. Callers never see a partially linked graph.
*/
package bam

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/NWPlayer123/Orthrus/data"
)

// Magic is the identifier beginning every object stream ("pbj\0\n\r").
const Magic = "pbj\x00\n\r"

// Errors returned by Decode.
var (
	// ErrInvalidMagic is returned when the input does not start with the
	// stream magic.
	ErrInvalidMagic = errors.New("invalid object stream magic")

	// ErrUnsupportedVersion is returned for streams older than MinVersion
	// or with a different major version, and for objects whose declared
	// version predates every registered layout of their type.
	ErrUnsupportedVersion = errors.New("unsupported object stream version")

	// ErrTruncated is returned when a datagram or record length field
	// reaches past the remaining stream.
	ErrTruncated = errors.New("truncated object stream")

	// ErrUnknownType is returned in strict mode when a record's type id
	// has no registered factory.
	ErrUnknownType = errors.New("unknown object type")

	// ErrDanglingPointer is returned when a pointer target id names no
	// object in the stream. Always fatal for the whole graph.
	ErrDanglingPointer = errors.New("dangling object pointer")
)

// MinVersion and CurrentVersion bound the supported stream revisions.
// Streams newer than CurrentVersion with the same major version decode
// with a warning.
var (
	MinVersion     = Version{Major: 6, Minor: 14}
	CurrentVersion = Version{Major: 6, Minor: 45}
)

// longIDEscape in a u16 id field switches the stream to u32 ids.
const longIDEscape = 0xFFFF

// UnknownTypePolicy selects how Decode treats records whose type id has no
// registered factory.
type UnknownTypePolicy int

const (
	// StrictUnknownTypes aborts the whole decode on the first unknown
	// type id. This is the default.
	StrictUnknownTypes UnknownTypePolicy = iota

	// LenientUnknownTypes skips the record, marks its table slot
	// permanently unresolved, and keeps decoding the rest of the graph.
	// Pointers into the skipped slot still resolve.
	LenientUnknownTypes
)

// Option configures Decode.
type Option func(*decoder)

// WithRegistry overrides DefaultRegistry for one decode.
func WithRegistry(r *Registry) Option {
	return func(d *decoder) {
		d.registry = r
	}
}

// WithUnknownTypes sets the unknown-type policy.
func WithUnknownTypes(policy UnknownTypePolicy) Option {
	return func(d *decoder) {
		d.policy = policy
	}
}

// pendingLink defers one pointer slot until every object exists.
type pendingLink struct {
	holder Handle
	slot   int
	target uint32
}

type decoder struct {
	stream          *data.Cursor
	order           binary.ByteOrder
	registry        *Registry
	policy          UnknownTypePolicy
	longIDs         bool
	doubles         bool
	graph           *Graph
	expectedObjects int
	rootIDs         []uint32
	pending         []pendingLink
}

// Decode parses one object stream into a fully resolved Graph. The input
// must be completely resident; no I/O happens mid-decode. Decoding the
// same bytes twice yields identical graphs, and independent decodes may
// run concurrently as long as the registry is no longer being mutated.
func Decode(input []byte, opts ...Option) (*Graph, error) {
	d := &decoder{
		stream:   data.NewCursor(input, binary.LittleEndian),
		order:    binary.LittleEndian,
		registry: DefaultRegistry,
		graph:    &Graph{},
	}
	for _, opt := range opts {
		opt(d)
	}

	magic, err := d.stream.Slice(len(Magic))
	if err != nil || string(magic) != Magic {
		return nil, errors.Wrapf(ErrInvalidMagic, "expected %q", Magic)
	}

	if err := d.readHeader(); err != nil {
		return nil, err
	}
	if err := d.readPreamble(); err != nil {
		return nil, err
	}
	if err := d.streamObjects(); err != nil {
		return nil, err
	}
	if err := d.resolve(); err != nil {
		return nil, err
	}
	return d.graph, nil
}

// nextDatagram consumes one length-delimited datagram. The u32 length
// prefix is always little-endian; the payload uses the declared order.
func (d *decoder) nextDatagram(what string) (*Datagram, error) {
	length, err := d.stream.ReadU32()
	if err != nil {
		return nil, errors.Wrapf(ErrTruncated, "%s: missing length", what)
	}
	payload, err := d.stream.Slice(int(length))
	if err != nil {
		return nil, errors.Wrapf(ErrTruncated, "%s: %d bytes declared, %d remain",
			what, length, d.stream.Remaining())
	}
	return newDatagram(payload, d.order, d.doubles), nil
}

// readHeader reads the version datagram. It always uses little-endian;
// the endian flag inside it selects the order for everything after.
func (d *decoder) readHeader() error {
	dg, err := d.nextDatagram("header")
	if err != nil {
		return err
	}

	var v Version
	if v.Major, err = dg.ReadU16(); err != nil {
		return errors.Wrap(ErrTruncated, "header")
	}
	if v.Minor, err = dg.ReadU16(); err != nil {
		return errors.Wrap(ErrTruncated, "header")
	}
	if v.Major != MinVersion.Major || v.Less(MinVersion) {
		return errors.Wrapf(ErrUnsupportedVersion, "stream version %s, supported %s..%s",
			v, MinVersion, CurrentVersion)
	}
	if CurrentVersion.Less(v) {
		d.warnf("stream version %s is newer than %s; decoding anyway", v, CurrentVersion)
	}
	d.graph.version = v

	endian, err := dg.ReadU8()
	if err != nil {
		return errors.Wrap(ErrTruncated, "header")
	}
	if endian == 0 {
		d.order = binary.BigEndian
	}
	if v.Minor >= 27 {
		flag, err := dg.ReadU8()
		if err != nil {
			return errors.Wrap(ErrTruncated, "header")
		}
		d.doubles = flag != 0
	}
	return nil
}

// readPreamble reads the object count and root ids.
func (d *decoder) readPreamble() error {
	dg, err := d.nextDatagram("preamble")
	if err != nil {
		return err
	}

	count, err := dg.ReadU32()
	if err != nil {
		return errors.Wrap(ErrTruncated, "preamble")
	}
	// The count is untrusted; streaming fails on the first missing record
	// anyway, so only preallocate for plausible sizes.
	if count < 1<<16 {
		d.graph.slots = make([]slot, 0, count)
	}

	rootCount, err := dg.ReadU16()
	if err != nil {
		return errors.Wrap(ErrTruncated, "preamble")
	}
	for i := 0; i < int(rootCount); i++ {
		id, err := d.readID(dg)
		if err != nil {
			return errors.Wrap(ErrTruncated, "preamble root ids")
		}
		d.rootIDs = append(d.rootIDs, id)
	}

	d.expectedObjects = int(count)
	return nil
}

// readID reads one object id. Ids are u16 on the wire until the escape
// value is seen, after which the writer has switched to u32 for good.
func (d *decoder) readID(dg *Datagram) (uint32, error) {
	if d.longIDs {
		return dg.ReadU32()
	}
	short, err := dg.ReadU16()
	if err != nil {
		return 0, err
	}
	if short == longIDEscape {
		d.longIDs = true
		return dg.ReadU32()
	}
	return uint32(short), nil
}

// streamObjects is the streaming phase: one datagram per object, appended
// to the table in record order. Relationships are only recorded, never
// chased.
func (d *decoder) streamObjects() error {
	for len(d.graph.slots) < d.expectedObjects {
		if err := d.readRecord(); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) readRecord() error {
	holder := Handle(len(d.graph.slots) + 1)

	dg, err := d.nextDatagram("object record")
	if err != nil {
		return err
	}

	var s slot
	if s.typeID, err = dg.ReadU16(); err != nil {
		return errors.Wrapf(ErrTruncated, "object %d", holder)
	}
	if s.version.Major, err = dg.ReadU16(); err != nil {
		return errors.Wrapf(ErrTruncated, "object %d", holder)
	}
	if s.version.Minor, err = dg.ReadU16(); err != nil {
		return errors.Wrapf(ErrTruncated, "object %d", holder)
	}

	fieldLength, err := dg.ReadU32()
	if err != nil {
		return errors.Wrapf(ErrTruncated, "object %d", holder)
	}

	pointerCount, err := dg.ReadU16()
	if err != nil {
		return errors.Wrapf(ErrTruncated, "object %d", holder)
	}
	targets := make([]uint32, pointerCount)
	for i := range targets {
		if targets[i], err = d.readID(dg); err != nil {
			return errors.Wrapf(ErrTruncated, "object %d pointer %d", holder, i)
		}
	}

	// The field bytes must fill the rest of the datagram exactly.
	if int(fieldLength) != dg.Remaining() {
		return errors.Wrapf(ErrTruncated, "object %d: %d field bytes declared, %d in datagram",
			holder, fieldLength, dg.Remaining())
	}
	fields, err := dg.Slice(int(fieldLength))
	if err != nil {
		return errors.Wrapf(ErrTruncated, "object %d fields", holder)
	}

	factory, name, newest, err := d.registry.Lookup(s.typeID, s.version)
	switch {
	case errors.Is(err, ErrUnknownType) && d.policy == LenientUnknownTypes:
		// Skip the body, keep the slot so later ids still line up.
		// Links out of the skipped object are dropped with it.
		s.unresolved = true
		d.warnf("object %d: unknown type id %d, slot left unresolved", holder, s.typeID)
		d.graph.slots = append(d.graph.slots, s)
		return nil
	case err != nil:
		return errors.Wrapf(err, "object %d", holder)
	}
	if newest {
		d.warnf("object %d: type %q version %s is newer than any registered layout", holder, name, s.version)
	}

	s.typeName = name
	s.object = factory()
	if err := s.object.Fillin(newDatagram(fields, d.order, d.doubles), s.version); err != nil {
		return errors.Wrapf(err, "object %d (%s)", holder, name)
	}

	s.targets = make([]Handle, pointerCount)
	for i, target := range targets {
		d.pending = append(d.pending, pendingLink{holder: holder, slot: i, target: target})
	}

	d.graph.slots = append(d.graph.slots, s)
	return nil
}

// resolve is the resolving phase: every pending link and root id becomes a
// validated Handle in one pass. This runs only after streaming finishes,
// so forward references and cycles need no special handling.
func (d *decoder) resolve() error {
	for _, link := range d.pending {
		target, err := d.handleFor(link.target)
		if err != nil {
			return errors.Wrapf(err, "object %d pointer %d", link.holder, link.slot)
		}
		s := &d.graph.slots[link.holder-1]
		s.targets[link.slot] = target
		if linker, ok := s.object.(Linker); ok {
			if err := linker.Link(link.slot, target); err != nil {
				return errors.Wrapf(err, "object %d (%s) pointer %d", link.holder, s.typeName, link.slot)
			}
		}
	}

	for i, id := range d.rootIDs {
		root, err := d.handleFor(id)
		if err != nil {
			return errors.Wrapf(err, "root %d", i)
		}
		d.graph.roots = append(d.graph.roots, root)
	}
	return nil
}

// handleFor converts a wire id into a Handle. Id 0 is the null sentinel;
// anything past the table bound is a dangling pointer.
func (d *decoder) handleFor(id uint32) (Handle, error) {
	if id == 0 {
		return Null, nil
	}
	if int(id) > len(d.graph.slots) {
		return Null, errors.Wrapf(ErrDanglingPointer, "target id %d, %d objects", id, len(d.graph.slots))
	}
	return Handle(id), nil
}

func (d *decoder) warnf(format string, args ...interface{}) {
	d.graph.warnings = append(d.graph.warnings, fmt.Sprintf(format, args...))
}
