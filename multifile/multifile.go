// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

/*
Package multifile provides pure Go support for reading and writing the
Multifile archive format used by the Panda3D engine to distribute game
assets.

A Multifile is a little-endian container: a fixed header (magic, version,
scale factor, timestamp) followed by a linked list of subfile index records,
each naming a byte range in the file. Subfile payloads may be compressed
(zlib by default) or encrypted; encrypted subfiles are recognized but not
supported. Archives opened with Open are immutable; new archives are built
with Writer.

Basic usage:

	archive, err := multifile.Open(raw)
	if err != nil {
		return err
	}
	for _, sub := range archive.Entries() {
		payload, err := archive.Extract(sub.Name)
		...
	}
*/
package multifile

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"

	"github.com/NWPlayer123/Orthrus/data"
	"github.com/NWPlayer123/Orthrus/ncompress"
)

// Magic is the identifier beginning every Multifile ("pmf\0\n\r").
const Magic = "pmf\x00\n\r"

// Errors returned while opening and extracting.
var (
	// ErrInvalidMagic is returned when the input does not start with the
	// Multifile magic (after any '#' comment pre-header).
	ErrInvalidMagic = errors.New("invalid multifile magic")

	// ErrUnknownVersion is returned for archives newer than version 1.1.
	ErrUnknownVersion = errors.New("unknown multifile version")

	// ErrTruncated is returned when an index record or a subfile's byte
	// range reaches past the end of the archive.
	ErrTruncated = errors.New("truncated multifile entry")

	// ErrCorrupt is returned when a compressed subfile does not expand to
	// its declared original length.
	ErrCorrupt = errors.New("corrupt multifile entry")

	// ErrEncrypted is returned when extracting a subfile with the
	// encrypted flag; encryption is recognized but not supported.
	ErrEncrypted = errors.New("encrypted subfiles are not supported")

	// ErrNotFound is returned when no subfile has the requested name.
	ErrNotFound = errors.New("subfile not found")

	// ErrDuplicateEntry is returned when the directory names the same
	// subfile twice.
	ErrDuplicateEntry = errors.New("duplicate subfile name")
)

// Version identifies a Multifile format revision.
type Version struct {
	Major int16
	Minor int16
}

// CurrentVersion is the newest supported revision. Version 1.1 added
// archive and subfile timestamps.
var CurrentVersion = Version{Major: 1, Minor: 1}

// Codec expands a compressed subfile payload to exactly expectedSize bytes.
type Codec func(input []byte, expectedSize int) ([]byte, error)

// Multifile is an opened archive. It is immutable and safe for concurrent
// extraction once Open returns.
type Multifile struct {
	data        []byte
	version     Version
	scaleFactor uint32
	timestamp   uint32
	entries     []*Subfile
	byName      map[string]*Subfile
	signature   *Subfile
	codec       Codec
}

// Option configures Open.
type Option func(*Multifile)

// WithCodec overrides the codec used for compressed subfiles. The default
// is zlib, which is what the engine's own archives use; modified archives
// in the wild substitute the Nintendo LZ codecs.
func WithCodec(codec Codec) Option {
	return func(m *Multifile) {
		m.codec = codec
	}
}

// ZlibCodec inflates a zlib stream to exactly expectedSize bytes.
func ZlibCodec(input []byte, expectedSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	defer r.Close()

	output := make([]byte, expectedSize)
	if _, err := io.ReadFull(r, output); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "zlib stream short: %v", err)
	}
	// A well-formed payload ends exactly at the declared length.
	if n, _ := r.Read(make([]byte, 1)); n != 0 {
		return nil, errors.Wrap(ErrCorrupt, "zlib stream longer than declared length")
	}
	return output, nil
}

// ProfileCodec adapts an ncompress format profile into a Codec, checking
// the declared length against the profile's own header.
func ProfileCodec(profile ncompress.Profile) Codec {
	return func(input []byte, expectedSize int) ([]byte, error) {
		output, err := profile.Decompress(input)
		if err != nil {
			return nil, err
		}
		if len(output) != expectedSize {
			return nil, errors.Wrapf(ncompress.ErrCorrupt, "%s produced %d bytes, directory declared %d",
				profile.Name, len(output), expectedSize)
		}
		return output, nil
	}
}

// skipPreHeader returns the offset of the first byte after any leading
// '#' comment lines, which let a Multifile run as a Unix script.
func skipPreHeader(input []byte) int {
	pos := 0
	for pos < len(input) && input[pos] == '#' {
		for pos < len(input) && input[pos] != '\n' {
			pos++
		}
		for pos < len(input) && (input[pos] == '\n' || input[pos] == '\r' || input[pos] == ' ') {
			pos++
		}
	}
	return pos
}

// Open parses the archive header and directory and returns an immutable
// index over input. The input buffer is retained and must not be modified.
func Open(input []byte, opts ...Option) (*Multifile, error) {
	m := &Multifile{
		data:   input,
		byName: make(map[string]*Subfile),
		codec:  ZlibCodec,
	}
	for _, opt := range opts {
		opt(m)
	}

	c := data.NewCursor(input, binary.LittleEndian)
	if err := c.SetPos(skipPreHeader(input)); err != nil {
		return nil, errors.Wrap(ErrInvalidMagic, "empty input")
	}

	magic, err := c.Slice(len(Magic))
	if err != nil || string(magic) != Magic {
		return nil, errors.Wrapf(ErrInvalidMagic, "expected %q", Magic)
	}

	if m.version.Major, err = c.ReadI16(); err != nil {
		return nil, errors.Wrap(ErrTruncated, "header")
	}
	if m.version.Minor, err = c.ReadI16(); err != nil {
		return nil, errors.Wrap(ErrTruncated, "header")
	}
	if m.version.Major != CurrentVersion.Major || m.version.Minor > CurrentVersion.Minor {
		return nil, errors.Wrapf(ErrUnknownVersion, "v%d.%d", m.version.Major, m.version.Minor)
	}

	if m.scaleFactor, err = c.ReadU32(); err != nil {
		return nil, errors.Wrap(ErrTruncated, "header")
	}
	if m.scaleFactor == 0 {
		m.scaleFactor = 1
	}
	if m.version.Minor >= 1 {
		if m.timestamp, err = c.ReadU32(); err != nil {
			return nil, errors.Wrap(ErrTruncated, "header")
		}
	}

	// The directory is a linked list: each index record is preceded by the
	// offset of the next one, scaled, with 0 terminating the chain. Offsets
	// must strictly advance; a chain that points backward or at itself
	// would otherwise walk forever.
	prev := uint64(c.Pos())
	next, err := c.ReadU32()
	if err != nil {
		return nil, errors.Wrap(ErrTruncated, "directory")
	}
	for next != 0 {
		sub, err := readSubfile(c, m.version, m.scaleFactor, m.timestamp)
		if err != nil {
			return nil, err
		}

		switch {
		case sub.Flags&(FlagDeleted|FlagIndexInvalid|FlagDataInvalid) != 0:
			// Dead directory slots are skipped entirely.
		case sub.Flags&FlagSignature != 0:
			if err := m.checkBounds(sub); err != nil {
				return nil, err
			}
			m.signature = sub
		default:
			if err := m.checkBounds(sub); err != nil {
				return nil, err
			}
			if _, exists := m.byName[sub.Name]; exists {
				return nil, errors.Wrap(ErrDuplicateEntry, sub.Name)
			}
			m.byName[sub.Name] = sub
			m.entries = append(m.entries, sub)
		}

		scaled := uint64(next) * uint64(m.scaleFactor)
		if scaled <= prev {
			return nil, errors.Wrapf(ErrCorrupt, "directory chain does not advance: offset %d after %d", scaled, prev)
		}
		prev = scaled
		if err := c.SetPos(int(scaled)); err != nil {
			return nil, errors.Wrapf(ErrTruncated, "directory offset %d", scaled)
		}
		if next, err = c.ReadU32(); err != nil {
			return nil, errors.Wrap(ErrTruncated, "directory")
		}
	}

	return m, nil
}

// checkBounds validates an entry's byte range while indexing, so an opened
// archive never carries an entry that reaches outside the backing buffer.
func (m *Multifile) checkBounds(sub *Subfile) error {
	if sub.Offset+uint64(sub.DataLength) > uint64(len(m.data)) {
		return errors.Wrapf(ErrTruncated, "%s: %d+%d exceeds archive length %d",
			sub.Name, sub.Offset, sub.DataLength, len(m.data))
	}
	return nil
}

// Version returns the archive's format revision.
func (m *Multifile) Version() Version {
	return m.version
}

// Timestamp returns the archive modification time as a Unix timestamp, or
// zero for version 1.0 archives.
func (m *Multifile) Timestamp() uint32 {
	return m.timestamp
}

// Entries returns the archive's subfiles in directory order. Signature and
// deleted subfiles are excluded. The slice is shared; do not modify it.
func (m *Multifile) Entries() []*Subfile {
	return m.entries
}

// Has reports whether the archive contains the named subfile.
func (m *Multifile) Has(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// Subfile returns the index record for the named subfile.
func (m *Multifile) Subfile(name string) (*Subfile, error) {
	sub, ok := m.byName[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return sub, nil
}

// Extract returns the named subfile's payload, decompressed when the
// directory flags say so. A failure extracting one subfile has no effect
// on any other.
func (m *Multifile) Extract(name string) ([]byte, error) {
	sub, err := m.Subfile(name)
	if err != nil {
		return nil, err
	}
	return m.extract(sub)
}

func (m *Multifile) extract(sub *Subfile) ([]byte, error) {
	if sub.Flags&FlagEncrypted != 0 {
		return nil, errors.Wrap(ErrEncrypted, sub.Name)
	}

	end := sub.Offset + uint64(sub.DataLength)
	if end > uint64(len(m.data)) {
		return nil, errors.Wrapf(ErrTruncated, "%s: %d+%d exceeds archive length %d",
			sub.Name, sub.Offset, sub.DataLength, len(m.data))
	}
	raw := m.data[sub.Offset:end]

	if sub.Flags&FlagCompressed == 0 {
		return raw, nil
	}
	output, err := m.codec(raw, int(sub.OriginalLength))
	if err != nil {
		return nil, errors.Wrapf(err, "extract %s", sub.Name)
	}
	return output, nil
}

// ExtractDigest extracts the named subfile and returns its payload together
// with an xxhash64 content digest, used by modding tools to correlate
// entries across archive versions.
func (m *Multifile) ExtractDigest(name string) ([]byte, uint64, error) {
	payload, err := m.Extract(name)
	if err != nil {
		return nil, 0, err
	}
	return payload, xxhash.Sum64(payload), nil
}
