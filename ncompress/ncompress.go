// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

/*
Package ncompress implements the LZ77-style compression formats used by
first-party Nintendo titles: Yaz0 (N64 through Switch), Yay0 (N64 and early
GameCube), and LZ11 (GBA, NDS, Wii).

All three formats share the same model: a control structure selects between
copying a literal byte from the input and a back-reference (distance,
length) pair that replays bytes already written to the output. Distances may
be shorter than the run length, so back-reference copies always proceed one
byte at a time in write order; a distance of 1 replicates the previous byte.

Decompression is the production path. The compressors exist for round-trip
testing and for tools that repack assets; they use a greedy match search
with a one-byte lazy lookahead, matching the output of Nintendo's original
encoder closely enough for practical use.
*/
package ncompress

import (
	"github.com/pkg/errors"
)

// Errors shared by every codec in this package.
var (
	// ErrInvalidMagic is returned when a header does not match the
	// expected format identifier.
	ErrInvalidMagic = errors.New("invalid magic")

	// ErrCorrupt is returned when a token stream reads past its input,
	// references data before the start of the output, or produces a
	// different amount of output than the header declared.
	ErrCorrupt = errors.New("corrupt compressed data")

	// ErrTooLarge is returned by the compressors when the input length
	// cannot be stored in the format's size field.
	ErrTooLarge = errors.New("input too large for format header")
)

// Profile describes one codec's framing for callers that dispatch on
// format, such as archive extraction and file identification.
type Profile struct {
	// Name is the conventional format name ("Yaz0", "Yay0", "LZ11").
	Name string

	// Magic is the byte sequence that starts a file in this format.
	Magic []byte

	// MaxDistance is the furthest a back-reference may reach.
	MaxDistance int

	// MaxLength is the longest run a single back-reference may copy.
	MaxLength int

	// Decompress decodes a whole file in this format, header included.
	Decompress func(input []byte) ([]byte, error)

	// DecompressedSize reads only the header and returns the declared
	// output size, for identification without doing the work.
	DecompressedSize func(input []byte) (uint32, error)
}

// Profiles lists every supported codec, in identification order.
func Profiles() []Profile {
	return []Profile{
		{Name: "Yaz0", Magic: []byte(yaz0Magic), MaxDistance: maxLookback, MaxLength: maxCopySize,
			Decompress: Yaz0Decompress, DecompressedSize: yaz0Size},
		{Name: "Yay0", Magic: []byte(yay0Magic), MaxDistance: maxLookback, MaxLength: maxCopySize,
			Decompress: Yay0Decompress, DecompressedSize: yay0Size},
		{Name: "LZ11", Magic: []byte{lz11Magic}, MaxDistance: maxLookback, MaxLength: lz11MaxMatch,
			Decompress: LZ11Decompress, DecompressedSize: lz11Size},
	}
}

func yaz0Size(input []byte) (uint32, error) {
	header, err := ReadYaz0Header(input)
	if err != nil {
		return 0, err
	}
	return header.DecompressedSize, nil
}

func yay0Size(input []byte) (uint32, error) {
	header, err := ReadYay0Header(input)
	if err != nil {
		return 0, err
	}
	return header.DecompressedSize, nil
}

func lz11Size(input []byte) (uint32, error) {
	if len(input) < lz11HeaderSize {
		return 0, errors.Wrap(ErrCorrupt, "lz11 input shorter than header")
	}
	if input[0] != lz11Magic {
		return 0, errors.Wrapf(ErrInvalidMagic, "expected 0x%02X", lz11Magic)
	}
	return uint32(input[1]) | uint32(input[2])<<8 | uint32(input[3])<<16, nil
}

const (
	// maxLookback is the furthest back-reference any of the formats can
	// express: 12 bits of distance, plus one.
	maxLookback = 0x1000

	// maxCopySize is the longest Yaz0/Yay0 run: the 0x12 threshold for the
	// extension byte plus 0xFF from that byte.
	maxCopySize = 0x111
)

// backReference replays length bytes starting distance bytes before pos in
// out, byte by byte so overlapping runs expand correctly. It returns the
// new write position.
func backReference(out []byte, pos, distance, length int) (int, error) {
	if distance <= 0 || distance > pos {
		return pos, errors.Wrapf(ErrCorrupt, "back-reference distance %d at output %d", distance, pos)
	}
	if pos+length > len(out) {
		return pos, errors.Wrapf(ErrCorrupt, "back-reference overruns output: %d+%d of %d", pos, length, len(out))
	}
	src := pos - distance
	for n := 0; n < length; n++ {
		out[pos+n] = out[src+n]
	}
	return pos + length, nil
}
