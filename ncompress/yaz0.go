// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package ncompress

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/NWPlayer123/Orthrus/data"
)

// Yaz0 framing: a 16-byte big-endian header followed by an interleaved
// token stream. Each flag byte covers the next 8 tokens, most significant
// bit first; a 1 bit copies a literal byte, a 0 bit reads a u16 code whose
// low 12 bits are distance-1 and whose high nibble is length-2, with nibble
// 0 escaping to a third byte holding length-0x12.
const (
	yaz0Magic      = "Yaz0"
	yaz0HeaderSize = 0x10
)

// Yaz0Header holds the metadata preceding a Yaz0 token stream.
type Yaz0Header struct {
	DecompressedSize uint32
	// Alignment is the output buffer alignment requirement. Zero on
	// everything before the Wii U.
	Alignment uint32
}

// ReadYaz0Header parses and validates a Yaz0 header.
func ReadYaz0Header(input []byte) (Yaz0Header, error) {
	c := data.NewCursor(input, binary.BigEndian)
	magic, err := c.Slice(4)
	if err != nil {
		return Yaz0Header{}, errors.Wrap(ErrCorrupt, "yaz0 header truncated")
	}
	if string(magic) != yaz0Magic {
		return Yaz0Header{}, errors.Wrapf(ErrInvalidMagic, "expected %q", yaz0Magic)
	}
	size, err := c.ReadU32()
	if err != nil {
		return Yaz0Header{}, errors.Wrap(ErrCorrupt, "yaz0 header truncated")
	}
	alignment, err := c.ReadU32()
	if err != nil {
		return Yaz0Header{}, errors.Wrap(ErrCorrupt, "yaz0 header truncated")
	}
	return Yaz0Header{DecompressedSize: size, Alignment: alignment}, nil
}

// Yaz0Decompress decodes a whole Yaz0 file, allocating the output buffer
// from the size declared in the header.
func Yaz0Decompress(input []byte) ([]byte, error) {
	header, err := ReadYaz0Header(input)
	if err != nil {
		return nil, err
	}
	output := make([]byte, header.DecompressedSize)
	if err := Yaz0DecompressInto(input, output); err != nil {
		return nil, err
	}
	return output, nil
}

// Yaz0DecompressInto decodes a Yaz0 file into a caller-owned buffer whose
// length is the expected decompressed size. The token stream must produce
// exactly len(output) bytes; anything else is corruption.
func Yaz0DecompressInto(input []byte, output []byte) error {
	if len(input) < yaz0HeaderSize {
		return errors.Wrap(ErrCorrupt, "yaz0 input shorter than header")
	}

	inputPos := yaz0HeaderSize
	outputPos := 0
	var mask, flags byte

	for outputPos < len(output) {
		if mask == 0 {
			if inputPos >= len(input) {
				return errors.Wrapf(ErrCorrupt, "yaz0 stream exhausted at output %d of %d", outputPos, len(output))
			}
			flags = input[inputPos]
			inputPos++
			mask = 1 << 7
		}

		if flags&mask != 0 {
			if inputPos >= len(input) {
				return errors.Wrap(ErrCorrupt, "yaz0 literal past end of input")
			}
			output[outputPos] = input[inputPos]
			outputPos++
			inputPos++
		} else {
			if inputPos+2 > len(input) {
				return errors.Wrap(ErrCorrupt, "yaz0 back-reference past end of input")
			}
			code := uint16(input[inputPos])<<8 | uint16(input[inputPos+1])
			inputPos += 2

			distance := int(code&0xFFF) + 1
			length := int(code>>12) + 2
			if code>>12 == 0 {
				if inputPos >= len(input) {
					return errors.Wrap(ErrCorrupt, "yaz0 length byte past end of input")
				}
				length = int(input[inputPos]) + 0x12
				inputPos++
			}

			var err error
			outputPos, err = backReference(output, outputPos, distance, length)
			if err != nil {
				return err
			}
		}

		mask >>= 1
	}

	return nil
}

// Yaz0Compress encodes input as a Yaz0 file using the pre-Wii U matching
// algorithm. The alignment field is left zero, as files produced by that
// algorithm never carried one.
func Yaz0Compress(input []byte) ([]byte, error) {
	if len(input) > 0xFFFFFFFF {
		return nil, errors.Wrap(ErrTooLarge, "yaz0 size field is u32")
	}

	// Worst case: header, every byte a literal, one flag byte per 8 tokens.
	output := make([]byte, yaz0HeaderSize+len(input)+(len(input)+7)/8)
	copy(output, yaz0Magic)
	binary.BigEndian.PutUint32(output[4:], uint32(len(input)))

	inputPos := 0
	outputPos := 0x11
	flagPos := 0x10
	flagShift := byte(0x80)

	advanceFlag := func() {
		flagShift >>= 1
		if flagShift == 0 {
			flagShift = 0x80
			flagPos = outputPos
			output[outputPos] = 0
			outputPos++
		}
	}

	for inputPos < len(input) {
		offset, length, deferByte := lazyMatch(input, inputPos, maxCopySize)
		if deferByte {
			output[flagPos] |= flagShift
			output[outputPos] = input[inputPos]
			inputPos++
			outputPos++
			advanceFlag()
		}

		if length < 3 {
			output[flagPos] |= flagShift
			output[outputPos] = input[inputPos]
			inputPos++
			outputPos++
		} else {
			distance := inputPos - offset - 1
			if length >= 0x12 {
				output[outputPos] = byte(distance >> 8)
				output[outputPos+1] = byte(distance)
				output[outputPos+2] = byte(length - 0x12)
				outputPos += 3
			} else {
				output[outputPos] = byte((length-2)<<4) | byte(distance>>8)
				output[outputPos+1] = byte(distance)
				outputPos += 2
			}
			inputPos += length
		}

		advanceFlag()
	}

	return output[:outputPos], nil
}
