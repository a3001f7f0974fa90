// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package ncompress

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/NWPlayer123/Orthrus/data"
)

// Yay0 uses the same token grammar as Yaz0, but splits the stream into
// three sections located by header offsets: flag bytes directly after the
// header, back-reference codes at the lookback offset, and literal bytes
// (plus long-length extension bytes) at the copy offset.
const (
	yay0Magic      = "Yay0"
	yay0HeaderSize = 0x10
)

// Yay0Header holds the metadata preceding the Yay0 sections.
type Yay0Header struct {
	DecompressedSize uint32
	LookbackOffset   uint32
	CopyOffset       uint32
}

// ReadYay0Header parses and validates a Yay0 header.
func ReadYay0Header(input []byte) (Yay0Header, error) {
	c := data.NewCursor(input, binary.BigEndian)
	magic, err := c.Slice(4)
	if err != nil {
		return Yay0Header{}, errors.Wrap(ErrCorrupt, "yay0 header truncated")
	}
	if string(magic) != yay0Magic {
		return Yay0Header{}, errors.Wrapf(ErrInvalidMagic, "expected %q", yay0Magic)
	}
	size, err := c.ReadU32()
	if err != nil {
		return Yay0Header{}, errors.Wrap(ErrCorrupt, "yay0 header truncated")
	}
	lookback, err := c.ReadU32()
	if err != nil {
		return Yay0Header{}, errors.Wrap(ErrCorrupt, "yay0 header truncated")
	}
	copyData, err := c.ReadU32()
	if err != nil {
		return Yay0Header{}, errors.Wrap(ErrCorrupt, "yay0 header truncated")
	}
	return Yay0Header{DecompressedSize: size, LookbackOffset: lookback, CopyOffset: copyData}, nil
}

// Yay0Decompress decodes a whole Yay0 file, allocating the output buffer
// from the size declared in the header.
func Yay0Decompress(input []byte) ([]byte, error) {
	header, err := ReadYay0Header(input)
	if err != nil {
		return nil, err
	}
	output := make([]byte, header.DecompressedSize)
	if err := Yay0DecompressInto(input, output, header); err != nil {
		return nil, err
	}
	return output, nil
}

// Yay0DecompressInto decodes a Yay0 file into a caller-owned buffer whose
// length is the expected decompressed size.
func Yay0DecompressInto(input []byte, output []byte, header Yay0Header) error {
	if int64(header.LookbackOffset) > int64(len(input)) || int64(header.CopyOffset) > int64(len(input)) {
		return errors.Wrap(ErrCorrupt, "yay0 section offsets past end of input")
	}

	flagPos := yay0HeaderSize
	lookbackPos := int(header.LookbackOffset)
	copyPos := int(header.CopyOffset)

	outputPos := 0
	var mask, flags byte

	for outputPos < len(output) {
		if mask == 0 {
			if flagPos >= len(input) {
				return errors.Wrapf(ErrCorrupt, "yay0 flag section exhausted at output %d of %d", outputPos, len(output))
			}
			flags = input[flagPos]
			flagPos++
			mask = 1 << 7
		}

		if flags&mask != 0 {
			if copyPos >= len(input) {
				return errors.Wrap(ErrCorrupt, "yay0 copy section exhausted")
			}
			output[outputPos] = input[copyPos]
			copyPos++
			outputPos++
		} else {
			if lookbackPos+2 > len(input) {
				return errors.Wrap(ErrCorrupt, "yay0 lookback section exhausted")
			}
			code := uint16(input[lookbackPos])<<8 | uint16(input[lookbackPos+1])
			lookbackPos += 2

			distance := int(code&0xFFF) + 1
			length := int(code>>12) + 2
			if code>>12 == 0 {
				if copyPos >= len(input) {
					return errors.Wrap(ErrCorrupt, "yay0 length byte past end of copy section")
				}
				length = int(input[copyPos]) + 0x12
				copyPos++
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

// Yay0Compress encodes input as a Yay0 file using the matching algorithm,
// with each section aligned to 4 bytes and the file padded to a 0x10
// boundary like the original encoder's output.
func Yay0Compress(input []byte) ([]byte, error) {
	if len(input) > 0xFFFFFFFF {
		return nil, errors.Wrap(ErrTooLarge, "yay0 size field is u32")
	}

	flagData := make([]byte, 0, (len(input)+7)/8)
	copyData := make([]byte, 0, len(input))
	lookbackData := make([]byte, 0, len(input))

	var flagByte, flagShift byte
	flagShift = 0x80

	flushFlag := func() {
		flagShift >>= 1
		if flagShift == 0 {
			flagShift = 0x80
			flagData = append(flagData, flagByte)
			flagByte = 0
		}
	}

	inputPos := 0
	for inputPos < len(input) {
		offset, length, deferByte := lazyMatch(input, inputPos, maxCopySize)
		if deferByte {
			flagByte |= flagShift
			copyData = append(copyData, input[inputPos])
			inputPos++
			flushFlag()
		}

		if length < 3 {
			flagByte |= flagShift
			copyData = append(copyData, input[inputPos])
			inputPos++
		} else {
			distance := inputPos - offset - 1
			if length >= 0x12 {
				lookbackData = append(lookbackData, byte(distance>>8), byte(distance))
				copyData = append(copyData, byte(length-0x12))
			} else {
				lookbackData = append(lookbackData, byte((length-2)<<4)|byte(distance>>8), byte(distance))
			}
			inputPos += length
		}

		flushFlag()
	}
	if flagShift != 0x80 {
		flagData = append(flagData, flagByte)
	}

	align4 := func(n int) int { return (n + 3) &^ 3 }

	lookbackOffset := yay0HeaderSize + align4(len(flagData))
	copyOffset := lookbackOffset + align4(len(lookbackData))
	total := (copyOffset + align4(len(copyData)) + 15) &^ 15

	output := make([]byte, total)
	copy(output, yay0Magic)
	binary.BigEndian.PutUint32(output[4:], uint32(len(input)))
	binary.BigEndian.PutUint32(output[8:], uint32(lookbackOffset))
	binary.BigEndian.PutUint32(output[12:], uint32(copyOffset))
	copy(output[yay0HeaderSize:], flagData)
	copy(output[lookbackOffset:], lookbackData)
	copy(output[copyOffset:], copyData)

	return output, nil
}
