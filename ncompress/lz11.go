// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package ncompress

import (
	"github.com/pkg/errors"
)

// LZ11 framing: a magic byte 0x11 and a little-endian u24 output size,
// followed by an interleaved token stream. Flag bytes cover 8 tokens, most
// significant bit first; here a 0 bit is the literal and a 1 bit starts a
// back-reference of two to four bytes, sized by the top nibble:
//
//	n >= 2: xA BC       copy n+1     from distance ABC+1
//	n == 0: 0a bA BC    copy ab+0x11 from distance ABC+1
//	n == 1: 1a bc dA BC copy abcd+0x111 from distance ABC+1
const (
	lz11Magic      = byte(0x11)
	lz11HeaderSize = 4

	lz11MaxMatch = 0xFFFF + 0x111
)

// LZ11Decompress decodes a whole LZ11 file, allocating the output buffer
// from the size declared in the header.
func LZ11Decompress(input []byte) ([]byte, error) {
	if len(input) < lz11HeaderSize {
		return nil, errors.Wrap(ErrCorrupt, "lz11 input shorter than header")
	}
	if input[0] != lz11Magic {
		return nil, errors.Wrapf(ErrInvalidMagic, "expected 0x%02X", lz11Magic)
	}
	size := uint32(input[1]) | uint32(input[2])<<8 | uint32(input[3])<<16
	output := make([]byte, size)
	if err := LZ11DecompressInto(input, output); err != nil {
		return nil, err
	}
	return output, nil
}

// LZ11DecompressInto decodes an LZ11 file into a caller-owned buffer whose
// length is the expected decompressed size.
func LZ11DecompressInto(input []byte, output []byte) error {
	if len(input) < lz11HeaderSize {
		return errors.Wrap(ErrCorrupt, "lz11 input shorter than header")
	}

	inputPos := lz11HeaderSize
	outputPos := 0
	var mask, flags byte

	readByte := func() (byte, error) {
		if inputPos >= len(input) {
			return 0, errors.Wrapf(ErrCorrupt, "lz11 stream exhausted at output %d of %d", outputPos, len(output))
		}
		b := input[inputPos]
		inputPos++
		return b, nil
	}

	for outputPos < len(output) {
		if mask == 0 {
			b, err := readByte()
			if err != nil {
				return err
			}
			flags = b
			mask = 1 << 7
		}

		if flags&mask == 0 {
			b, err := readByte()
			if err != nil {
				return err
			}
			output[outputPos] = b
			outputPos++
		} else {
			hi, err := readByte()
			if err != nil {
				return err
			}
			lo, err := readByte()
			if err != nil {
				return err
			}
			initial := int(hi)<<8 | int(lo)

			var distance, length int
			switch initial >> 12 {
			case 0:
				b, err := readByte()
				if err != nil {
					return err
				}
				code := (initial&0xFFF)<<8 | int(b)
				distance = (code & 0xFFF) + 1
				length = (code >> 12) + 0x11
			case 1:
				b1, err := readByte()
				if err != nil {
					return err
				}
				b2, err := readByte()
				if err != nil {
					return err
				}
				code := (initial&0xFFF)<<16 | int(b1)<<8 | int(b2)
				distance = (code & 0xFFF) + 1
				length = (code >> 12) + 0x111
			default:
				distance = (initial & 0xFFF) + 1
				length = (initial >> 12) + 1
			}

			outputPos, err = backReference(output, outputPos, distance, length)
			if err != nil {
				return err
			}
		}

		mask >>= 1
	}

	return nil
}

// LZ11Compress encodes input as an LZ11 file.
func LZ11Compress(input []byte) ([]byte, error) {
	if len(input) > 0xFFFFFF {
		return nil, errors.Wrap(ErrTooLarge, "lz11 size field is u24")
	}

	output := make([]byte, 0, lz11HeaderSize+len(input)+(len(input)+7)/8)
	output = append(output, lz11Magic, byte(len(input)), byte(len(input)>>8), byte(len(input)>>16))

	var flagByte byte
	flagShift := byte(0x80)
	flagPos := -1

	ensureFlag := func() {
		if flagPos < 0 {
			flagPos = len(output)
			output = append(output, 0)
		}
	}
	flushFlag := func() {
		flagShift >>= 1
		if flagShift == 0 {
			output[flagPos] = flagByte
			flagByte = 0
			flagShift = 0x80
			flagPos = -1
		}
	}

	inputPos := 0
	for inputPos < len(input) {
		ensureFlag()
		offset, length, deferByte := lazyMatch(input, inputPos, lz11MaxMatch)
		if deferByte {
			output = append(output, input[inputPos])
			inputPos++
			flushFlag()
			ensureFlag()
		}

		if length < 3 {
			output = append(output, input[inputPos])
			inputPos++
		} else {
			flagByte |= flagShift
			distance := inputPos - offset - 1
			switch {
			case length > 0x110:
				n := length - 0x111
				output = append(output,
					0x10|byte(n>>12),
					byte(n>>4),
					byte(n<<4)|byte(distance>>8),
					byte(distance))
			case length > 0x10:
				n := length - 0x11
				output = append(output,
					byte(n>>4),
					byte(n<<4)|byte(distance>>8),
					byte(distance))
			default:
				output = append(output,
					byte((length-1)<<4)|byte(distance>>8),
					byte(distance))
			}
			inputPos += length
		}

		flushFlag()
	}
	if flagPos >= 0 {
		output[flagPos] = flagByte
	}

	return output, nil
}
