// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

// Package identify sniffs asset files by magic number so tools can
// dispatch them to the right reader without trusting file extensions.
package identify

import (
	"bytes"
	"fmt"

	"github.com/NWPlayer123/Orthrus/bam"
	"github.com/NWPlayer123/Orthrus/multifile"
	"github.com/NWPlayer123/Orthrus/ncompress"
)

// Info describes a recognized format.
type Info struct {
	// Format is a short stable identifier ("Yaz0", "Multifile", ...).
	Format string
	// Description is human-readable, including the payload size where the
	// header makes it cheap to know.
	Description string
	// Payload holds the decompressed contents when IdentifyDeep expanded
	// a compression wrapper, for recursing into nested formats.
	Payload []byte
}

// Identify reports every format whose header matches the input, using
// cheap checks only. An empty result means unremarkable data. Formats
// with weak magic (LZ11's single byte) can false-positive, which is why
// all matches are returned rather than the first.
func Identify(input []byte) []Info {
	return scan(input, false)
}

// IdentifyDeep is Identify plus payload expansion: recognized compression
// wrappers are fully decompressed, their contents attached for recursing
// into nested formats, and matches whose token stream fails to decode are
// dropped. It may do real work on large inputs.
func IdentifyDeep(input []byte) []Info {
	return scan(input, true)
}

func scan(input []byte, deep bool) []Info {
	var matches []Info

	for _, profile := range ncompress.Profiles() {
		if !bytes.HasPrefix(input, profile.Magic) {
			continue
		}
		size, err := profile.DecompressedSize(input)
		if err != nil {
			continue
		}
		info := Info{
			Format:      profile.Name,
			Description: fmt.Sprintf("%s-compressed data, %d bytes decompressed", profile.Name, size),
		}
		if deep {
			payload, err := profile.Decompress(input)
			if err != nil {
				continue
			}
			info.Payload = payload
		}
		matches = append(matches, info)
	}

	if bytes.HasPrefix(input, []byte(multifile.Magic)) {
		matches = append(matches, Info{
			Format:      "Multifile",
			Description: "Panda3D Multifile archive",
		})
	}
	if bytes.HasPrefix(input, []byte(bam.Magic)) {
		matches = append(matches, Info{
			Format:      "BAM",
			Description: "Panda3D binary object stream",
		})
	}
	return matches
}
