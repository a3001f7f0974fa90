// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package bam

import (
	"encoding/binary"

	"github.com/NWPlayer123/Orthrus/data"
)

// Datagram is one length-delimited unit of an object stream, read with the
// byte order the stream's header declared. Fillin implementations consume
// their field bytes from it.
type Datagram struct {
	*data.Cursor
	doubles bool
}

func newDatagram(buf []byte, order binary.ByteOrder, doubles bool) *Datagram {
	return &Datagram{Cursor: data.NewCursor(buf, order), doubles: doubles}
}

// ReadStdFloat reads a stream standard float, whose width depends on the
// header's double-precision flag: f64 when set, f32 widened otherwise.
func (d *Datagram) ReadStdFloat() (float64, error) {
	if d.doubles {
		return d.ReadF64()
	}
	v, err := d.ReadF32()
	return float64(v), err
}
