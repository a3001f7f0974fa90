// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

// Package data provides a bounds-checked, endian-aware cursor over an
// immutable byte buffer. Every format in this module is parsed through it;
// reads past the end of the buffer fail with ErrEndOfFile instead of
// panicking, which keeps corrupt input survivable.
package data

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrEndOfFile is returned when a read would go past the end of the buffer.
var ErrEndOfFile = errors.New("unexpected end of file")

// Cursor reads sequentially from a byte slice. The zero value is not usable;
// construct one with NewCursor. The underlying buffer is never written to.
type Cursor struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

// NewCursor returns a Cursor positioned at the start of buf.
func NewCursor(buf []byte, order binary.ByteOrder) *Cursor {
	return &Cursor{buf: buf, order: order}
}

// SetOrder changes the byte order for subsequent multi-byte reads.
func (c *Cursor) SetOrder(order binary.ByteOrder) {
	c.order = order
}

// Pos returns the current read position.
func (c *Cursor) Pos() int {
	return c.pos
}

// SetPos moves the read position. Positions up to Len() are valid; a cursor
// positioned exactly at Len() has no remaining bytes.
func (c *Cursor) SetPos(pos int) error {
	if pos < 0 || pos > len(c.buf) {
		return errors.Wrapf(ErrEndOfFile, "seek to %d of %d", pos, len(c.buf))
	}
	c.pos = pos
	return nil
}

// Len returns the total buffer length.
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// Slice returns the next n bytes without copying and advances past them.
// The returned slice aliases the backing buffer and must not be modified.
func (c *Cursor) Slice(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, errors.Wrapf(ErrEndOfFile, "read %d bytes at %d of %d", n, c.pos, len(c.buf))
	}
	s := c.buf[c.pos : c.pos+n]
	c.pos += n
	return s, nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	_, err := c.Slice(n)
	return err
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (uint8, error) {
	s, err := c.Slice(1)
	if err != nil {
		return 0, err
	}
	return s[0], nil
}

// ReadU16 reads a 16-bit unsigned integer.
func (c *Cursor) ReadU16() (uint16, error) {
	s, err := c.Slice(2)
	if err != nil {
		return 0, err
	}
	return c.order.Uint16(s), nil
}

// ReadU24 reads a 24-bit unsigned integer.
func (c *Cursor) ReadU24() (uint32, error) {
	s, err := c.Slice(3)
	if err != nil {
		return 0, err
	}
	if c.order == binary.BigEndian {
		return uint32(s[0])<<16 | uint32(s[1])<<8 | uint32(s[2]), nil
	}
	return uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16, nil
}

// ReadU32 reads a 32-bit unsigned integer.
func (c *Cursor) ReadU32() (uint32, error) {
	s, err := c.Slice(4)
	if err != nil {
		return 0, err
	}
	return c.order.Uint32(s), nil
}

// ReadU64 reads a 64-bit unsigned integer.
func (c *Cursor) ReadU64() (uint64, error) {
	s, err := c.Slice(8)
	if err != nil {
		return 0, err
	}
	return c.order.Uint64(s), nil
}

// ReadI16 reads a 16-bit signed integer.
func (c *Cursor) ReadI16() (int16, error) {
	v, err := c.ReadU16()
	return int16(v), err
}

// ReadI32 reads a 32-bit signed integer.
func (c *Cursor) ReadI32() (int32, error) {
	v, err := c.ReadU32()
	return int32(v), err
}

// ReadF32 reads a 32-bit float.
func (c *Cursor) ReadF32() (float32, error) {
	v, err := c.ReadU32()
	return math.Float32frombits(v), err
}

// ReadF64 reads a 64-bit float.
func (c *Cursor) ReadF64() (float64, error) {
	v, err := c.ReadU64()
	return math.Float64frombits(v), err
}

// ReadString reads a u16 length prefix followed by that many bytes.
func (c *Cursor) ReadString() (string, error) {
	n, err := c.ReadU16()
	if err != nil {
		return "", err
	}
	s, err := c.Slice(int(n))
	if err != nil {
		return "", err
	}
	return string(s), nil
}
