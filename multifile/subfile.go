// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package multifile

import (
	"github.com/pkg/errors"

	"github.com/NWPlayer123/Orthrus/data"
)

// Subfile flag bits, stored in each index record.
const (
	FlagDeleted      uint16 = 1 << 0
	FlagIndexInvalid uint16 = 1 << 1
	FlagDataInvalid  uint16 = 1 << 2
	FlagCompressed   uint16 = 1 << 3
	FlagEncrypted    uint16 = 1 << 4
	FlagSignature    uint16 = 1 << 5
	FlagText         uint16 = 1 << 6
)

// Subfile is one archive index record. Offset is pre-scaled to a byte
// position; OriginalLength equals DataLength for stored subfiles.
type Subfile struct {
	Name           string
	Offset         uint64
	DataLength     uint32
	OriginalLength uint32
	Flags          uint16
	Timestamp      uint32
}

// Compressed reports whether the payload must run through the codec.
func (s *Subfile) Compressed() bool {
	return s.Flags&FlagCompressed != 0
}

// Encrypted reports whether the payload is encrypted.
func (s *Subfile) Encrypted() bool {
	return s.Flags&FlagEncrypted != 0
}

// readSubfile parses one index record at the cursor. archiveStamp supplies
// the timestamp for records that store zero, meaning "same as the archive".
func readSubfile(c *data.Cursor, version Version, scaleFactor uint32, archiveStamp uint32) (*Subfile, error) {
	var sub Subfile

	offset, err := c.ReadU32()
	if err != nil {
		return nil, errors.Wrap(ErrTruncated, "subfile offset")
	}
	sub.Offset = uint64(offset) * uint64(scaleFactor)

	if sub.DataLength, err = c.ReadU32(); err != nil {
		return nil, errors.Wrap(ErrTruncated, "subfile length")
	}
	if sub.Flags, err = c.ReadU16(); err != nil {
		return nil, errors.Wrap(ErrTruncated, "subfile flags")
	}

	sub.OriginalLength = sub.DataLength
	if sub.Flags&(FlagCompressed|FlagEncrypted) != 0 {
		if sub.OriginalLength, err = c.ReadU32(); err != nil {
			return nil, errors.Wrap(ErrTruncated, "subfile original length")
		}
	}

	if version.Minor >= 1 {
		if sub.Timestamp, err = c.ReadU32(); err != nil {
			return nil, errors.Wrap(ErrTruncated, "subfile timestamp")
		}
		if sub.Timestamp == 0 {
			sub.Timestamp = archiveStamp
		}
	}

	nameLength, err := c.ReadU16()
	if err != nil {
		return nil, errors.Wrap(ErrTruncated, "subfile name length")
	}
	raw, err := c.Slice(int(nameLength))
	if err != nil {
		return nil, errors.Wrap(ErrTruncated, "subfile name")
	}

	// Names are stored obfuscated: each byte is subtracted from 255.
	name := make([]byte, len(raw))
	for i, b := range raw {
		name[i] = 255 - b
	}
	sub.Name = string(name)

	return &sub, nil
}
