// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package multifile

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// Writer builds a new version 1.1 archive in memory. Subfiles are written
// in the order they are added.
type Writer struct {
	timestamp uint32
	compress  bool
	files     []*pendingFile
	names     map[string]struct{}
}

type pendingFile struct {
	name     string
	payload  []byte
	stored   []byte
	flags    uint16
	original uint32
}

// WriterOption configures NewWriter.
type WriterOption func(*Writer)

// WithCompression enables zlib compression for added subfiles. A subfile
// is stored raw anyway when compressing it does not make it smaller.
func WithCompression() WriterOption {
	return func(w *Writer) {
		w.compress = true
	}
}

// WithTimestamp overrides the archive timestamp, which otherwise defaults
// to the current time.
func WithTimestamp(stamp uint32) WriterOption {
	return func(w *Writer) {
		w.timestamp = stamp
	}
}

// NewWriter returns an empty archive builder.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{
		timestamp: uint32(time.Now().Unix()),
		names:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Add appends a subfile. Names must be unique within the archive.
func (w *Writer) Add(name string, payload []byte) error {
	if _, exists := w.names[name]; exists {
		return errors.Wrap(ErrDuplicateEntry, name)
	}
	w.names[name] = struct{}{}
	w.files = append(w.files, &pendingFile{name: name, payload: payload})
	return nil
}

// AddText appends a subfile flagged as text, which some tools re-flow
// line endings on.
func (w *Writer) AddText(name string, payload []byte) error {
	if err := w.Add(name, payload); err != nil {
		return err
	}
	w.files[len(w.files)-1].flags |= FlagText
	return nil
}

// Write lays the archive out and returns its bytes.
func (w *Writer) Write() ([]byte, error) {
	for _, f := range w.files {
		if err := w.prepare(f); err != nil {
			return nil, err
		}
	}

	// Index records form a chain at the front of the archive, with each
	// record preceded by the offset of the next; payloads follow.
	headerSize := len(Magic) + 2 + 2 + 4 + 4
	indexSizes := make([]int, len(w.files))
	indexEnd := headerSize
	for i, f := range w.files {
		indexSizes[i] = indexRecordSize(f)
		indexEnd += 4 + indexSizes[i]
	}
	indexEnd += 4 // terminating zero pointer

	dataOffsets := make([]uint32, len(w.files))
	pos := indexEnd
	for i, f := range w.files {
		dataOffsets[i] = uint32(pos)
		pos += len(f.stored)
	}

	var buf bytes.Buffer
	buf.Grow(pos)
	buf.WriteString(Magic)
	writeU16(&buf, uint16(CurrentVersion.Major))
	writeU16(&buf, uint16(CurrentVersion.Minor))
	writeU32(&buf, 1) // scale factor
	writeU32(&buf, w.timestamp)

	next := headerSize
	for i, f := range w.files {
		// Each pointer names the position of the next one; the last points
		// at the terminating zero.
		next += 4 + indexSizes[i]
		writeU32(&buf, uint32(next))
		writeIndexRecord(&buf, f, dataOffsets[i])
	}
	writeU32(&buf, 0)

	for _, f := range w.files {
		buf.Write(f.stored)
	}
	return buf.Bytes(), nil
}

// prepare decides each subfile's stored form, compressing when enabled and
// only keeping the compressed form if it is actually smaller.
func (w *Writer) prepare(f *pendingFile) error {
	f.stored = f.payload
	f.original = uint32(len(f.payload))
	if !w.compress {
		return nil
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return err
	}
	if _, err := zw.Write(f.payload); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if buf.Len() < len(f.payload) {
		f.stored = buf.Bytes()
		f.flags |= FlagCompressed
	}
	return nil
}

func indexRecordSize(f *pendingFile) int {
	size := 4 + 4 + 2 + 4 + 2 + len(f.name) // offset, length, flags, timestamp, name length, name
	if f.flags&FlagCompressed != 0 {
		size += 4 // original length
	}
	return size
}

func writeIndexRecord(buf *bytes.Buffer, f *pendingFile, offset uint32) {
	writeU32(buf, offset)
	writeU32(buf, uint32(len(f.stored)))
	writeU16(buf, f.flags)
	if f.flags&FlagCompressed != 0 {
		writeU32(buf, f.original)
	}
	writeU32(buf, 0) // timestamp, zero meaning "same as archive"
	writeU16(buf, uint16(len(f.name)))
	for i := 0; i < len(f.name); i++ {
		buf.WriteByte(255 - f.name[i])
	}
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}
