// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package multifile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/NWPlayer123/Orthrus/ncompress"
)

// rawEntry describes one subfile for buildArchive, which lays archives out
// byte by byte so tests can set flag combinations Writer never produces.
type rawEntry struct {
	name     string
	data     []byte
	flags    uint16
	original uint32
}

func buildArchive(t *testing.T, entries []rawEntry) []byte {
	t.Helper()

	recordSize := func(e rawEntry) int {
		size := 4 + 4 + 2 + 4 + 2 + len(e.name)
		if e.flags&(FlagCompressed|FlagEncrypted) != 0 {
			size += 4
		}
		return size
	}

	headerSize := len(Magic) + 2 + 2 + 4 + 4
	indexEnd := headerSize
	for _, e := range entries {
		indexEnd += 4 + recordSize(e)
	}
	indexEnd += 4

	var buf bytes.Buffer
	buf.WriteString(Magic)
	writeU16(&buf, 1)
	writeU16(&buf, 1)
	writeU32(&buf, 1)
	writeU32(&buf, 0x5F000000)

	dataPos := indexEnd
	next := headerSize
	for _, e := range entries {
		next += 4 + recordSize(e)
		writeU32(&buf, uint32(next))
		writeU32(&buf, uint32(dataPos))
		writeU32(&buf, uint32(len(e.data)))
		writeU16(&buf, e.flags)
		if e.flags&(FlagCompressed|FlagEncrypted) != 0 {
			writeU32(&buf, e.original)
		}
		writeU32(&buf, 0)
		writeU16(&buf, uint16(len(e.name)))
		for i := 0; i < len(e.name); i++ {
			buf.WriteByte(255 - e.name[i])
		}
		dataPos += len(e.data)
	}
	writeU32(&buf, 0)

	for _, e := range entries {
		buf.Write(e.data)
	}
	return buf.Bytes()
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter(WithCompression(), WithTimestamp(0x12345678))
	require.NoError(t, w.Add("models/ship.egg", bytes.Repeat([]byte("vertex "), 200)))
	require.NoError(t, w.Add("audio/theme.ogg", []byte{0x4F, 0x67, 0x67, 0x53}))
	require.NoError(t, w.AddText("config.prc", []byte("window-title Shipyard\n")))

	raw, err := w.Write()
	require.NoError(t, err)

	archive, err := Open(raw)
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 1, Minor: 1}, archive.Version())
	assert.Equal(t, uint32(0x12345678), archive.Timestamp())
	require.Len(t, archive.Entries(), 3)

	payload, err := archive.Extract("models/ship.egg")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("vertex "), 200), payload)

	sub, err := archive.Subfile("models/ship.egg")
	require.NoError(t, err)
	assert.True(t, sub.Compressed(), "repetitive payload should have compressed")

	payload, err = archive.Extract("audio/theme.ogg")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x4F, 0x67, 0x67, 0x53}, payload)

	sub, err = archive.Subfile("config.prc")
	require.NoError(t, err)
	assert.NotZero(t, sub.Flags&FlagText)
	assert.False(t, archive.Has("missing.egg"))
}

func TestWriterDuplicateName(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.Add("a.egg", nil))
	err := w.Add("a.egg", nil)
	assert.True(t, errors.Is(err, ErrDuplicateEntry))
}

func TestOpenPreHeaderComment(t *testing.T) {
	// A zero-entry archive has no absolute offsets, so a shell-style
	// comment prefix leaves it parseable.
	var buf bytes.Buffer
	buf.WriteString("#!/usr/bin/env panda\n")
	buf.WriteString(Magic)
	writeU16(&buf, 1)
	writeU16(&buf, 1)
	writeU32(&buf, 1)
	writeU32(&buf, 0)
	writeU32(&buf, 0)

	archive, err := Open(buf.Bytes())
	require.NoError(t, err)
	assert.Empty(t, archive.Entries())
}

func TestOpenErrors(t *testing.T) {
	good := buildArchive(t, []rawEntry{{name: "a.txt", data: []byte("hello")}})

	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"empty", nil, ErrInvalidMagic},
		{"bad magic", []byte("pmf\x00\r\nxxxxxxxxxxxx"), ErrInvalidMagic},
		{"newer minor", withU16(good, len(Magic)+2, 2), ErrUnknownVersion},
		{"wrong major", withU16(good, len(Magic), 9), ErrUnknownVersion},
		{"cut mid header", good[:10], ErrTruncated},
		{"cut mid directory", good[:24], ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.input)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

// withU16 returns a copy of input with a little-endian u16 patched in.
func withU16(input []byte, pos int, v uint16) []byte {
	out := append([]byte(nil), input...)
	binary.LittleEndian.PutUint16(out[pos:], v)
	return out
}

func TestExtractEncrypted(t *testing.T) {
	raw := buildArchive(t, []rawEntry{
		{name: "secret.bin", data: []byte{1, 2, 3}, flags: FlagEncrypted, original: 3},
		{name: "plain.bin", data: []byte{4, 5, 6}},
	})
	archive, err := Open(raw)
	require.NoError(t, err)

	_, err = archive.Extract("secret.bin")
	assert.True(t, errors.Is(err, ErrEncrypted))

	// One unextractable subfile must not affect its neighbors.
	payload, err := archive.Extract("plain.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5, 6}, payload)
}

func TestOpenOutOfBoundsEntry(t *testing.T) {
	raw := buildArchive(t, []rawEntry{
		{name: "short.bin", data: []byte("abcdef")},
		{name: "cut.bin", data: []byte("xyz")},
	})
	// Chop the last payload bytes off the archive. The entry's range now
	// reaches past the buffer, which indexing must reject outright.
	_, err := Open(raw[:len(raw)-3])
	assert.True(t, errors.Is(err, ErrTruncated), "got %v", err)
}

// cyclicArchive lays out a directory whose next pointer targets the given
// offset instead of advancing, with the record flags under test.
func cyclicArchive(t *testing.T, next uint32, flags uint16) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString(Magic)
	writeU16(&buf, 1)
	writeU16(&buf, 1)
	writeU32(&buf, 1)
	writeU32(&buf, 0)

	writeU32(&buf, next)
	writeU32(&buf, 0) // data offset
	writeU32(&buf, 0) // data length
	writeU16(&buf, flags)
	writeU32(&buf, 0) // timestamp
	writeU16(&buf, 4)
	for _, b := range []byte("gone") {
		buf.WriteByte(255 - b)
	}
	return buf.Bytes()
}

func TestOpenCyclicDirectory(t *testing.T) {
	headerSize := uint32(len(Magic) + 2 + 2 + 4 + 4)

	// Deleted and signature records bypass the duplicate-name check, so a
	// looping chain of them must be caught by the advance guard instead.
	tests := []struct {
		name  string
		next  uint32
		flags uint16
	}{
		{"self deleted", headerSize, FlagDeleted},
		{"self signature", headerSize, FlagSignature},
		{"backward", headerSize - 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(cyclicArchive(t, tt.next, tt.flags))
			assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
		})
	}
}

func TestDeletedEntriesSkipped(t *testing.T) {
	raw := buildArchive(t, []rawEntry{
		{name: "gone.bin", data: []byte("old"), flags: FlagDeleted},
		{name: "kept.bin", data: []byte("new")},
	})
	archive, err := Open(raw)
	require.NoError(t, err)
	require.Len(t, archive.Entries(), 1)
	assert.Equal(t, "kept.bin", archive.Entries()[0].Name)
}

func TestDuplicateDirectoryNames(t *testing.T) {
	raw := buildArchive(t, []rawEntry{
		{name: "dup.bin", data: []byte("a")},
		{name: "dup.bin", data: []byte("b")},
	})
	_, err := Open(raw)
	assert.True(t, errors.Is(err, ErrDuplicateEntry))
}

func TestProfileCodec(t *testing.T) {
	original := bytes.Repeat([]byte("terrain tile "), 64)
	compressed, err := ncompress.Yaz0Compress(original)
	require.NoError(t, err)

	raw := buildArchive(t, []rawEntry{{
		name:     "map.bin",
		data:     compressed,
		flags:    FlagCompressed,
		original: uint32(len(original)),
	}})

	archive, err := Open(raw, WithCodec(ProfileCodec(ncompress.Profiles()[0])))
	require.NoError(t, err)

	payload, err := archive.Extract("map.bin")
	require.NoError(t, err)
	assert.Equal(t, original, payload)
}

func TestCorruptCompressedEntry(t *testing.T) {
	raw := buildArchive(t, []rawEntry{{
		name:     "bad.bin",
		data:     []byte{0xDE, 0xAD, 0xBE, 0xEF},
		flags:    FlagCompressed,
		original: 16,
	}})
	archive, err := Open(raw)
	require.NoError(t, err)

	_, err = archive.Extract("bad.bin")
	assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
}

func TestExtractDigest(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.Add("a.bin", []byte("stable content")))
	raw, err := w.Write()
	require.NoError(t, err)

	archive, err := Open(raw)
	require.NoError(t, err)

	_, first, err := archive.ExtractDigest("a.bin")
	require.NoError(t, err)
	_, second, err := archive.ExtractDigest("a.bin")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotZero(t, first)
}

func TestChainShadowing(t *testing.T) {
	base := mustArchive(t, map[string][]byte{
		"a.bin": []byte("base a"),
		"b.bin": []byte("base b"),
	})
	patch := mustArchive(t, map[string][]byte{
		"b.bin": []byte("patched b"),
		"c.bin": []byte("patch c"),
	})

	ch := NewChain()
	ch.Mount(base)
	ch.Mount(patch)
	require.Len(t, ch.Mounts(), 2)

	payload, err := ch.Extract("a.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("base a"), payload)

	payload, err = ch.Extract("b.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("patched b"), payload, "newer mount should shadow")

	assert.True(t, ch.Has("c.bin"))
	assert.Len(t, ch.Names(), 3)

	ch.Unmount(patch)
	payload, err = ch.Extract("b.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("base b"), payload)
	assert.False(t, ch.Has("c.bin"))

	_, err = ch.Extract("missing.bin")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func mustArchive(t *testing.T, files map[string][]byte) *Multifile {
	t.Helper()
	w := NewWriter()
	for name, payload := range files {
		require.NoError(t, w.Add(name, payload))
	}
	raw, err := w.Write()
	require.NoError(t, err)
	archive, err := Open(raw)
	require.NoError(t, err)
	return archive
}

func TestSignature(t *testing.T) {
	cert := []byte{0x30, 0x04, 0x0A, 0x0B, 0x0C, 0x0D}
	blob := []byte("not a real signature")

	var sigData bytes.Buffer
	writeU32(&sigData, uint32(len(blob)))
	sigData.Write(blob)
	writeU32(&sigData, 1)
	sigData.Write(cert)

	raw := buildArchive(t, []rawEntry{
		{name: "asset.bin", data: []byte("payload")},
		{name: "sig", data: sigData.Bytes(), flags: FlagSignature},
	})

	archive, err := Open(raw)
	require.NoError(t, err)
	require.True(t, archive.Signed())

	// The signature subfile is index metadata, not an entry.
	require.Len(t, archive.Entries(), 1)

	sig, err := archive.Signature()
	require.NoError(t, err)
	assert.Equal(t, blob, sig.Raw)
	require.Len(t, sig.Certificates, 1)
	assert.Equal(t, cert, sig.Certificates[0])

	sub := archive.signature
	assert.Equal(t, blake3.Sum256(raw[:sub.Offset]), sig.Digest)
}

func TestSignatureUnsigned(t *testing.T) {
	archive := mustArchive(t, map[string][]byte{"a.bin": []byte("x")})
	assert.False(t, archive.Signed())
	_, err := archive.Signature()
	assert.True(t, errors.Is(err, ErrNotFound))
}
