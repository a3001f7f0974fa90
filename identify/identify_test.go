// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package identify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NWPlayer123/Orthrus/bam"
	"github.com/NWPlayer123/Orthrus/multifile"
	"github.com/NWPlayer123/Orthrus/ncompress"
)

func formats(matches []Info) []string {
	var names []string
	for _, m := range matches {
		names = append(names, m.Format)
	}
	return names
}

func TestIdentifyCompressed(t *testing.T) {
	payload := bytes.Repeat([]byte("asset data "), 32)

	yaz0, err := ncompress.Yaz0Compress(payload)
	require.NoError(t, err)
	yay0, err := ncompress.Yay0Compress(payload)
	require.NoError(t, err)
	lz11, err := ncompress.LZ11Compress(payload)
	require.NoError(t, err)

	assert.Equal(t, []string{"Yaz0"}, formats(Identify(yaz0)))
	assert.Equal(t, []string{"Yay0"}, formats(Identify(yay0)))
	assert.Equal(t, []string{"LZ11"}, formats(Identify(lz11)))

	matches := Identify(yaz0)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Description, "352 bytes")
	assert.Nil(t, matches[0].Payload, "shallow identification must not decompress")
}

func TestIdentifyDeepPayload(t *testing.T) {
	payload := bytes.Repeat([]byte("nested "), 16)
	compressed, err := ncompress.Yaz0Compress(payload)
	require.NoError(t, err)

	matches := IdentifyDeep(compressed)
	require.Len(t, matches, 1)
	assert.Equal(t, payload, matches[0].Payload)
}

func TestIdentifyDeepDropsBrokenStream(t *testing.T) {
	payload := bytes.Repeat([]byte("nested "), 16)
	compressed, err := ncompress.Yaz0Compress(payload)
	require.NoError(t, err)
	// Keep the header, wreck the token stream.
	broken := append([]byte(nil), compressed[:0x10]...)
	broken = append(broken, 0x00, 0xFF, 0xFF)

	assert.NotEmpty(t, Identify(broken), "header alone still matches shallow")
	assert.Empty(t, IdentifyDeep(broken))
}

func TestIdentifyContainers(t *testing.T) {
	w := multifile.NewWriter()
	require.NoError(t, w.Add("a.bin", []byte("x")))
	archive, err := w.Write()
	require.NoError(t, err)
	assert.Equal(t, []string{"Multifile"}, formats(Identify(archive)))

	stream := append([]byte(bam.Magic), 0, 0, 0, 0)
	assert.Equal(t, []string{"BAM"}, formats(Identify(stream)))
}

func TestIdentifyUnknown(t *testing.T) {
	assert.Empty(t, Identify([]byte("plain text, nothing to see")))
	assert.Empty(t, Identify(nil))
}
