// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package multifile

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	"github.com/NWPlayer123/Orthrus/data"
)

// Signature holds the certificate subfile appended by signed archives. The
// signature covers every byte of the archive before the subfile's own data,
// so appending it never invalidates it.
type Signature struct {
	// Raw is the signature blob itself.
	Raw []byte
	// Certificates holds the DER-encoded certificate chain, leaf first.
	Certificates [][]byte
	// Digest is a BLAKE3 hash of the signed byte range, for comparing
	// archives without parsing the certificate chain.
	Digest [32]byte
}

// Signed reports whether the archive carries a signature subfile.
func (m *Multifile) Signed() bool {
	return m.signature != nil
}

// Signature parses the archive's signature subfile. It returns ErrNotFound
// for unsigned archives. Certificate validation is left to the caller.
func (m *Multifile) Signature() (*Signature, error) {
	if m.signature == nil {
		return nil, errors.Wrap(ErrNotFound, "archive is not signed")
	}

	end := m.signature.Offset + uint64(m.signature.DataLength)
	if end > uint64(len(m.data)) {
		return nil, errors.Wrap(ErrTruncated, "signature subfile")
	}

	c := data.NewCursor(m.data[m.signature.Offset:end], binary.LittleEndian)

	sigLength, err := c.ReadU32()
	if err != nil {
		return nil, errors.Wrap(ErrTruncated, "signature length")
	}
	raw, err := c.Slice(int(sigLength))
	if err != nil {
		return nil, errors.Wrap(ErrTruncated, "signature blob")
	}

	certCount, err := c.ReadU32()
	if err != nil {
		return nil, errors.Wrap(ErrTruncated, "certificate count")
	}

	sig := &Signature{
		Raw:    raw,
		Digest: blake3.Sum256(m.data[:m.signature.Offset]),
	}

	// Certificates are concatenated DER; each one declares its own length
	// in the SEQUENCE header, so split on those.
	for i := uint32(0); i < certCount; i++ {
		cert, err := nextCertificate(c)
		if err != nil {
			return nil, errors.Wrapf(err, "certificate %d", i)
		}
		sig.Certificates = append(sig.Certificates, cert)
	}
	return sig, nil
}

// nextCertificate splits one DER-encoded certificate off the cursor by
// reading the outer SEQUENCE header's length field.
func nextCertificate(c *data.Cursor) ([]byte, error) {
	start := c.Pos()

	tag, err := c.ReadU8()
	if err != nil {
		return nil, errors.Wrap(ErrTruncated, "certificate tag")
	}
	if tag != 0x30 {
		return nil, errors.Wrapf(ErrCorrupt, "certificate tag 0x%02X, want SEQUENCE", tag)
	}

	first, err := c.ReadU8()
	if err != nil {
		return nil, errors.Wrap(ErrTruncated, "certificate length")
	}
	length := int(first)
	if first&0x80 != 0 {
		length = 0
		for n := int(first & 0x7F); n > 0; n-- {
			b, err := c.ReadU8()
			if err != nil {
				return nil, errors.Wrap(ErrTruncated, "certificate length")
			}
			length = length<<8 | int(b)
		}
	}

	if err := c.Skip(length); err != nil {
		return nil, errors.Wrap(ErrTruncated, "certificate body")
	}
	end := c.Pos()

	if err := c.SetPos(start); err != nil {
		return nil, err
	}
	cert, err := c.Slice(end - start)
	if err != nil {
		return nil, errors.Wrap(ErrTruncated, "certificate body")
	}
	return cert, nil
}
