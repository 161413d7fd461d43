// Package byteutil provides big-endian integer conversion and the fixed
// protocol header record.
package byteutil

import (
	"encoding/binary"
	"errors"
)

// ProtocolMagic is the constant sentinel every well-formed section starts
// with. ProtocolVersion is the single version this build supports.
const (
	ProtocolMagic   uint32 = 0xFEED5EED
	ProtocolVersion uint32 = 1
	HeaderSize      int    = 24
)

// ErrShortHeader is returned by DecodeHeader when fewer than HeaderSize
// bytes are available.
var ErrShortHeader = errors.New("byteutil: short header")

// ErrUnsupportedVersion is returned when a header's version field does not
// equal ProtocolVersion.
var ErrUnsupportedVersion = errors.New("byteutil: unsupported version")

// Header is the fixed 24-byte frame preceding every (header, body) section.
type Header struct {
	Magic    uint32
	Version  uint32
	HeadSize uint64
	BodySize uint64
}

// PutUint32 writes v big-endian into b[0:4].
func PutUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// PutUint64 writes v big-endian into b[0:8].
func PutUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// GetUint32 reads a big-endian uint32 from b[0:4].
func GetUint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

// GetUint64 reads a big-endian uint64 from b[0:8].
func GetUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// Encode serializes h into its 24-byte big-endian wire form.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	PutUint32(buf[0:4], h.Magic)
	PutUint32(buf[4:8], h.Version)
	PutUint64(buf[8:16], h.HeadSize)
	PutUint64(buf[16:24], h.BodySize)
	return buf
}

// DecodeHeader parses a 24-byte big-endian header. It does not check the
// magic number — callers scanning for the magic have already located it.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	h := Header{
		Magic:    GetUint32(b[0:4]),
		Version:  GetUint32(b[4:8]),
		HeadSize: GetUint64(b[8:16]),
		BodySize: GetUint64(b[16:24]),
	}
	if h.Version != ProtocolVersion {
		return h, ErrUnsupportedVersion
	}
	return h, nil
}
