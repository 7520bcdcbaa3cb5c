// Package zfec implements the zunfec-compatible shard header and filename
// encoding used by ectar shards.
package zfec

import (
	"fmt"

	"github.com/ectar-archive/ectar"
)

// Header is the erasure coding parameters prefixed to each shard's payload,
// in the wire format used by the zfec/tahoe-lafs zunfec tool.
//
// Variable-length, big-endian:
//   - m-1 (total shares): 8 bits
//   - k-1 (required shares): log2ceil(m) bits
//   - padlen (padding bytes): log2ceil(k) bits
//   - sharenum (this shard's index): log2ceil(m) bits
//
// Header size is 2, 3, or 4 bytes depending on m and k.
type Header struct {
	K        uint8
	M        uint8
	ShareNum uint8
	PadLen   int
}

// NewHeader validates and constructs a Header.
func NewHeader(k, m, sharenum uint8, padlen int) (Header, error) {
	if k == 0 || m == 0 {
		return Header{}, &ectar.InvalidParametersError{Why: "k and m must be non-zero"}
	}
	if k > m {
		return Header{}, &ectar.InvalidParametersError{Why: "k must be <= m"}
	}
	if sharenum >= m {
		return Header{}, &ectar.InvalidParametersError{Why: fmt.Sprintf("sharenum %d must be < m %d", sharenum, m)}
	}
	padBits := log2Ceil(int(k))
	maxPadlen := (1 << padBits) - 1
	if padlen > maxPadlen {
		return Header{}, &ectar.InvalidParametersError{Why: fmt.Sprintf("padlen %d exceeds maximum %d for k=%d (%d bits)", padlen, maxPadlen, k, padBits)}
	}
	return Header{K: k, M: m, ShareNum: sharenum, PadLen: padlen}, nil
}

// HeaderSize returns the header byte length for a given m, using m as a
// conservative upper bound for all three variable bit-widths (k, padlen,
// sharenum all fit in at most log2ceil(m) bits).
func HeaderSize(m uint8) int {
	kBits := log2Ceil(int(m))
	padBits := log2Ceil(int(m))
	shareBits := log2Ceil(int(m))
	totalBits := 8 + kBits + padBits + shareBits
	return (totalBits + 7) / 8
}

// Encode serializes h into its wire representation.
func (h Header) Encode() []byte {
	kBits := log2Ceil(int(h.M))
	padBits := log2Ceil(int(h.K))
	shareBits := log2Ceil(int(h.M))
	totalBits := 8 + kBits + padBits + shareBits
	numBytes := (totalBits + 7) / 8

	var value uint32
	shift := totalBits

	shift -= 8
	value |= uint32(h.M-1) << uint(shift)

	shift -= kBits
	value |= uint32(h.K-1) << uint(shift)

	shift -= padBits
	value |= uint32(h.PadLen) << uint(shift)

	value |= uint32(h.ShareNum)

	// The packed value is left-aligned to the MSB of the output; any unused
	// low bits are zero.
	aligned := value << uint((numBytes*8)-totalBits)
	switch numBytes {
	case 2:
		return []byte{byte(aligned >> 8), byte(aligned)}
	case 3:
		return []byte{byte(aligned >> 16), byte(aligned >> 8), byte(aligned)}
	case 4:
		return []byte{byte(aligned >> 24), byte(aligned >> 16), byte(aligned >> 8), byte(aligned)}
	default:
		panic("zfec: header size must be 2, 3, or 4 bytes")
	}
}

// DecodeHeader parses a wire-format header. The caller must know (or probe)
// the correct length ahead of time; DecodeHeader validates that the decoded
// k and m are consistent with the supplied length.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < 2 || len(b) > 4 {
		return Header{}, &ectar.InvalidHeaderError{Why: fmt.Sprintf("invalid zfec header size: %d bytes (expected 2-4)", len(b))}
	}

	var value uint32
	switch len(b) {
	case 2:
		value = uint32(b[0])<<8 | uint32(b[1])
	case 3:
		value = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	case 4:
		value = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	}

	totalBytes := len(b)

	mMinus1 := byte(value >> uint(totalBytes*8-8))
	if mMinus1 == 255 {
		return Header{}, &ectar.InvalidHeaderError{Why: "m value overflow (m-1 = 255)"}
	}
	m := mMinus1 + 1

	kBits := log2Ceil(int(m))
	shareBits := log2Ceil(int(m))

	kShift := totalBytes*8 - 8 - kBits
	kMask := uint32(1<<uint(kBits)) - 1
	kMinus1 := byte((value >> uint(kShift)) & kMask)
	if kMinus1 == 255 {
		return Header{}, &ectar.InvalidHeaderError{Why: "k value overflow"}
	}
	k := kMinus1 + 1
	if k == 0 || k > m {
		return Header{}, &ectar.InvalidHeaderError{Why: fmt.Sprintf("invalid k value: %d (m=%d)", k, m)}
	}

	padBits := log2Ceil(int(k))
	expectedTotalBits := 8 + kBits + padBits + shareBits
	expectedBytes := (expectedTotalBits + 7) / 8
	if expectedBytes != len(b) {
		return Header{}, &ectar.InvalidHeaderError{Why: fmt.Sprintf("header size mismatch: expected %d bytes for m=%d, k=%d, got %d", expectedBytes, m, k, len(b))}
	}

	paddingBits := (totalBytes * 8) - expectedTotalBits

	padlenShift := shareBits + paddingBits
	padMask := uint32(1<<uint(padBits)) - 1
	padlen := int((value >> uint(padlenShift)) & padMask)

	shareMask := uint32(1<<uint(shareBits)) - 1
	sharenum := byte((value >> uint(paddingBits)) & shareMask)
	if sharenum >= m {
		return Header{}, &ectar.InvalidHeaderError{Why: fmt.Sprintf("invalid sharenum: %d >= m %d", sharenum, m)}
	}

	return Header{K: k, M: m, ShareNum: sharenum, PadLen: padlen}, nil
}

// ProbeHeader attempts to decode b as a header, returning ok=false instead of
// an error when it is not a well-formed header. Used to classify shard files
// that may or may not carry a header.
func ProbeHeader(b []byte) (Header, bool) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Header{}, false
	}
	return h, true
}

// log2Ceil returns the number of bits needed to represent values 0..n-1.
func log2Ceil(n int) int {
	if n <= 1 {
		return 0
	}
	bits := 0
	value := n - 1
	for value > 0 {
		bits++
		value >>= 1
	}
	return bits
}
