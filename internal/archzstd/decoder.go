package archzstd

import (
	"io"

	"github.com/ectar-archive/ectar"
	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the little-endian magic number every zstd frame starts with.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// LooksLikeZstdFrame reports whether data begins with the zstd frame magic
// number. Used when reconstructing a chunk without a companion index to
// tell a compressed chunk apart from one written with BypassCompression.
func LooksLikeZstdFrame(data []byte) bool {
	if len(data) < len(zstdMagic) {
		return false
	}
	for i, b := range zstdMagic {
		if data[i] != b {
			return false
		}
	}
	return true
}

// DecodeChunk decompresses one complete zstd frame.
func DecodeChunk(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, &ectar.DecompressionError{Why: "constructing decoder", Err: err}
	}
	defer dec.Close()
	out, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, &ectar.DecompressionError{Why: "decoding frame", Err: err}
	}
	return out, nil
}

// NewChunkDecoder wraps r as a streaming zstd frame reader. Used when the
// caller wants to stream decompressed bytes rather than materialize the
// whole chunk at once (e.g. single-archive, non-chunked reads).
func NewChunkDecoder(r io.Reader) (*zstd.Decoder, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, &ectar.DecompressionError{Why: "constructing decoder", Err: err}
	}
	return dec, nil
}
