// Package archzstd provides the per-chunk zstd framing used by the chunk
// writer: each chunk is compressed as one independent zstd frame, so any
// chunk can be decompressed without reference to any other chunk.
package archzstd

import (
	"io"
	"runtime"

	"github.com/ectar-archive/ectar"
	"github.com/klauspost/compress/zstd"
	"github.com/orcaman/writerseeker"
)

// DefaultLevel matches the original tool's default compression level.
const DefaultLevel = 3

// Encoder is satisfied by both ChunkEncoder and BypassEncoder, letting the
// chunk writer switch between compressed and bypass modes without branching
// on type.
type Encoder interface {
	io.Writer
	Close() error
	Bytes() []byte
}

// MinLevel and MaxLevel bound the accepted zstd compression levels.
const (
	MinLevel = 1
	MaxLevel = 22
)

// ValidateLevel reports whether level is an acceptable zstd compression
// level.
func ValidateLevel(level int) error {
	if level < MinLevel || level > MaxLevel {
		return &ectar.InvalidParametersError{Why: "compression level out of range"}
	}
	return nil
}

// ChunkEncoder compresses one chunk's bytes into a single self-contained
// zstd frame, buffered in memory until Close.
type ChunkEncoder struct {
	sink *writerseeker.WriterSeeker
	w    io.WriteCloser
}

// NewChunkEncoder allocates a fresh encoder for one chunk. Never reuse a
// ChunkEncoder across chunks: each chunk must be its own independent frame.
func NewChunkEncoder(level int) (*ChunkEncoder, error) {
	if err := ValidateLevel(level); err != nil {
		return nil, err
	}
	sink := &writerseeker.WriterSeeker{}
	el := zstd.EncoderLevelFromZstd(level)
	enc, err := zstd.NewWriter(sink,
		zstd.WithEncoderLevel(el),
		zstd.WithEncoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		return nil, &ectar.CompressionError{Why: "constructing encoder", Err: err}
	}
	return &ChunkEncoder{sink: sink, w: enc}, nil
}

func (c *ChunkEncoder) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err != nil {
		return n, &ectar.CompressionError{Why: "writing chunk bytes", Err: err}
	}
	return n, nil
}

// Close finalizes the zstd frame. The compressed bytes are then available
// via Bytes.
func (c *ChunkEncoder) Close() error {
	if err := c.w.Close(); err != nil {
		return &ectar.CompressionError{Why: "closing frame", Err: err}
	}
	return nil
}

// Bytes returns the complete compressed frame. Only valid after Close.
func (c *ChunkEncoder) Bytes() []byte {
	r := c.sink.BytesReader()
	buf := make([]byte, r.Len())
	_, _ = r.Read(buf)
	return buf
}
