package archzstd

import "github.com/orcaman/writerseeker"

// BypassEncoder implements the no_compression mode: chunk bytes are buffered
// verbatim instead of being framed as zstd.
type BypassEncoder struct {
	sink *writerseeker.WriterSeeker
}

// NewBypassEncoder allocates a fresh identity encoder for one chunk.
func NewBypassEncoder() *BypassEncoder {
	return &BypassEncoder{sink: &writerseeker.WriterSeeker{}}
}

func (b *BypassEncoder) Write(p []byte) (int, error) {
	return b.sink.Write(p)
}

// Close is a no-op; present so BypassEncoder satisfies io.WriteCloser and
// can stand in for a ChunkEncoder at the call site.
func (b *BypassEncoder) Close() error { return nil }

// Bytes returns the buffered, uncompressed chunk bytes.
func (b *BypassEncoder) Bytes() []byte {
	r := b.sink.BytesReader()
	buf := make([]byte, r.Len())
	_, _ = r.Read(buf)
	return buf
}
