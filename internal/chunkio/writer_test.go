package chunkio

import (
	"bytes"
	"testing"

	"github.com/ectar-archive/ectar/internal/shardio"
)

type memSinkGroup struct {
	shards *[][][]byte
}

func (g memSinkGroup) WriteShards(shards [][]byte) ([]uint64, error) {
	cp := make([][]byte, len(shards))
	for i, s := range shards {
		cp[i] = append([]byte(nil), s...)
	}
	*g.shards = append(*g.shards, cp)
	sizes := make([]uint64, len(shards))
	for i, s := range shards {
		sizes[i] = uint64(len(s))
	}
	return sizes, nil
}

func newMemSinkFactory() (SinkFactory, *[][][]byte) {
	var chunks [][][]byte
	return func(chunkNumber int) (shardio.SinkGroup, error) {
		return memSinkGroup{shards: &chunks}, nil
	}, &chunks
}

func TestWriterExactBoundary(t *testing.T) {
	factory, chunks := newMemSinkFactory()
	w, err := NewWriter(Options{
		ChunkSize:        1024,
		CompressionLevel: 3,
		DataShards:       4,
		ParityShards:     2,
		SinkFactory:      factory,
	})
	if err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte{42}, 1024)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	infos, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d chunks, want 1", len(infos))
	}
	if len(*chunks) != 1 || len((*chunks)[0]) != 6 {
		t.Fatalf("expected 1 chunk with 6 shards, got %d chunks", len(*chunks))
	}
}

func TestWriterTwoChunks(t *testing.T) {
	factory, chunks := newMemSinkFactory()
	w, err := NewWriter(Options{
		ChunkSize:        1024,
		CompressionLevel: 3,
		DataShards:       4,
		ParityShards:     2,
		SinkFactory:      factory,
	})
	if err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte{42}, 2048)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	infos, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d chunks, want 2", len(infos))
	}
	if len(*chunks) != 2 {
		t.Fatalf("got %d sink groups, want 2", len(*chunks))
	}
}

func TestCurrentChunkNumberBeforeAndDuringWrite(t *testing.T) {
	factory, _ := newMemSinkFactory()
	w, err := NewWriter(Options{
		ChunkSize:        1024,
		CompressionLevel: 3,
		DataShards:       4,
		ParityShards:     2,
		SinkFactory:      factory,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := w.CurrentChunkNumber(); got != 1 {
		t.Errorf("before any write, CurrentChunkNumber() = %d, want 1", got)
	}

	if _, err := w.Write(bytes.Repeat([]byte{1}, 500)); err != nil {
		t.Fatal(err)
	}
	if got := w.CurrentChunkNumber(); got != 1 {
		t.Errorf("after partial write, CurrentChunkNumber() = %d, want 1", got)
	}

	if _, err := w.Write(bytes.Repeat([]byte{1}, 1000)); err != nil {
		t.Fatal(err)
	}
	if got := w.CurrentChunkNumber(); got != 2 {
		t.Errorf("after crossing boundary, CurrentChunkNumber() = %d, want 2", got)
	}
}

func TestWriterEmptyWrite(t *testing.T) {
	factory, _ := newMemSinkFactory()
	w, err := NewWriter(Options{
		ChunkSize:        1024,
		CompressionLevel: 3,
		DataShards:       4,
		ParityShards:     2,
		SinkFactory:      factory,
	})
	if err != nil {
		t.Fatal(err)
	}
	n, err := w.Write(nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("got %d, want 0", n)
	}
}

func TestWriterMultipleSmallWrites(t *testing.T) {
	factory, _ := newMemSinkFactory()
	w, err := NewWriter(Options{
		ChunkSize:        1024,
		CompressionLevel: 3,
		DataShards:       4,
		ParityShards:     2,
		SinkFactory:      factory,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		if _, err := w.Write(bytes.Repeat([]byte{1}, 50)); err != nil {
			t.Fatal(err)
		}
	}
	infos, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) < 1 {
		t.Error("expected at least one chunk from 5000 bytes written in 50-byte increments")
	}
}

func TestWriterBypassCompression(t *testing.T) {
	factory, _ := newMemSinkFactory()
	w, err := NewWriter(Options{
		ChunkSize:         1024,
		BypassCompression: true,
		DataShards:        4,
		ParityShards:      2,
		SinkFactory:       factory,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(bytes.Repeat([]byte{9}, 512)); err != nil {
		t.Fatal(err)
	}
	infos, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d chunks, want 1", len(infos))
	}
	if infos[0].CompressedSize != infos[0].UncompressedSize {
		t.Errorf("bypass mode should leave compressed size == uncompressed size, got %d vs %d", infos[0].CompressedSize, infos[0].UncompressedSize)
	}
}
