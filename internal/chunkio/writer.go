// Package chunkio implements the core chunk writer state machine: splitting
// a byte stream into fixed-size chunks, compressing each as an independent
// zstd frame, erasure coding it into m shards, and handing the shards to a
// caller-supplied sink, plus the inverse chunk reconstructor.
package chunkio

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ectar-archive/ectar"
	"github.com/ectar-archive/ectar/internal/archzstd"
	"github.com/ectar-archive/ectar/internal/erasure"
	"github.com/ectar-archive/ectar/internal/shardio"
	"github.com/ectar-archive/ectar/internal/trace"
	"github.com/ectar-archive/ectar/internal/zfec"
)

// SinkFactory returns the shard destinations for one chunk. For file-backed
// archives it typically creates a fresh shardio.FileSinkGroup (or its
// parallel variant) per chunk, named from the chunk number. For tape-backed
// (RAIT) archives, the same *shardio.RaitSinkGroup can be returned on every
// call, since it tracks its own chunk cursor across calls.
type SinkFactory func(chunkNumber int) (shardio.SinkGroup, error)

// Writer implements io.Writer, splitting bytes into chunkSize-byte chunks
// (or one unbounded chunk when chunkSize is 0), each independently
// compressed and erasure coded.
type Writer struct {
	chunkSize     uint64
	level         int
	bypass        bool
	emitHeaders   bool
	engine        *erasure.Engine
	sinkFactory   SinkFactory

	current      int
	bytesInChunk uint64
	enc          archzstd.Encoder
	chunks       []ectar.ChunkInfo
}

// Options configures a new Writer.
type Options struct {
	ChunkSize          uint64
	CompressionLevel   int
	BypassCompression  bool
	DataShards         int
	ParityShards       int
	EmitShardHeaders   bool
	SinkFactory        SinkFactory
}

// NewWriter validates opts and constructs a Writer.
func NewWriter(opts Options) (*Writer, error) {
	m := opts.DataShards + opts.ParityShards
	if opts.EmitShardHeaders && m > 255 {
		return nil, &ectar.InvalidParametersError{Why: "shard counts must be <= 255 for zfec headers"}
	}
	engine, err := erasure.NewEngine(opts.DataShards, m)
	if err != nil {
		return nil, err
	}
	if !opts.BypassCompression {
		if err := archzstd.ValidateLevel(opts.CompressionLevel); err != nil {
			return nil, err
		}
	}
	if opts.SinkFactory == nil {
		return nil, &ectar.InvalidParametersError{Why: "sink factory is required"}
	}
	return &Writer{
		chunkSize:   opts.ChunkSize,
		level:       opts.CompressionLevel,
		bypass:      opts.BypassCompression,
		emitHeaders: opts.EmitShardHeaders,
		engine:      engine,
		sinkFactory: opts.SinkFactory,
	}, nil
}

// CurrentChunkNumber reports the chunk the next written byte will land in:
// 1 before any write has occurred.
func (w *Writer) CurrentChunkNumber() int {
	if w.current == 0 {
		return 1
	}
	if w.chunkSize > 0 && w.bytesInChunk >= w.chunkSize {
		return w.current + 1
	}
	return w.current
}

func (w *Writer) startNewChunk() error {
	if w.enc != nil {
		if err := w.finishCurrentChunk(); err != nil {
			return err
		}
	} else {
		w.current = 1
	}
	w.bytesInChunk = 0

	if w.bypass {
		w.enc = archzstd.NewBypassEncoder()
		return nil
	}
	enc, err := archzstd.NewChunkEncoder(w.level)
	if err != nil {
		return err
	}
	w.enc = enc
	return nil
}

func (w *Writer) finishCurrentChunk() error {
	enc := w.enc
	w.enc = nil
	if enc == nil {
		return nil
	}
	ev := trace.Event("chunk", w.current)
	defer ev.Done()

	uncompressedSize := w.bytesInChunk
	if err := enc.Close(); err != nil {
		return err
	}
	chunkData := enc.Bytes()
	if len(chunkData) == 0 {
		return nil
	}

	shardSize, err := w.encodeAndWriteShards(chunkData)
	if err != nil {
		return err
	}

	sum := sha256.Sum256(chunkData)

	w.chunks = append(w.chunks, ectar.ChunkInfo{
		ChunkNumber:      w.current,
		CompressedSize:   uint64(len(chunkData)),
		UncompressedSize: uncompressedSize,
		ShardSize:        shardSize,
		Checksum:         "sha256:" + hex.EncodeToString(sum[:]),
	})
	w.current++
	return nil
}

func (w *Writer) encodeAndWriteShards(chunkData []byte) (uint64, error) {
	ev := trace.Event("encode+emit", w.current)
	defer ev.Done()

	k := w.engine.DataShards()
	m := w.engine.TotalShards()

	shardSize := (len(chunkData) + k - 1) / k
	padlen := k*shardSize - len(chunkData)

	shards := make([][]byte, m)
	for i := range shards {
		shards[i] = make([]byte, shardSize)
	}
	for i := 0; i < len(chunkData); i++ {
		shards[i/shardSize][i%shardSize] = chunkData[i]
	}

	if err := w.engine.Encode(shards); err != nil {
		return 0, err
	}

	if w.emitHeaders {
		for i := range shards {
			h, err := zfec.NewHeader(uint8(k), uint8(m), uint8(i), padlen)
			if err != nil {
				return 0, err
			}
			shards[i] = append(h.Encode(), shards[i]...)
		}
	}

	sink, err := w.sinkFactory(w.current)
	if err != nil {
		return 0, err
	}
	if _, err := sink.WriteShards(shards); err != nil {
		return 0, err
	}

	return uint64(shardSize), nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if w.enc == nil {
		if err := w.startNewChunk(); err != nil {
			return 0, err
		}
	}

	written := 0
	for written < len(p) {
		var remainingInChunk int
		if w.chunkSize == 0 {
			remainingInChunk = len(p) - written
		} else {
			remainingInChunk = int(w.chunkSize - w.bytesInChunk)
		}
		remainingInBuf := len(p) - written
		toWrite := remainingInBuf
		if remainingInChunk < toWrite {
			toWrite = remainingInChunk
		}

		if toWrite == 0 {
			if err := w.startNewChunk(); err != nil {
				return written, err
			}
			continue
		}

		n, err := w.enc.Write(p[written : written+toWrite])
		if err != nil {
			return written, err
		}
		written += n
		w.bytesInChunk += uint64(n)
	}
	return written, nil
}

// Finish flushes the final chunk (if any bytes remain in it) and returns the
// metadata for every chunk written.
func (w *Writer) Finish() ([]ectar.ChunkInfo, error) {
	if w.enc != nil && w.bytesInChunk > 0 {
		if err := w.finishCurrentChunk(); err != nil {
			return nil, err
		}
	}
	return w.chunks, nil
}
