package chunkio

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ectar-archive/ectar"
	"github.com/ectar-archive/ectar/internal/archzstd"
	"github.com/ectar-archive/ectar/internal/erasure"
	"github.com/ectar-archive/ectar/internal/shardio"
)

// ReconstructChunk rebuilds and decompresses one chunk from whatever shards
// are available. compressedSize is the authoritative post-erasure-coding
// byte count (from the index, or derived from a shard header's padlen when
// there is no index); it is used to trim the erasure-coded padding before
// decompression. When expectedChecksum is non-empty, the reconstructed
// pre-decompression bytes are verified against it before decoding.
func ReconstructChunk(chunkNumber, k, m int, available []shardio.ShardData, compressedSize uint64, expectedChecksum string) ([]byte, error) {
	engine, err := erasure.NewEngine(k, m)
	if err != nil {
		return nil, err
	}

	shards := make([][]byte, m)
	for _, sd := range available {
		if sd.Shard < 0 || sd.Shard >= m {
			continue
		}
		payload := sd.Data
		if sd.HasHeader {
			payload = payload[len(sd.Header.Encode()):]
		}
		shards[sd.Shard] = payload
	}

	if err := engine.Reconstruct(shards); err != nil {
		if insuff, ok := err.(*ectar.InsufficientShardsError); ok {
			insuff.Chunk = chunkNumber
		}
		return nil, err
	}

	var chunkData []byte
	for i := 0; i < k; i++ {
		chunkData = append(chunkData, shards[i]...)
	}
	if uint64(len(chunkData)) > compressedSize {
		chunkData = chunkData[:compressedSize]
	}

	if expectedChecksum != "" {
		sum := sha256.Sum256(chunkData)
		got := "sha256:" + hex.EncodeToString(sum[:])
		if got != expectedChecksum {
			return nil, &ectar.ChecksumMismatchError{File: "chunk"}
		}
	}

	out, err := archzstd.DecodeChunk(chunkData)
	if err != nil {
		return nil, &ectar.DecompressionError{Why: "decoding reconstructed chunk", Err: err}
	}
	return out, nil
}

// ReconstructChunkBypass is like ReconstructChunk but for archives built
// with BypassCompression: the reconstructed, padding-trimmed bytes are the
// final chunk bytes, no decompression step.
func ReconstructChunkBypass(chunkNumber, k, m int, available []shardio.ShardData, uncompressedSize uint64, expectedChecksum string) ([]byte, error) {
	engine, err := erasure.NewEngine(k, m)
	if err != nil {
		return nil, err
	}

	shards := make([][]byte, m)
	for _, sd := range available {
		if sd.Shard < 0 || sd.Shard >= m {
			continue
		}
		payload := sd.Data
		if sd.HasHeader {
			payload = payload[len(sd.Header.Encode()):]
		}
		shards[sd.Shard] = payload
	}

	if err := engine.Reconstruct(shards); err != nil {
		if insuff, ok := err.(*ectar.InsufficientShardsError); ok {
			insuff.Chunk = chunkNumber
		}
		return nil, err
	}

	var chunkData []byte
	for i := 0; i < k; i++ {
		chunkData = append(chunkData, shards[i]...)
	}
	if uint64(len(chunkData)) > uncompressedSize {
		chunkData = chunkData[:uncompressedSize]
	}

	if expectedChecksum != "" {
		sum := sha256.Sum256(chunkData)
		got := "sha256:" + hex.EncodeToString(sum[:])
		if got != expectedChecksum {
			return nil, &ectar.ChecksumMismatchError{File: "chunk"}
		}
	}

	return chunkData, nil
}
