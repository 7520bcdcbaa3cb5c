// Package erasure wraps the Reed-Solomon systematic erasure code used to
// protect each archive chunk: k data shards plus (m-k) parity shards, any k
// of which reconstruct the original chunk.
package erasure

import (
	"github.com/ectar-archive/ectar"
	"github.com/klauspost/reedsolomon"
)

// Engine encodes and reconstructs the m shards of a chunk under a fixed
// (k, m) pair.
type Engine struct {
	k, m int
	enc  reedsolomon.Encoder
}

// NewEngine constructs an Engine for k data shards and m-k parity shards.
func NewEngine(k, m int) (*Engine, error) {
	if k < 1 {
		return nil, &ectar.InvalidParametersError{Why: "data shards must be >= 1"}
	}
	if m <= k {
		return nil, &ectar.InvalidParametersError{Why: "total shards must be > data shards"}
	}
	if m > 256 {
		return nil, &ectar.InvalidParametersError{Why: "total shards must be <= 256"}
	}
	enc, err := reedsolomon.New(k, m-k)
	if err != nil {
		return nil, &ectar.ErasureCodingError{Why: "constructing encoder", Err: err}
	}
	return &Engine{k: k, m: m, enc: enc}, nil
}

// DataShards returns k.
func (e *Engine) DataShards() int { return e.k }

// TotalShards returns m.
func (e *Engine) TotalShards() int { return e.m }

// Encode fills the parity shards (shards[k:]) from the data shards
// (shards[:k]) in place. All m entries must be pre-sized to the same shard
// length.
func (e *Engine) Encode(shards [][]byte) error {
	if err := e.enc.Encode(shards); err != nil {
		return &ectar.ErasureCodingError{Why: "encoding shards", Err: err}
	}
	return nil
}

// Reconstruct fills in missing shards (represented as nil or zero-length
// entries) given at least k present shards.
func (e *Engine) Reconstruct(shards [][]byte) error {
	available := 0
	for _, s := range shards {
		if len(s) > 0 {
			available++
		}
	}
	if available < e.k {
		return &ectar.InsufficientShardsError{Needed: e.k, Available: available}
	}
	if err := e.enc.Reconstruct(shards); err != nil {
		return &ectar.ErasureCodingError{Why: "reconstructing shards", Err: err}
	}
	return nil
}
