package shardio

import (
	"github.com/ectar-archive/ectar"
	"golang.org/x/sync/errgroup"
)

// SinkGroup writes one chunk's m shards to m destinations.
type SinkGroup interface {
	// WriteShards writes shards[i] to sink i and returns each sink's final
	// size once all are written.
	WriteShards(shards [][]byte) ([]uint64, error)
}

// FileSinkGroup writes each shard to its own file, sequentially.
type FileSinkGroup struct {
	sinks []*FileSink
}

// NewFileSinkGroup creates one FileSink per path.
func NewFileSinkGroup(paths []string) (*FileSinkGroup, error) {
	sinks := make([]*FileSink, len(paths))
	for i, p := range paths {
		s, err := NewFileSink(p)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return &FileSinkGroup{sinks: sinks}, nil
}

func (g *FileSinkGroup) WriteShards(shards [][]byte) ([]uint64, error) {
	if len(shards) != len(g.sinks) {
		return nil, &ectar.InvalidParametersError{Why: "shard count does not match sink count"}
	}
	sizes := make([]uint64, len(shards))
	for i, data := range shards {
		if _, err := g.sinks[i].Write(data); err != nil {
			return nil, err
		}
		n, err := g.sinks[i].Finish()
		if err != nil {
			return nil, err
		}
		sizes[i] = n
	}
	return sizes, nil
}

// ParallelFileSinkGroup is like FileSinkGroup but fans the m independent
// writes out concurrently, joining before returning. Shard-to-sink mapping
// never changes: only the write order is concurrent.
type ParallelFileSinkGroup struct {
	sinks []*FileSink
}

// NewParallelFileSinkGroup creates one FileSink per path.
func NewParallelFileSinkGroup(paths []string) (*ParallelFileSinkGroup, error) {
	sinks := make([]*FileSink, len(paths))
	for i, p := range paths {
		s, err := NewFileSink(p)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return &ParallelFileSinkGroup{sinks: sinks}, nil
}

func (g *ParallelFileSinkGroup) WriteShards(shards [][]byte) ([]uint64, error) {
	if len(shards) != len(g.sinks) {
		return nil, &ectar.InvalidParametersError{Why: "shard count does not match sink count"}
	}
	sizes := make([]uint64, len(shards))
	var eg errgroup.Group
	for i := range shards {
		i := i
		eg.Go(func() error {
			if _, err := g.sinks[i].Write(shards[i]); err != nil {
				return err
			}
			n, err := g.sinks[i].Finish()
			if err != nil {
				return err
			}
			sizes[i] = n
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return sizes, nil
}

// RaitSinkGroup writes shards across a fixed set of tape devices (Redundant
// Array of Inexpensive Tapes), recording where each (chunk, shard) landed so
// it can be located again without decoding every chunk in order.
type RaitSinkGroup struct {
	tapes     []*TapeSink
	chunk     int
	positions map[[2]int]ectar.TapePosition
}

// NewRaitSinkGroup opens one TapeSink per device path.
func NewRaitSinkGroup(devicePaths []string, blockSize int) (*RaitSinkGroup, error) {
	tapes := make([]*TapeSink, len(devicePaths))
	for i, p := range devicePaths {
		t, err := NewTapeSink(p, blockSize)
		if err != nil {
			return nil, err
		}
		tapes[i] = t
	}
	return &RaitSinkGroup{tapes: tapes, positions: make(map[[2]int]ectar.TapePosition)}, nil
}

// WriteShards writes each shard to tape device (shardNum % len(tapes)),
// recording its starting position before the write.
func (g *RaitSinkGroup) WriteShards(shards [][]byte) ([]uint64, error) {
	if len(shards) != len(g.tapes) {
		return nil, &ectar.InvalidParametersError{Why: "shard count does not match tape count"}
	}
	sizes := make([]uint64, len(shards))
	for shardNum, data := range shards {
		tapeIdx := shardNum % len(g.tapes)
		tape := g.tapes[tapeIdx]

		g.positions[[2]int{g.chunk, shardNum}] = ectar.TapePosition{
			Device:   tapeIdx,
			Position: tape.CurrentPosition(),
		}

		if _, err := tape.Write(data); err != nil {
			return nil, err
		}
		n, err := tape.Finish()
		if err != nil {
			return nil, err
		}
		sizes[shardNum] = n
	}
	g.chunk++
	return sizes, nil
}

// Positions returns the (chunk, shard) -> device position map accumulated
// so far. Call after the last WriteShards to get the full map for the index.
func (g *RaitSinkGroup) Positions() map[[2]int]ectar.TapePosition {
	return g.positions
}

// NumTapes returns the number of tape devices in the group.
func (g *RaitSinkGroup) NumTapes() int { return len(g.tapes) }

// Close releases all underlying tape device handles.
func (g *RaitSinkGroup) Close() error {
	var firstErr error
	for _, t := range g.tapes {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
