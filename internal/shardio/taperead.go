package shardio

import (
	"os"

	"github.com/ectar-archive/ectar"
)

// TapeShardReader reads shards back from a fixed set of tape devices using
// the (chunk, shard) -> (device, position) map recorded at write time.
type TapeShardReader struct {
	devices   []*os.File
	positions map[[2]int]ectar.TapePosition
}

// NewTapeShardReader opens each device path read-only, indexed the same way
// RaitSinkGroup indexed them at write time.
func NewTapeShardReader(devicePaths []string, positions map[[2]int]ectar.TapePosition) (*TapeShardReader, error) {
	devices := make([]*os.File, len(devicePaths))
	for i, p := range devicePaths {
		f, err := os.OpenFile(p, os.O_RDONLY, 0)
		if err != nil {
			return nil, &ectar.IOError{Why: "opening tape device for read", Err: err}
		}
		devices[i] = f
	}
	return &TapeShardReader{devices: devices, positions: positions}, nil
}

// HasShardPosition reports whether a (chunk, shard) position was recorded.
func (r *TapeShardReader) HasShardPosition(chunk, shard int) bool {
	_, ok := r.positions[[2]int{chunk, shard}]
	return ok
}

// ReadShard seeks to the recorded position for (chunk, shard) and reads
// exactly expectedSize bytes.
func (r *TapeShardReader) ReadShard(chunk, shard int, expectedSize int) ([]byte, error) {
	pos, ok := r.positions[[2]int{chunk, shard}]
	if !ok {
		return nil, &ectar.InvalidParametersError{Why: "no recorded tape position for this shard"}
	}
	if pos.Device < 0 || pos.Device >= len(r.devices) {
		return nil, &ectar.InvalidParametersError{Why: "tape device index out of range"}
	}
	device := r.devices[pos.Device]

	buf := make([]byte, expectedSize)
	n, err := device.ReadAt(buf, int64(pos.Position))
	if err != nil {
		return nil, &ectar.IOError{Why: "reading tape shard", Err: err}
	}
	if n != expectedSize {
		return nil, &ectar.CorruptShardError{Name: device.Name()}
	}
	return buf, nil
}

// Close releases all underlying device handles.
func (r *TapeShardReader) Close() error {
	var firstErr error
	for _, d := range r.devices {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
