package shardio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ectar-archive/ectar"
	"github.com/ectar-archive/ectar/internal/zfec"
	"golang.org/x/exp/mmap"
)

// ShardData is one discovered shard: its (chunk, shard) coordinates, the
// path it was found at, and its raw payload (header included, if any).
type ShardData struct {
	Chunk  int
	Shard  int
	Path   string
	Data   []byte
	Header zfec.Header
	HasHeader bool
}

// readShardFile mmaps path and copies its full contents out, closing the
// mapping immediately. mmap avoids a double buffered read for large shards
// on reconstruction-heavy workloads, matching the package-file access
// pattern used elsewhere in this codebase's install path.
func readShardFile(path string) ([]byte, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, &ectar.IOError{Why: "mapping shard file", Err: err}
	}
	defer r.Close()
	buf := make([]byte, r.Len())
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, &ectar.IOError{Why: "reading shard file", Err: err}
	}
	return buf, nil
}

// shardDataFromFile parses path's filename and loads its payload.
func shardDataFromFile(path string) (ShardData, error) {
	chunk, shard, err := zfec.ParseShardName(filepath.Base(path))
	if err != nil {
		return ShardData{}, err
	}
	data, err := readShardFile(path)
	if err != nil {
		return ShardData{}, err
	}
	sd := ShardData{Chunk: chunk, Shard: shard, Path: path, Data: data}
	for _, size := range []int{2, 3, 4} {
		if len(data) < size {
			continue
		}
		if h, ok := zfec.ProbeHeader(data[:size]); ok {
			sd.Header = h
			sd.HasHeader = true
			break
		}
	}
	return sd, nil
}

// Discover globs pattern and groups every shard file it can parse by chunk
// number. Files that match the pattern but fail to parse are skipped, never
// failing discovery as a whole.
func Discover(pattern string) (map[int][]ShardData, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, &ectar.InvalidParametersError{Why: "invalid shard glob pattern"}
	}

	byChunk := make(map[int][]ShardData)
	for _, p := range paths {
		sd, err := shardDataFromFile(p)
		if err != nil {
			continue
		}
		byChunk[sd.Chunk] = append(byChunk[sd.Chunk], sd)
	}
	return byChunk, nil
}

// FindIndexPath derives the `<base>.index.zst` path from a shard glob
// pattern like "backup.c*.s*" and reports whether it exists.
func FindIndexPath(shardPattern string) (string, bool) {
	base := shardPattern
	base = strings.ReplaceAll(base, ".c*", "")
	base = strings.ReplaceAll(base, ".s*", "")
	base = strings.ReplaceAll(base, "*", "")
	indexPath := base + ".index.zst"
	if _, err := os.Stat(indexPath); err != nil {
		return "", false
	}
	return indexPath, true
}
