// Package index reads and writes the zstd-compressed JSON index stored
// alongside an archive's shards.
package index

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ectar-archive/ectar"
	"github.com/ectar-archive/ectar/internal/archzstd"
	"github.com/google/renameio"
)

// FormatVersion identifies the index schema version.
const FormatVersion = "1"

// ToolVersion identifies the producing implementation, written into every
// index for forward/backward compatibility diagnostics.
const ToolVersion = "ectar-go"

// IndexCompressionLevel is the fixed zstd level used for the index file
// itself, independent of the archive's own chunk compression level.
const IndexCompressionLevel = 19

// Index is the complete metadata for one archive: its parameters, every
// chunk's erasure-coding metadata, and every archived file's location.
type Index struct {
	Version      string             `json:"version"`
	Created      time.Time          `json:"created"`
	ToolVersion  string             `json:"tool_version"`
	ArchiveName  string             `json:"archive_name"`
	Parameters   ectar.Parameters   `json:"parameters"`
	Chunks       []ectar.ChunkInfo  `json:"chunks"`
	Files        []ectar.FileEntry  `json:"files"`
}

// Write serializes idx as JSON and zstd-compresses it (level 19) into an
// atomically-renamed file at path.
func Write(path string, idx *Index) error {
	buf, err := json.Marshal(idx)
	if err != nil {
		return &ectar.InvalidParametersError{Why: "marshaling index: " + err.Error()}
	}

	enc, err := archzstd.NewChunkEncoder(IndexCompressionLevel)
	if err != nil {
		return err
	}
	if _, err := enc.Write(buf); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	f, err := renameio.TempFile("", path)
	if err != nil {
		return &ectar.IOError{Why: "creating temp index file", Err: err}
	}
	defer f.Cleanup()

	if _, err := f.Write(enc.Bytes()); err != nil {
		return &ectar.IOError{Why: "writing index", Err: err}
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return &ectar.IOError{Why: "committing index", Err: err}
	}
	return nil
}

// Read decompresses and parses an index from r. Unknown JSON fields are
// silently ignored, which lets an older reader open an index written by a
// newer tool version.
func Read(r io.Reader) (*Index, error) {
	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, &ectar.IOError{Why: "reading index file", Err: err}
	}
	raw, err := archzstd.DecodeChunk(compressed)
	if err != nil {
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, &ectar.InvalidParametersError{Why: "parsing index: " + err.Error()}
	}
	return &idx, nil
}
