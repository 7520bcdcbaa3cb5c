// Package archive wires the chunk writer and reconstructor to a tar byte
// stream, producing and consuming complete archives: a set of shard files
// (or tape writes) plus a companion index.
package archive

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ectar-archive/ectar"
	"github.com/ectar-archive/ectar/internal/archzstd"
	"github.com/ectar-archive/ectar/internal/chunkio"
	"github.com/ectar-archive/ectar/internal/index"
	"github.com/ectar-archive/ectar/internal/shardio"
	"github.com/ectar-archive/ectar/internal/zfec"
)

// FileTask describes one filesystem entry to archive. The walk that
// produces these is an external collaborator; Builder only consumes them.
type FileTask struct {
	// Path is the archive-relative path, forward-slash separated.
	Path string
	// SourcePath is the on-disk path to read the entry's bytes from. Unused
	// for directories and symlinks.
	SourcePath string
	Type       ectar.FileType
	Mode       uint32
	Mtime      time.Time
	UID, GID   int
	User       string
	Group      string
	// Target is the symlink/hardlink target.
	Target string
	// Size is the regular file's byte size, used to size the tar header.
	Size int64
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// BasePath is the archive's base path; shard files are named
	// "<BasePath>.c<CCC>.s<SS>" and the index "<BasePath>.index.zst".
	BasePath string

	ChunkSize         uint64
	CompressionLevel  int
	BypassCompression bool
	DataShards        int
	ParityShards      int
	EmitShardHeaders  bool

	// Parallel writes a chunk's m shards to their sink files concurrently.
	Parallel bool

	// TapeDevices, when non-empty, writes shards into a RAIT group across
	// these devices instead of one file per shard.
	TapeDevices []string
	BlockSize   int

	ArchiveName string
}

// Builder drives a tar producer through the chunk writer, tracking every
// entry's metadata for the index.
type Builder struct {
	opts   BuilderOptions
	writer *chunkio.Writer
	tw     *tar.Writer
	rait   *shardio.RaitSinkGroup

	entries []ectar.FileEntry
}

func (o BuilderOptions) validate() error {
	if o.BasePath == "" {
		return &ectar.InvalidParametersError{Why: "base path is required"}
	}
	if o.DataShards < 1 {
		return &ectar.InvalidParametersError{Why: "data shards must be >= 1"}
	}
	m := o.DataShards + o.ParityShards
	maxM := 256
	if o.EmitShardHeaders {
		maxM = 255
	}
	if m <= o.DataShards || m > maxM {
		return &ectar.InvalidParametersError{Why: "invalid (data shards, parity shards) combination"}
	}
	// Level 0 selects the default level in NewBuilder.
	if !o.BypassCompression && o.CompressionLevel != 0 {
		if err := archzstd.ValidateLevel(o.CompressionLevel); err != nil {
			return err
		}
	}
	return nil
}

// NewBuilder validates opts and constructs a Builder ready to accept
// entries via Add.
func NewBuilder(opts BuilderOptions) (*Builder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.CompressionLevel == 0 && !opts.BypassCompression {
		opts.CompressionLevel = 3
	}

	b := &Builder{opts: opts}

	var factory chunkio.SinkFactory
	if len(opts.TapeDevices) > 0 {
		rait, err := shardio.NewRaitSinkGroup(opts.TapeDevices, opts.BlockSize)
		if err != nil {
			return nil, err
		}
		b.rait = rait
		factory = func(chunkNumber int) (shardio.SinkGroup, error) {
			return rait, nil
		}
	} else {
		m := opts.DataShards + opts.ParityShards
		factory = func(chunkNumber int) (shardio.SinkGroup, error) {
			paths := make([]string, m)
			for i := 0; i < m; i++ {
				paths[i] = zfec.FormatShardName(opts.BasePath, chunkNumber, i)
			}
			if opts.Parallel {
				return shardio.NewParallelFileSinkGroup(paths)
			}
			return shardio.NewFileSinkGroup(paths)
		}
	}

	w, err := chunkio.NewWriter(chunkio.Options{
		ChunkSize:         opts.ChunkSize,
		CompressionLevel:  opts.CompressionLevel,
		BypassCompression: opts.BypassCompression,
		DataShards:        opts.DataShards,
		ParityShards:      opts.ParityShards,
		EmitShardHeaders:  opts.EmitShardHeaders,
		SinkFactory:       factory,
	})
	if err != nil {
		return nil, err
	}
	b.writer = w
	b.tw = tar.NewWriter(w)
	return b, nil
}

// Add writes one file task's tar header and body through the chunk writer,
// recording its index entry.
func (b *Builder) Add(task FileTask) error {
	startChunk := b.writer.CurrentChunkNumber()

	hdr := &tar.Header{
		Name:    task.Path,
		Mode:    int64(task.Mode),
		Uid:     task.UID,
		Gid:     task.GID,
		Uname:   task.User,
		Gname:   task.Group,
		ModTime: task.Mtime,
	}
	switch task.Type {
	case ectar.FileTypeDirectory:
		hdr.Typeflag = tar.TypeDir
		if len(hdr.Name) == 0 || hdr.Name[len(hdr.Name)-1] != '/' {
			hdr.Name += "/"
		}
	case ectar.FileTypeSymlink:
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = task.Target
	case ectar.FileTypeHardlink:
		hdr.Typeflag = tar.TypeLink
		hdr.Linkname = task.Target
	default:
		hdr.Typeflag = tar.TypeReg
		hdr.Size = task.Size
	}

	if err := b.tw.WriteHeader(hdr); err != nil {
		return &ectar.IOError{Why: "writing tar header for " + task.Path, Err: err}
	}

	var sum string
	if task.Type != ectar.FileTypeDirectory && task.Type != ectar.FileTypeSymlink && task.Type != ectar.FileTypeHardlink {
		f, err := os.Open(task.SourcePath)
		if err != nil {
			return &ectar.FileNotFoundError{Path: task.SourcePath}
		}
		defer f.Close()

		h := sha256.New()
		if _, err := io.Copy(io.MultiWriter(b.tw, h), f); err != nil {
			return &ectar.IOError{Why: "copying " + task.Path + " into archive", Err: err}
		}
		sum = "sha256:" + hex.EncodeToString(h.Sum(nil))
	}

	finalChunk := b.writer.CurrentChunkNumber()

	b.entries = append(b.entries, ectar.FileEntry{
		Path:        task.Path,
		Type:        task.Type,
		Chunk:       startChunk,
		Size:        task.Size,
		Checksum:    sum,
		SpansChunks: finalChunk != startChunk,
		Mode:        task.Mode,
		Mtime:       task.Mtime,
		UID:         task.UID,
		GID:         task.GID,
		User:        task.User,
		Group:       task.Group,
		Target:      task.Target,
	})
	return nil
}

// Finish closes the tar stream, drains the chunk writer, and atomically
// writes the companion index.
func (b *Builder) Finish() (*ectar.ArchiveMetadata, error) {
	if err := b.tw.Close(); err != nil {
		return nil, &ectar.IOError{Why: "closing tar stream", Err: err}
	}
	chunks, err := b.writer.Finish()
	if err != nil {
		return nil, err
	}

	if b.rait != nil {
		// RaitSinkGroup keys chunks from 0 in write order, while chunk
		// numbers start at 1.
		positions := b.rait.Positions()
		for i := range chunks {
			tp := make(map[int]ectar.TapePosition)
			for key, pos := range positions {
				if key[0]+1 == chunks[i].ChunkNumber {
					tp[key[1]] = pos
				}
			}
			if len(tp) > 0 {
				chunks[i].TapeShardPositions = tp
			}
		}
		if err := b.rait.Close(); err != nil {
			return nil, err
		}
	}

	idx := &index.Index{
		Version:     index.FormatVersion,
		Created:     time.Now().UTC(),
		ToolVersion: index.ToolVersion,
		ArchiveName: b.opts.ArchiveName,
		Parameters: ectar.Parameters{
			DataShards:        b.opts.DataShards,
			ParityShards:      b.opts.ParityShards,
			ChunkSize:         b.opts.ChunkSize,
			CompressionLevel:  b.opts.CompressionLevel,
			BypassCompression: b.opts.BypassCompression,
			EmitShardHeaders:  b.opts.EmitShardHeaders,
			TapeDevices:       b.opts.TapeDevices,
			BlockSize:         uint64(b.opts.BlockSize),
		},
		Chunks: chunks,
		Files:  b.entries,
	}

	indexPath := b.opts.BasePath + ".index.zst"
	if err := index.Write(indexPath, idx); err != nil {
		return nil, err
	}

	return &ectar.ArchiveMetadata{
		ChunksWritten: len(chunks),
		FilesWritten:  len(b.entries),
		IndexPath:     filepath.Clean(indexPath),
	}, nil
}
