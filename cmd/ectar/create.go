package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ectar-archive/ectar"
	"github.com/ectar-archive/ectar/internal/archive"
)

const createHelp = `ectar create -base=<path> [-flags] <dir> [<dir>...]

Build an erasure-coded archive from one or more directory trees.

Example:
  % ectar create -base=/backups/home -data_shards=4 -parity_shards=2 /home/user
`

func create(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("create", flag.ExitOnError)
	var (
		base         = fset.String("base", "", "base path for shard files and the companion index (required)")
		dataShards   = fset.Int("data_shards", 4, "number of data shards per chunk")
		parityShards = fset.Int("parity_shards", 2, "number of parity shards per chunk")
		chunkSize    = fset.Uint64("chunk_size", 64<<20, "target uncompressed bytes per chunk (0 = unbounded, single chunk)")
		level        = fset.Int("level", 3, "zstd compression level (1-22)")
		bypass       = fset.Bool("no_compression", false, "store chunks uncompressed")
		headers      = fset.Bool("shard_headers", true, "embed a zfec-compatible header in every shard")
		parallel     = fset.Bool("parallel", false, "write each chunk's shards to their files concurrently")
		tapes        = fset.String("tape_devices", "", "comma-separated tape device paths; when set, shards are written in RAIT mode instead of as files")
		blockSize    = fset.Int("block_size", 65536, "tape block size in bytes, used only with -tape_devices")
	)
	fset.Usage = func() {
		fmt.Fprint(os.Stderr, createHelp)
		fset.PrintDefaults()
	}
	fset.Parse(args)

	if *base == "" {
		return fmt.Errorf("-base is required")
	}
	roots := fset.Args()
	if len(roots) == 0 {
		return fmt.Errorf("at least one directory argument is required")
	}

	var tapeDevices []string
	if *tapes != "" {
		tapeDevices = strings.Split(*tapes, ",")
	}

	b, err := archive.NewBuilder(archive.BuilderOptions{
		BasePath:          *base,
		ChunkSize:         *chunkSize,
		CompressionLevel:  *level,
		BypassCompression: *bypass,
		DataShards:        *dataShards,
		ParityShards:      *parityShards,
		EmitShardHeaders:  *headers,
		Parallel:          *parallel,
		TapeDevices:       tapeDevices,
		BlockSize:         *blockSize,
		ArchiveName:       filepath.Base(*base),
	})
	if err != nil {
		return err
	}

	for _, root := range roots {
		if err := walkInto(ctx, b, root); err != nil {
			return err
		}
	}

	meta, err := b.Finish()
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d chunks, %d files, index at %s\n", meta.ChunksWritten, meta.FilesWritten, meta.IndexPath)
	return nil
}

// walkInto enumerates root's tree and feeds each entry to b. The walk
// itself — exclusion patterns, symlink policy — is this command's concern,
// not the archive library's. ctx is checked on every entry so a
// SIGINT/SIGTERM-driven cancellation (see InterruptibleContext) stops the
// walk promptly instead of finishing an entire tree first.
func walkInto(ctx context.Context, b *archive.Builder, root string) error {
	base := filepath.Dir(root)
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		return addEntry(b, p, rel, info)
	})
}

func addEntry(b *archive.Builder, p, rel string, info os.FileInfo) error {
	task := archive.FileTask{
		Path:       rel,
		SourcePath: p,
		Mode:       uint32(info.Mode().Perm()),
		Mtime:      info.ModTime().UTC(),
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(p)
		if err != nil {
			return err
		}
		task.Type = ectar.FileTypeSymlink
		task.Target = target
	case info.IsDir():
		task.Type = ectar.FileTypeDirectory
	default:
		task.Type = ectar.FileTypeRegular
		task.Size = info.Size()
	}
	return b.Add(task)
}
