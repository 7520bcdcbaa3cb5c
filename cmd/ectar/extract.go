package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ectar-archive/ectar/internal/archive"
)

const extractHelp = `ectar extract -base=<path> -dest=<dir> [-flags]

Reconstruct and unpack an erasure-coded archive from its shards.

Example:
  % ectar extract -base=/backups/home -dest=/home/user -partial
`

func extract(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("extract", flag.ExitOnError)
	var (
		base            = fset.String("base", "", "base path the archive was created with (required)")
		dest            = fset.String("dest", ".", "directory to unpack into")
		partial         = fset.Bool("partial", false, "tolerate unrecoverable chunks and per-entry errors instead of aborting")
		include         = fset.String("include", "", "comma-separated glob patterns; only matching entries are extracted")
		exclude         = fset.String("exclude", "", "comma-separated glob patterns to skip")
		stripComponents = fset.Int("strip_components", 0, "remove this many leading path elements from every entry")
		verifyChecksums = fset.Bool("verify_checksums", false, "re-verify each chunk's recorded checksum before decoding it")
		tapes           = fset.String("tape_devices", "", "comma-separated tape device paths; when set, shards are read back in RAIT mode instead of from shard files")
	)
	fset.Usage = func() {
		fmt.Fprint(os.Stderr, extractHelp)
		fset.PrintDefaults()
	}
	fset.Parse(args)

	if *base == "" {
		return fmt.Errorf("-base is required")
	}

	var includes, excludes []string
	if *include != "" {
		includes = strings.Split(*include, ",")
	}
	if *exclude != "" {
		excludes = strings.Split(*exclude, ",")
	}

	if err := os.MkdirAll(*dest, 0755); err != nil {
		return err
	}

	var tapeDevices []string
	if *tapes != "" {
		tapeDevices = strings.Split(*tapes, ",")
	}

	ex := archive.NewExtractor(archive.ExtractorOptions{
		ShardPattern:         *base + ".c*.s*",
		Dest:                 *dest,
		Partial:              *partial,
		Include:              includes,
		Exclude:              excludes,
		StripComponents:      *stripComponents,
		VerifyChunkChecksums: *verifyChecksums,
		TapeDevices:          tapeDevices,
	})
	meta, err := ex.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("recovered %d/%d chunks (%d failed), extracted %d files\n",
		meta.ChunksRecovered, meta.ChunksTotal, meta.ChunksFailed, meta.FilesExtracted)
	return nil
}
