package archive

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ectar-archive/ectar"
	"github.com/ectar-archive/ectar/internal/archzstd"
	"github.com/ectar-archive/ectar/internal/chunkio"
	"github.com/ectar-archive/ectar/internal/index"
	"github.com/ectar-archive/ectar/internal/shardio"
	"github.com/ectar-archive/ectar/internal/zfec"
)

// ExtractorOptions configures an Extractor.
type ExtractorOptions struct {
	// ShardPattern is a glob like "backup.c*.s*", used both to discover
	// shard files and (after stripping the ".c*"/".s*" markers) to find the
	// companion index. Still used to locate the index in tape mode, even
	// though the glob itself is unused there.
	ShardPattern string

	// Dest is the directory entries are unpacked into.
	Dest string

	// Partial tolerates per-chunk reconstruction failures and per-entry
	// unpack errors, skipping them instead of aborting the whole extract.
	Partial bool

	// Include and Exclude are glob patterns (path.Match syntax, falling
	// back to a plain substring test when a pattern fails to compile)
	// matched against each entry's forward-slash path.
	Include []string
	Exclude []string

	// StripComponents removes this many leading path elements from every
	// entry before unpacking; entries with no more than this many
	// components are skipped.
	StripComponents int

	// VerifyChunkChecksums re-verifies each chunk's recorded SHA-256 (of its
	// post-erasure-coding, pre-decompression bytes) before decoding it. Off
	// by default since shard-level erasure coding already guards against
	// corruption; this is an extra, costlier check for suspected bit rot.
	VerifyChunkChecksums bool

	// TapeDevices, when non-empty, reads shards back from these RAIT tape
	// devices by their recorded (chunk, shard) -> position map instead of
	// globbing shard files via ShardPattern. Tape mode requires the
	// companion index: there is no directory listing on tape to discover
	// shards from.
	TapeDevices []string
}

// Extractor reconstructs an archive's chunks from its shards (using the
// companion index when present, or shard headers alone when not) and
// unpacks the resulting tar stream.
type Extractor struct {
	opts ExtractorOptions
}

// NewExtractor constructs an Extractor for opts.
func NewExtractor(opts ExtractorOptions) *Extractor {
	return &Extractor{opts: opts}
}

// chunkSource supplies the available shards for one chunk, from whatever
// medium the archive was written to (shard files or tape devices).
type chunkSource interface {
	chunkNumbers() []int
	shardsFor(chunkNum int) []shardio.ShardData
	close() error
}

// Run performs the full discover/reconstruct/unpack pipeline. ctx is
// checked between chunks, so a SIGINT/SIGTERM-driven cancellation (see
// InterruptibleContext) stops extraction at the next chunk boundary instead
// of running to completion.
func (e *Extractor) Run(ctx context.Context) (*ectar.ExtractionMetadata, error) {
	idx, hasIndex := e.loadIndex()

	if len(e.opts.TapeDevices) > 0 {
		if !hasIndex {
			return nil, &ectar.MissingIndexError{Path: e.opts.ShardPattern}
		}
		src, err := newTapeChunkSource(idx, e.opts.TapeDevices)
		if err != nil {
			return nil, err
		}
		defer src.close()
		return e.runFrom(ctx, idx, src)
	}

	byChunk, err := shardio.Discover(e.opts.ShardPattern)
	if err != nil {
		return nil, err
	}
	src := fileChunkSource{idx: idx, hasIndex: hasIndex, byChunk: byChunk}
	return e.runFrom(ctx, idx, src)
}

// runFrom drives the reconstruct/unpack pipeline against src, which may be
// backed by shard files or tape devices.
func (e *Extractor) runFrom(ctx context.Context, idx *index.Index, src chunkSource) (*ectar.ExtractionMetadata, error) {
	k, m, err := e.determineParameters(idx, src)
	if err != nil {
		return nil, err
	}
	bypass := idx != nil && idx.Parameters.BypassCompression

	chunkNumbers := src.chunkNumbers()

	workDir, err := os.MkdirTemp("", "ectar-extract-*")
	if err != nil {
		return nil, &ectar.IOError{Why: "creating extraction workspace", Err: err}
	}
	defer os.RemoveAll(workDir)

	meta := &ectar.ExtractionMetadata{ChunksTotal: len(chunkNumbers)}

	tarPath := filepath.Join(workDir, "stream.tar")
	tarFile, err := os.Create(tarPath)
	if err != nil {
		return nil, &ectar.IOError{Why: "creating reassembly file", Err: err}
	}

	for _, chunkNum := range chunkNumbers {
		if err := ctx.Err(); err != nil {
			tarFile.Close()
			return meta, err
		}
		shards := src.shardsFor(chunkNum)
		compressedSize := e.compressedSizeFor(idx, chunkNum, shards, k)

		var expectedChecksum string
		if e.opts.VerifyChunkChecksums {
			expectedChecksum = e.checksumFor(idx, chunkNum)
		}

		useBypass := bypass
		if idx == nil {
			// No index to say either way: peek the lead shard for the zstd
			// frame magic before deciding how to reconstruct this chunk.
			useBypass = !looksCompressed(shards)
		}

		// Without an index, only a shard header gives the chunk's size; a
		// chunk with no readable header is not reconstructed.
		sizeKnown := idx != nil
		for _, sd := range shards {
			if sd.HasHeader {
				sizeKnown = true
			}
		}

		var data []byte
		switch {
		case !sizeKnown:
			err = &ectar.InsufficientShardsError{Chunk: chunkNum, Needed: k, Available: 0}
		case useBypass:
			data, err = chunkio.ReconstructChunkBypass(chunkNum, k, m, shards, compressedSize, expectedChecksum)
		default:
			data, err = chunkio.ReconstructChunk(chunkNum, k, m, shards, compressedSize, expectedChecksum)
		}
		if err != nil {
			meta.ChunksFailed++
			if e.opts.Partial {
				continue
			}
			tarFile.Close()
			return meta, err
		}
		meta.ChunksRecovered++
		if _, err := tarFile.Write(data); err != nil {
			tarFile.Close()
			return meta, &ectar.IOError{Why: "assembling tar stream", Err: err}
		}
	}
	if err := tarFile.Close(); err != nil {
		return meta, &ectar.IOError{Why: "closing reassembly file", Err: err}
	}

	tarFile, err = os.Open(tarPath)
	if err != nil {
		return meta, &ectar.IOError{Why: "reopening reassembly file", Err: err}
	}
	defer tarFile.Close()

	extracted, err := e.unpack(tarFile)
	meta.FilesExtracted = extracted
	if err != nil && !e.opts.Partial {
		return meta, err
	}
	return meta, nil
}

// looksCompressed reports whether a chunk's shard 0 begins with a zstd
// frame. Only consulted when there is no index to read BypassCompression
// from directly; if shard 0 itself was lost, compressed is assumed, being
// the more common case.
func looksCompressed(shards []shardio.ShardData) bool {
	for _, sd := range shards {
		if sd.Shard != 0 {
			continue
		}
		payload := sd.Data
		if sd.HasHeader {
			payload = payload[len(sd.Header.Encode()):]
		}
		return archzstd.LooksLikeZstdFrame(payload)
	}
	return true
}

func (e *Extractor) loadIndex() (*index.Index, bool) {
	indexPath, ok := shardio.FindIndexPath(e.opts.ShardPattern)
	if !ok {
		return nil, false
	}
	f, err := os.Open(indexPath)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	idx, err := index.Read(f)
	if err != nil {
		return nil, false
	}
	return idx, true
}

func (e *Extractor) determineParameters(idx *index.Index, src chunkSource) (k, m int, err error) {
	if idx != nil {
		return idx.Parameters.DataShards, idx.Parameters.DataShards + idx.Parameters.ParityShards, nil
	}
	for _, chunkNum := range src.chunkNumbers() {
		for _, sd := range src.shardsFor(chunkNum) {
			if sd.HasHeader {
				return int(sd.Header.K), int(sd.Header.M), nil
			}
		}
	}
	return 0, 0, &ectar.MissingIndexError{Path: e.opts.ShardPattern}
}

func (e *Extractor) compressedSizeFor(idx *index.Index, chunkNum int, shards []shardio.ShardData, k int) uint64 {
	if idx != nil {
		for _, c := range idx.Chunks {
			if c.ChunkNumber == chunkNum {
				return c.CompressedSize
			}
		}
	}
	for _, sd := range shards {
		if sd.HasHeader {
			shardSize := len(sd.Data) - len(sd.Header.Encode())
			return uint64(k*shardSize - sd.Header.PadLen)
		}
	}
	return 0
}

func (e *Extractor) checksumFor(idx *index.Index, chunkNum int) string {
	if idx == nil {
		return ""
	}
	for _, c := range idx.Chunks {
		if c.ChunkNumber == chunkNum {
			return c.Checksum
		}
	}
	return ""
}

// fileChunkSource discovers shards as local files via shardio.Discover.
type fileChunkSource struct {
	idx      *index.Index
	hasIndex bool
	byChunk  map[int][]shardio.ShardData
}

func (s fileChunkSource) chunkNumbers() []int {
	var nums []int
	if s.hasIndex {
		for _, c := range s.idx.Chunks {
			nums = append(nums, c.ChunkNumber)
		}
		sort.Ints(nums)
		return nums
	}
	for n := range s.byChunk {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func (s fileChunkSource) shardsFor(chunkNum int) []shardio.ShardData {
	return s.byChunk[chunkNum]
}

func (s fileChunkSource) close() error { return nil }

// tapeChunkSource reads shards back from RAIT tape devices using the
// position map recorded in the index at write time.
type tapeChunkSource struct {
	idx    *index.Index
	reader *shardio.TapeShardReader
	m      int
}

func newTapeChunkSource(idx *index.Index, devices []string) (*tapeChunkSource, error) {
	positions := make(map[[2]int]ectar.TapePosition)
	for _, c := range idx.Chunks {
		for shard, pos := range c.TapeShardPositions {
			positions[[2]int{c.ChunkNumber, shard}] = pos
		}
	}
	reader, err := shardio.NewTapeShardReader(devices, positions)
	if err != nil {
		return nil, err
	}
	return &tapeChunkSource{
		idx:    idx,
		reader: reader,
		m:      idx.Parameters.DataShards + idx.Parameters.ParityShards,
	}, nil
}

func (s *tapeChunkSource) chunkNumbers() []int {
	var nums []int
	for _, c := range s.idx.Chunks {
		nums = append(nums, c.ChunkNumber)
	}
	sort.Ints(nums)
	return nums
}

func (s *tapeChunkSource) shardsFor(chunkNum int) []shardio.ShardData {
	var info *ectar.ChunkInfo
	for i := range s.idx.Chunks {
		if s.idx.Chunks[i].ChunkNumber == chunkNum {
			info = &s.idx.Chunks[i]
			break
		}
	}
	if info == nil {
		return nil
	}

	headerSize := 0
	if s.idx.Parameters.EmitShardHeaders {
		// The header length depends on both k and m, so size it from a
		// header built with this archive's parameters.
		h, err := zfec.NewHeader(uint8(s.idx.Parameters.DataShards), uint8(s.m), 0, 0)
		if err != nil {
			return nil
		}
		headerSize = len(h.Encode())
	}

	var shards []shardio.ShardData
	for shardNum := 0; shardNum < s.m; shardNum++ {
		if !s.reader.HasShardPosition(chunkNum, shardNum) {
			continue
		}
		data, err := s.reader.ReadShard(chunkNum, shardNum, headerSize+int(info.ShardSize))
		if err != nil {
			continue
		}
		sd := shardio.ShardData{Chunk: chunkNum, Shard: shardNum, Data: data}
		if s.idx.Parameters.EmitShardHeaders {
			if h, ok := zfec.ProbeHeader(data[:headerSize]); ok {
				sd.Header = h
				sd.HasHeader = true
			}
		}
		shards = append(shards, sd)
	}
	return shards
}

func (s *tapeChunkSource) close() error {
	return s.reader.Close()
}

func (e *Extractor) unpack(r io.Reader) (int, error) {
	tr := tar.NewReader(r)
	extracted := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if e.opts.Partial {
				break
			}
			return extracted, &ectar.IOError{Why: "reading tar stream", Err: err}
		}

		entryPath := path.Clean(hdr.Name)
		if !e.matches(entryPath) {
			continue
		}
		entryPath, ok := stripComponents(entryPath, e.opts.StripComponents)
		if !ok {
			continue
		}

		dest := filepath.Join(e.opts.Dest, filepath.FromSlash(entryPath))
		if err := e.unpackEntry(tr, hdr, dest); err != nil {
			if e.opts.Partial {
				continue
			}
			return extracted, err
		}
		extracted++
	}
	return extracted, nil
}

func (e *Extractor) unpackEntry(tr *tar.Reader, hdr *tar.Header, dest string) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dest, os.FileMode(hdr.Mode))
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return &ectar.IOError{Why: "creating parent directory", Err: err}
		}
		if err := os.Symlink(hdr.Linkname, dest); err != nil {
			return &ectar.IOError{Why: "creating symlink " + dest, Err: err}
		}
		return nil
	case tar.TypeLink:
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return &ectar.IOError{Why: "creating parent directory", Err: err}
		}
		target := filepath.Join(e.opts.Dest, filepath.FromSlash(hdr.Linkname))
		if err := os.Link(target, dest); err != nil {
			return &ectar.IOError{Why: "creating hardlink " + dest, Err: err}
		}
		return nil
	default:
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return &ectar.IOError{Why: "creating parent directory", Err: err}
		}
		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return &ectar.IOError{Why: "creating " + dest, Err: err}
		}
		defer f.Close()
		if _, err := io.Copy(f, tr); err != nil {
			return &ectar.IOError{Why: "writing " + dest, Err: err}
		}
		return nil
	}
}

// matches applies the include/exclude filter pipeline to an entry path.
func (e *Extractor) matches(entryPath string) bool {
	if len(e.opts.Include) > 0 {
		ok := false
		for _, pat := range e.opts.Include {
			if globMatch(pat, entryPath) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, pat := range e.opts.Exclude {
		if globMatch(pat, entryPath) {
			return false
		}
	}
	return true
}

// globMatch tries path.Match first; a pattern that fails to compile falls
// back to a plain substring test.
func globMatch(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	if err != nil {
		return strings.Contains(name, pattern)
	}
	return ok
}

// stripComponents removes n leading path elements from p. Reports false
// when p has n or fewer components, leaving nothing after stripping (the
// entry should be skipped).
func stripComponents(p string, n int) (string, bool) {
	if n <= 0 {
		return p, true
	}
	parts := strings.Split(p, "/")
	if len(parts) <= n {
		return "", false
	}
	return strings.Join(parts[n:], "/"), true
}
