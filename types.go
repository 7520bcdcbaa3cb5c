package ectar

import "time"

// FileType identifies what kind of filesystem entry a FileEntry describes.
type FileType string

const (
	FileTypeRegular   FileType = "file"
	FileTypeDirectory FileType = "directory"
	FileTypeSymlink   FileType = "symlink"
	FileTypeHardlink  FileType = "hardlink"
	FileTypeOther     FileType = "other"
)

// Parameters describes the erasure coding and compression configuration an
// archive was built with. DataShards+ParityShards must not exceed 256 (255
// when shard headers are emitted, since the zfec header packs the share
// number into fields sized for DataShards+ParityShards-1).
type Parameters struct {
	DataShards       int    `json:"data_shards"`
	ParityShards     int    `json:"parity_shards"`
	ChunkSize        uint64 `json:"chunk_size,omitempty"`
	CompressionLevel int    `json:"compression_level"`

	// BypassCompression records whether chunks were stored uncompressed
	// (ectar create -no_compression), so extraction knows to skip zstd
	// decoding instead of assuming every chunk is a zstd frame.
	BypassCompression bool `json:"bypass_compression,omitempty"`

	// EmitShardHeaders records whether every shard carries a zfec-compatible
	// header, needed to size and parse shards read directly off tape.
	EmitShardHeaders bool `json:"emit_shard_headers"`

	// TapeDevices, when non-empty, records the device paths the archive was
	// written to in RAIT mode. BlockSize is the tape block alignment used.
	TapeDevices []string `json:"tape_devices,omitempty"`
	BlockSize   uint64   `json:"block_size,omitempty"`
}

// FileEntry describes one archived filesystem entry and where its bytes live
// in the chunk/shard stream.
type FileEntry struct {
	Path string   `json:"path"`
	Type FileType `json:"entry_type"`

	Chunk        int    `json:"chunk"`
	Offset       uint64 `json:"offset"`
	Size         int64  `json:"size"`
	CompressedSize int64 `json:"compressed_size,omitempty"`
	Checksum     string `json:"checksum,omitempty"`

	// SpansChunks is true when the file's tar entry begins in one chunk and
	// ends in a later one.
	SpansChunks bool `json:"spans_chunks,omitempty"`

	Mode  uint32    `json:"mode"`
	Mtime time.Time `json:"mtime"`
	UID   int       `json:"uid"`
	GID   int       `json:"gid"`
	User  string    `json:"user,omitempty"`
	Group string    `json:"group,omitempty"`

	// Target is the symlink/hardlink target, set only when Type is
	// FileTypeSymlink or FileTypeHardlink.
	Target string `json:"target,omitempty"`
}

// ChunkInfo describes one erasure-coded chunk of the archive's tar stream.
type ChunkInfo struct {
	ChunkNumber      int    `json:"chunk_number"`
	CompressedSize   uint64 `json:"compressed_size"`
	UncompressedSize uint64 `json:"uncompressed_size"`
	ShardSize        uint64 `json:"shard_size"`
	Checksum         string `json:"checksum,omitempty"`

	// TapeShardPositions maps shard number to (device index, byte offset)
	// when the chunk was written in RAIT mode. Absent for file-sink archives.
	TapeShardPositions map[int]TapePosition `json:"tape_shard_positions,omitempty"`
}

// TapePosition locates one shard's bytes on a tape device.
type TapePosition struct {
	Device   int    `json:"device"`
	Position uint64 `json:"position"`
}

// ArchiveMetadata summarizes the result of building an archive.
type ArchiveMetadata struct {
	ChunksWritten int
	FilesWritten  int
	IndexPath     string
}

// ExtractionMetadata summarizes the result of extracting an archive.
type ExtractionMetadata struct {
	ChunksTotal     int
	ChunksRecovered int
	ChunksFailed    int
	FilesExtracted  int
}
