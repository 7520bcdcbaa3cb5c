package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ectar-archive/ectar"
)

func writeSourceFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func buildSimpleArchive(t *testing.T, basePath string, opts BuilderOptions, files map[string][]byte) *ectar.ArchiveMetadata {
	t.Helper()
	srcDir := t.TempDir()
	opts.BasePath = basePath
	b, err := NewBuilder(opts)
	if err != nil {
		t.Fatal(err)
	}
	for name, data := range files {
		src := writeSourceFile(t, srcDir, name, data)
		if err := b.Add(FileTask{
			Path:       name,
			SourcePath: src,
			Type:       ectar.FileTypeRegular,
			Mode:       0644,
			Mtime:      time.Now().UTC(),
			Size:       int64(len(data)),
		}); err != nil {
			t.Fatal(err)
		}
	}
	meta, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	return meta
}

func TestBuildExtractRoundTrip(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")

	files := map[string][]byte{
		"hello.txt": []byte("Hello, World!"),
		"data.bin":  bytes.Repeat([]byte{0x41}, 5000),
	}
	buildSimpleArchive(t, base, BuilderOptions{
		ChunkSize:        1 << 20,
		CompressionLevel: 3,
		DataShards:       4,
		ParityShards:     2,
		EmitShardHeaders: true,
		ArchiveName:      "roundtrip",
	}, files)

	destDir := t.TempDir()
	ex := NewExtractor(ExtractorOptions{
		ShardPattern: base + ".c*.s*",
		Dest:         destDir,
	})
	meta, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if meta.FilesExtracted != len(files) {
		t.Errorf("got %d files extracted, want %d", meta.FilesExtracted, len(files))
	}
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(destDir, name))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s: content mismatch", name)
		}
	}
}

func TestBuildExtractEmptyArchive(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")

	buildSimpleArchive(t, base, BuilderOptions{
		ChunkSize:        1 << 20,
		CompressionLevel: 3,
		DataShards:       4,
		ParityShards:     2,
		ArchiveName:      "empty",
	}, nil)

	destDir := t.TempDir()
	ex := NewExtractor(ExtractorOptions{
		ShardPattern: base + ".c*.s*",
		Dest:         destDir,
	})
	meta, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if meta.FilesExtracted != 0 {
		t.Errorf("got %d files extracted, want 0", meta.FilesExtracted)
	}
}

func TestExtractWithIncludeAndStripComponents(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")

	files := map[string][]byte{
		"keep/a.txt":  []byte("a"),
		"keep/b.log":  []byte("b"),
		"drop/c.txt":  []byte("c"),
	}
	buildSimpleArchive(t, base, BuilderOptions{
		ChunkSize:        1 << 20,
		CompressionLevel: 3,
		DataShards:       4,
		ParityShards:     2,
		ArchiveName:      "filtered",
	}, files)

	destDir := t.TempDir()
	ex := NewExtractor(ExtractorOptions{
		ShardPattern:    base + ".c*.s*",
		Dest:            destDir,
		Include:         []string{"keep/*.txt"},
		StripComponents: 1,
	})
	meta, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if meta.FilesExtracted != 1 {
		t.Fatalf("got %d files extracted, want 1", meta.FilesExtracted)
	}
	if _, err := os.Stat(filepath.Join(destDir, "a.txt")); err != nil {
		t.Errorf("expected a.txt to be extracted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(destDir, "b.log")); err == nil {
		t.Error("b.log should have been excluded by the include filter")
	}
}

func TestBuildExtractRoundTripBypassCompression(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")

	files := map[string][]byte{
		"hello.txt": []byte("Hello, uncompressed World!"),
		"data.bin":  bytes.Repeat([]byte{0x41}, 5000),
	}
	buildSimpleArchive(t, base, BuilderOptions{
		ChunkSize:         1 << 20,
		BypassCompression: true,
		DataShards:        4,
		ParityShards:      2,
		EmitShardHeaders:  true,
		ArchiveName:       "bypass",
	}, files)

	destDir := t.TempDir()
	ex := NewExtractor(ExtractorOptions{
		ShardPattern: base + ".c*.s*",
		Dest:         destDir,
	})
	meta, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if meta.FilesExtracted != len(files) {
		t.Errorf("got %d files extracted, want %d", meta.FilesExtracted, len(files))
	}
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(destDir, name))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s: content mismatch", name)
		}
	}
}

// TestBuildExtractRoundTripBypassCompressionNoIndex exercises the index-less
// recovery path for a bypass-compressed archive: with no companion index to
// consult Parameters.BypassCompression, the extractor must sniff the lead
// shard for the absence of a zstd frame instead.
func TestBuildExtractRoundTripBypassCompressionNoIndex(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")

	files := map[string][]byte{
		"data.bin": bytes.Repeat([]byte{0x41}, 5000),
	}
	meta := buildSimpleArchive(t, base, BuilderOptions{
		ChunkSize:         1 << 20,
		BypassCompression: true,
		DataShards:        4,
		ParityShards:      2,
		EmitShardHeaders:  true,
		ArchiveName:       "bypass-noindex",
	}, files)
	if err := os.Remove(meta.IndexPath); err != nil {
		t.Fatal(err)
	}

	destDir := t.TempDir()
	ex := NewExtractor(ExtractorOptions{
		ShardPattern: base + ".c*.s*",
		Dest:         destDir,
	})
	extractMeta, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if extractMeta.FilesExtracted != len(files) {
		t.Errorf("got %d files extracted, want %d", extractMeta.FilesExtracted, len(files))
	}
	got, err := os.ReadFile(filepath.Join(destDir, "data.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, files["data.bin"]) {
		t.Error("data.bin: content mismatch")
	}
}

func TestBuildExtractRoundTripTape(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")
	tapeDevices := []string{
		filepath.Join(dir, "tape0"),
		filepath.Join(dir, "tape1"),
		filepath.Join(dir, "tape2"),
	}

	files := map[string][]byte{
		"hello.txt": []byte("Hello, tape World!"),
		"data.bin":  bytes.Repeat([]byte{0x42}, 5000),
	}
	buildSimpleArchive(t, base, BuilderOptions{
		ChunkSize:        1 << 20,
		CompressionLevel: 3,
		DataShards:       2,
		ParityShards:     1,
		EmitShardHeaders: true,
		TapeDevices:      tapeDevices,
		BlockSize:        4096,
		ArchiveName:      "tape",
	}, files)

	destDir := t.TempDir()
	ex := NewExtractor(ExtractorOptions{
		ShardPattern: base + ".c*.s*",
		Dest:         destDir,
		TapeDevices:  tapeDevices,
	})
	meta, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if meta.FilesExtracted != len(files) {
		t.Errorf("got %d files extracted, want %d", meta.FilesExtracted, len(files))
	}
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(destDir, name))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s: content mismatch", name)
		}
	}
}
