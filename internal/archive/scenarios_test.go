package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ectar-archive/ectar"
	"github.com/ectar-archive/ectar/internal/index"
	"github.com/ectar-archive/ectar/internal/zfec"
)

// scenario 1: one small file, minimum redundancy.
func TestScenarioSmallTextMinimumRedundancy(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")
	srcDir := t.TempDir()
	content := []byte("Hello, World!")
	src := writeSourceFile(t, srcDir, "hello.txt", content)

	b, err := NewBuilder(BuilderOptions{
		BasePath:         base,
		ChunkSize:        1 << 20,
		CompressionLevel: 3,
		DataShards:       4,
		ParityShards:     2,
		EmitShardHeaders: true,
		ArchiveName:      "scenario1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Add(FileTask{
		Path: "hello.txt", SourcePath: src, Type: ectar.FileTypeRegular,
		Mode: 0644, Mtime: time.Now().UTC(), Size: int64(len(content)),
	}); err != nil {
		t.Fatal(err)
	}
	meta, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if meta.ChunksWritten != 1 {
		t.Errorf("got %d chunks, want 1", meta.ChunksWritten)
	}

	matches, _ := filepath.Glob(base + ".c*.s*")
	if len(matches) != 6 {
		t.Fatalf("got %d shard files, want 6", len(matches))
	}

	destDir := t.TempDir()
	ex := NewExtractor(ExtractorOptions{ShardPattern: base + ".c*.s*", Dest: destDir})
	if _, err := ex.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(destDir, "hello.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("got %q, want %q", got, content)
	}
}

// scenario 2: one byte short of the chunk boundary, stays a single chunk.
func TestScenarioOneByteShortOfBoundary(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")
	srcDir := t.TempDir()
	content := bytes.Repeat([]byte{0x41}, 1048575)
	src := writeSourceFile(t, srcDir, "big.bin", content)

	b, err := NewBuilder(BuilderOptions{
		BasePath: base, ChunkSize: 1 << 20, CompressionLevel: 3,
		DataShards: 4, ParityShards: 2, ArchiveName: "scenario2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Add(FileTask{
		Path: "big.bin", SourcePath: src, Type: ectar.FileTypeRegular,
		Mode: 0644, Mtime: time.Now().UTC(), Size: int64(len(content)),
	}); err != nil {
		t.Fatal(err)
	}
	meta, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if meta.ChunksWritten != 1 {
		t.Errorf("got %d chunks, want 1", meta.ChunksWritten)
	}
}

// scenario 3: exact two chunks, file spans the boundary.
func TestScenarioExactTwoChunks(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")
	srcDir := t.TempDir()
	content := bytes.Repeat([]byte{0x41}, 2097152)
	src := writeSourceFile(t, srcDir, "huge.bin", content)

	b, err := NewBuilder(BuilderOptions{
		BasePath: base, ChunkSize: 1 << 20, CompressionLevel: 3,
		DataShards: 4, ParityShards: 2, ArchiveName: "scenario3",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Add(FileTask{
		Path: "huge.bin", SourcePath: src, Type: ectar.FileTypeRegular,
		Mode: 0644, Mtime: time.Now().UTC(), Size: int64(len(content)),
	}); err != nil {
		t.Fatal(err)
	}
	meta, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if meta.ChunksWritten != 2 {
		t.Errorf("got %d chunks, want 2", meta.ChunksWritten)
	}

	f, err := os.Open(base + ".index.zst")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	idx, err := index.Read(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(idx.Files) != 1 || !idx.Files[0].SpansChunks {
		t.Errorf("expected huge.bin to be marked as spanning chunks")
	}
}

func buildScenario1(t *testing.T, base string) []byte {
	t.Helper()
	srcDir := t.TempDir()
	content := []byte("Hello, World!")
	src := writeSourceFile(t, srcDir, "hello.txt", content)
	b, err := NewBuilder(BuilderOptions{
		BasePath: base, ChunkSize: 1 << 20, CompressionLevel: 3,
		DataShards: 4, ParityShards: 2, EmitShardHeaders: true, ArchiveName: "scenario",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Add(FileTask{
		Path: "hello.txt", SourcePath: src, Type: ectar.FileTypeRegular,
		Mode: 0644, Mtime: time.Now().UTC(), Size: int64(len(content)),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Finish(); err != nil {
		t.Fatal(err)
	}
	return content
}

// scenario 4: one shard lost, extraction still succeeds.
func TestScenarioErasureRecoveryOneShardLost(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")
	content := buildScenario1(t, base)

	if err := os.Remove(zfec.FormatShardName(base, 1, 0)); err != nil {
		t.Fatal(err)
	}

	destDir := t.TempDir()
	ex := NewExtractor(ExtractorOptions{ShardPattern: base + ".c*.s*", Dest: destDir})
	if _, err := ex.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(destDir, "hello.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("got %q, want %q", got, content)
	}
}

// scenario 5: three of four data shards gone; InsufficientShards without
// partial mode, chunks_failed=1/files_extracted=0 with it.
func TestScenarioUnrecoverableChunk(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")
	buildScenario1(t, base)

	for _, s := range []int{0, 1, 2} {
		if err := os.Remove(zfec.FormatShardName(base, 1, s)); err != nil {
			t.Fatal(err)
		}
	}

	destDir := t.TempDir()
	ex := NewExtractor(ExtractorOptions{ShardPattern: base + ".c*.s*", Dest: destDir})
	_, err := ex.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error without partial mode")
	}
	if _, ok := err.(*ectar.InsufficientShardsError); !ok {
		t.Errorf("got error of type %T, want *ectar.InsufficientShardsError", err)
	}

	destDir2 := t.TempDir()
	ex2 := NewExtractor(ExtractorOptions{ShardPattern: base + ".c*.s*", Dest: destDir2, Partial: true})
	meta, err := ex2.Run(context.Background())
	if err != nil {
		t.Fatalf("partial mode should not return an error, got %v", err)
	}
	if meta.ChunksFailed != 1 {
		t.Errorf("got %d chunks failed, want 1", meta.ChunksFailed)
	}
	if meta.FilesExtracted != 0 {
		t.Errorf("got %d files extracted, want 0", meta.FilesExtracted)
	}
}

// scenario 6: index removed; extractor falls back to shard headers.
func TestScenarioIndexLessRecovery(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")
	content := buildScenario1(t, base)

	if err := os.Remove(base + ".index.zst"); err != nil {
		t.Fatal(err)
	}

	destDir := t.TempDir()
	ex := NewExtractor(ExtractorOptions{ShardPattern: base + ".c*.s*", Dest: destDir})
	_, err := ex.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(destDir, "hello.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("got %q, want %q", got, content)
	}
}
