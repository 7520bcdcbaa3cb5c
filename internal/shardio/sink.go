// Package shardio implements the writable and readable ends of shard
// storage: plain files, block-aligned tape devices, and the glob-based
// discovery used to recover an archive from its shards alone.
package shardio

import (
	"os"

	"github.com/ectar-archive/ectar"
)

// Sink is one shard's destination. Finish flushes and returns the number of
// bytes written.
type Sink interface {
	Write(p []byte) (int, error)
	Finish() (uint64, error)
}

// FileSink writes a shard to a single regular file.
type FileSink struct {
	f       *os.File
	written uint64
}

// NewFileSink creates (or truncates) path for writing.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &ectar.IOError{Why: "creating shard file", Err: err}
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	s.written += uint64(n)
	if err != nil {
		return n, &ectar.IOError{Why: "writing shard file", Err: err}
	}
	return n, nil
}

// Finish flushes and closes the underlying file.
func (s *FileSink) Finish() (uint64, error) {
	if err := s.f.Sync(); err != nil {
		return s.written, &ectar.IOError{Why: "syncing shard file", Err: err}
	}
	if err := s.f.Close(); err != nil {
		return s.written, &ectar.IOError{Why: "closing shard file", Err: err}
	}
	return s.written, nil
}
