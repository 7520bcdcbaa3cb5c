package shardio

import (
	"os"

	"github.com/ectar-archive/ectar"
	"golang.org/x/sys/unix"
)

// TapeSink writes one shard stream to a block-aligned device (or a regular
// file standing in for one), buffering partial blocks and zero-padding the
// final block on Finish. Opened in append mode so repeated chunks append
// after whatever is already on the device.
type TapeSink struct {
	device      *os.File
	position    uint64
	written     uint64
	blockSize   int
	writeBuffer []byte
}

// NewTapeSink opens devicePath (creating it if it is a regular file) and
// seeks to its current end, the way a tape device's append-mode write head
// already sits past any previously written chunks.
func NewTapeSink(devicePath string, blockSize int) (*TapeSink, error) {
	f, err := os.OpenFile(devicePath, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, &ectar.IOError{Why: "opening tape device", Err: err}
	}
	pos, err := unix.Seek(int(f.Fd()), 0, unix.SEEK_END)
	if err != nil {
		f.Close()
		return nil, &ectar.IOError{Why: "seeking tape device", Err: err}
	}
	return &TapeSink{device: f, position: uint64(pos), blockSize: blockSize}, nil
}

// CurrentPosition reports the byte offset the next block written will start
// at.
func (s *TapeSink) CurrentPosition() uint64 { return s.position }

// BlockSize returns the configured block alignment.
func (s *TapeSink) BlockSize() int { return s.blockSize }

func (s *TapeSink) Write(p []byte) (int, error) {
	s.writeBuffer = append(s.writeBuffer, p...)
	for len(s.writeBuffer) >= s.blockSize {
		block := s.writeBuffer[:s.blockSize]
		if _, err := s.device.Write(block); err != nil {
			return 0, &ectar.IOError{Why: "writing tape block", Err: err}
		}
		s.writeBuffer = s.writeBuffer[s.blockSize:]
		s.position += uint64(s.blockSize)
		s.written += uint64(s.blockSize)
	}
	return len(p), nil
}

// Finish pads any remaining partial block to the block boundary with zeros,
// writes it, and returns the total bytes written (including padding).
func (s *TapeSink) Finish() (uint64, error) {
	if len(s.writeBuffer) > 0 {
		padded := make([]byte, s.blockSize)
		copy(padded, s.writeBuffer)
		if _, err := s.device.Write(padded); err != nil {
			return s.written, &ectar.IOError{Why: "writing final tape block", Err: err}
		}
		s.position += uint64(s.blockSize)
		s.written += uint64(s.blockSize)
		s.writeBuffer = nil
	}
	if err := s.device.Sync(); err != nil {
		return s.written, &ectar.IOError{Why: "syncing tape device", Err: err}
	}
	return s.written, nil
}

// Close releases the underlying device handle without flushing buffered
// bytes; callers should call Finish first.
func (s *TapeSink) Close() error {
	return s.device.Close()
}
