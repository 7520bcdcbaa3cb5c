// Package checksum computes the "sha256:<hex>" digests recorded against
// files and chunks in the archive index.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/ectar-archive/ectar"
)

const bufferSize = 8192

// Compute reads r to EOF and returns its digest as "sha256:<hex>".
func Compute(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, bufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &ectar.IOError{Why: "computing checksum", Err: err}
		}
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether r's digest matches expected.
func Verify(r io.Reader, expected string) (bool, error) {
	got, err := Compute(r)
	if err != nil {
		return false, err
	}
	return got == expected, nil
}
