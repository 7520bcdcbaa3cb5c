package zfec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ectar-archive/ectar"
)

// FormatShardName builds a shard filename like "backup.c001.s05" from a base
// path, chunk number, and shard index.
func FormatShardName(base string, chunk, shard int) string {
	return fmt.Sprintf("%s.c%03d.s%02d", base, chunk, shard)
}

// ParseShardName extracts (chunk, shard) from a shard filename. It looks for
// the rightmost ".s" marker and the nearest ".c" marker before it, matching
// the zunfec naming convention; any other ".c"/".s" occurring earlier in the
// base name (e.g. a base name containing ".src" or ".cfg") does not confuse it.
func ParseShardName(name string) (chunk, shard int, err error) {
	sPos := strings.LastIndex(name, ".s")
	if sPos < 0 {
		return 0, 0, &ectar.InvalidShardFileError{Path: name}
	}
	cPos := strings.LastIndex(name[:sPos], ".c")
	if cPos < 0 {
		return 0, 0, &ectar.InvalidShardFileError{Path: name}
	}

	chunkStr := name[cPos+2 : sPos]
	chunk, convErr := strconv.Atoi(chunkStr)
	if convErr != nil {
		return 0, 0, &ectar.InvalidShardFileError{Path: name}
	}

	shardStr := name[sPos+2:]
	shard, convErr = strconv.Atoi(shardStr)
	if convErr != nil {
		return 0, 0, &ectar.InvalidShardFileError{Path: name}
	}

	return chunk, shard, nil
}
