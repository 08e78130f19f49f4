package archive

import (
	"fmt"

	"github.com/valyala/gozstd"
)

// ============================================================================
// ZSTD COMPRESSION ABSTRACTION LAYER
// ============================================================================
// Thin wrappers so the tar+zstd codec does not depend on a specific zstd
// implementation anywhere else.

const (
	// zstdLevel is the compression level used for tar.zst archives
	zstdLevel = 3
)

// compressZstd compresses data into a single zstd frame.
func compressZstd(data []byte) []byte {
	return gozstd.CompressLevel(nil, data, zstdLevel)
}

// decompressZstd decompresses one or more concatenated zstd frames.
func decompressZstd(compressed []byte) ([]byte, error) {
	decompressed, err := gozstd.Decompress(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	return decompressed, nil
}
