package types

import "fmt"

// Logger is a simple logging interface used throughout daypack
type Logger interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

const (
	// BATCH_SIZE is the standard number of files per batch
	BATCH_SIZE = 25

	// MANIFEST_FILE is the manifest object name within a day prefix
	MANIFEST_FILE = "manifest.json"

	// SCHEMA_VERSION is the current manifest schema version
	SCHEMA_VERSION = 1
)

// KeyLayout builds remote object keys. An empty Prefix means keys start
// at the day key.
type KeyLayout struct {
	Prefix string
}

// ArchiveKey returns the remote key for a batch archive. The extension is
// determined by the archive codec (".zip" or ".tar.zst").
func (k KeyLayout) ArchiveKey(dayKey string, batchIndex int, ext string) string {
	return k.join(fmt.Sprintf("%s/%d%s", dayKey, batchIndex, ext))
}

// ManifestKey returns the remote key for a day's manifest document.
func (k KeyLayout) ManifestKey(dayKey string) string {
	return k.join(dayKey + "/" + MANIFEST_FILE)
}

func (k KeyLayout) join(rest string) string {
	if k.Prefix == "" {
		return rest
	}
	return k.Prefix + "/" + rest
}
