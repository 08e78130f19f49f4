package archive

import (
	"fmt"
	"os"
	"path"

	"github.com/daypack/daypack/internal/batch"
	"github.com/daypack/daypack/internal/scan"
	"github.com/daypack/daypack/internal/types"
)

// Archive is the packed form of one batch. Immutable after creation; the
// blob is discarded once its upload has been verified.
type Archive struct {
	BatchIndex int
	Blob       []byte
	Checksum   string // sha256 hex over the final blob bytes, after compression
	Size       int64
	// Names maps each file's relative path to its entry name inside the
	// archive, in batch order.
	Names []string
}

// Archiver packs batches into checksummed archive blobs.
type Archiver struct {
	codec  Codec
	logger types.Logger
}

// NewArchiver creates an archiver using the given codec. logger may be nil.
func NewArchiver(codec Codec, logger types.Logger) *Archiver {
	return &Archiver{codec: codec, logger: logger}
}

// Codec returns the archiver's codec.
func (a *Archiver) Codec() Codec { return a.codec }

// MemberName returns the deterministic entry name for the file at position
// pos within its batch. The position prefix keeps names collision-free even
// when distinct paths share a base name; the original relative path is
// preserved in the manifest.
func MemberName(pos int, relPath string) string {
	return fmt.Sprintf("%05d_%s", pos, path.Base(relPath))
}

// Pack reads every file in the batch and produces its archive. Each file is
// re-hashed on read; a size or content mismatch against the enumerated
// record means the file changed after enumeration, and the whole batch is
// aborted with an ArchiveError so it can be re-enumerated instead of
// silently archiving stale data.
func (a *Archiver) Pack(b *batch.Batch) (*Archive, error) {
	if len(b.Files) == 0 {
		return nil, fmt.Errorf("batch %d is empty", b.Index)
	}

	members := make([]Member, 0, len(b.Files))
	names := make([]string, 0, len(b.Files))

	for pos, rec := range b.Files {
		data, err := os.ReadFile(rec.Path)
		if err != nil {
			return nil, &types.ArchiveError{Path: rec.Path, Reason: "file vanished", Err: err}
		}
		if int64(len(data)) != rec.Size {
			return nil, &types.ArchiveError{
				Path:   rec.Path,
				Reason: fmt.Sprintf("size changed (%d -> %d)", rec.Size, len(data)),
			}
		}
		if got := scan.Hash(data); got != rec.Hash {
			return nil, &types.ArchiveError{Path: rec.Path, Reason: "content changed since enumeration"}
		}

		name := MemberName(pos, rec.RelPath)
		members = append(members, Member{Name: name, ModTime: rec.ModTime, Data: data})
		names = append(names, name)
	}

	blob, err := a.codec.Pack(members)
	if err != nil {
		return nil, fmt.Errorf("failed to pack batch %d: %w", b.Index, err)
	}

	return &Archive{
		BatchIndex: b.Index,
		Blob:       blob,
		Checksum:   scan.Hash(blob),
		Size:       int64(len(blob)),
		Names:      names,
	}, nil
}

// Extract unpacks an archive blob and returns its members keyed by entry
// name, verifying the blob checksum first when expected is non-empty.
func (a *Archiver) Extract(blob []byte, expected string) (map[string]Member, error) {
	if expected != "" {
		if got := scan.Hash(blob); got != expected {
			return nil, fmt.Errorf("archive checksum mismatch: got %s, want %s", got, expected)
		}
	}

	members, err := a.codec.Unpack(blob)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]Member, len(members))
	for _, m := range members {
		byName[m.Name] = m
	}
	return byName, nil
}
