package manifest

import (
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"github.com/daypack/daypack/internal/types"
)

// FileEntry describes one file inside a committed batch archive. Field
// names are part of the wire format and must not change.
type FileEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
	Name string `json:"name"`
}

// Entry is one committed batch: its index, the checksum of the archive
// blob as uploaded, and the ordered files it contains.
type Entry struct {
	Index           int         `json:"index"`
	ArchiveChecksum string      `json:"archiveChecksum"`
	Files           []FileEntry `json:"files"`
}

// DayManifest is the durable record of one day-run. Entries are appended
// in monotonically increasing batch-index order as batches are committed;
// the document is never mutated retroactively except to append.
type DayManifest struct {
	Date          string  `json:"date"`
	SchemaVersion int     `json:"schemaVersion"`
	Batches       []Entry `json:"batches"`

	mu sync.RWMutex `json:"-"`
}

// New creates an empty manifest for a day key.
func New(dayKey string) *DayManifest {
	return &DayManifest{
		Date:          dayKey,
		SchemaVersion: types.SCHEMA_VERSION,
		Batches:       make([]Entry, 0),
	}
}

// Parse decodes a manifest document and validates its schema version.
func Parse(data []byte) (*DayManifest, error) {
	var m DayManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.SchemaVersion != types.SCHEMA_VERSION {
		return nil, fmt.Errorf("unsupported manifest schema version: %d (expected %d)",
			m.SchemaVersion, types.SCHEMA_VERSION)
	}
	return &m, nil
}

// Marshal encodes the manifest as indented JSON.
func (m *DayManifest) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}

// EntryExists reports whether a batch index is already committed.
func (m *DayManifest) EntryExists(batchIndex int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.find(batchIndex) != nil
}

// Entry returns the committed entry for batchIndex, or nil.
func (m *DayManifest) Entry(batchIndex int) *Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e := m.find(batchIndex); e != nil {
		cp := *e
		return &cp
	}
	return nil
}

// Entries returns a copy of all committed entries in index order.
func (m *DayManifest) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Entry, len(m.Batches))
	copy(result, m.Batches)
	return result
}

// LastIndex returns the highest committed batch index, or -1 when the
// manifest is empty.
func (m *DayManifest) LastIndex() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.Batches) == 0 {
		return -1
	}
	return m.Batches[len(m.Batches)-1].Index
}

// Count returns the number of committed batches.
func (m *DayManifest) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Batches)
}

// FileCount returns the total number of files across committed batches.
func (m *DayManifest) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.Batches {
		n += len(e.Files)
	}
	return n
}

// Append records a committed batch. It is idempotent: appending an entry
// whose index already exists with an identical checksum is a no-op.
// The same index with a different checksum is a fatal consistency error,
// since it means the batch partition upstream was not deterministic.
// Entries must otherwise arrive in contiguous increasing index order.
func (m *DayManifest) Append(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.find(e.Index); existing != nil {
		if existing.ArchiveChecksum == e.ArchiveChecksum {
			return nil
		}
		return &types.ConflictError{
			DayKey:     m.Date,
			BatchIndex: e.Index,
			Want:       existing.ArchiveChecksum,
			Got:        e.ArchiveChecksum,
		}
	}

	next := 0
	if len(m.Batches) > 0 {
		next = m.Batches[len(m.Batches)-1].Index + 1
	}
	if e.Index != next {
		return fmt.Errorf("out-of-order manifest append: got index %d, want %d", e.Index, next)
	}

	m.Batches = append(m.Batches, e)
	return nil
}

// SaveLocal writes the manifest to path atomically (temp file + rename)
// and syncs it to disk, so the staged copy is durable before any remote
// commit is attempted.
func (m *DayManifest) SaveLocal(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// LoadLocal reads a staged manifest from disk.
func LoadLocal(path string) (*DayManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	return Parse(data)
}

func (m *DayManifest) find(batchIndex int) *Entry {
	for i := range m.Batches {
		if m.Batches[i].Index == batchIndex {
			return &m.Batches[i]
		}
	}
	return nil
}
