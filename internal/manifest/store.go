package manifest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/daypack/daypack/internal/objstore"
	"github.com/daypack/daypack/internal/types"
)

// defaultLogger is a simple logger implementation
type defaultLogger struct{}

func (d defaultLogger) Printf(format string, v ...interface{}) { log.Printf(format, v...) }
func (d defaultLogger) Println(v ...interface{})               { log.Println(v...) }

// Store maintains day manifests across two homes: a local staging
// directory (one subdirectory per day key) and the remote object store,
// which is the final authority. Staged writes are made durable before any
// remote commit is attempted.
type Store struct {
	stagingDir string
	remote     objstore.Store
	keys       types.KeyLayout
	logger     types.Logger
}

// NewStore creates a manifest store. logger may be nil.
func NewStore(stagingDir string, remote objstore.Store, keys types.KeyLayout, logger types.Logger) (*Store, error) {
	if logger == nil {
		logger = defaultLogger{}
	}
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Store{stagingDir: stagingDir, remote: remote, keys: keys, logger: logger}, nil
}

// LocalPath returns the staging path of a day's manifest.
func (s *Store) LocalPath(dayKey string) string {
	return filepath.Join(s.stagingDir, dayKey, types.MANIFEST_FILE)
}

// Load reconstructs the manifest for a day. The remote copy is preferred
// when reachable; local staging is a best-effort fallback when the remote
// cannot be read. A day with no manifest anywhere starts empty.
func (s *Store) Load(ctx context.Context, dayKey string) (*DayManifest, error) {
	key := s.keys.ManifestKey(dayKey)

	data, err := s.remote.Get(ctx, key)
	switch {
	case err == nil:
		m, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("remote manifest %s is invalid: %w", key, err)
		}
		// Refresh the staged copy so a later offline resume sees the
		// committed state.
		if err := s.stage(dayKey, m); err != nil {
			s.logger.Printf("Warning: failed to refresh staged manifest: %v", err)
		}
		return m, nil

	case objstore.IsNotExist(err):
		// Remote is reachable and holds no manifest, and remote is the
		// authority: the day starts empty. Anything still staged from an
		// interrupted run gets recommitted, which the idempotent upload
		// path makes cheap.
		return New(dayKey), nil

	default:
		s.logger.Printf("Warning: remote manifest unreachable, falling back to staging: %v", err)
	}

	local := s.LocalPath(dayKey)
	if _, statErr := os.Stat(local); statErr == nil {
		m, err := LoadLocal(local)
		if err != nil {
			return nil, fmt.Errorf("staged manifest %s is invalid: %w", local, err)
		}
		return m, nil
	}

	return New(dayKey), nil
}

// EntryExists reports whether a batch index is already committed for the
// day. Used to skip redundant work on resume.
func (s *Store) EntryExists(ctx context.Context, dayKey string, batchIndex int) (bool, error) {
	m, err := s.Load(ctx, dayKey)
	if err != nil {
		return false, err
	}
	return m.EntryExists(batchIndex), nil
}

// Append commits one batch entry: the entry is recorded in m, staged
// durably to disk, and then pushed to the remote store. The remote write
// is conditional on the remote's last committed index still matching this
// writer's expectation, so two resumed runs cannot double-write
// conflicting entries.
func (s *Store) Append(ctx context.Context, m *DayManifest, e Entry) error {
	if err := m.Append(e); err != nil {
		return err
	}

	if err := s.stage(m.Date, m); err != nil {
		return fmt.Errorf("failed to stage manifest: %w", err)
	}

	return s.commitRemote(ctx, m, e)
}

// commitRemote pushes the full manifest document after an optimistic
// concurrency check against the currently committed remote copy.
func (s *Store) commitRemote(ctx context.Context, m *DayManifest, e Entry) error {
	key := s.keys.ManifestKey(m.Date)

	remoteData, err := s.remote.Get(ctx, key)
	switch {
	case err == nil:
		remote, err := Parse(remoteData)
		if err != nil {
			return fmt.Errorf("remote manifest %s is invalid: %w", key, err)
		}
		if existing := remote.Entry(e.Index); existing != nil {
			if existing.ArchiveChecksum != e.ArchiveChecksum {
				return &types.ConflictError{
					DayKey:     m.Date,
					BatchIndex: e.Index,
					Want:       existing.ArchiveChecksum,
					Got:        e.ArchiveChecksum,
				}
			}
			// Another writer already committed this exact entry.
			return nil
		}
		if last := remote.LastIndex(); last != e.Index-1 {
			return &types.ConflictError{
				DayKey:     m.Date,
				BatchIndex: e.Index,
				Want:       fmt.Sprintf("last committed index %d", e.Index-1),
				Got:        fmt.Sprintf("last committed index %d", last),
			}
		}

	case objstore.IsNotExist(err):
		if e.Index != 0 {
			return &types.ConflictError{
				DayKey:     m.Date,
				BatchIndex: e.Index,
				Want:       "existing remote manifest",
				Got:        "none",
			}
		}

	default:
		return fmt.Errorf("failed to read remote manifest: %w", err)
	}

	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := s.remote.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to commit manifest: %w", err)
	}
	return nil
}

func (s *Store) stage(dayKey string, m *DayManifest) error {
	dir := filepath.Join(s.stagingDir, dayKey)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create staging day directory: %w", err)
	}
	return m.SaveLocal(filepath.Join(dir, types.MANIFEST_FILE))
}
