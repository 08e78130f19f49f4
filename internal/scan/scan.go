package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/daypack/daypack/internal/types"
)

// FileRecord describes one regular file found under the backup root.
// Records are immutable once enumerated.
type FileRecord struct {
	Path    string    `json:"path"`     // absolute path on disk
	RelPath string    `json:"rel_path"` // slash-separated path relative to root
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Hash    string    `json:"hash"` // sha256 hex of the file content
}

// SkippedFile records a file that could not be read during enumeration.
// Individual unreadable files are warnings, not fatal errors.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result holds one enumeration pass over the root.
type Result struct {
	Root    string
	Files   []FileRecord
	Skipped []SkippedFile
}

// TotalBytes returns the summed size of all enumerated files.
func (r *Result) TotalBytes() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// Scanner enumerates regular files under a root directory.
//
// Symlinks are never followed; symlinks, directories and other non-regular
// files are excluded. The returned order is lexicographic over the
// slash-separated relative path, so repeated runs over an unchanged tree
// always produce the same sequence.
type Scanner struct {
	logger types.Logger
}

// NewScanner creates a scanner. logger may be nil.
func NewScanner(logger types.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// Scan walks root and returns every readable regular file in deterministic
// order. A missing or unreadable root is a fatal error; unreadable files
// and subdirectories are skipped with a recorded warning.
func (s *Scanner) Scan(root string) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read root %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	result := &Result{Root: absRoot}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == absRoot {
				return fmt.Errorf("failed to read root %s: %w", absRoot, walkErr)
			}
			result.Skipped = append(result.Skipped, SkippedFile{Path: path, Reason: walkErr.Error()})
			s.warn("skipping %s: %v", path, walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			// symlinks and special files are excluded
			return nil
		}

		rec, err := s.record(absRoot, path, d)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedFile{Path: path, Reason: err.Error()})
			s.warn("skipping %s: %v", path, err)
			return nil
		}

		result.Files = append(result.Files, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Filesystem iteration order is unspecified; sort explicitly so the
	// batch partition is reproducible across runs.
	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].RelPath < result.Files[j].RelPath
	})

	return result, nil
}

func (s *Scanner) record(root, path string, d fs.DirEntry) (FileRecord, error) {
	info, err := d.Info()
	if err != nil {
		return FileRecord{}, fmt.Errorf("failed to stat: %w", err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return FileRecord{}, fmt.Errorf("failed to relativize: %w", err)
	}

	hash, size, err := HashFile(path)
	if err != nil {
		return FileRecord{}, err
	}

	return FileRecord{
		Path:    path,
		RelPath: filepath.ToSlash(rel),
		Size:    size,
		ModTime: info.ModTime().UTC(),
		Hash:    hash,
	}, nil
}

// HashFile computes the SHA256 hex digest and size of a file's content.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Hash computes the SHA256 hex digest of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func (s *Scanner) warn(format string, v ...interface{}) {
	if s.logger != nil {
		s.logger.Printf("Warning: "+format, v...)
	}
}

// SortRecords sorts records by relative path, the canonical enumeration
// order.
func SortRecords(files []FileRecord) {
	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})
}
