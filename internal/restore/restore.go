package restore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/daypack/daypack/internal/archive"
	"github.com/daypack/daypack/internal/manifest"
	"github.com/daypack/daypack/internal/objstore"
	"github.com/daypack/daypack/internal/scan"
	"github.com/daypack/daypack/internal/types"
	"github.com/daypack/daypack/internal/upload"
)

// Options configures a restore.
type Options struct {
	Workers  int
	Patterns []string // path globs relative to the backup root; empty = everything
	Policy   upload.Policy
	Logger   types.Logger
}

// Result summarizes a restore.
type Result struct {
	DayKey        string
	Batches       int // archives downloaded
	Files         int
	Bytes         int64 // restored file bytes
	FailedBatches []int
	Duration      time.Duration
}

// Restorer pulls selected files for a day back out of the remote store.
// Only the archives that contain requested files are downloaded; the
// archive checksum and every per-file hash are verified before anything
// is reported restored.
type Restorer struct {
	remote   objstore.Store
	keys     types.KeyLayout
	archiver *archive.Archiver
	logger   types.Logger
}

// NewRestorer creates a restorer using the given codec name.
func NewRestorer(remote objstore.Store, keys types.KeyLayout, format string, logger types.Logger) (*Restorer, error) {
	codec, err := archive.ForName(format)
	if err != nil {
		return nil, err
	}
	return &Restorer{
		remote:   remote,
		keys:     keys,
		archiver: archive.NewArchiver(codec, logger),
		logger:   logger,
	}, nil
}

// Restore fetches the day's manifest, selects the batches containing files
// matching opts.Patterns, downloads only those archives, and writes the
// matching files under destDir, preserving relative paths.
func (r *Restorer) Restore(ctx context.Context, dayKey, destDir string, opts Options) (*Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Policy.Attempts <= 0 {
		opts.Policy = upload.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = r.logger
	}

	result := &Result{DayKey: dayKey}
	start := time.Now()

	data, err := r.getWithRetry(ctx, r.keys.ManifestKey(dayKey), opts.Policy)
	if err != nil {
		if objstore.IsNotExist(err) {
			return nil, fmt.Errorf("no manifest for day %s", dayKey)
		}
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, err
	}

	// Select the batches that hold at least one requested file.
	type task struct {
		entry manifest.Entry
		files []manifest.FileEntry
	}
	var tasks []task
	for _, entry := range m.Entries() {
		var wanted []manifest.FileEntry
		for _, f := range entry.Files {
			if matches(f.Path, opts.Patterns) {
				wanted = append(wanted, f)
			}
		}
		if len(wanted) > 0 {
			tasks = append(tasks, task{entry: entry, files: wanted})
		}
	}
	if len(tasks) == 0 {
		return result, nil
	}

	if opts.Logger != nil {
		opts.Logger.Printf("[%s] Restoring from %d of %d batches", dayKey, len(tasks), m.Count())
	}

	taskCh := make(chan task)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				files, bytes, err := r.restoreBatch(ctx, dayKey, destDir, t.entry, t.files, opts.Policy)
				mu.Lock()
				if err != nil {
					result.FailedBatches = append(result.FailedBatches, t.entry.Index)
					if opts.Logger != nil {
						opts.Logger.Printf("[%s] Batch %d restore failed: %v", dayKey, t.entry.Index, err)
					}
				} else {
					result.Batches++
					result.Files += files
					result.Bytes += bytes
				}
				mu.Unlock()
			}
		}()
	}

	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		taskCh <- t
	}
	close(taskCh)
	wg.Wait()

	result.Duration = time.Since(start)
	if len(result.FailedBatches) > 0 {
		return result, fmt.Errorf("restore incomplete: %d batches failed", len(result.FailedBatches))
	}
	return result, ctx.Err()
}

// restoreBatch downloads one archive, verifies it, and writes the wanted
// files under destDir.
func (r *Restorer) restoreBatch(ctx context.Context, dayKey, destDir string, entry manifest.Entry, wanted []manifest.FileEntry, policy upload.Policy) (int, int64, error) {
	key := r.keys.ArchiveKey(dayKey, entry.Index, r.archiver.Codec().Extension())

	blob, err := r.getWithRetry(ctx, key, policy)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to download %s: %w", key, err)
	}

	members, err := r.archiver.Extract(blob, entry.ArchiveChecksum)
	if err != nil {
		return 0, 0, err
	}

	files := 0
	var bytes int64
	for _, f := range wanted {
		member, ok := members[f.Name]
		if !ok {
			return files, bytes, fmt.Errorf("archive %s missing entry %s", key, f.Name)
		}
		if got := scan.Hash(member.Data); got != f.Hash {
			return files, bytes, fmt.Errorf("file %s hash mismatch: got %s, want %s", f.Path, got, f.Hash)
		}

		dest := filepath.Join(destDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return files, bytes, fmt.Errorf("failed to create directory for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(dest, member.Data, 0644); err != nil {
			return files, bytes, fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
		if !member.ModTime.IsZero() {
			os.Chtimes(dest, member.ModTime, member.ModTime)
		}

		files++
		bytes += int64(len(member.Data))
	}
	return files, bytes, nil
}

func (r *Restorer) getWithRetry(ctx context.Context, key string, policy upload.Policy) ([]byte, error) {
	var data []byte
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			data, err = r.remote.Get(ctx, key)
			return err
		},
		IsFatalError: func(err error) bool {
			return !types.IsTransient(err)
		},
		Attempts:    policy.Attempts,
		Delay:       policy.Delay,
		MaxDelay:    policy.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       clock.WallClock,
		Stop:        ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		return nil, retry.LastError(err)
	}
	return data, err
}

// matches reports whether a relative path matches any pattern. A pattern
// with no glob metacharacters also matches as an exact path or directory
// prefix, so "photos" selects everything under photos/.
func matches(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		p = strings.TrimSuffix(p, "/")
		if ok, err := path.Match(p, relPath); err == nil && ok {
			return true
		}
		if !strings.ContainsAny(p, "*?[") {
			if relPath == p || strings.HasPrefix(relPath, p+"/") {
				return true
			}
		}
	}
	return false
}
