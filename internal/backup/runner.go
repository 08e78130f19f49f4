package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/daypack/daypack/internal/archive"
	"github.com/daypack/daypack/internal/batch"
	"github.com/daypack/daypack/internal/manifest"
	"github.com/daypack/daypack/internal/objstore"
	"github.com/daypack/daypack/internal/scan"
	"github.com/daypack/daypack/internal/types"
	"github.com/daypack/daypack/internal/upload"
)

// defaultLogger is a simple logger implementation
type defaultLogger struct{}

func (d defaultLogger) Printf(format string, v ...interface{}) { log.Printf(format, v...) }
func (d defaultLogger) Println(v ...interface{})               { log.Println(v...) }

// Config holds configuration for the backup runner.
type Config struct {
	BatchSize       int
	Concurrency     int    // max in-flight archive uploads
	Format          string // archive codec: "zip" (default) or "tzst"
	StagingDir      string
	Keys            types.KeyLayout
	Retry           upload.Policy
	KeepStagingDays int
	Logger          types.Logger
	Clock           clock.Clock
}

// DefaultConfig returns default runner configuration.
func DefaultConfig(stagingDir string) *Config {
	return &Config{
		BatchSize:       types.BATCH_SIZE,
		Concurrency:     1,
		Format:          "zip",
		StagingDir:      stagingDir,
		Retry:           upload.DefaultPolicy(),
		KeepStagingDays: 7,
	}
}

// Runner drives the per-day pipeline:
//
//	Enumerate -> Batch -> Archive -> Upload -> Commit-manifest
//
// one batch at a time, resuming past batches the manifest already records.
// Packing is strictly sequential, but the producer packs the next batch
// while earlier ones upload, so up to Concurrency+1 packed blobs may be
// held in memory at once. Manifest commits are still applied in
// batch-index order.
type Runner struct {
	cfg      *Config
	scanner  *scan.Scanner
	archiver *archive.Archiver
	store    *manifest.Store
	coord    *upload.Coordinator
	logger   types.Logger

	mu    sync.Mutex
	state State
}

// NewRunner creates a runner over the given remote store.
func NewRunner(remote objstore.Store, cfg *Config) (*Runner, error) {
	if cfg == nil {
		cfg = DefaultConfig("./daypack-staging")
	}
	if cfg.Logger == nil {
		cfg.Logger = defaultLogger{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = types.BATCH_SIZE
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	codec, err := archive.ForName(cfg.Format)
	if err != nil {
		return nil, err
	}

	store, err := manifest.NewStore(cfg.StagingDir, remote, cfg.Keys, cfg.Logger)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:      cfg,
		scanner:  scan.NewScanner(cfg.Logger),
		archiver: archive.NewArchiver(codec, cfg.Logger),
		store:    store,
		coord:    upload.NewCoordinator(remote, cfg.Retry, cfg.Clock, cfg.Logger),
		logger:   cfg.Logger,
		state:    StateIdle,
	}, nil
}

// State returns the runner's current pipeline state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// RunDay executes one day-run over root. It loads any existing manifest
// for dayKey, skips batches already committed, and uploads the rest. The
// returned result is populated even when err is non-nil.
func (r *Runner) RunDay(ctx context.Context, root, dayKey string) (*RunResult, error) {
	result := &RunResult{
		RunID:  uuid.NewString(),
		DayKey: dayKey,
		Status: StatusFailed,
	}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		r.setState(StateIdle)
	}()

	r.logger.Printf("[%s] Day-run %s starting (root: %s)", dayKey, result.RunID[:8], root)

	r.setState(StateEnumerating)
	scanRes, err := r.scanner.Scan(root)
	if err != nil {
		r.setState(StateAborted)
		return result, fmt.Errorf("enumeration failed: %w", err)
	}
	result.Files = len(scanRes.Files)
	result.TotalBytes = scanRes.TotalBytes()
	result.SkippedFiles = scanRes.Skipped
	result.Batches = batch.Count(len(scanRes.Files), r.cfg.BatchSize)

	m, err := r.store.Load(ctx, dayKey)
	if err != nil {
		r.setState(StateAborted)
		return result, fmt.Errorf("failed to load manifest: %w", err)
	}
	if err := r.verifyCommitted(m, scanRes.Files); err != nil {
		r.setState(StateAborted)
		return result, err
	}

	startIndex := m.LastIndex() + 1
	result.SkippedBatch = m.Count()
	if result.SkippedBatch > 0 {
		r.logger.Printf("[%s] Resuming: %d of %d batches already committed", dayKey, result.SkippedBatch, result.Batches)
	}

	if err := r.pipeline(ctx, dayKey, m, scanRes, startIndex, result); err != nil {
		r.setState(StateAborted)
		return result, err
	}

	r.setState(StateDayComplete)
	result.Status = StatusSuccess
	if len(result.SkippedFiles) > 0 {
		result.Status = StatusPartial
	}

	r.logger.Printf("[%s] Day complete: %d batches (%d uploaded, %d skipped), %d files, %d bytes in %s",
		dayKey, result.Batches, result.UploadedBatch, result.SkippedBatch,
		result.Files, result.TotalBytes, time.Since(start).Round(time.Millisecond))

	r.sweepStaging()
	return result, nil
}

// pipeline archives and uploads every batch from startIndex on. Archives
// are packed one at a time; uploads run on a bounded pool with an in-order
// commit barrier.
func (r *Runner) pipeline(ctx context.Context, dayKey string, m *manifest.DayManifest, scanRes *scan.Result, startIndex int, result *RunResult) error {
	total := batch.Count(len(scanRes.Files), r.cfg.BatchSize)
	if startIndex >= total {
		return nil
	}

	jobs := make(chan upload.Job)
	entries := newEntryTable()
	prodErr := make(chan error, 1)

	go func() {
		defer close(jobs)
		prodErr <- r.produce(ctx, dayKey, m, scanRes, startIndex, total, jobs, entries, result)
	}()

	commit := func(job upload.Job, token upload.Token) error {
		r.setState(StateManifestCommitting)
		entry, ok := entries.get(job.Index)
		if !ok {
			return fmt.Errorf("no manifest entry staged for batch %d", job.Index)
		}
		if err := r.store.Append(ctx, m, entry); err != nil {
			return err
		}
		result.UploadedBatch++
		result.UploadedBytes += token.Size
		r.logger.Printf("[%s] Batch %d committed (%d files, %d bytes, checksum %.12s)",
			dayKey, job.Index, len(entry.Files), token.Size, token.Checksum)
		return nil
	}

	poolErr := r.coord.UploadOrdered(ctx, jobs, r.cfg.Concurrency, startIndex, commit)
	if err := <-prodErr; err != nil {
		return err
	}
	return poolErr
}

// produce packs batches sequentially and feeds them to the upload pool.
// Cancellation is honored only at the batching boundary: an in-flight
// archive or upload always finishes or fails on its own.
func (r *Runner) produce(ctx context.Context, dayKey string, m *manifest.DayManifest, scanRes *scan.Result, startIndex, total int, jobs chan<- upload.Job, entries *entryTable, result *RunResult) error {
	files := scanRes.Files

	for i := startIndex; i < total; i++ {
		r.setState(StateBatchingNext)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled before batch %d: %w", i, err)
		}

		b, err := batch.At(files, r.cfg.BatchSize, i)
		if err != nil {
			return err
		}

		r.setState(StateArchiving)
		arch, err := r.archiver.Pack(b)
		if types.IsArchiveError(err) && result.ReEnumerations == 0 {
			// A file changed or vanished since enumeration. Re-enumerate
			// once and retry the batch against the fresh sequence; if the
			// change shifted an already-committed batch the re-check below
			// turns it into a conflict instead of stale data.
			r.logger.Printf("[%s] Batch %d: %v; re-enumerating", dayKey, i, err)
			result.ReEnumerations++

			r.setState(StateEnumerating)
			fresh, scanErr := r.scanner.Scan(scanRes.Root)
			if scanErr != nil {
				return fmt.Errorf("re-enumeration failed: %w", scanErr)
			}
			files = fresh.Files
			result.Files = len(files)
			result.TotalBytes = fresh.TotalBytes()
			result.SkippedFiles = fresh.Skipped
			total = batch.Count(len(files), r.cfg.BatchSize)
			result.Batches = total

			// The committed prefix must still describe the fresh sequence:
			// if the drift reached inside a committed batch's range, every
			// later batch would be derived from a shifted partition and
			// files could drop out of the day entirely.
			if err := r.verifyCommitted(m, files); err != nil {
				return err
			}
			if i >= total {
				return nil
			}

			b, err = batch.At(files, r.cfg.BatchSize, i)
			if err != nil {
				return err
			}
			r.setState(StateArchiving)
			arch, err = r.archiver.Pack(b)
		}
		if err != nil {
			return err
		}

		entries.put(i, entryFor(b, arch))

		r.setState(StateUploading)
		key := r.cfg.Keys.ArchiveKey(dayKey, i, r.archiver.Codec().Extension())
		jobs <- upload.Job{Index: i, Key: key, Blob: arch.Blob}
	}
	return nil
}

// verifyCommitted checks every already-committed manifest entry against
// the current enumeration. A committed batch whose files no longer match
// means re-batching would not be deterministic, which is fatal.
func (r *Runner) verifyCommitted(m *manifest.DayManifest, files []scan.FileRecord) error {
	for _, entry := range m.Entries() {
		b, err := batch.At(files, r.cfg.BatchSize, entry.Index)
		if err != nil {
			return &types.ConflictError{
				DayKey:     m.Date,
				BatchIndex: entry.Index,
				Want:       fmt.Sprintf("%d committed files", len(entry.Files)),
				Got:        "batch out of range after re-enumeration",
			}
		}
		if len(entry.Files) != len(b.Files) {
			return &types.ConflictError{
				DayKey:     m.Date,
				BatchIndex: entry.Index,
				Want:       fmt.Sprintf("%d files", len(entry.Files)),
				Got:        fmt.Sprintf("%d files", len(b.Files)),
			}
		}
		for j, f := range entry.Files {
			rec := b.Files[j]
			if f.Path != rec.RelPath || f.Hash != rec.Hash || f.Size != rec.Size {
				return &types.ConflictError{
					DayKey:     m.Date,
					BatchIndex: entry.Index,
					Want:       fmt.Sprintf("%s (%s)", f.Path, f.Hash),
					Got:        fmt.Sprintf("%s (%s)", rec.RelPath, rec.Hash),
				}
			}
		}
	}
	return nil
}

// entryTable hands staged manifest entries from the producer to the
// commit barrier, which run on different goroutines.
type entryTable struct {
	mu sync.Mutex
	m  map[int]manifest.Entry
}

func newEntryTable() *entryTable {
	return &entryTable{m: make(map[int]manifest.Entry)}
}

func (t *entryTable) put(index int, e manifest.Entry) {
	t.mu.Lock()
	t.m[index] = e
	t.mu.Unlock()
}

func (t *entryTable) get(index int) (manifest.Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[index]
	return e, ok
}

func entryFor(b *batch.Batch, arch *archive.Archive) manifest.Entry {
	files := make([]manifest.FileEntry, len(b.Files))
	for i, rec := range b.Files {
		files[i] = manifest.FileEntry{
			Path: rec.RelPath,
			Size: rec.Size,
			Hash: rec.Hash,
			Name: arch.Names[i],
		}
	}
	return manifest.Entry{
		Index:           b.Index,
		ArchiveChecksum: arch.Checksum,
		Files:           files,
	}
}

// sweepStaging removes staging day directories older than the retention
// window. Best effort; failures are warnings.
func (r *Runner) sweepStaging() {
	if r.cfg.KeepStagingDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -r.cfg.KeepStagingDays)

	dirEntries, err := os.ReadDir(r.cfg.StagingDir)
	if err != nil {
		return
	}
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(r.cfg.StagingDir, de.Name())
			if err := os.RemoveAll(path); err != nil {
				r.logger.Printf("Warning: failed to remove old staging dir %s: %v", path, err)
			} else {
				r.logger.Printf("Removed old staging dir: %s", de.Name())
			}
		}
	}
}

// DayKey returns the canonical day key for t, e.g. 20260830.
func DayKey(t time.Time) string {
	return t.Format("20060102")
}
