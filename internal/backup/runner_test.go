package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/daypack/daypack/internal/manifest"
	"github.com/daypack/daypack/internal/objstore"
	"github.com/daypack/daypack/internal/types"
	"github.com/daypack/daypack/internal/upload"
)

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Printf(format string, v ...interface{}) { l.t.Logf(format, v...) }
func (l *testLogger) Println(v ...interface{})               { l.t.Log(v...) }

func writeTree(t *testing.T, root string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		path := filepath.Join(root, fmt.Sprintf("file_%03d.txt", i))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("content of file %d", i)), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.Logger = &testLogger{t}
	cfg.Retry = upload.Policy{Attempts: 3, Delay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	return cfg
}

func remoteManifest(t *testing.T, store *objstore.MemStore, dayKey string) *manifest.DayManifest {
	t.Helper()
	data, err := store.Get(context.Background(), types.KeyLayout{}.ManifestKey(dayKey))
	if err != nil {
		t.Fatalf("remote manifest: %v", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		t.Fatalf("remote manifest: %v", err)
	}
	return m
}

// ====================================================================================
// DAY-RUN TESTS
// ====================================================================================

func TestRunDay(t *testing.T) {
	ctx := context.Background()

	t.Run("PartitionsIntoBatches", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, 52)
		store := objstore.NewMemStore()

		r, err := NewRunner(store, testConfig(t))
		if err != nil {
			t.Fatal(err)
		}

		result, err := r.RunDay(ctx, root, "20260830")
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		if result.Status != StatusSuccess {
			t.Errorf("status: got %s", result.Status)
		}
		if result.Files != 52 || result.Batches != 3 || result.UploadedBatch != 3 {
			t.Errorf("unexpected counts: %+v", result)
		}

		// 52 files at batch size 25: two full batches plus a remainder of 2
		m := remoteManifest(t, store, "20260830")
		if m.Count() != 3 {
			t.Fatalf("manifest batches: got %d", m.Count())
		}
		sizes := []int{25, 25, 2}
		for i, want := range sizes {
			if got := len(m.Entry(i).Files); got != want {
				t.Errorf("batch %d: %d files, want %d", i, got, want)
			}
		}

		// Archive objects exist under the expected keys
		for i := 0; i < 3; i++ {
			key := fmt.Sprintf("20260830/%d.zip", i)
			if ok, _ := store.Exists(ctx, key); !ok {
				t.Errorf("missing archive object %s", key)
			}
		}
	})

	t.Run("EmptyDirectory", func(t *testing.T) {
		store := objstore.NewMemStore()
		r, err := NewRunner(store, testConfig(t))
		if err != nil {
			t.Fatal(err)
		}

		result, err := r.RunDay(ctx, t.TempDir(), "20260830")
		if err != nil {
			t.Fatalf("empty day-run failed: %v", err)
		}
		if result.Batches != 0 || result.UploadedBatch != 0 {
			t.Errorf("empty directory produced batches: %+v", result)
		}
	})

	t.Run("MissingRoot", func(t *testing.T) {
		r, err := NewRunner(objstore.NewMemStore(), testConfig(t))
		if err != nil {
			t.Fatal(err)
		}
		result, err := r.RunDay(ctx, filepath.Join(t.TempDir(), "nope"), "20260830")
		if err == nil {
			t.Fatal("expected error for missing root")
		}
		if result.Status != StatusFailed {
			t.Errorf("status: got %s", result.Status)
		}
	})
}

// ====================================================================================
// IDEMPOTENCE AND RESUME TESTS
// ====================================================================================

func TestRunDayIdempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTree(t, root, 52)
	store := objstore.NewMemStore()

	r, err := NewRunner(store, testConfig(t))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.RunDay(ctx, root, "20260830"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	puts := store.PutCount()

	// Re-running a completed day must upload nothing
	result, err := r.RunDay(ctx, root, "20260830")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.UploadedBatch != 0 || result.SkippedBatch != 3 {
		t.Errorf("second run re-did work: %+v", result)
	}
	if store.PutCount() != puts {
		t.Errorf("second run wrote %d objects", store.PutCount()-puts)
	}
	if result.Status != StatusSuccess {
		t.Errorf("status: got %s", result.Status)
	}
}

func TestRunDayResume(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTree(t, root, 52)
	store := objstore.NewMemStore()

	r, err := NewRunner(store, testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.RunDay(ctx, root, "20260830"); err != nil {
		t.Fatal(err)
	}

	// Simulate an interrupted run: rewind the remote manifest to only the
	// first committed batch. The archive objects are still present, so the
	// resume re-commits them through the idempotent upload path without
	// re-transferring bytes.
	full := remoteManifest(t, store, "20260830")
	rewound := manifest.New("20260830")
	if err := rewound.Append(full.Entries()[0]); err != nil {
		t.Fatal(err)
	}
	data, err := rewound.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	store.Corrupt(types.KeyLayout{}.ManifestKey("20260830"), data)

	// Fresh runner with its own staging dir, as after a restart
	r2, err := NewRunner(store, testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	result, err := r2.RunDay(ctx, root, "20260830")
	if err != nil {
		t.Fatalf("resume run: %v", err)
	}

	if result.SkippedBatch != 1 {
		t.Errorf("skipped batches: got %d, want 1", result.SkippedBatch)
	}
	if result.UploadedBatch != 2 {
		t.Errorf("uploaded batches: got %d, want 2", result.UploadedBatch)
	}
	if got := remoteManifest(t, store, "20260830").Count(); got != 3 {
		t.Errorf("final manifest batches: got %d", got)
	}
}

func TestRunDayConflict(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTree(t, root, 30)
	store := objstore.NewMemStore()

	r, err := NewRunner(store, testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.RunDay(ctx, root, "20260830"); err != nil {
		t.Fatal(err)
	}

	// A file inside an already-committed batch changes, then the day is
	// re-run: re-batching would disagree with committed history, which is
	// a conflict, never silent re-upload.
	if err := os.WriteFile(filepath.Join(root, "file_003.txt"), []byte("rewritten"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := r.RunDay(ctx, root, "20260830")
	if !types.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if result.Status != StatusFailed {
		t.Errorf("status: got %s", result.Status)
	}
}

// A re-enumeration must not quietly continue from a shifted partition: if
// the drift reached inside an already-committed batch's range, later
// batches would be derived from a different sequence and files could fall
// out of the day without any committed batch containing them.
func TestReEnumerationDetectsShiftedPartition(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("content "+name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	store := objstore.NewMemStore()
	cfg := testConfig(t)
	cfg.BatchSize = 2
	r, err := NewRunner(store, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.RunDay(ctx, root, "20260830"); err != nil {
		t.Fatal(err)
	}

	// Rewind the remote manifest so only batch 0 = (a, b) is committed,
	// as after an interruption.
	full := remoteManifest(t, store, "20260830")
	rewound := manifest.New("20260830")
	if err := rewound.Append(full.Entries()[0]); err != nil {
		t.Fatal(err)
	}
	data, err := rewound.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	store.Corrupt(types.KeyLayout{}.ManifestKey("20260830"), data)

	// The resumed run enumerates, then the tree drifts underneath it: a
	// file inside committed batch 0 vanishes while a file in the next
	// batch changes content. Packing batch 1 from the stale snapshot
	// trips the drift check and forces the re-enumeration.
	stale, err := r.scanner.Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, "a.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "c.txt"), []byte("rewritten"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := r.store.Load(ctx, "20260830")
	if err != nil {
		t.Fatal(err)
	}
	result := &RunResult{DayKey: "20260830"}
	err = r.pipeline(ctx, "20260830", m, stale, 1, result)
	if !types.IsConflict(err) {
		t.Fatalf("expected conflict after shifted re-enumeration, got %v", err)
	}
	if result.ReEnumerations != 1 {
		t.Errorf("re-enumerations: got %d, want 1", result.ReEnumerations)
	}

	// Nothing derived from the shifted sequence may have been committed
	if got := remoteManifest(t, store, "20260830").Count(); got != 1 {
		t.Errorf("manifest grew to %d entries from a shifted partition", got)
	}
}

// cancelStore cancels the run's context right after the first manifest
// commit lands, so the run is interrupted with batch 0 fully committed.
type cancelStore struct {
	objstore.Store
	cancel context.CancelFunc
	once   sync.Once
}

func (s *cancelStore) Put(ctx context.Context, key string, data []byte) error {
	err := s.Store.Put(ctx, key, data)
	if err == nil && strings.HasSuffix(key, "manifest.json") {
		s.once.Do(s.cancel)
	}
	return err
}

func TestRunDayCancellation(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, 52)
	mem := objstore.NewMemStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := NewRunner(&cancelStore{Store: mem, cancel: cancel}, testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	result, err := r.RunDay(ctx, root, "20260830")
	if err == nil {
		t.Fatal("expected cancelled run to abort")
	}
	if result.Status != StatusFailed {
		t.Errorf("status: got %s", result.Status)
	}

	// The committed prefix survives the cancellation intact: batch 0's
	// upload and commit were allowed to finish, nothing after it landed.
	if got := remoteManifest(t, mem, "20260830").Count(); got != 1 {
		t.Fatalf("committed prefix after cancel: got %d entries, want 1", got)
	}

	// A fresh invocation resumes from the prefix and completes the day
	r2, err := NewRunner(mem, testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	resumed, err := r2.RunDay(context.Background(), root, "20260830")
	if err != nil {
		t.Fatalf("resume after cancel: %v", err)
	}
	if resumed.Status != StatusSuccess || resumed.SkippedBatch != 1 || resumed.UploadedBatch != 2 {
		t.Errorf("unexpected resume result: %+v", resumed)
	}
	if got := remoteManifest(t, mem, "20260830").Count(); got != 3 {
		t.Errorf("final manifest: got %d entries", got)
	}
}

func TestRunDayTransientFailures(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTree(t, root, 10)

	store := objstore.NewMemStore()
	store.FailPuts = 2 // first archive put fails twice, then recovers

	r, err := NewRunner(store, testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	result, err := r.RunDay(ctx, root, "20260830")
	if err != nil {
		t.Fatalf("run should survive transient failures: %v", err)
	}
	if result.Status != StatusSuccess || result.UploadedBatch != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestRunDayConcurrentUploads(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTree(t, root, 52)
	store := objstore.NewMemStore()

	cfg := testConfig(t)
	cfg.Concurrency = 4
	r, err := NewRunner(store, cfg)
	if err != nil {
		t.Fatal(err)
	}

	result, err := r.RunDay(ctx, root, "20260830")
	if err != nil {
		t.Fatalf("concurrent run: %v", err)
	}
	if result.UploadedBatch != 3 {
		t.Errorf("uploaded: got %d", result.UploadedBatch)
	}

	// Commits still land in index order regardless of upload order
	m := remoteManifest(t, store, "20260830")
	for i, e := range m.Entries() {
		if e.Index != i {
			t.Errorf("manifest entry %d has index %d", i, e.Index)
		}
	}
}

func TestRunDayPartialStatus(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTree(t, root, 5)

	// A dangling symlink is excluded silently; an unreadable directory is
	// recorded as skipped. Either way the run completes.
	if err := os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "dangling")); err != nil {
		t.Fatal(err)
	}

	r, err := NewRunner(objstore.NewMemStore(), testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	result, err := r.RunDay(ctx, root, "20260830")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Files != 5 {
		t.Errorf("files: got %d", result.Files)
	}
}

// ====================================================================================
// MISC TESTS
// ====================================================================================

func TestDayKey(t *testing.T) {
	ts := time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC)
	if got := DayKey(ts); got != "20260830" {
		t.Errorf("day key: got %s", got)
	}
}

func TestSeparateDaysSeparatePrefixes(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTree(t, root, 3)
	store := objstore.NewMemStore()

	r, err := NewRunner(store, testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.RunDay(ctx, root, "20260829"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RunDay(ctx, root, "20260830"); err != nil {
		t.Fatal(err)
	}

	for _, day := range []string{"20260829", "20260830"} {
		if ok, _ := store.Exists(ctx, day+"/0.zip"); !ok {
			t.Errorf("missing archive for day %s", day)
		}
		if m := remoteManifest(t, store, day); m.Date != day {
			t.Errorf("manifest for %s carries date %s", day, m.Date)
		}
	}
}
