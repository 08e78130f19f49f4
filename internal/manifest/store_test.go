package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/daypack/daypack/internal/objstore"
	"github.com/daypack/daypack/internal/types"
)

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Printf(format string, v ...interface{}) { l.t.Logf(format, v...) }
func (l *testLogger) Println(v ...interface{})               { l.t.Log(v...) }

func newTestStore(t *testing.T, remote objstore.Store) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), remote, types.KeyLayout{}, &testLogger{t})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// ====================================================================================
// LOAD TESTS
// ====================================================================================

func TestStoreLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyDay", func(t *testing.T) {
		s := newTestStore(t, objstore.NewMemStore())
		m, err := s.Load(ctx, "20260830")
		if err != nil {
			t.Fatal(err)
		}
		if m.Count() != 0 || m.Date != "20260830" {
			t.Errorf("expected fresh empty manifest, got %+v", m)
		}
	})

	t.Run("RemoteWins", func(t *testing.T) {
		remote := objstore.NewMemStore()
		s := newTestStore(t, remote)

		m, _ := s.Load(ctx, "20260830")
		if err := s.Append(ctx, m, testEntry(0, "sum0", 25)); err != nil {
			t.Fatal(err)
		}

		// A second store (fresh staging dir) sees the committed state
		other := newTestStore(t, remote)
		got, err := other.Load(ctx, "20260830")
		if err != nil {
			t.Fatal(err)
		}
		if got.Count() != 1 || got.Entry(0).ArchiveChecksum != "sum0" {
			t.Error("remote manifest not loaded")
		}
	})

	t.Run("RemoteAuthorityOverStaging", func(t *testing.T) {
		// Staged state exists but the remote holds nothing: the remote is
		// the authority, so the day starts empty and staged batches get
		// recommitted through the idempotent path.
		s := newTestStore(t, objstore.NewMemStore())

		staged := New("20260830")
		staged.Append(testEntry(0, "stale", 25))
		local := s.LocalPath("20260830")
		if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
			t.Fatal(err)
		}
		if err := staged.SaveLocal(local); err != nil {
			t.Fatal(err)
		}

		m, err := s.Load(ctx, "20260830")
		if err != nil {
			t.Fatal(err)
		}
		if m.Count() != 0 {
			t.Errorf("staged manifest overrode an empty remote: count %d", m.Count())
		}
	})

	t.Run("CorruptRemote", func(t *testing.T) {
		remote := objstore.NewMemStore()
		remote.Corrupt(types.KeyLayout{}.ManifestKey("20260830"), []byte("not json"))

		s := newTestStore(t, remote)
		if _, err := s.Load(ctx, "20260830"); err == nil {
			t.Fatal("expected error for corrupt remote manifest")
		}
	})
}

// ====================================================================================
// APPEND / COMMIT TESTS
// ====================================================================================

func TestStoreAppend(t *testing.T) {
	ctx := context.Background()

	t.Run("CommitsRemoteAndStaging", func(t *testing.T) {
		remote := objstore.NewMemStore()
		s := newTestStore(t, remote)

		m, _ := s.Load(ctx, "20260830")
		for i := 0; i < 3; i++ {
			if err := s.Append(ctx, m, testEntry(i, "sum"+string(rune('0'+i)), 25)); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}

		data, err := remote.Get(ctx, types.KeyLayout{}.ManifestKey("20260830"))
		if err != nil {
			t.Fatal(err)
		}
		got, err := Parse(data)
		if err != nil {
			t.Fatal(err)
		}
		if got.Count() != 3 {
			t.Errorf("remote manifest count: got %d", got.Count())
		}

		local, err := LoadLocal(s.LocalPath("20260830"))
		if err != nil {
			t.Fatalf("staged manifest: %v", err)
		}
		if local.Count() != 3 {
			t.Errorf("staged manifest count: got %d", local.Count())
		}
	})

	t.Run("ConcurrentWriterSameEntry", func(t *testing.T) {
		// Two writers committing the identical entry: second is a no-op.
		remote := objstore.NewMemStore()
		a := newTestStore(t, remote)
		b := newTestStore(t, remote)

		ma, _ := a.Load(ctx, "20260830")
		if err := a.Append(ctx, ma, testEntry(0, "sum0", 25)); err != nil {
			t.Fatal(err)
		}

		mb := New("20260830")
		if err := b.Append(ctx, mb, testEntry(0, "sum0", 25)); err != nil {
			t.Fatalf("identical concurrent commit should be a no-op: %v", err)
		}
	})

	t.Run("ConcurrentWriterConflict", func(t *testing.T) {
		remote := objstore.NewMemStore()
		a := newTestStore(t, remote)
		b := newTestStore(t, remote)

		ma, _ := a.Load(ctx, "20260830")
		if err := a.Append(ctx, ma, testEntry(0, "sum0", 25)); err != nil {
			t.Fatal(err)
		}

		mb := New("20260830")
		err := b.Append(ctx, mb, testEntry(0, "different", 25))
		if !types.IsConflict(err) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("StaleWriterBehindRemote", func(t *testing.T) {
		// Remote already holds 0..1; a writer that thinks it is at 0 and
		// tries to commit index 2 skips the remote's expectations.
		remote := objstore.NewMemStore()
		a := newTestStore(t, remote)

		ma, _ := a.Load(ctx, "20260830")
		a.Append(ctx, ma, testEntry(0, "sum0", 25))

		stale := New("20260830")
		stale.Append(testEntry(0, "sum0", 25))
		stale.Append(testEntry(1, "sum1", 25))
		err := a.commitRemote(ctx, stale, testEntry(2, "sum2", 25))
		if !types.IsConflict(err) {
			t.Fatalf("expected conflict for gap past remote head, got %v", err)
		}
	})

	t.Run("FirstEntryRequiresIndexZero", func(t *testing.T) {
		s := newTestStore(t, objstore.NewMemStore())
		m := New("20260830")
		m.Append(testEntry(0, "sum0", 25))
		m.Append(testEntry(1, "sum1", 25))

		// Remote holds nothing; committing index 1 directly is a conflict
		err := s.commitRemote(ctx, m, testEntry(1, "sum1", 25))
		if !types.IsConflict(err) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})
}
