package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

// ====================================================================================
// ENUMERATION TESTS
// ====================================================================================

func TestScan(t *testing.T) {
	root := t.TempDir()

	// Created deliberately out of lexicographic order
	writeFile(t, root, "zebra.txt", "zzz")
	writeFile(t, root, "photos/cat.jpg", "meow")
	writeFile(t, root, "alpha.txt", "aaa")
	writeFile(t, root, "photos/dog.jpg", "woof")
	writeFile(t, root, "docs/readme.md", "hello")

	scanner := NewScanner(nil)
	result, err := scanner.Scan(root)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	t.Run("DeterministicOrder", func(t *testing.T) {
		want := []string{"alpha.txt", "docs/readme.md", "photos/cat.jpg", "photos/dog.jpg", "zebra.txt"}
		if len(result.Files) != len(want) {
			t.Fatalf("expected %d files, got %d", len(want), len(result.Files))
		}
		for i, rel := range want {
			if result.Files[i].RelPath != rel {
				t.Errorf("position %d: got %s, want %s", i, result.Files[i].RelPath, rel)
			}
		}
		if !sort.SliceIsSorted(result.Files, func(i, j int) bool {
			return result.Files[i].RelPath < result.Files[j].RelPath
		}) {
			t.Error("files not sorted by relative path")
		}
	})

	t.Run("Hashes", func(t *testing.T) {
		sum := sha256.Sum256([]byte("meow"))
		want := hex.EncodeToString(sum[:])

		for _, f := range result.Files {
			if f.RelPath == "photos/cat.jpg" {
				if f.Hash != want {
					t.Errorf("hash mismatch: got %s, want %s", f.Hash, want)
				}
				if f.Size != 4 {
					t.Errorf("size mismatch: got %d", f.Size)
				}
				return
			}
		}
		t.Fatal("photos/cat.jpg not enumerated")
	})

	t.Run("RepeatedScanIdentical", func(t *testing.T) {
		again, err := scanner.Scan(root)
		if err != nil {
			t.Fatalf("rescan failed: %v", err)
		}
		if len(again.Files) != len(result.Files) {
			t.Fatalf("file count changed: %d vs %d", len(again.Files), len(result.Files))
		}
		for i := range again.Files {
			if again.Files[i] != result.Files[i] {
				t.Errorf("record %d differs between scans", i)
			}
		}
	})

	t.Run("TotalBytes", func(t *testing.T) {
		if got := result.TotalBytes(); got != 3+4+3+4+5 {
			t.Errorf("total bytes: got %d", got)
		}
	})
}

func TestScanExclusions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.txt", "data")
	writeFile(t, root, "sub/nested.txt", "data")

	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "sub"), filepath.Join(root, "sublink")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	result, err := NewScanner(nil).Scan(root)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	// Symlinks are never followed: neither the file link nor anything
	// behind the directory link may appear.
	if len(result.Files) != 2 {
		t.Fatalf("expected 2 files, got %d: %+v", len(result.Files), result.Files)
	}
	for _, f := range result.Files {
		if f.RelPath != "real.txt" && f.RelPath != "sub/nested.txt" {
			t.Errorf("unexpected file enumerated: %s", f.RelPath)
		}
	}
}

func TestScanErrors(t *testing.T) {
	t.Run("MissingRoot", func(t *testing.T) {
		_, err := NewScanner(nil).Scan(filepath.Join(t.TempDir(), "nope"))
		if err == nil {
			t.Fatal("expected error for missing root")
		}
	})

	t.Run("RootIsFile", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "f.txt", "x")
		_, err := NewScanner(nil).Scan(filepath.Join(root, "f.txt"))
		if err == nil {
			t.Fatal("expected error for non-directory root")
		}
	})

	t.Run("EmptyRoot", func(t *testing.T) {
		result, err := NewScanner(nil).Scan(t.TempDir())
		if err != nil {
			t.Fatalf("empty root should scan cleanly: %v", err)
		}
		if len(result.Files) != 0 {
			t.Errorf("expected no files, got %d", len(result.Files))
		}
	})
}

// ====================================================================================
// HASH HELPER TESTS
// ====================================================================================

func TestHashFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f.bin", "some content")

	hash, size, err := HashFile(filepath.Join(root, "f.bin"))
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if size != int64(len("some content")) {
		t.Errorf("size: got %d", size)
	}
	if hash != Hash([]byte("some content")) {
		t.Error("HashFile and Hash disagree on identical content")
	}
}
