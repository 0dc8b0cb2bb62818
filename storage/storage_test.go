package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "scratch"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAllocatePathCreatesUserDirAndIsUnique(t *testing.T) {
	s := newTestStore(t)
	p1, err := s.AllocatePath(42, ".mp4")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := s.AllocatePath(42, ".mp4")
	if err != nil {
		t.Fatal(err)
	}
	if p1 == p2 {
		t.Fatalf("expected distinct paths, got %s twice", p1)
	}
	if filepath.Dir(p1) != s.UserDir(42) {
		t.Fatalf("path %s not under user dir %s", p1, s.UserDir(42))
	}
	if !strings.HasSuffix(p1, ".mp4") {
		t.Fatalf("path %s missing extension", p1)
	}
	if _, err := os.Stat(s.UserDir(42)); err != nil {
		t.Fatalf("user dir not created: %v", err)
	}
}

func TestPersistWritesCompleteContent(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.AllocatePath(1, ".mp4")
	n, err := s.Persist(strings.NewReader("fake video bytes"), p)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len("fake video bytes")) {
		t.Fatalf("persisted %d bytes, want %d", n, len("fake video bytes"))
	}
	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "fake video bytes" {
		t.Fatalf("content mismatch: %q", got)
	}
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n > 0 {
		r.n--
		p[0] = 'x'
		return 1, nil
	}
	return 0, errors.New("stream interrupted")
}

func TestPersistFailureLeavesNoFile(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.AllocatePath(1, ".mp4")
	if _, err := s.Persist(&failingReader{n: 3}, p); err == nil {
		t.Fatal("expected error from interrupted stream")
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("destination exists after failed persist: %v", err)
	}
	if _, err := os.Stat(p + ".part"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind after failed persist: %v", err)
	}
}

func TestDeleteAllContinuesPastMissingFiles(t *testing.T) {
	s := newTestStore(t)
	p1, _ := s.AllocatePath(1, ".mp4")
	p2, _ := s.AllocatePath(1, ".mp4")
	if _, err := s.Persist(strings.NewReader("a"), p1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Persist(strings.NewReader("b"), p2); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(s.UserDir(1), "never-existed.mp4")
	if failed := s.DeleteAll([]string{p1, missing, p2, ""}); failed != 0 {
		t.Fatalf("expected 0 hard failures, got %d", failed)
	}
	for _, p := range []string{p1, p2} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("%s still exists", p)
		}
	}
}

func TestSweepUserDirRemovesEverything(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		p, _ := s.AllocatePath(7, ".mp4")
		if _, err := s.Persist(strings.NewReader("x"), p); err != nil {
			t.Fatal(err)
		}
	}
	s.SweepUserDir(7)
	if _, err := os.Stat(s.UserDir(7)); !os.IsNotExist(err) {
		t.Fatalf("user dir survived sweep: %v", err)
	}
	// Sweeping a user with no directory is a no-op.
	s.SweepUserDir(999)
}

func TestSweepStaleSkipsTrackedAndFreshFiles(t *testing.T) {
	s := newTestStore(t)
	trackedPath, _ := s.AllocatePath(5, ".mp4")
	orphanPath, _ := s.AllocatePath(5, ".mp4")
	freshPath, _ := s.AllocatePath(5, ".mp4")
	for _, p := range []string{trackedPath, orphanPath, freshPath} {
		if _, err := s.Persist(strings.NewReader("x"), p); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(trackedPath, old, old); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(orphanPath, old, old); err != nil {
		t.Fatal(err)
	}

	policy := RetentionPolicy{MaxAge: time.Hour}
	removed, err := s.sweepStale(policy, map[string]bool{trackedPath: true})
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed %d, want 1", removed)
	}
	if _, err := os.Stat(orphanPath); !os.IsNotExist(err) {
		t.Fatal("orphan survived sweep")
	}
	if _, err := os.Stat(trackedPath); err != nil {
		t.Fatal("tracked file was removed")
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Fatal("fresh file was removed")
	}
}

func TestSweepStaleDryRun(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.AllocatePath(5, ".mp4")
	if _, err := s.Persist(strings.NewReader("x"), p); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(p, old, old); err != nil {
		t.Fatal(err)
	}
	removed, err := s.sweepStale(RetentionPolicy{MaxAge: time.Hour, DryRun: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("dry-run counted %d, want 1", removed)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatal("dry-run deleted a file")
	}
}
