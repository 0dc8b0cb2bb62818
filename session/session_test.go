package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRecordPreservesUploadOrder(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 5; i++ {
		n, err := tr.Record(1, fmt.Sprintf("/tmp/v%d.mp4", i))
		if err != nil {
			t.Fatal(err)
		}
		if n != i+1 {
			t.Fatalf("count after upload %d = %d", i, n)
		}
	}
	snap := tr.Snapshot(1)
	if len(snap) != 5 {
		t.Fatalf("snapshot length = %d, want 5", len(snap))
	}
	for i, p := range snap {
		if want := fmt.Sprintf("/tmp/v%d.mp4", i); p != want {
			t.Fatalf("snapshot[%d] = %s, want %s", i, p, want)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := NewTracker()
	_, _ = tr.Record(1, "/tmp/a.mp4")
	_, _ = tr.Record(1, "/tmp/b.mp4")
	snap := tr.Snapshot(1)
	snap[0] = "/tmp/mutated.mp4"
	if got := tr.Snapshot(1)[0]; got != "/tmp/a.mp4" {
		t.Fatalf("tracker state mutated through snapshot: %s", got)
	}
}

func TestSnapshotUnknownUserIsEmpty(t *testing.T) {
	tr := NewTracker()
	if snap := tr.Snapshot(99); len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap)
	}
	if tr.PendingCount(99) != 0 {
		t.Fatal("expected zero pending for unknown user")
	}
}

func TestClearThenRecordBehavesLikeFreshUser(t *testing.T) {
	tr := NewTracker()
	_, _ = tr.Record(1, "/tmp/a.mp4")
	tr.Clear(1)
	if len(tr.Snapshot(1)) != 0 {
		t.Fatal("expected empty list after clear")
	}
	n, err := tr.Record(1, "/tmp/b.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || tr.Snapshot(1)[0] != "/tmp/b.mp4" {
		t.Fatalf("record after clear misbehaved: n=%d snap=%v", n, tr.Snapshot(1))
	}
}

func TestMergeGuardBlocksConcurrentOperations(t *testing.T) {
	tr := NewTracker()
	_, _ = tr.Record(1, "/tmp/a.mp4")
	_, _ = tr.Record(1, "/tmp/b.mp4")

	snap, err := tr.BeginMerge(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 2 {
		t.Fatalf("merge snapshot length = %d, want 2", len(snap))
	}
	if _, err := tr.BeginMerge(1); !errors.Is(err, ErrMergeInProgress) {
		t.Fatalf("second BeginMerge err = %v, want ErrMergeInProgress", err)
	}
	if _, err := tr.Record(1, "/tmp/c.mp4"); !errors.Is(err, ErrMergeInProgress) {
		t.Fatalf("Record during merge err = %v, want ErrMergeInProgress", err)
	}
	if _, err := tr.Reset(1); !errors.Is(err, ErrMergeInProgress) {
		t.Fatalf("Reset during merge err = %v, want ErrMergeInProgress", err)
	}

	// Other users are unaffected by user 1's merge.
	if _, err := tr.Record(2, "/tmp/z.mp4"); err != nil {
		t.Fatalf("unrelated user blocked: %v", err)
	}

	tr.EndMerge(1)
	if _, err := tr.Record(1, "/tmp/c.mp4"); err != nil {
		t.Fatalf("Record after EndMerge: %v", err)
	}
}

func TestFailedMergeLeavesPendingIntact(t *testing.T) {
	tr := NewTracker()
	_, _ = tr.Record(1, "/tmp/a.mp4")
	_, _ = tr.Record(1, "/tmp/b.mp4")
	before := tr.Snapshot(1)

	if _, err := tr.BeginMerge(1); err != nil {
		t.Fatal(err)
	}
	// Simulated pipeline failure: merge ends without Clear.
	tr.EndMerge(1)

	after := tr.Snapshot(1)
	if len(after) != len(before) {
		t.Fatalf("pending length changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("pending[%d] changed: %s -> %s", i, before[i], after[i])
		}
	}
}

func TestResetReturnsPathsAndEmpties(t *testing.T) {
	tr := NewTracker()
	_, _ = tr.Record(1, "/tmp/a.mp4")
	_, _ = tr.Record(1, "/tmp/b.mp4")
	paths, err := tr.Reset(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("reset returned %d paths, want 2", len(paths))
	}
	if len(tr.Snapshot(1)) != 0 {
		t.Fatal("pending not emptied by reset")
	}
	// Reset with nothing pending is a no-op, not an error.
	paths, err = tr.Reset(1)
	if err != nil || len(paths) != 0 {
		t.Fatalf("empty reset = (%v, %v), want (empty, nil)", paths, err)
	}
}

func TestTrackedPaths(t *testing.T) {
	tr := NewTracker()
	_, _ = tr.Record(1, "/tmp/a.mp4")
	_, _ = tr.Record(2, "/tmp/b.mp4")
	tracked := tr.TrackedPaths()
	if !tracked["/tmp/a.mp4"] || !tracked["/tmp/b.mp4"] || len(tracked) != 2 {
		t.Fatalf("tracked = %v", tracked)
	}
	if tr.TotalPending() != 2 {
		t.Fatalf("TotalPending = %d, want 2", tr.TotalPending())
	}
}

func TestConcurrentUsersStayIsolated(t *testing.T) {
	tr := NewTracker()
	const perUser = 50
	var wg sync.WaitGroup
	for _, user := range []int64{100, 200} {
		user := user
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				if _, err := tr.Record(user, fmt.Sprintf("/tmp/%d-%d.mp4", user, i)); err != nil {
					t.Errorf("record user %d: %v", user, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	for _, user := range []int64{100, 200} {
		snap := tr.Snapshot(user)
		if len(snap) != perUser {
			t.Fatalf("user %d snapshot length = %d, want %d", user, len(snap), perUser)
		}
		for _, p := range snap {
			if want := fmt.Sprintf("/tmp/%d-", user); p[:len(want)] != want {
				t.Fatalf("user %d sequence contains foreign path %s", user, p)
			}
		}
	}
}
