// Package session tracks each user's pending uploads in memory. State lives
// for the process lifetime only; restarting the bot drops all sessions.
//
// All operations on a user's pending list are serialized through one mutex,
// and a per-user merge flag keeps upload, merge, and reset from interleaving
// while a pipeline run is in flight for that user.
package session

import (
	"errors"
	"sync"
)

// ErrMergeInProgress is returned when an operation would race an active merge
// for the same user.
var ErrMergeInProgress = errors.New("merge already in progress for this user")

type userState struct {
	pending []string
	merging bool
}

// Tracker maps user ids to their ordered pending upload paths.
type Tracker struct {
	mu    sync.Mutex
	users map[int64]*userState
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{users: make(map[int64]*userState)}
}

func (t *Tracker) state(userID int64) *userState {
	st, ok := t.users[userID]
	if !ok {
		st = &userState{}
		t.users[userID] = st
	}
	return st
}

// Record appends path to the user's pending list, creating the list on first
// upload, and returns the new pending count. It fails with ErrMergeInProgress
// while that user's merge is running: an upload accepted mid-merge would be
// neither in the merge snapshot nor safe from the post-merge cleanup.
func (t *Tracker) Record(userID int64, path string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(userID)
	if st.merging {
		return 0, ErrMergeInProgress
	}
	st.pending = append(st.pending, path)
	return len(st.pending), nil
}

// Snapshot returns a copy of the user's pending list in upload order.
func (t *Tracker) Snapshot(userID int64) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.users[userID]
	if !ok {
		return nil
	}
	out := make([]string, len(st.pending))
	copy(out, st.pending)
	return out
}

// PendingCount returns the number of pending uploads for a user.
func (t *Tracker) PendingCount(userID int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.users[userID]
	if !ok {
		return 0
	}
	return len(st.pending)
}

// TotalPending returns the number of pending uploads across all users.
func (t *Tracker) TotalPending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, st := range t.users {
		n += len(st.pending)
	}
	return n
}

// BeginMerge atomically marks the user as merging and returns an immutable
// snapshot of the pending list. At most one merge may be in flight per user;
// a second call before EndMerge fails with ErrMergeInProgress. Callers decide
// whether the snapshot is long enough to merge and must call EndMerge on
// every exit path once they do proceed.
func (t *Tracker) BeginMerge(userID int64) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(userID)
	if st.merging {
		return nil, ErrMergeInProgress
	}
	st.merging = true
	out := make([]string, len(st.pending))
	copy(out, st.pending)
	return out, nil
}

// EndMerge clears the user's merge flag.
func (t *Tracker) EndMerge(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.users[userID]; ok {
		st.merging = false
	}
}

// Clear empties the user's pending list. Subsequent Record calls recreate it.
// Clear is legal during a merge; the orchestrator uses it after a successful
// run while still holding the merge flag.
func (t *Tracker) Clear(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.users[userID]; ok {
		st.pending = nil
	}
}

// Reset empties the pending list and returns the paths it held so the caller
// can delete the files. Fails with ErrMergeInProgress during an active merge.
func (t *Tracker) Reset(userID int64) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.users[userID]
	if !ok {
		return nil, nil
	}
	if st.merging {
		return nil, ErrMergeInProgress
	}
	out := st.pending
	st.pending = nil
	return out, nil
}

// TrackedPaths returns the set of all pending paths across users. The
// retention sweeper uses it to avoid deleting files a live session still owns.
func (t *Tracker) TrackedPaths() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]bool)
	for _, st := range t.users {
		for _, p := range st.pending {
			out[p] = true
		}
	}
	return out
}
