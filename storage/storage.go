// Package storage manages per-user scratch directories for uploaded and
// intermediate video files. Files are written atomically (temp + rename) so a
// path handed to later stages never references a half-written upload, and all
// delete operations are best-effort: one stubborn file does not stop cleanup
// of the rest.
package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// Store owns the scratch root. Each user gets an isolated subdirectory named
// after their numeric id; nothing is ever shared across users.
type Store struct {
	root string
}

// New creates the scratch root if needed and returns a Store rooted there.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir scratch root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the scratch root directory.
func (s *Store) Root() string { return s.root }

// UserDir returns the scratch directory path for a user (not created).
func (s *Store) UserDir(userID int64) string {
	return filepath.Join(s.root, strconv.FormatInt(userID, 10))
}

// AllocatePath ensures the user's scratch directory exists and returns a fresh
// collision-free path with the given extension (e.g. ".mp4"). The file itself
// is not created.
func (s *Store) AllocatePath(userID int64, ext string) (string, error) {
	dir := s.UserDir(userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir user dir: %w", err)
	}
	return filepath.Join(dir, uuid.NewString()+ext), nil
}

// Persist streams src into path atomically: content goes to a temp file first
// and is renamed into place only once fully written. On any failure the temp
// file is removed and the destination does not exist, so a recorded path
// always references complete bytes.
func (s *Store) Persist(src io.Reader, path string) (int64, error) {
	tmp := path + ".part"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("finalize %s: %w", path, err)
	}
	return n, nil
}

// DeleteAll removes every given path, continuing past individual failures.
// Missing files are not failures. Returns the number of paths that could not
// be removed.
func (s *Store) DeleteAll(paths []string) int {
	failed := 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			failed++
			slog.Warn("scratch delete failed", slog.String("path", p), slog.Any("err", err))
		}
	}
	return failed
}

// SweepUserDir removes any remaining files in the user's scratch directory and
// then the directory itself. It is a redundant safety net after explicit
// deletes, so per-file failures are logged and swallowed.
func (s *Store) SweepUserDir(userID int64) {
	dir := s.UserDir(userID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("scratch sweep read failed", slog.String("dir", dir), slog.Any("err", err))
		}
		return
	}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if err := os.Remove(p); err != nil {
			slog.Warn("scratch sweep delete failed", slog.String("path", p), slog.Any("err", err))
		}
	}
	// Leaves the dir in place if anything survived the per-file pass.
	_ = os.Remove(dir)
}
