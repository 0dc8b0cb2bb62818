package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RetentionPolicy defines how orphaned scratch files are cleaned up. Orphans
// are files no session tracks anymore, typically leaked by a crash between an
// upload landing on disk and cleanup running.
type RetentionPolicy struct {
	// MaxAge: untracked files older than this are removed (0 = disabled)
	MaxAge time.Duration
	// DryRun: when true, log actions but don't delete files
	DryRun bool
	// Interval: how often to run the sweep
	Interval time.Duration
}

// LoadRetentionPolicy loads retention policy configuration from environment variables.
func LoadRetentionPolicy() RetentionPolicy {
	policy := RetentionPolicy{
		Interval: time.Hour,
	}
	if s := os.Getenv("RETENTION_MAX_AGE"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d >= 0 {
			policy.MaxAge = d
		}
	}
	if os.Getenv("RETENTION_DRY_RUN") == "1" {
		policy.DryRun = true
	}
	if s := os.Getenv("RETENTION_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			policy.Interval = d
		}
	}
	return policy
}

// StartRetentionJob runs a background job that periodically removes orphaned
// scratch files per the configured policy. tracked reports the set of paths
// currently owned by live sessions; those are never touched.
func StartRetentionJob(ctx context.Context, s *Store, policy RetentionPolicy, tracked func() map[string]bool) {
	if policy.MaxAge == 0 {
		slog.Info("retention job disabled (no max age configured)")
		return
	}

	slog.Info("retention job starting",
		slog.Duration("max_age", policy.MaxAge),
		slog.Bool("dry_run", policy.DryRun),
		slog.Duration("interval", policy.Interval))

	// Run immediately on start
	if n, err := s.sweepStale(policy, tracked()); err != nil {
		slog.Warn("retention sweep failed", slog.Any("err", err))
	} else if n > 0 {
		slog.Info("retention sweep removed orphans", slog.Int("count", n))
	}

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention job stopped")
			return
		case <-ticker.C:
			if n, err := s.sweepStale(policy, tracked()); err != nil {
				slog.Warn("retention sweep failed", slog.Any("err", err))
			} else if n > 0 {
				slog.Info("retention sweep removed orphans", slog.Int("count", n))
			}
		}
	}
}

// sweepStale walks every user directory under the scratch root and removes
// untracked files older than the policy's MaxAge. Returns the number of files
// removed (or that would be removed in dry-run mode).
func (s *Store) sweepStale(policy RetentionPolicy, tracked map[string]bool) (int, error) {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := time.Now().Add(-policy.MaxAge)
	removed := 0
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, d.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			slog.Warn("retention read failed", slog.String("dir", dir), slog.Any("err", err))
			continue
		}
		for _, e := range entries {
			p := filepath.Join(dir, e.Name())
			if tracked[p] {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if policy.DryRun {
				slog.Info("retention dry-run would remove", slog.String("path", p))
				removed++
				continue
			}
			if err := os.Remove(p); err != nil {
				slog.Warn("retention delete failed", slog.String("path", p), slog.Any("err", err))
				continue
			}
			slog.Debug("retention removed orphan", slog.String("path", p))
			removed++
		}
		// Drop the user dir when the sweep emptied it.
		_ = os.Remove(dir)
	}
	return removed, nil
}
