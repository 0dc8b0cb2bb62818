// Package testutil provides shared test fakes for subprocess-backed code.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// FakeFFmpeg writes an executable shell script standing in for ffmpeg and
// returns its path. The script body runs with the invocation's arguments, so
// tests can inspect args, produce output files, fail, or hang.
func FakeFFmpeg(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	body := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}
