// Package pipeline invokes ffmpeg to concatenate a user's uploads and burn in
// the text overlays. The two stages run sequentially: a concat-demuxer
// stream-copy pass driven by a manifest file, then a single drawtext filter
// pass. Failures carry the stage, exit code, and captured stderr.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Stage identifies which pipeline step produced an error.
type Stage string

const (
	StageConcat    Stage = "concat"
	StageWatermark Stage = "watermark"
)

// Error is a typed pipeline failure. Stderr holds the external tool's
// diagnostic output; it is for logs only and must never be shown to users.
type Error struct {
	Stage    Stage
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ffmpeg %s failed (exit %d): %v", e.Stage, e.ExitCode, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the stage was killed by the merge deadline.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Overlay configures the two burned-in text layers: a primary string at a
// configurable anchor and a secondary string always centered at the top.
type Overlay struct {
	Text     string
	TopText  string
	FontFile string
	FontSize int
	Color    string
	Position string
}

// positionCoords maps anchor names to drawtext coordinate expressions.
// Unknown positions fall back to bottom-right.
var positionCoords = map[string]string{
	"center":       "x=(w-text_w)/2:y=(h-text_h)/2",
	"bottom":       "x=(w-text_w)/2:y=h-th-10",
	"bottom-right": "x=w-tw-10:y=h-th-10",
	"top-left":     "x=10:y=10",
	"top-right":    "x=w-tw-10:y=10",
}

const defaultPosition = "bottom-right"

// Runner executes the merge pipeline. Timeout bounds each ffmpeg invocation;
// zero means no deadline.
type Runner struct {
	FFmpeg  string
	Timeout time.Duration
	Overlay Overlay
}

// Run composes the pipeline: concatenate the inputs, then watermark the
// result. Intermediate artifacts (manifest, unwatermarked merge) are removed
// before Run returns regardless of outcome; on failure the partially written
// final file is removed too, so the caller only ever owns the returned path.
func (r *Runner) Run(ctx context.Context, paths []string, outDir string) (string, error) {
	if !acquireMergeSlot(ctx) {
		return "", ctx.Err()
	}
	defer releaseMergeSlot()

	merged := filepath.Join(outDir, "merged_"+uuid.NewString()+".mp4")
	final := filepath.Join(outDir, "watermarked_"+uuid.NewString()+".mp4")

	if err := r.Concatenate(ctx, paths, merged); err != nil {
		_ = os.Remove(merged)
		return "", err
	}
	defer os.Remove(merged)

	if err := r.Watermark(ctx, merged, final); err != nil {
		_ = os.Remove(final)
		return "", err
	}
	return final, nil
}

// Concatenate stream-copies the given inputs (>= 2, in order) into outputPath
// using the concat demuxer. The manifest listing the inputs is deleted when
// the call returns, success or failure.
func (r *Runner) Concatenate(ctx context.Context, paths []string, outputPath string) error {
	if len(paths) < 2 {
		return fmt.Errorf("concatenate: need at least 2 inputs, got %d", len(paths))
	}
	manifest, err := writeManifest(filepath.Dir(outputPath), paths)
	if err != nil {
		return err
	}
	defer os.Remove(manifest)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-c", "copy",
		"-y",
		outputPath,
	}
	return r.runFFmpeg(ctx, StageConcat, args)
}

// Watermark burns both text overlays into inputPath in one filter pass,
// stream-copying the audio.
func (r *Runner) Watermark(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-i", inputPath,
		"-vf", r.watermarkFilter(),
		"-codec:a", "copy",
		"-y",
		outputPath,
	}
	return r.runFFmpeg(ctx, StageWatermark, args)
}

// watermarkFilter builds the drawtext filter chain: primary text at the
// configured anchor with a fixed 2px black shadow, secondary text top-center.
func (r *Runner) watermarkFilter() string {
	coords, ok := positionCoords[r.Overlay.Position]
	if !ok {
		coords = positionCoords[defaultPosition]
	}
	primary := fmt.Sprintf("drawtext=text='%s':fontfile=%s:%s:fontcolor=%s:fontsize=%d:shadowcolor=black:shadowx=2:shadowy=2",
		r.Overlay.Text, r.Overlay.FontFile, coords, r.Overlay.Color, r.Overlay.FontSize)
	secondary := fmt.Sprintf("drawtext=text='%s':fontfile=%s:x=(w-text_w)/2:y=10:fontcolor=%s:fontsize=%d:shadowcolor=black:shadowx=2:shadowy=2",
		r.Overlay.TopText, r.Overlay.FontFile, r.Overlay.Color, r.Overlay.FontSize)
	return primary + ", " + secondary
}

// writeManifest creates the concat-demuxer input list, one absolute path per
// line, in upload order.
func writeManifest(dir string, paths []string) (string, error) {
	var buf bytes.Buffer
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("manifest abs path %s: %w", p, err)
		}
		fmt.Fprintf(&buf, "file '%s'\n", abs)
	}
	manifest := filepath.Join(dir, "list_"+uuid.NewString()+".txt")
	if err := os.WriteFile(manifest, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return manifest, nil
}

// runFFmpeg executes one ffmpeg invocation with the runner's timeout. Both
// output streams are captured into buffers, so the child can never block on a
// full pipe however much it writes.
func (r *Runner) runFFmpeg(ctx context.Context, stage Stage, args []string) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	bin := r.FFmpeg
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		err = fmt.Errorf("%w (%v)", ctx.Err(), err)
	}
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &Error{Stage: stage, ExitCode: exitCode, Stderr: stderr.String(), Err: err}
}
