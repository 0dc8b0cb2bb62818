package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/stitchbot/config"
	"github.com/onnwee/stitchbot/pipeline"
	"github.com/onnwee/stitchbot/session"
	"github.com/onnwee/stitchbot/storage"
	"github.com/onnwee/stitchbot/telemetry"
)

// minMergeFiles is the precondition for /merge.
const minMergeFiles = 2

// User-facing messages. Internal failure detail never leaks into these.
const (
	msgWelcome = "Welcome to the Video Merger Bot! 🎬\n\n" +
		"Send me 2 or more videos, and I'll merge them together and add a watermark.\n\n" +
		"Commands:\n" +
		"/start - Show this help message\n" +
		"/merge - Merge your uploaded videos\n" +
		"/reset - Clear your video list"
	msgHelp = "Video Merger Bot Help 🎬\n\n" +
		"1. Send me videos one by one\n" +
		"2. Use /merge to combine them\n" +
		"3. Use /reset to clear your uploads\n\n" +
		"The videos will be merged in the order you sent them."
	msgUnknown = "Please send me videos or use one of the available commands:\n" +
		"/start - Show help\n" +
		"/merge - Merge uploaded videos\n" +
		"/reset - Clear your video list"

	msgTooLarge        = "⚠️ This video is too large (over %d MB). Please send smaller videos."
	msgDownloading     = "📥 Downloading your video..."
	msgUploadSaved     = "✅ Video %d saved successfully!\n\nYou have uploaded %d video(s). Send more or type /merge to combine them."
	msgUploadFailed    = "❌ There was an error processing your video. Please try again."
	msgMergeInProgress = "⏳ A merge is already in progress for your videos. Please wait for it to finish."
	msgNeedTwoVideos   = "⚠️ Please send at least 2 videos before merging."
	msgMerging         = "🔄 Merging your videos and adding watermark...\nThis may take a while depending on the size of your videos."
	msgMergeDone       = "✅ Merge complete! Sending your video..."
	msgMergeSent       = "✅ Your videos have been merged and sent!"
	msgMergeFailed     = "❌ There was an error merging your videos. Please try again or /reset and start over."
	msgVideoCaption    = "🎬 Here's your merged video with watermark!"
	msgResetDone       = "🧹 Your video list has been cleared."
	msgNothingToReset  = "ℹ️ You don't have any videos to clear."
)

// Runner abstracts the merge pipeline (for tests/mocks).
type Runner interface {
	Run(ctx context.Context, paths []string, outDir string) (string, error)
}

// Orchestrator coordinates storage, session tracking, and the merge pipeline
// for inbound bot events. One instance serves all users.
type Orchestrator struct {
	cfg      *config.Config
	store    *storage.Store
	sessions *session.Tracker
	runner   Runner
}

// NewOrchestrator wires the orchestrator with its collaborators.
func NewOrchestrator(cfg *config.Config, store *storage.Store, sessions *session.Tracker, runner Runner) *Orchestrator {
	return &Orchestrator{cfg: cfg, store: store, sessions: sessions, runner: runner}
}

// Sessions exposes the tracker (retention sweeper needs the tracked path set).
func (o *Orchestrator) Sessions() *session.Tracker { return o.sessions }

// HandleStart replies with the welcome text.
func (o *Orchestrator) HandleStart(ctx context.Context, rep Replier) {
	o.reply(ctx, rep, msgWelcome)
}

// HandleHelp replies with usage instructions.
func (o *Orchestrator) HandleHelp(ctx context.Context, rep Replier) {
	o.reply(ctx, rep, msgHelp)
}

// HandleUnknown replies with command guidance for non-video, non-command messages.
func (o *Orchestrator) HandleUnknown(ctx context.Context, rep Replier) {
	o.reply(ctx, rep, msgUnknown)
}

// HandleUpload validates, persists, and records one inbound video. Oversized
// uploads are rejected before a single byte is downloaded; uploads during an
// active merge are rejected so the pending list cannot shift under the
// pipeline.
func (o *Orchestrator) HandleUpload(ctx context.Context, up Upload, rep Replier) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.Int64("user_id", up.UserID), slog.String("component", "bot_upload"))

	if up.Size > o.cfg.MaxUploadBytes {
		telemetry.UploadsRejected.Inc()
		logger.Info("upload rejected: too large", slog.Int64("declared_bytes", up.Size))
		o.reply(ctx, rep, fmt.Sprintf(msgTooLarge, o.cfg.MaxUploadBytes/(1024*1024)))
		return
	}

	status, err := rep.ReplyStatus(ctx, msgDownloading)
	if err != nil {
		logger.Warn("status message send failed", slog.Any("err", err))
	}

	start := time.Now()
	path, err := o.storeUpload(ctx, up)
	if err != nil {
		telemetry.UploadsFailed.Inc()
		logger.Error("upload store failed", slog.Any("err", err))
		o.reply(ctx, rep, msgUploadFailed)
		return
	}

	count, err := o.sessions.Record(up.UserID, path)
	if err != nil {
		// Merge started between the size check and now; the stored file would
		// be invisible to cleanup, so drop it immediately.
		o.store.DeleteAll([]string{path})
		telemetry.UploadsRejected.Inc()
		logger.Info("upload rejected: merge in flight")
		o.reply(ctx, rep, msgMergeInProgress)
		return
	}

	telemetry.UploadsStored.Inc()
	telemetry.UploadDuration.Observe(time.Since(start).Seconds())
	telemetry.SetPendingFiles(o.sessions.TotalPending())
	logger.Info("upload stored", slog.String("path", path), slog.Int("pending", count), slog.Duration("store_duration", time.Since(start)))

	o.editOrReply(ctx, rep, status, fmt.Sprintf(msgUploadSaved, count, count))
}

// storeUpload downloads the upload into a fresh scratch path. On any error the
// destination does not exist (Persist is atomic).
func (o *Orchestrator) storeUpload(ctx context.Context, up Upload) (string, error) {
	path, err := o.store.AllocatePath(up.UserID, ".mp4")
	if err != nil {
		return "", fmt.Errorf("allocate scratch path: %w", err)
	}
	src, err := up.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("open upload stream: %w", err)
	}
	defer src.Close()
	if _, err := o.store.Persist(src, path); err != nil {
		return "", fmt.Errorf("persist upload: %w", err)
	}
	return path, nil
}

// HandleMerge runs the merge pipeline over the user's pending uploads and
// delivers the result. On success every input, the final artifact, and any
// stragglers in the user dir are removed and the session cleared. On failure
// the pending list is left intact for retry.
func (o *Orchestrator) HandleMerge(ctx context.Context, userID int64, rep Replier) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.Int64("user_id", userID), slog.String("component", "bot_merge"))

	paths, err := o.sessions.BeginMerge(userID)
	if err != nil {
		telemetry.MergesRejected.Inc()
		logger.Info("merge rejected: already in progress")
		o.reply(ctx, rep, msgMergeInProgress)
		return
	}
	if len(paths) < minMergeFiles {
		o.sessions.EndMerge(userID)
		telemetry.MergesRejected.Inc()
		logger.Info("merge rejected: too few files", slog.Int("pending", len(paths)))
		o.reply(ctx, rep, msgNeedTwoVideos)
		return
	}
	defer o.sessions.EndMerge(userID)

	ctx, span := telemetry.StartSpan(ctx, "bot", "merge",
		telemetry.UserIDAttr(userID),
		telemetry.FileCountAttr(len(paths)),
	)
	defer span.End()

	status, err := rep.ReplyStatus(ctx, msgMerging)
	if err != nil {
		logger.Warn("status message send failed", slog.Any("err", err))
	}

	telemetry.MergesStarted.Inc()
	start := time.Now()
	finalPath, err := o.runner.Run(ctx, paths, o.store.UserDir(userID))
	dur := time.Since(start)
	if err != nil {
		telemetry.MergesFailed.Inc()
		telemetry.RecordError(span, err)
		logMergeFailure(logger, err, dur)
		o.reply(ctx, rep, msgMergeFailed)
		return
	}
	telemetry.MergeDuration.Observe(dur.Seconds())
	logger.Info("merge complete", slog.String("path", finalPath), slog.Int("file_count", len(paths)), slog.Duration("merge_duration", dur))

	o.editOrReply(ctx, rep, status, msgMergeDone)

	if err := rep.ReplyVideo(ctx, finalPath, msgVideoCaption); err != nil {
		// Delivery failed: keep the inputs so the user can retry /merge, drop
		// only the now-orphaned artifact.
		telemetry.DeliveriesFailed.Inc()
		telemetry.RecordError(span, err)
		logger.Error("merged video delivery failed", slog.Any("err", err), slog.String("path", finalPath))
		o.store.DeleteAll([]string{finalPath})
		o.reply(ctx, rep, msgMergeFailed)
		return
	}

	// Cleanup only after confirmed delivery.
	o.store.DeleteAll(append(append([]string{}, paths...), finalPath))
	o.store.SweepUserDir(userID)
	o.sessions.Clear(userID)
	telemetry.MergesSucceeded.Inc()
	telemetry.SetPendingFiles(o.sessions.TotalPending())
	telemetry.SetSpanSuccess(span)
	logger.Info("merged video delivered and cleaned", slog.Duration("total_duration", time.Since(start)))

	o.editOrReply(ctx, rep, status, msgMergeSent)
}

// HandleReset deletes the user's pending uploads and clears the session. An
// empty session is an informational no-op, not an error.
func (o *Orchestrator) HandleReset(ctx context.Context, userID int64, rep Replier) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.Int64("user_id", userID), slog.String("component", "bot_reset"))

	paths, err := o.sessions.Reset(userID)
	if err != nil {
		logger.Info("reset rejected: merge in flight")
		o.reply(ctx, rep, msgMergeInProgress)
		return
	}
	if len(paths) == 0 {
		o.reply(ctx, rep, msgNothingToReset)
		return
	}
	o.store.DeleteAll(paths)
	o.store.SweepUserDir(userID)
	telemetry.SessionsReset.Inc()
	telemetry.SetPendingFiles(o.sessions.TotalPending())
	logger.Info("session reset", slog.Int("deleted", len(paths)))
	o.reply(ctx, rep, msgResetDone)
}

// reply sends text, logging (not surfacing) transport failures.
func (o *Orchestrator) reply(ctx context.Context, rep Replier, text string) {
	if err := rep.Reply(ctx, text); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("reply send failed", slog.Any("err", err))
	}
}

// editOrReply edits the status message when one exists, else falls back to a
// plain reply.
func (o *Orchestrator) editOrReply(ctx context.Context, rep Replier, status StatusMessage, text string) {
	if status != nil {
		err := status.Edit(ctx, text)
		if err == nil {
			return
		}
		telemetry.LoggerWithCorr(ctx).Warn("status edit failed", slog.Any("err", err))
	}
	o.reply(ctx, rep, text)
}

// logMergeFailure logs pipeline failures with stage diagnostics when available.
func logMergeFailure(logger *slog.Logger, err error, dur time.Duration) {
	var perr *pipeline.Error
	if errors.As(err, &perr) {
		logger.Error("merge pipeline failed",
			slog.String("stage", string(perr.Stage)),
			slog.Int("exit_code", perr.ExitCode),
			slog.Bool("timeout", perr.Timeout()),
			slog.String("stderr", perr.Stderr),
			slog.Duration("merge_duration", dur))
		return
	}
	logger.Error("merge pipeline failed", slog.Any("err", err), slog.Duration("merge_duration", dur))
}
