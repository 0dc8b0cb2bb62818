// Package bot contains the per-user upload/merge orchestrator and the
// Telegram transport adapter.
//
// The orchestrator is transport-agnostic: handlers receive the sender id, the
// declared file size, a lazy byte-stream opener, and a Replier for outbound
// messages. Each user moves through a small state machine: idle until the
// first stored upload, accumulating while uploads arrive, merging while a
// pipeline run is in flight, then back to idle on success or /reset. A failed
// merge drops back to accumulating with the pending list intact so the user
// can retry without re-uploading.
//
// Failure detail (ffmpeg exit codes, stderr, transport errors) is logged with
// the user id and correlation id; users only ever see one of a handful of
// generic status messages.
package bot
