// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	UploadsStored    prometheus.Counter
	UploadsRejected  prometheus.Counter
	UploadsFailed    prometheus.Counter
	MergesStarted    prometheus.Counter
	MergesSucceeded  prometheus.Counter
	MergesFailed     prometheus.Counter
	MergesRejected   prometheus.Counter
	DeliveriesFailed prometheus.Counter
	SessionsReset    prometheus.Counter

	// Histograms (seconds)
	UploadDuration prometheus.Observer
	MergeDuration  prometheus.Observer

	// Gauges
	PendingFilesGauge prometheus.Gauge
	ActiveMergesGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		UploadsStored = promauto.NewCounter(prometheus.CounterOpts{Name: "stitch_uploads_stored_total", Help: "Number of uploads persisted to scratch storage"})
		UploadsRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "stitch_uploads_rejected_total", Help: "Number of uploads rejected before download (size limit, merge in progress)"})
		UploadsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "stitch_uploads_failed_total", Help: "Number of uploads that failed during download or persist"})
		MergesStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "stitch_merges_started_total", Help: "Number of merge pipelines started"})
		MergesSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "stitch_merges_succeeded_total", Help: "Number of merge pipelines that completed and delivered"})
		MergesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "stitch_merges_failed_total", Help: "Number of merge pipelines that failed"})
		MergesRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "stitch_merges_rejected_total", Help: "Number of merge requests rejected (too few files, merge in progress)"})
		DeliveriesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "stitch_deliveries_failed_total", Help: "Number of merged files that could not be sent back to the user"})
		SessionsReset = promauto.NewCounter(prometheus.CounterOpts{Name: "stitch_sessions_reset_total", Help: "Number of /reset commands that cleared a non-empty session"})
		UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "stitch_upload_duration_seconds", Help: "Upload download+persist duration seconds", Buckets: prometheus.DefBuckets})
		MergeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "stitch_merge_duration_seconds", Help: "Merge pipeline duration seconds", Buckets: prometheus.DefBuckets})
		PendingFilesGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "stitch_pending_files", Help: "Current number of pending uploads across all sessions"})
		ActiveMergesGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "stitch_active_merges", Help: "Current number of merge pipelines in flight"})
	})
}

// SetPendingFiles records the total pending upload count across sessions.
func SetPendingFiles(n int) {
	if PendingFilesGauge != nil {
		PendingFilesGauge.Set(float64(n))
	}
}

// SetActiveMerges records the number of pipelines currently running.
func SetActiveMerges(n int) {
	if ActiveMergesGauge != nil {
		ActiveMergesGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
