package pipeline

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/onnwee/stitchbot/telemetry"
)

// mergeSemaphore limits concurrent ffmpeg pipelines globally across all users.
// It is initialized once based on MAX_CONCURRENT_MERGES env var (default: 2).
var (
	mergeSemaphore     chan struct{}
	mergeSemaphoreOnce sync.Once
)

// initMergeSemaphore initializes the global merge semaphore based on MAX_CONCURRENT_MERGES.
func initMergeSemaphore() {
	mergeSemaphoreOnce.Do(func() {
		maxConcurrent := 2
		if s := os.Getenv("MAX_CONCURRENT_MERGES"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				maxConcurrent = n
			}
		}
		mergeSemaphore = make(chan struct{}, maxConcurrent)
		slog.Info("merge concurrency limit initialized", slog.Int("max_concurrent", maxConcurrent))
	})
}

// acquireMergeSlot blocks until a merge slot is available or context is canceled.
// Returns true if slot acquired, false if context canceled.
func acquireMergeSlot(ctx context.Context) bool {
	initMergeSemaphore()
	select {
	case mergeSemaphore <- struct{}{}:
		telemetry.SetActiveMerges(len(mergeSemaphore))
		return true
	case <-ctx.Done():
		return false
	}
}

// releaseMergeSlot releases a merge slot, allowing another pipeline to proceed.
func releaseMergeSlot() {
	initMergeSemaphore()
	select {
	case <-mergeSemaphore:
		telemetry.SetActiveMerges(len(mergeSemaphore))
	default:
		// Should not happen unless mismatched acquire/release
		slog.Warn("merge slot release called without corresponding acquire")
	}
}

// GetActiveMerges returns the current number of running pipelines.
func GetActiveMerges() int {
	initMergeSemaphore()
	return len(mergeSemaphore)
}

// GetMaxConcurrentMerges returns the configured maximum concurrent pipelines.
func GetMaxConcurrentMerges() int {
	initMergeSemaphore()
	return cap(mergeSemaphore)
}
