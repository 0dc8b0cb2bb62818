package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"
)

func resetSemaphore() {
	mergeSemaphoreOnce = sync.Once{}
	mergeSemaphore = nil
}

func TestMergeConcurrencyLimit(t *testing.T) {
	resetSemaphore()
	t.Cleanup(resetSemaphore)
	t.Setenv("MAX_CONCURRENT_MERGES", "2")

	initMergeSemaphore()
	if got := GetMaxConcurrentMerges(); got != 2 {
		t.Fatalf("expected max concurrent merges 2, got %d", got)
	}

	ctx := context.Background()
	if !acquireMergeSlot(ctx) {
		t.Fatal("failed to acquire first slot")
	}
	if !acquireMergeSlot(ctx) {
		t.Fatal("failed to acquire second slot")
	}
	if got := GetActiveMerges(); got != 2 {
		t.Fatalf("active merges = %d, want 2", got)
	}

	// Third acquisition should block until a slot frees up.
	acquired := make(chan bool)
	go func() { acquired <- acquireMergeSlot(ctx) }()
	select {
	case <-acquired:
		t.Fatal("third slot acquired while limit reached")
	case <-time.After(50 * time.Millisecond):
	}
	releaseMergeSlot()
	select {
	case ok := <-acquired:
		if !ok {
			t.Fatal("blocked acquire reported cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked acquire never proceeded after release")
	}

	releaseMergeSlot()
	releaseMergeSlot()
	if got := GetActiveMerges(); got != 0 {
		t.Fatalf("active merges = %d, want 0", got)
	}
}

func TestAcquireMergeSlotHonorsCancellation(t *testing.T) {
	resetSemaphore()
	t.Cleanup(resetSemaphore)
	t.Setenv("MAX_CONCURRENT_MERGES", "1")

	ctx := context.Background()
	if !acquireMergeSlot(ctx) {
		t.Fatal("failed to acquire slot")
	}
	defer releaseMergeSlot()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if acquireMergeSlot(canceled) {
		t.Fatal("acquired slot with canceled context")
	}
}

func TestReleaseWithoutAcquireIsHarmless(t *testing.T) {
	resetSemaphore()
	t.Cleanup(resetSemaphore)
	releaseMergeSlot()
	if got := GetActiveMerges(); got != 0 {
		t.Fatalf("active merges = %d, want 0", got)
	}
}
