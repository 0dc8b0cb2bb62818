package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := UploadsStored
	Init()
	if UploadsStored != first {
		t.Fatal("second Init replaced registered metrics")
	}
	if MergesStarted == nil || MergeDuration == nil || PendingFilesGauge == nil {
		t.Fatal("metrics not registered")
	}
}

func TestGaugeHelpersNilSafeBeforeInit(t *testing.T) {
	// Helpers must not panic even if Init has not run in some test binary.
	SetPendingFiles(3)
	SetActiveMerges(1)
}

func TestTimeFunc(t *testing.T) {
	Init()
	d := TimeFunc(MergeDuration, func() { time.Sleep(10 * time.Millisecond) })
	if d < 10*time.Millisecond {
		t.Fatalf("measured %v, want >= 10ms", d)
	}
	// Nil observer is allowed.
	if d := TimeFunc(nil, func() {}); d < 0 {
		t.Fatalf("negative duration %v", d)
	}
}

func TestCorrelationContext(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Fatalf("expected empty correlation, got %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Fatalf("correlation = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Fatal("expected logger")
	}
}
