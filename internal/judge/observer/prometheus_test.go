package observer

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)
	ctx := context.Background()

	rec.ObserveRun(ctx, "python", "Finished", 120, 2048)
	rec.ObserveRun(ctx, "python", "Finished", 80, 1024)
	rec.ObserveRun(ctx, "python", "TimedOut", 2000, 1024)
	rec.ObserveStep(ctx, "python", "check", false, 30)
	rec.ObserveVerdict(ctx, "Accepted", 3)
	rec.SetQueue(4, 2)
	rec.IncQueueRejected()
	rec.IncRetry("run")
	rec.IncRetry("run")
	rec.IncRateLimited()

	if got := testutil.ToFloat64(rec.runs.WithLabelValues("python", "Finished")); got != 2 {
		t.Fatalf("expected 2 finished runs, got %v", got)
	}
	if got := testutil.ToFloat64(rec.steps.WithLabelValues("python", "check", "false")); got != 1 {
		t.Fatalf("expected 1 failed check step, got %v", got)
	}
	if got := testutil.ToFloat64(rec.queued); got != 4 {
		t.Fatalf("expected queue depth 4, got %v", got)
	}
	if got := testutil.ToFloat64(rec.running); got != 2 {
		t.Fatalf("expected 2 running, got %v", got)
	}
	if got := testutil.ToFloat64(rec.retries.WithLabelValues("run")); got != 2 {
		t.Fatalf("expected 2 retries, got %v", got)
	}
	if got := testutil.ToFloat64(rec.rejected); got != 1 {
		t.Fatalf("expected 1 rejection, got %v", got)
	}
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	t.Parallel()

	var rec MetricsRecorder = NoopMetricsRecorder{}
	rec.ObserveRun(context.Background(), "python", "Finished", 1, 1)
	rec.SetQueue(0, 0)
	var _ MetricsRecorder = (*PrometheusRecorder)(nil)
}
