// Package observer defines metrics hooks for runs, queueing and verdicts.
package observer

import "context"

// MetricsRecorder records judge metrics.
type MetricsRecorder interface {
	ObserveStep(ctx context.Context, languageID, step string, ok bool, wallTimeMs int64)
	ObserveRun(ctx context.Context, languageID, status string, wallTimeMs int64, memoryKB int64)
	ObserveVerdict(ctx context.Context, status string, cases int)
	SetQueue(queued, running int)
	IncQueueRejected()
	IncRetry(stage string)
	IncRateLimited()
}

// NoopMetricsRecorder is a default recorder that does nothing.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveStep(ctx context.Context, languageID, step string, ok bool, wallTimeMs int64) {
}

func (NoopMetricsRecorder) ObserveRun(ctx context.Context, languageID, status string, wallTimeMs int64, memoryKB int64) {
}

func (NoopMetricsRecorder) ObserveVerdict(ctx context.Context, status string, cases int) {}

func (NoopMetricsRecorder) SetQueue(queued, running int) {}

func (NoopMetricsRecorder) IncQueueRejected() {}

func (NoopMetricsRecorder) IncRetry(stage string) {}

func (NoopMetricsRecorder) IncRateLimited() {}
