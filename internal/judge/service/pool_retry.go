package service

import (
	"context"
	"time"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/spec"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

type caseOutcome struct {
	run    result.RunResult
	passed bool
}

// runCase executes one case and, when compare is set and the run finished,
// compares its output. A comparator fault re-runs the case up to runRetries
// times; scheduler errors are final.
func (s *Service) runCase(ctx context.Context, sub model.Submission, problem model.Problem, tc model.TestCase, compare bool) (caseOutcome, error) {
	req := spec.RunRequest{
		SourceCode: sub.SourceCode,
		Language:   sub.Language,
		Stdin:      tc.Input,
		Limits:     problem.Limits,
	}
	var lastErr error
	for attempt := 0; attempt <= s.runRetries; attempt++ {
		if attempt > 0 {
			delay := computeRetryDelay(attempt-1, s.retryDelay, s.retryMaxDelay)
			logger.Warn(ctx, "retrying case", zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(lastErr))
			if err := sleepCtx(ctx, delay); err != nil {
				return caseOutcome{}, err
			}
		}

		run, err := s.execute(ctx, req)
		if err != nil {
			// the scheduler has already retried infrastructure faults
			return caseOutcome{}, err
		}
		if !compare || run.Status != result.StatusFinished {
			return caseOutcome{run: run}, nil
		}

		passed, err := s.comparators.CompareSafe(problem.ID, run.Stdout, tc.ExpectedOutput)
		if err != nil {
			logger.Error(ctx, "comparator fault", zap.Int64("problem_id", problem.ID), zap.Error(err))
			s.metrics.IncRetry("comparator")
			lastErr = err
			continue
		}
		return caseOutcome{run: run, passed: passed}, nil
	}
	return caseOutcome{}, appErr.Wrapf(lastErr, appErr.JudgeSystemError, "comparator failed after %d attempts", s.runRetries+1)
}

func (s *Service) execute(ctx context.Context, req spec.RunRequest) (result.RunResult, error) {
	handle, err := s.scheduler.Submit(ctx, req)
	if err != nil {
		return result.RunResult{}, err
	}
	return s.scheduler.AwaitResult(ctx, handle, s.maxWait)
}

// computeRetryDelay doubles base once per prior retry, capped at max.
func computeRetryDelay(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		if max > 0 && delay > max/2 {
			return max
		}
		delay *= 2
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
