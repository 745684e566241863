package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codejudge/internal/judge/catalog"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/observer"
	"codejudge/internal/judge/sandbox/language"
	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/spec"
	"codejudge/internal/judge/scheduler"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/contextkey"
	"codejudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxCodeBytes  = 64 << 10
	defaultMaxInputBytes = 1 << 20
	defaultRunRetries    = 2
	defaultRetryDelay    = 50 * time.Millisecond
	defaultRetryMaxDelay = time.Second
)

// RunScheduler queues sandbox runs and waits for their results.
type RunScheduler interface {
	Submit(ctx context.Context, req spec.RunRequest) (scheduler.JobHandle, error)
	Poll(ctx context.Context, handle scheduler.JobHandle) (result.RunResult, bool, error)
	AwaitResult(ctx context.Context, handle scheduler.JobHandle, maxWait time.Duration) (result.RunResult, error)
}

// Comparator decides pass/fail for one case; a non-nil error is a comparator fault.
type Comparator interface {
	CompareSafe(problemID int64, actual, expected string) (bool, error)
}

// LanguageResolver resolves language names and aliases.
type LanguageResolver interface {
	Get(name string) (language.Spec, error)
}

// VerdictStore persists final verdicts.
type VerdictStore interface {
	Save(ctx context.Context, v model.Verdict) error
	Get(ctx context.Context, submissionID string) (model.Verdict, error)
}

// VerdictPublisher announces final verdicts.
type VerdictPublisher interface {
	PublishVerdict(ctx context.Context, event model.VerdictEvent) error
}

// Limits bounds what a submission may carry.
type Limits struct {
	MaxCodeBytes  int `yaml:"maxCodeBytes"`
	MaxInputBytes int `yaml:"maxInputBytes"`
}

// Config holds service dependencies and settings.
type Config struct {
	Scheduler   RunScheduler
	Catalog     catalog.ProblemCatalog
	Comparators Comparator
	Languages   LanguageResolver
	Verdicts    VerdictStore
	Publisher   VerdictPublisher
	Metrics     observer.MetricsRecorder

	Limits Limits
	// RunRetries is how often one case is re-run after a comparator fault.
	// Sandbox faults are retried by the scheduler.
	RunRetries     int
	RetryDelay     time.Duration
	RetryMaxDelay  time.Duration
	MaxWait        time.Duration
	CatalogTimeout time.Duration
	StoreTimeout   time.Duration
}

// Service judges submissions against their problem's test cases.
type Service struct {
	scheduler      RunScheduler
	catalog        catalog.ProblemCatalog
	comparators    Comparator
	languages      LanguageResolver
	verdicts       VerdictStore
	publisher      VerdictPublisher
	metrics        observer.MetricsRecorder
	limits         Limits
	runRetries     int
	retryDelay     time.Duration
	retryMaxDelay  time.Duration
	maxWait        time.Duration
	catalogTimeout time.Duration
	storeTimeout   time.Duration
	now            func() time.Time
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if cfg.Comparators == nil {
		return nil, fmt.Errorf("comparator registry is required")
	}
	if cfg.Languages == nil {
		return nil, fmt.Errorf("language repository is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observer.NoopMetricsRecorder{}
	}
	if cfg.Limits.MaxCodeBytes <= 0 {
		cfg.Limits.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.Limits.MaxInputBytes <= 0 {
		cfg.Limits.MaxInputBytes = defaultMaxInputBytes
	}
	if cfg.RunRetries < 0 {
		cfg.RunRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaultRetryMaxDelay
	}
	if cfg.CatalogTimeout <= 0 {
		cfg.CatalogTimeout = 5 * time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 3 * time.Second
	}
	return &Service{
		scheduler:      cfg.Scheduler,
		catalog:        cfg.Catalog,
		comparators:    cfg.Comparators,
		languages:      cfg.Languages,
		verdicts:       cfg.Verdicts,
		publisher:      cfg.Publisher,
		metrics:        cfg.Metrics,
		limits:         cfg.Limits,
		runRetries:     cfg.RunRetries,
		retryDelay:     cfg.RetryDelay,
		retryMaxDelay:  cfg.RetryMaxDelay,
		maxWait:        cfg.MaxWait,
		catalogTimeout: cfg.CatalogTimeout,
		storeTimeout:   cfg.StoreTimeout,
		now:            time.Now,
	}, nil
}

// DefaultRunRetries is the per-case retry budget used when none is configured.
func DefaultRunRetries() int {
	return defaultRunRetries
}

// Judge runs the submission against every case of its problem, or once
// against its custom input, and returns the verdict. Cases run in order and
// judging stops at the first run that does not finish. A cancelled ctx
// returns ctx.Err() and no verdict.
func (s *Service) Judge(ctx context.Context, sub model.Submission) (model.Verdict, error) {
	sub, lang, err := s.prepare(sub)
	if err != nil {
		return model.Verdict{}, err
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, sub.ID)

	problem, err := s.resolveProblem(ctx, sub)
	if err != nil {
		return model.Verdict{}, err
	}

	var verdict model.Verdict
	if len(problem.Cases) == 0 {
		verdict, err = s.freeRun(ctx, sub, problem)
	} else {
		verdict, err = s.verify(ctx, sub, problem)
	}
	if err != nil {
		return model.Verdict{}, err
	}
	verdict.SubmissionID = sub.ID

	logger.Info(ctx, "submission judged",
		zap.String("language", lang.ID),
		zap.String("status", string(verdict.Status)),
		zap.Int("cases", len(verdict.Cases)),
		zap.Int64("time_ms", verdict.TimeMs),
		zap.Int64("memory_kb", verdict.MemoryKB),
	)
	s.metrics.ObserveVerdict(ctx, string(verdict.Status), len(verdict.Cases))
	s.persistVerdict(ctx, sub, verdict)
	return verdict, nil
}

func (s *Service) prepare(sub model.Submission) (model.Submission, language.Spec, error) {
	lang, err := s.languages.Get(sub.Language)
	if err != nil {
		return sub, language.Spec{}, err
	}
	sub.Language = lang.ID
	if sub.SourceCode == "" {
		return sub, lang, appErr.ValidationError("code", "required")
	}
	if len(sub.SourceCode) > s.limits.MaxCodeBytes {
		return sub, lang, appErr.Newf(appErr.CodeTooLarge, "code is %d bytes, limit is %d", len(sub.SourceCode), s.limits.MaxCodeBytes)
	}
	if len(sub.CustomInput) > s.limits.MaxInputBytes {
		return sub, lang, appErr.Newf(appErr.CustomInputTooLarge, "input is %d bytes, limit is %d", len(sub.CustomInput), s.limits.MaxInputBytes)
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	return sub, lang, nil
}

func (s *Service) freeRun(ctx context.Context, sub model.Submission, problem model.Problem) (model.Verdict, error) {
	outcome, err := s.runCase(ctx, sub, problem, model.TestCase{Input: sub.CustomInput}, false)
	if err != nil {
		return faultVerdict(ctx, err)
	}
	v := model.Verdict{Status: model.VerdictFromRun(outcome.run.Status)}
	applyRun(&v, outcome.run)
	v.Output = model.RawOutput(outcome.run.Stdout)
	return v, nil
}

func (s *Service) verify(ctx context.Context, sub model.Submission, problem model.Problem) (model.Verdict, error) {
	v := model.Verdict{Status: model.VerdictAccepted}
	cases := make([]model.CaseResult, 0, len(problem.Cases))
	for i, tc := range problem.Cases {
		outcome, err := s.runCase(ctx, sub, problem, tc, true)
		if err != nil {
			fault, ferr := faultVerdict(ctx, err)
			if ferr != nil {
				return model.Verdict{}, ferr
			}
			fault.TimeMs, fault.MemoryKB = v.TimeMs, v.MemoryKB
			fault.Cases = cases
			fault.Output = model.TestCaseReport(cases)
			return fault, nil
		}
		applyRun(&v, outcome.run)
		cr := model.CaseResult{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ActualOutput:   outcome.run.PrimaryOutput(),
			Passed:         outcome.passed,
		}
		cases = append(cases, cr)

		if outcome.run.Status != result.StatusFinished {
			v.Status = model.VerdictFromRun(outcome.run.Status)
			logger.Debug(ctx, "stopping at failed run", zap.Int("case", i+1), zap.String("run_status", string(outcome.run.Status)))
			break
		}
		if !outcome.passed {
			v.Status = model.VerdictWrongAnswer
		}
	}
	v.Cases = cases
	v.Output = model.TestCaseReport(cases)
	return v, nil
}

// applyRun folds one run into the aggregate: wall times add up, memory keeps the peak.
func applyRun(v *model.Verdict, run result.RunResult) {
	v.TimeMs += run.WallTimeMs
	if run.MemoryKB > v.MemoryKB {
		v.MemoryKB = run.MemoryKB
	}
	v.Stderr = run.Stderr
	v.CompileOutput = run.CompileOutput
	v.ExitCode = run.ExitCode
	v.Signal = run.Signal
}

// faultVerdict turns scheduling and infrastructure errors into verdict statuses.
// Caller cancellation is returned as an error.
func faultVerdict(ctx context.Context, err error) (model.Verdict, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return model.Verdict{}, ctx.Err()
		}
	}
	v := model.Verdict{Message: err.Error()}
	switch appErr.GetCode(err) {
	case appErr.JudgeQueueFull:
		v.Status = model.VerdictQueueFull
	case appErr.JudgeWaitTimeout:
		v.Status = model.VerdictWaitTimedOut
	default:
		v.Status = model.VerdictInternalError
		logger.Error(ctx, "judging failed", zap.Error(err))
	}
	return v, nil
}
