// Package scheduler queues runs, bounds how many execute at once and lets
// callers poll for results.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"codejudge/internal/judge/observer"
	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/spec"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

const (
	defaultSlots           = 4
	defaultQueueDepth      = 64
	defaultPollInterval    = 100 * time.Millisecond
	defaultMaxPollInterval = time.Second
	defaultBackoffFactor   = 1.5
	defaultMaxPollAttempts = 200
	defaultMaxWait         = 30 * time.Second
	defaultRunRetries      = 2
	defaultRetryBaseDelay  = 100 * time.Millisecond
	defaultRetryMaxDelay   = 2 * time.Second
	defaultRunTimeout      = time.Minute
)

// Config controls concurrency, queueing, polling and retries.
type Config struct {
	Slots           int           `yaml:"slots"`
	QueueDepth      int           `yaml:"queueDepth"`
	PollInterval    time.Duration `yaml:"pollInterval"`
	MaxPollInterval time.Duration `yaml:"maxPollInterval"`
	BackoffFactor   float64       `yaml:"backoffFactor"`
	MaxPollAttempts int           `yaml:"maxPollAttempts"`
	MaxWait         time.Duration `yaml:"maxWait"`
	RunRetries      int           `yaml:"runRetries"`
	RetryBaseDelay  time.Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay   time.Duration `yaml:"retryMaxDelay"`
	// RunTimeout bounds one run including retries, independent of callers.
	RunTimeout time.Duration `yaml:"runTimeout"`
	JobTTL     time.Duration `yaml:"jobTTL"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Slots <= 0 {
		c.Slots = defaultSlots
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = defaultQueueDepth
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxPollInterval <= 0 {
		c.MaxPollInterval = defaultMaxPollInterval
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = c.PollInterval
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = defaultBackoffFactor
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = defaultMaxPollAttempts
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.RunRetries < 0 {
		c.RunRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaultRunTimeout
	}
	return c
}

// DefaultConfig returns a config with every default applied.
func DefaultConfig() Config {
	return Config{RunRetries: defaultRunRetries}.WithDefaults()
}

// Stats is a snapshot of scheduler load.
type Stats struct {
	Queued     int `json:"queued"`
	Running    int `json:"running"`
	Slots      int `json:"slots"`
	QueueDepth int `json:"queueDepth"`
}

type queuedJob struct {
	ctx    context.Context
	handle JobHandle
	req    spec.RunRequest
}

// Scheduler runs RunRequests on a bounded pool in FIFO order.
type Scheduler struct {
	cfg     Config
	exec    sandbox.Executor
	store   JobStore
	metrics observer.MetricsRecorder

	queue   chan queuedJob
	sem     chan struct{}
	running atomic.Int64
	waiters *xsync.MapOf[JobHandle, chan struct{}]

	baseCtx    context.Context
	cancelRuns context.CancelFunc
	stopCh     chan struct{}
	dispatchWG sync.WaitGroup
	runWG      sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
	stopped    atomic.Bool
	// submitMu is held shared across a Submit and exclusively while stopping,
	// so nothing is enqueued after the queue is drained.
	submitMu sync.RWMutex
}

// New creates a scheduler. Call Start before submitting.
func New(cfg Config, exec sandbox.Executor, store JobStore, metrics observer.MetricsRecorder) *Scheduler {
	cfg = cfg.WithDefaults()
	if store == nil {
		store = NewMemoryJobStore(cfg.JobTTL)
	}
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:        cfg,
		exec:       exec,
		store:      store,
		metrics:    metrics,
		queue:      make(chan queuedJob, cfg.QueueDepth),
		sem:        make(chan struct{}, cfg.Slots),
		waiters:    xsync.NewMapOf[JobHandle, chan struct{}](),
		baseCtx:    baseCtx,
		cancelRuns: cancel,
		stopCh:     make(chan struct{}),
	}
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Start launches the dispatcher.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.dispatchWG.Add(1)
		go s.dispatch()
		logger.Info(ctx, "scheduler started", zap.Int("slots", s.cfg.Slots), zap.Int("queue_depth", s.cfg.QueueDepth))
	})
}

// Stop refuses new runs and waits for running ones. Queued runs that never
// got a slot are marked failed. When ctx ends first, running jobs are killed.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.submitMu.Lock()
		s.stopped.Store(true)
		s.submitMu.Unlock()
		close(s.stopCh)
		s.dispatchWG.Wait()
		s.drainQueue()

		done := make(chan struct{})
		go func() {
			s.runWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.cancelRuns()
			<-done
			err = ctx.Err()
		}
		s.cancelRuns()
		logger.Info(ctx, "scheduler stopped")
	})
	return err
}

// Submit enqueues a run without blocking. It fails with JudgeQueueFull when
// queueDepth runs are already waiting.
func (s *Scheduler) Submit(ctx context.Context, req spec.RunRequest) (JobHandle, error) {
	s.submitMu.RLock()
	defer s.submitMu.RUnlock()
	if s.stopped.Load() {
		return "", appErr.New(appErr.ServiceUnavailable).WithMessage("scheduler is stopped")
	}
	handle := JobHandle(uuid.NewString())
	req.RunID = string(handle)
	now := time.Now()
	job := Job{
		Handle:    handle,
		Language:  req.Language,
		State:     JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, job); err != nil {
		return "", err
	}
	s.waiters.Store(handle, make(chan struct{}))

	item := queuedJob{ctx: context.WithoutCancel(ctx), handle: handle, req: req}
	select {
	case s.queue <- item:
	default:
		s.waiters.Delete(handle)
		_ = s.store.Delete(ctx, handle)
		s.metrics.IncQueueRejected()
		logger.Warn(ctx, "run queue full", zap.Int("queue_depth", s.cfg.QueueDepth))
		return "", appErr.Newf(appErr.JudgeQueueFull, "run queue is full (%d waiting)", s.cfg.QueueDepth)
	}
	s.reportQueue()
	return handle, nil
}

// Poll returns the result once the run is terminal; done is false while it is
// queued or running.
func (s *Scheduler) Poll(ctx context.Context, handle JobHandle) (result.RunResult, bool, error) {
	job, err := s.store.Get(ctx, handle)
	if err != nil {
		return result.RunResult{}, false, err
	}
	switch job.State {
	case JobQueued, JobRunning:
		return result.RunResult{Status: job.Status()}, false, nil
	case JobFailed:
		return result.RunResult{}, true, appErr.Newf(appErr.JudgeSystemError, "run failed: %s", job.Error)
	default:
		if job.Result == nil {
			return result.RunResult{}, true, appErr.New(appErr.JudgeSystemError).WithMessage("run finished without result")
		}
		return *job.Result, true, nil
	}
}

// AwaitResult polls until the run is terminal. It gives up with
// JudgeWaitTimeout after maxWait or MaxPollAttempts polls, whichever is first.
// A non-positive maxWait uses the configured MaxWait.
func (s *Scheduler) AwaitResult(ctx context.Context, handle JobHandle, maxWait time.Duration) (result.RunResult, error) {
	if maxWait <= 0 {
		maxWait = s.cfg.MaxWait
	}
	deadline := time.Now().Add(maxWait)
	interval := s.cfg.PollInterval
	wake, _ := s.waiters.Load(handle)

	for attempt := 1; ; attempt++ {
		res, done, err := s.Poll(ctx, handle)
		if err != nil {
			return result.RunResult{}, err
		}
		if done {
			return res, nil
		}
		remaining := time.Until(deadline)
		if attempt >= s.cfg.MaxPollAttempts || remaining <= 0 {
			return result.RunResult{}, appErr.Newf(appErr.JudgeWaitTimeout, "run %s not finished after %d polls", handle, attempt)
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result.RunResult{}, ctx.Err()
		case <-wake:
			timer.Stop()
			wake = nil
		case <-timer.C:
		}
		interval = nextPollInterval(interval, s.cfg.BackoffFactor, s.cfg.MaxPollInterval)
	}
}

// Stats reports queued and running counts.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Queued:     len(s.queue),
		Running:    int(s.running.Load()),
		Slots:      s.cfg.Slots,
		QueueDepth: s.cfg.QueueDepth,
	}
}

func (s *Scheduler) dispatch() {
	defer s.dispatchWG.Done()
	for {
		select {
		case s.sem <- struct{}{}:
		case <-s.stopCh:
			return
		}
		select {
		case item := <-s.queue:
			s.runWG.Add(1)
			s.running.Add(1)
			go s.runJob(item)
		case <-s.stopCh:
			<-s.sem
			return
		}
	}
}

func (s *Scheduler) runJob(item queuedJob) {
	ctx, cancel := context.WithTimeout(item.ctx, s.cfg.RunTimeout)
	stopAfter := context.AfterFunc(s.baseCtx, cancel)
	job := Job{Handle: item.handle, Language: item.req.Language, CreatedAt: time.Now()}
	if stored, err := s.store.Get(ctx, item.handle); err == nil {
		job = stored
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "run panicked", zap.String("handle", string(item.handle)), zap.Any("panic", r))
			job.State = JobFailed
			job.Error = fmt.Sprintf("executor panic: %v", r)
			s.saveFinal(ctx, job)
		}
		stopAfter()
		cancel()
		<-s.sem
		s.running.Add(-1)
		s.reportQueue()
		s.runWG.Done()
	}()

	job.State = JobRunning
	job.UpdatedAt = time.Now()
	if err := s.store.Save(ctx, job); err != nil {
		logger.Warn(ctx, "store running state failed", zap.String("handle", string(item.handle)), zap.Error(err))
	}
	s.reportQueue()

	res, attempts, err := s.executeWithRetry(ctx, item)
	job.Attempts = attempts
	if err != nil {
		job.State = JobFailed
		job.Error = err.Error()
		logger.Error(ctx, "run failed", zap.String("handle", string(item.handle)), zap.Int("attempts", attempts), zap.Error(err))
	} else {
		job.State = JobDone
		job.Result = &res
	}
	s.saveFinal(ctx, job)
}

func (s *Scheduler) executeWithRetry(ctx context.Context, item queuedJob) (result.RunResult, int, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.RunRetries; attempt++ {
		if attempt > 0 {
			s.metrics.IncRetry("run")
			delay := computeBackoff(attempt-1, s.cfg.RetryBaseDelay, s.cfg.RetryMaxDelay)
			logger.Warn(ctx, "retrying run", zap.String("handle", string(item.handle)), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result.RunResult{}, attempt, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			case <-timer.C:
			}
		}
		res, err := s.exec.Execute(ctx, item.req)
		if err == nil {
			return res, attempt + 1, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return result.RunResult{}, attempt + 1, err
		}
	}
	return result.RunResult{}, s.cfg.RunRetries + 1, lastErr
}

func (s *Scheduler) saveFinal(ctx context.Context, job Job) {
	job.UpdatedAt = time.Now()
	// the run context may be spent; the final state must still land
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.Save(storeCtx, job); err != nil {
		logger.Error(ctx, "store final state failed", zap.String("handle", string(job.Handle)), zap.Error(err))
	}
	if ch, ok := s.waiters.LoadAndDelete(job.Handle); ok {
		close(ch)
	}
}

func (s *Scheduler) drainQueue() {
	for {
		select {
		case item := <-s.queue:
			s.saveFinal(item.ctx, Job{
				Handle:   item.handle,
				Language: item.req.Language,
				State:    JobFailed,
				Error:    "scheduler stopped before the run started",
			})
		default:
			return
		}
	}
}

func (s *Scheduler) reportQueue() {
	s.metrics.SetQueue(len(s.queue), int(s.running.Load()))
}

// retryable reports whether err is an infrastructure fault worth retrying.
func retryable(err error) bool {
	switch appErr.GetCode(err) {
	case appErr.JudgeSystemError, appErr.InternalServerError:
		return true
	default:
		return false
	}
}
