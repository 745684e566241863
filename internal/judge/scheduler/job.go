package scheduler

import (
	"context"
	"time"

	"codejudge/internal/judge/sandbox/result"
	appErr "codejudge/pkg/errors"

	"github.com/puzpuzpuz/xsync/v3"
)

// JobHandle identifies a submitted run.
type JobHandle string

// JobState is the scheduler-side lifecycle of a run.
type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Job is the stored state of one run.
type Job struct {
	Handle    JobHandle         `json:"handle"`
	Language  string            `json:"language"`
	State     JobState          `json:"state"`
	Result    *result.RunResult `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	Attempts  int               `json:"attempts"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Status maps the job state onto the run state machine.
func (j Job) Status() result.RunStatus {
	switch j.State {
	case JobQueued:
		return result.StatusQueued
	case JobRunning:
		return result.StatusRunning
	default:
		if j.Result != nil {
			return j.Result.Status
		}
		return ""
	}
}

// JobStore persists job state so any instance can answer polls.
type JobStore interface {
	Save(ctx context.Context, job Job) error
	// Get returns an appErr.NotFound error for unknown handles.
	Get(ctx context.Context, handle JobHandle) (Job, error)
	Delete(ctx context.Context, handle JobHandle) error
}

type memoryEntry struct {
	job       Job
	expiresAt time.Time
}

// MemoryJobStore keeps jobs in process memory with a TTL.
type MemoryJobStore struct {
	jobs *xsync.MapOf[JobHandle, memoryEntry]
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryJobStore creates a store; ttl <= 0 keeps jobs until deleted.
func NewMemoryJobStore(ttl time.Duration) *MemoryJobStore {
	return &MemoryJobStore{
		jobs: xsync.NewMapOf[JobHandle, memoryEntry](),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (m *MemoryJobStore) Save(ctx context.Context, job Job) error {
	if job.Handle == "" {
		return appErr.ValidationError("handle", "required")
	}
	entry := memoryEntry{job: job}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	m.jobs.Store(job.Handle, entry)
	return nil
}

func (m *MemoryJobStore) Get(ctx context.Context, handle JobHandle) (Job, error) {
	entry, ok := m.jobs.Load(handle)
	if !ok || m.expired(entry, m.now()) {
		return Job{}, appErr.Newf(appErr.NotFound, "run %s not found", handle)
	}
	return entry.job, nil
}

func (m *MemoryJobStore) Delete(ctx context.Context, handle JobHandle) error {
	m.jobs.Delete(handle)
	return nil
}

// Sweep drops expired jobs and returns how many were removed.
func (m *MemoryJobStore) Sweep(now time.Time) int {
	removed := 0
	m.jobs.Range(func(handle JobHandle, entry memoryEntry) bool {
		if m.expired(entry, now) {
			m.jobs.Delete(handle)
			removed++
		}
		return true
	})
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (m *MemoryJobStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

func (m *MemoryJobStore) expired(entry memoryEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && now.After(entry.expiresAt)
}
