package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

const verdictKeyPrefix = "judge:verdict:"

// VerdictRepository stores final verdicts so they can be fetched after the request returns.
type VerdictRepository struct {
	cache cache.Cache
	TTL   time.Duration
}

// NewVerdictRepository creates a new repository.
func NewVerdictRepository(cacheClient cache.Cache, ttl time.Duration) *VerdictRepository {
	return &VerdictRepository{cache: cacheClient, TTL: ttl}
}

// Get returns the verdict of a submission.
func (r *VerdictRepository) Get(ctx context.Context, submissionID string) (model.Verdict, error) {
	if submissionID == "" {
		return model.Verdict{}, appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return model.Verdict{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, verdictKeyPrefix+submissionID)
	if err != nil {
		return model.Verdict{}, appErr.Wrapf(err, appErr.CacheError, "load verdict failed")
	}
	if val == "" {
		return model.Verdict{}, appErr.New(appErr.SubmissionNotFound).WithMessage("verdict not found")
	}
	var v model.Verdict
	if err := json.Unmarshal([]byte(val), &v); err != nil {
		return model.Verdict{}, appErr.Wrapf(err, appErr.CacheError, "decode verdict failed")
	}
	return v, nil
}

// Save persists a verdict.
func (r *VerdictRepository) Save(ctx context.Context, v model.Verdict) error {
	if v.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict failed: %w", err)
	}
	if err := r.cache.Set(ctx, verdictKeyPrefix+v.SubmissionID, string(data), r.TTL); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store verdict failed")
	}
	return nil
}
