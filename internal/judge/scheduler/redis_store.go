package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"codejudge/internal/common/cache"
	appErr "codejudge/pkg/errors"
)

const jobKeyPrefix = "judge:run:"

// RedisJobStore keeps job state in redis.
type RedisJobStore struct {
	cache cache.Cache
	TTL   time.Duration
}

// NewRedisJobStore creates a redis-backed job store.
func NewRedisJobStore(cacheClient cache.Cache, ttl time.Duration) *RedisJobStore {
	return &RedisJobStore{cache: cacheClient, TTL: ttl}
}

func (r *RedisJobStore) Save(ctx context.Context, job Job) error {
	if job.Handle == "" {
		return appErr.ValidationError("handle", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "encode job failed")
	}
	if err := r.cache.Set(ctx, jobKeyPrefix+string(job.Handle), string(data), r.TTL); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store job failed")
	}
	return nil
}

func (r *RedisJobStore) Get(ctx context.Context, handle JobHandle) (Job, error) {
	if handle == "" {
		return Job{}, appErr.ValidationError("handle", "required")
	}
	if r.cache == nil {
		return Job{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, jobKeyPrefix+string(handle))
	if err != nil {
		return Job{}, appErr.Wrapf(err, appErr.CacheError, "load job failed")
	}
	if val == "" {
		return Job{}, appErr.Newf(appErr.NotFound, "run %s not found", handle)
	}
	var job Job
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return Job{}, appErr.Wrapf(err, appErr.CacheError, "decode job failed")
	}
	return job, nil
}

func (r *RedisJobStore) Delete(ctx context.Context, handle JobHandle) error {
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if err := r.cache.Del(ctx, jobKeyPrefix+string(handle)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "delete job failed")
	}
	return nil
}
