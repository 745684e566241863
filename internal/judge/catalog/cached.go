package catalog

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

const problemKeyPrefix = "judge:testcases:"

// CachedCatalog is a redis cache-aside layer over another catalog.
// Unknown problems are cached as absent for EmptyTTL.
type CachedCatalog struct {
	next     ProblemCatalog
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewCachedCatalog(next ProblemCatalog, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if emptyTTL <= 0 {
		emptyTTL = 30 * time.Second
	}
	return &CachedCatalog{next: next, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

func (c *CachedCatalog) GetProblem(ctx context.Context, problemID int64) (model.Problem, error) {
	if c.cache == nil {
		return c.next.GetProblem(ctx, problemID)
	}
	key := problemKeyPrefix + strconv.FormatInt(problemID, 10)
	p, err := cache.GetWithCached(ctx, c.cache, key, cache.JitterTTL(c.ttl), c.emptyTTL,
		func(p model.Problem) bool { return p.ID == 0 },
		func(p model.Problem) string {
			data, _ := json.Marshal(p)
			return string(data)
		},
		func(s string) (model.Problem, error) {
			var p model.Problem
			err := json.Unmarshal([]byte(s), &p)
			return p, err
		},
		func(ctx context.Context) (model.Problem, error) {
			p, err := c.next.GetProblem(ctx, problemID)
			if appErr.Is(err, appErr.ProblemNotFound) {
				return model.Problem{}, nil
			}
			return p, err
		},
	)
	if err != nil {
		return model.Problem{}, err
	}
	if p.ID == 0 {
		return model.Problem{}, notFound(problemID)
	}
	return p, nil
}
