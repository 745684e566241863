package middleware

import (
	"context"
	"sync/atomic"
	"time"

	"codejudge/pkg/errors"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

// RateLimitPolicy configures token buckets for one route group.
// Zero rates disable the corresponding bucket.
type RateLimitPolicy struct {
	GlobalRPS   float64       `yaml:"globalRPS"`
	GlobalBurst int           `yaml:"globalBurst"`
	IPRPS       float64       `yaml:"ipRPS"`
	IPBurst     int           `yaml:"ipBurst"`
	IdleTTL     time.Duration `yaml:"idleTTL"`
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// RateLimiter holds a global bucket and one bucket per client ip.
type RateLimiter struct {
	policy   RateLimitPolicy
	global   *rate.Limiter
	perIP    *xsync.MapOf[string, *ipBucket]
	onReject func()
}

// NewRateLimiter creates a limiter. onReject may be nil.
func NewRateLimiter(policy RateLimitPolicy, onReject func()) *RateLimiter {
	rl := &RateLimiter{
		policy:   policy,
		perIP:    xsync.NewMapOf[string, *ipBucket](),
		onReject: onReject,
	}
	if policy.GlobalRPS > 0 {
		burst := policy.GlobalBurst
		if burst <= 0 {
			burst = int(policy.GlobalRPS) * 2
		}
		rl.global = rate.NewLimiter(rate.Limit(policy.GlobalRPS), max(burst, 1))
	}
	if rl.policy.IdleTTL <= 0 {
		rl.policy.IdleTTL = 10 * time.Minute
	}
	return rl
}

// Allow reports whether one more request from ip fits the policy.
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.global != nil && !rl.global.Allow() {
		rl.reject()
		return false
	}
	if rl.policy.IPRPS <= 0 {
		return true
	}
	bucket, _ := rl.perIP.LoadOrCompute(ip, func() *ipBucket {
		return &ipBucket{limiter: rate.NewLimiter(rate.Limit(rl.policy.IPRPS), max(rl.policy.IPBurst, 1))}
	})
	bucket.lastSeen.Store(time.Now().UnixNano())
	if !bucket.limiter.Allow() {
		rl.reject()
		return false
	}
	return true
}

// Sweep drops per-ip buckets idle for longer than the policy allows.
func (rl *RateLimiter) Sweep(now time.Time) int {
	removed := 0
	cutoff := now.Add(-rl.policy.IdleTTL).UnixNano()
	rl.perIP.Range(func(ip string, bucket *ipBucket) bool {
		if bucket.lastSeen.Load() < cutoff {
			rl.perIP.Delete(ip)
			removed++
		}
		return true
	})
	return removed
}

// RunSweeper sweeps idle buckets until ctx is done.
func (rl *RateLimiter) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(rl.policy.IdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.Sweep(now)
		}
	}
}

func (rl *RateLimiter) reject() {
	if rl.onReject != nil {
		rl.onReject()
	}
}

// RateLimitMiddleware rejects requests over the limiter's budget with 429.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil {
			c.Next()
			return
		}
		if !rl.Allow(c.ClientIP()) {
			response.AbortWithErrorCode(c, errors.TooManyRequests, "")
			return
		}
		c.Next()
	}
}
