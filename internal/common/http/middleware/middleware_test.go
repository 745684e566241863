package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

func TestTraceContextMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(commonmw.TraceContextMiddleware())
	router.GET("/trace", func(c *gin.Context) {
		ctx := c.Request.Context()
		traceID, _ := ctx.Value(contextkey.TraceID).(string)
		requestID, _ := ctx.Value(contextkey.RequestID).(string)
		c.JSON(http.StatusOK, map[string]string{"trace": traceID, "request": requestID})
	})

	cases := []struct {
		name          string
		headers       map[string]string
		expectedTrace string
	}{
		{name: "generate ids"},
		{name: "keep incoming trace id", headers: map[string]string{"X-Trace-Id": "trace-123"}, expectedTrace: "trace-123"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/trace", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			router.ServeHTTP(rec, req)

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if body["trace"] == "" || body["request"] == "" {
				t.Fatalf("expected ids in request context, got %v", body)
			}
			if tc.expectedTrace != "" && body["trace"] != tc.expectedTrace {
				t.Fatalf("expected trace id %s, got %s", tc.expectedTrace, body["trace"])
			}
			if rec.Header().Get("X-Trace-Id") != body["trace"] {
				t.Fatalf("expected trace header to match context")
			}
		})
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	t.Parallel()
	rejected := 0
	rl := commonmw.NewRateLimiter(commonmw.RateLimitPolicy{IPRPS: 0.001, IPBurst: 2}, func() { rejected++ })

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatalf("expected burst of two to pass")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("expected third request to be rejected")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatalf("expected other ip to have its own bucket")
	}
	if rejected != 1 {
		t.Fatalf("expected 1 rejection, got %d", rejected)
	}
}

func TestRateLimiterSweep(t *testing.T) {
	t.Parallel()
	rl := commonmw.NewRateLimiter(commonmw.RateLimitPolicy{IPRPS: 10, IPBurst: 10, IdleTTL: time.Minute}, nil)
	rl.Allow("10.0.0.1")
	if removed := rl.Sweep(time.Now()); removed != 0 {
		t.Fatalf("expected fresh bucket to survive, removed %d", removed)
	}
	if removed := rl.Sweep(time.Now().Add(2 * time.Minute)); removed != 1 {
		t.Fatalf("expected idle bucket to be removed, removed %d", removed)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := commonmw.NewRateLimiter(commonmw.RateLimitPolicy{GlobalRPS: 0.001, GlobalBurst: 1}, nil)
	router := gin.New()
	router.Use(commonmw.RateLimitMiddleware(rl))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/x", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/x", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
}
