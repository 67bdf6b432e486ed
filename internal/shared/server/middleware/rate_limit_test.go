package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimitPollingHigherThanSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })

	groupFor := func(c *gin.Context) string {
		if c.Request.Method == http.MethodGet && c.FullPath() == "/api/v1/trips/:job_id/progress" {
			return GroupPolling
		}
		return GroupSubmit
	}

	r := gin.New()
	r.Use(ClientIdentity())
	r.Use(RateLimit(RateLimitConfig{
		GroupFor: groupFor,
		Limiter:  limiter,
		Rules: map[string]RateLimitRule{
			GroupSubmit:  {Rate: 1, Burst: 2},
			GroupPolling: {Rate: 5, Burst: 10},
		},
	}))

	r.GET("/api/v1/trips/:job_id/progress", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.POST("/api/v1/trips", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	send := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("X-Client-Id", "traveler-1")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	for i := 0; i < 3; i++ {
		if code := send(http.MethodGet, "/api/v1/trips/job-1/progress"); code != http.StatusOK {
			t.Fatalf("polling request %d expected 200, got %d", i+1, code)
		}
	}
	for i := 0; i < 2; i++ {
		if code := send(http.MethodPost, "/api/v1/trips"); code != http.StatusOK {
			t.Fatalf("submit request %d expected 200, got %d", i+1, code)
		}
	}
	if code := send(http.MethodPost, "/api/v1/trips"); code != http.StatusTooManyRequests {
		t.Fatalf("submit request 3 expected 429, got %d", code)
	}
}

func TestRateLimitKeysByClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })

	r := gin.New()
	r.Use(ClientIdentity())
	r.Use(RateLimit(RateLimitConfig{
		Limiter: limiter,
		Rules:   map[string]RateLimitRule{"DEFAULT": {Rate: 1, Burst: 1}},
	}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, client := range []string{"alice", "bob"} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-Client-Id", client)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("client %s expected 200, got %d", client, resp.Code)
		}
	}
}

func TestRateLimit429IncludesRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })

	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{
		DefaultGroup: "DEFAULT",
		GroupFor: func(c *gin.Context) string {
			return "DEFAULT"
		},
		Limiter: limiter,
		Rules: map[string]RateLimitRule{
			"DEFAULT": {Rate: 1, Burst: 1},
		},
	}))
	r.GET("/api/v1/limited", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req1 := httptest.NewRequest(http.MethodGet, "/api/v1/limited", nil)
	resp1 := httptest.NewRecorder()
	r.ServeHTTP(resp1, req1)
	if resp1.Code != http.StatusOK {
		t.Fatalf("expected first request 200, got %d", resp1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/limited", nil)
	resp2 := httptest.NewRecorder()
	r.ServeHTTP(resp2, req2)
	if resp2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp2.Code)
	}
	if resp2.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", resp2.Header().Get("Retry-After"))
	}

	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error.Code != "rate_limited" {
		t.Fatalf("expected rate_limited, got %q", payload.Error.Code)
	}
	if _, ok := payload.Error.Details["retry_after_ms"]; !ok {
		t.Fatalf("expected retry_after_ms in details")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })
	limiter.Allow("a|DEFAULT", RateLimitRule{Rate: 1, Burst: 1})
	now = now.Add(time.Hour)
	limiter.Allow("b|DEFAULT", RateLimitRule{Rate: 1, Burst: 1})

	if removed := limiter.Sweep(10 * time.Minute); removed != 1 {
		t.Fatalf("expected 1 bucket removed, got %d", removed)
	}
}
