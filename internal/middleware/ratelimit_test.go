package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sniplink/sniplink/internal/logger"
)

func testLimiter(rate, burst int) *RateLimiter {
	log := logger.New(logger.Config{Level: "error", Output: io.Discard})
	return NewRateLimiter(RateLimiterConfig{
		Rate:     rate,
		Burst:    burst,
		Interval: time.Second,
		Cleanup:  time.Minute,
	}, log)
}

func TestRateLimiter_AllowWithinBurst(t *testing.T) {
	rl := testLimiter(10, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "request %d within burst should pass", i+1)
	}
	assert.False(t, rl.Allow("1.2.3.4"), "request beyond burst should be rejected")
}

func TestRateLimiter_PerClientBuckets(t *testing.T) {
	rl := testLimiter(10, 1)

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"), "a different client has its own bucket")
}

func TestRateLimiter_Middleware429(t *testing.T) {
	rl := testLimiter(10, 1)

	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/abc1234", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		xff      string
		realIP   string
		remote   string
		expected string
	}{
		{"forwarded single", "3.3.3.3", "", "1.1.1.1:80", "3.3.3.3"},
		{"forwarded list", "3.3.3.3, 4.4.4.4", "", "1.1.1.1:80", "3.3.3.3"},
		{"real ip", "", "5.5.5.5", "1.1.1.1:80", "5.5.5.5"},
		{"remote addr", "", "", "1.1.1.1:80", "1.1.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.expected, getClientIP(req))
		})
	}
}
