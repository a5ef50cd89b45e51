package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func limitedHandler(rl *RateLimiter) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return NewOwnerMiddleware()(rl.Middleware()(next))
}

func doRequest(handler http.Handler, ownerID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/collections", nil)
	if ownerID != "" {
		req.Header.Set(OwnerHeader, ownerID)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// TestRateLimiter_AllowsWithinBurst はバースト内のリクエストが許可されることをテストする。
func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:            rate.Limit(1),
		Burst:           3,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()
	handler := limitedHandler(rl)

	for i := 0; i < 3; i++ {
		if w := doRequest(handler, "owner-1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

// TestRateLimiter_BlocksOverBurst はバースト超過で429が返ることをテストする。
func TestRateLimiter_BlocksOverBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:            rate.Limit(0.01),
		Burst:           1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()
	handler := limitedHandler(rl)

	if w := doRequest(handler, "owner-1"); w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", w.Code, http.StatusOK)
	}

	w := doRequest(handler, "owner-1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry a Retry-After header")
	}
}

// TestRateLimiter_PerOwner はオーナーごとに独立したリミッターが使われることをテストする。
func TestRateLimiter_PerOwner(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:            rate.Limit(0.01),
		Burst:           1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()
	handler := limitedHandler(rl)

	if w := doRequest(handler, "owner-1"); w.Code != http.StatusOK {
		t.Fatalf("owner-1: status = %d", w.Code)
	}
	if w := doRequest(handler, "owner-1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("owner-1 second: status = %d, want 429", w.Code)
	}
	// 別オーナーは制限されない
	if w := doRequest(handler, "owner-2"); w.Code != http.StatusOK {
		t.Errorf("owner-2: status = %d, want %d", w.Code, http.StatusOK)
	}
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount = %d, want 2", rl.LimiterCount())
	}
}

// TestNewRateLimiterConfig は毎分レートからの設定生成をテストする。
func TestNewRateLimiterConfig(t *testing.T) {
	config := NewRateLimiterConfig(120)

	if config.Rate != rate.Limit(2) {
		t.Errorf("Rate = %v, want 2 req/sec", config.Rate)
	}
	if config.Burst != 120 {
		t.Errorf("Burst = %d, want 120", config.Burst)
	}
}
