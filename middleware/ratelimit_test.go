package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"Copilot/pkg/config"
)

func TestReserveEnforcesBurst(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{PerSecond: 1, Burst: 2}, 1)
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Reserve("1@ip"); !ok {
			t.Fatalf("request %d should fit in the burst", i+1)
		}
	}
	ok, wait := l.Reserve("1@ip")
	if ok {
		t.Fatalf("expected third request to be limited")
	}
	if wait <= 0 || wait > time.Second {
		t.Fatalf("unexpected retry delay %v", wait)
	}
	// other keys have their own bucket
	if ok, _ := l.Reserve("2@ip"); !ok {
		t.Fatalf("expected a separate bucket per key")
	}

	now = now.Add(time.Second)
	if ok, _ := l.Reserve("1@ip"); !ok {
		t.Fatalf("expected a token after refill")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewLimiter(config.RateLimitConfig{PerSecond: 0.001, Burst: 1}, 1)
	r := gin.New()
	r.GET("/x", l.RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: got %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestAcquireUserSlot(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{PerSecond: 1, Burst: 1}, 1)

	release, err := l.AcquireUserSlot(context.Background(), 7)
	if err != nil {
		t.Fatalf("first slot: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.AcquireUserSlot(ctx, 7); err == nil {
		t.Fatalf("expected second slot for the same user to block")
	}
	other, err := l.AcquireUserSlot(context.Background(), 8)
	if err != nil {
		t.Fatalf("other user: %v", err)
	}
	other()

	release()
	again, err := l.AcquireUserSlot(context.Background(), 7)
	if err != nil {
		t.Fatalf("slot after release: %v", err)
	}
	again()
}

func TestPrune(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{PerSecond: 1, Burst: 1}, 1)
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Reserve("a")
	now = now.Add(time.Hour)
	l.Reserve("b")

	if n := l.Prune(time.Minute); n != 1 {
		t.Fatalf("expected 1 pruned bucket, got %d", n)
	}
}
