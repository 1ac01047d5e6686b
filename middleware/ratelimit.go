package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"Copilot/pkg/config"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds a token bucket per user@ip and a concurrency slot pool per
// user. It is shared by every request, so all state sits behind mutexes.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    rate.Limit
	burst    int

	slotMu   sync.Mutex
	userSem  map[uint]chan struct{}
	userConc int

	now func() time.Time
}

func NewLimiter(cfg config.RateLimitConfig, userConcurrency int) *Limiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	if userConcurrency < 1 {
		userConcurrency = 1
	}
	return &Limiter{
		visitors: make(map[string]*visitor),
		every:    rate.Limit(cfg.PerSecond),
		burst:    burst,
		userSem:  make(map[uint]chan struct{}),
		userConc: userConcurrency,
		now:      time.Now,
	}
}

func clientIP(c *gin.Context) string {
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" {
		host, _, _ := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr))
		ip = host
	}
	return ip
}

func userKey(c *gin.Context) string {
	uid, _ := UserID(c)
	return strconv.FormatUint(uint64(uid), 10) + "@" + clientIP(c)
}

// Reserve takes one token for key. When the bucket is empty it returns
// false and how long until the next token.
func (l *Limiter) Reserve(key string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	v := l.visitors[key]
	if v == nil {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (l *Limiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := l.Reserve(userKey(c))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"msg": "too many requests"})
			return
		}
		c.Next()
	}
}

// Prune drops buckets idle for longer than idle.
func (l *Limiter) Prune(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, k)
			n++
		}
	}
	return n
}

// AcquireUserSlot blocks until uid has a free concurrency slot or ctx ends.
func (l *Limiter) AcquireUserSlot(ctx context.Context, uid uint) (release func(), err error) {
	l.slotMu.Lock()
	sem := l.userSem[uid]
	if sem == nil {
		sem = make(chan struct{}, l.userConc)
		l.userSem[uid] = sem
	}
	l.slotMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for a free chat slot: %w", ctx.Err())
	}
}

// ConcurrencyGuard holds one of the user's slots for the whole request.
func (l *Limiter) ConcurrencyGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := UserID(c)
		release, err := l.AcquireUserSlot(c.Request.Context(), uid)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"msg": "too many concurrent requests"})
			return
		}
		defer release()
		c.Next()
	}
}
