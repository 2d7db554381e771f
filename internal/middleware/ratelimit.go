package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"fish-tracker/internal/logging"
	"fish-tracker/internal/metrics"
)

// RateLimiter counts hits per key in fixed windows.
type RateLimiter struct {
	scope  string
	limit  int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	hits    int
	resetAt time.Time
}

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

func NewRateLimiter(scope string, limit int, period time.Duration) *RateLimiter {
	return NewRateLimiterWithNow(scope, limit, period, time.Now)
}

func NewRateLimiterWithNow(scope string, limit int, period time.Duration, now func() time.Time) *RateLimiter {
	rl := &RateLimiter{
		scope:   scope,
		limit:   limit,
		period:  period,
		now:     now,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// sweep drops expired windows once per period until Stop.
func (rl *RateLimiter) sweep() {
	if rl.period <= 0 {
		return
	}
	ticker := time.NewTicker(rl.period)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, w := range rl.windows {
				if !now.Before(w.resetAt) {
					delete(rl.windows, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the sweep goroutine. The limiter keeps working without it.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Take records a hit for key.
func (rl *RateLimiter) Take(key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(rl.period)}
		rl.windows[key] = w
	}
	if w.hits >= rl.limit {
		return Decision{RetryAfter: w.resetAt.Sub(now)}
	}
	w.hits++
	return Decision{Allowed: true, Remaining: rl.limit - w.hits}
}

// RateLimitMiddleware limits each client IP and reports the budget in
// X-RateLimit-* headers.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		d := rl.Take(ip)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			metrics.RecordRateLimited(rl.scope)
			logging.Ctx(c.Request.Context()).Warn().Str("scope", rl.scope).Str("ip", ip).Msg("rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, please try again later."})
			return
		}
		c.Next()
	}
}
