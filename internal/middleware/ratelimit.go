package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exam-proctor/internal/clock"
	"github.com/stemsi/exam-proctor/internal/response"
)

const visitorTTL = 3 * time.Minute

// RateLimiter is a per-key token bucket: burst tokens, refilled at
// burst per interval.
type RateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	burst       float64
	perSecond   float64
	clock       clock.Clock
	lastCleanup time.Time
	key         func(*gin.Context) string
}

type visitor struct {
	tokens   float64
	lastSeen time.Time
}

// NewRateLimiter allows burst requests per interval for each client IP.
func NewRateLimiter(burst int, interval time.Duration, clk clock.Clock) *RateLimiter {
	return &RateLimiter{
		visitors:    make(map[string]*visitor),
		burst:       float64(burst),
		perSecond:   float64(burst) / interval.Seconds(),
		clock:       clk,
		lastCleanup: clk.Now(),
		key:         func(c *gin.Context) string { return c.ClientIP() },
	}
}

// Allow takes one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	if now.Sub(rl.lastCleanup) > time.Minute {
		rl.cleanup(now)
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{tokens: rl.burst, lastSeen: now}
		rl.visitors[key] = v
	}
	v.tokens += now.Sub(v.lastSeen).Seconds() * rl.perSecond
	if v.tokens > rl.burst {
		v.tokens = rl.burst
	}
	v.lastSeen = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(rl.key(c)) {
			c.Header("Retry-After", "1")
			response.AbortFail(c, response.ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, k)
		}
	}
	rl.lastCleanup = now
}
