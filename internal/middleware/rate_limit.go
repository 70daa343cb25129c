// internal/middleware/rate_limit.go
package middleware

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/javajoker/broadcast-backend/internal/utils"
)

const (
	visitorIdleTTL  = 3 * time.Minute
	cleanupInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Idle visitors are dropped
// while serving requests, at most once per cleanup interval.
type RateLimiter struct {
	visitors    map[string]*visitor
	mtx         sync.Mutex
	rate        rate.Limit
	burst       int
	clk         clock.Clock
	lastCleanup time.Time
}

func NewRateLimiter(clk clock.Clock, r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		visitors:    make(map[string]*visitor),
		rate:        r,
		burst:       b,
		clk:         clk,
		lastCleanup: clk.Now(),
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	now := rl.clk.Now()
	if now.Sub(rl.lastCleanup) >= cleanupInterval {
		for key, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(rl.visitors, key)
			}
		}
		rl.lastCleanup = now
	}

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) visitorCount() int {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()
	return len(rl.visitors)
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			utils.TooManyRequestsResponse(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// GeneralRateLimit allows rps requests per second per IP.
func GeneralRateLimit(clk clock.Clock, rps, burst int) gin.HandlerFunc {
	return NewRateLimiter(clk, rate.Limit(rps), burst).Middleware()
}

// QuoteRateLimit throttles quote submissions and approvals.
func QuoteRateLimit(clk clock.Clock) gin.HandlerFunc {
	return NewRateLimiter(clk, rate.Every(time.Second), 5).Middleware()
}
