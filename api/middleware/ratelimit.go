package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/threadgrab/config"
	"github.com/use-agent/threadgrab/models"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = time.Hour
	limiterSweepEvery = 5 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiters is a per-identity token-bucket registry. Idle entries are swept
// on access, at most once per limiterSweepEvery.
type limiters struct {
	cfg config.RateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

func newLimiters(cfg config.RateLimitConfig) *limiters {
	return &limiters{cfg: cfg, now: time.Now, entries: make(map[string]*limiterEntry)}
}

func (l *limiters) get(identity string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= limiterSweepEvery {
		cutoff := now.Add(-limiterIdleTTL)
		for id, e := range l.entries {
			if e.lastSeen.Before(cutoff) {
				delete(l.entries, id)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.entries[identity]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst),
		}
		l.entries[identity] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// middleware powered by golang.org/x/time/rate. Thread fetches hold a
// browser tab for minutes, so the configured rate is usually low.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	l := newLimiters(cfg)

	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity := c.GetString("api_key")
		if identity == "" {
			identity = c.ClientIP()
		}

		if !l.get(identity).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}

		c.Next()
	}
}
