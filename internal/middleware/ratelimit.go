package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps events per second per key with a burst of twice that
func NewRateLimiter(rps float64) *RateLimiter {
	burst := int(rps * 2)
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, exists := rl.limiters[key]
	if !exists {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = time.Now()

	return e.limiter
}

// Allow reports whether key may act now
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	return rl.getLimiter(key).Allow()
}

// prune drops limiters idle for longer than idle
func (rl *RateLimiter) prune(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	for key, e := range rl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// Cleanup removes idle limiters every five minutes until ctx is done. It
// starts its own goroutine.
func (rl *RateLimiter) Cleanup(ctx context.Context) {
	rl.cleanupEvery(ctx, 5*time.Minute, 10*time.Minute)
}

func (rl *RateLimiter) cleanupEvery(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.prune(idle)
			}
		}
	}()
}

// ActionLimiter is the Redis token bucket the limiter prefers when available
type ActionLimiter interface {
	AllowAction(ctx context.Context, subject, action string, rate float64, burst int) (bool, error)
}

// SharedLimiter limits per key through Redis and falls back to the local
// limiter when Redis is unavailable or errors.
type SharedLimiter struct {
	redis  ActionLimiter
	action string
	rate   float64
	burst  int
	local  *RateLimiter
	logger logrus.FieldLogger
}

func NewSharedLimiter(redis ActionLimiter, action string, rps float64, local *RateLimiter, logger logrus.FieldLogger) *SharedLimiter {
	burst := int(rps * 2)
	if burst < 1 {
		burst = 1
	}
	return &SharedLimiter{redis: redis, action: action, rate: rps, burst: burst, local: local, logger: logger}
}

func (s *SharedLimiter) Allow(ctx context.Context, key string) bool {
	if s.redis != nil {
		ok, err := s.redis.AllowAction(ctx, key, s.action, s.rate, s.burst)
		if err == nil {
			return ok
		}
		s.logger.WithError(err).Debug("redis limiter unavailable, using local limiter")
	}
	return s.local.Allow(ctx, key)
}

// RateLimitMiddleware limits requests per client IP
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.Request.Context(), c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
