package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/janovincze/entrasync/internal/api/models"
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client
	RequestsPerSecond float64

	// BurstSize is the maximum burst size
	BurstSize int

	// PerClient keys limiters by client IP instead of sharing one
	PerClient bool

	// ClientTTL is how long an idle client limiter is kept
	ClientTTL time.Duration
}

// DefaultRateLimitConfig returns a RateLimitConfig with sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		PerClient:         true,
		ClientTTL:         time.Hour,
	}
}

// RateLimiter rejects requests above the configured rate with 429.
func RateLimiter(cfg RateLimitConfig) gin.HandlerFunc {
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	var lookup func(c *gin.Context) *rate.Limiter
	if cfg.PerClient {
		store := newLimiterStore(cfg)
		lookup = func(c *gin.Context) *rate.Limiter {
			return store.get(c.ClientIP(), time.Now())
		}
	} else {
		shared := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)
		lookup = func(*gin.Context) *rate.Limiter { return shared }
	}

	return func(c *gin.Context) {
		c.Header("X-RateLimit-Limit", limit)
		if !lookup(c).Allow() {
			c.Header("Retry-After", "1")
			c.Header("X-RateLimit-Remaining", "0")
			models.RespondWithError(c, models.NewRateLimitedError(c.Request.URL.Path))
			c.Abort()
			return
		}
		c.Next()
	}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterStore evicts idle limiters while serving lookups, at most once per TTL.
type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	rps       rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	ttl := cfg.ClientTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &limiterStore{
		limiters: make(map[string]*clientLimiter),
		rps:      rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
		ttl:      ttl,
	}
}

func (s *limiterStore) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > s.ttl {
		for k, cl := range s.limiters {
			if now.Sub(cl.lastAccess) > s.ttl {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}

	cl, ok := s.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.limiters[key] = cl
	}
	cl.lastAccess = now
	return cl.limiter
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}
