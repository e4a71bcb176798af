package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"barter-service/internal/auth"
	"barter-service/internal/models"
	"barter-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const principalKey = "principal"

// authMiddleware resolves the bearer token into a principal. A missing header passes
// through unauthenticated; a bad token is always rejected.
func authMiddleware(authenticator *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		principal, err := authenticator.Authenticate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			util.GetLogger().Debug("Rejected token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// requirePrincipal rejects requests that authMiddleware left unauthenticated
func requirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if optionalPrincipal(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.Next()
	}
}

func optionalPrincipal(c *gin.Context) *models.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	principal, _ := v.(*models.Principal)
	return principal
}

// principalFrom must only be called behind requirePrincipal
func principalFrom(c *gin.Context) models.Principal {
	return *optionalPrincipal(c)
}

// RateLimiter hands out one token bucket per caller: the principal when
// authenticated, the client IP otherwise. Buckets idle longer than the idle window are
// dropped by Prune.
type RateLimiter struct {
	limiters sync.Map // map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// NewRateLimiter creates a limiter allowing rps requests per second with the given burst
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limit: rate.Limit(rps), burst: burst, now: time.Now}
}

// Allow reports whether key may make another request now
func (l *RateLimiter) Allow(key string) bool {
	val, ok := l.limiters.Load(key)
	if !ok {
		val, _ = l.limiters.LoadOrStore(key, &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)})
	}
	entry := val.(*limiterEntry)
	now := l.now()
	entry.lastSeen.Store(now.UnixNano())
	return entry.limiter.AllowN(now, 1)
}

// Prune drops buckets not used within idle and returns how many were removed.
// A dropped bucket was full again long ago, so recreating it loses nothing.
func (l *RateLimiter) Prune(idle time.Duration) int {
	cutoff := l.now().Add(-idle).UnixNano()
	removed := 0
	l.limiters.Range(func(key, val any) bool {
		if val.(*limiterEntry).lastSeen.Load() < cutoff {
			l.limiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// RunPruner prunes idle buckets every interval until ctx is cancelled
func (l *RateLimiter) RunPruner(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := l.Prune(idle); n > 0 {
				util.GetLogger().Debug("Pruned idle rate limiters", zap.Int("removed", n))
			}
		}
	}
}

// Middleware must run after authMiddleware so the principal is known
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if p := optionalPrincipal(c); p != nil {
			key = "user:" + strconv.FormatInt(p.ID, 10)
		}
		if !l.Allow(key) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
