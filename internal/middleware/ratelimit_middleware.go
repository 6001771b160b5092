package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	apperrors "studyhub/backend/internal/errors"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimit applies a token bucket per authenticated user. It must run after
// Auth; requests without a user fall back to the client IP.
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}

	limiters := gocache.New(limiterIdleTTL, 2*limiterIdleTTL)

	return func(c *gin.Context) {
		key := UserID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		limiter, ok := cachedLimiter(limiters, key)
		if ok {
			limiters.SetDefault(key, limiter)
		} else {
			limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
			if err := limiters.Add(key, limiter, gocache.DefaultExpiration); err != nil {
				if existing, ok := cachedLimiter(limiters, key); ok {
					limiter = existing
				}
			}
		}

		res := limiter.Reserve()
		if delay := res.Delay(); !res.OK() || delay > 0 {
			res.Cancel()
			if !res.OK() {
				delay = time.Second
			}
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			writeError(c, apperrors.TooManyRequests("slow down", delay))
			return
		}
		c.Next()
	}
}

func cachedLimiter(limiters *gocache.Cache, key string) (*rate.Limiter, bool) {
	cached, ok := limiters.Get(key)
	if !ok {
		return nil, false
	}
	limiter, ok := cached.(*rate.Limiter)
	return limiter, ok
}
