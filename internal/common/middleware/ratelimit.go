package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"pantry-raffle-backend/internal/common/errors"
	"pantry-raffle-backend/internal/common/logger"
	"pantry-raffle-backend/internal/common/ratelimit"
)

// RateLimit rejects requests over the limiter budget with 429. Keys are client
// IPs. When the limiter itself fails the request is let through.
func RateLimit(limiter ratelimit.Limiter) gin.HandlerFunc {
	log := logger.Component("ratelimit")
	return func(c *gin.Context) {
		res, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			_ = c.Error(errors.NewRateLimitError(res.RetryAfter))
			c.Abort()
			return
		}
		c.Next()
	}
}
