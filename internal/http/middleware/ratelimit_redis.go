package middleware

import (
	"net/http"
	"strconv"
	"time"

	"detective_game/internal/kv"

	"github.com/gin-gonic/gin"
)

// RateLimit implements a fixed-window rate limiter on the shared store
// using INCR with an expiry set in the same step, so the limit holds across instances. Requests are keyed
// by fid when JWT ran before it and by client IP otherwise.
// key format: detective:rl:<window_seconds>:<identifier>
func RateLimit(store kv.Store, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 {
			c.Next()
			return
		}

		ident := "ip:" + c.ClientIP()
		if fid, ok := FID(c); ok {
			ident = "fid:" + strconv.FormatInt(fid, 10)
		}
		key := "detective:rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + ident
		ctx := c.Request.Context()

		// the window is set with the first increment, and re-armed by any
		// later one that finds the counter without an expiry
		val, err := store.Incr(ctx, key, window)
		if err != nil {
			// on store error, fail-open (allow) but set header
			c.Header("X-RateLimit-Error", "store-error")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(maxRequests)-val), 10))

		if val > int64(maxRequests) {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			return
		}

		RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}
