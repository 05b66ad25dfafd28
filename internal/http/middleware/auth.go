package middleware

import (
	"net/http"
	"strings"

	"detective_game/internal/service"

	"github.com/gin-gonic/gin"
)

const fidKey = "fid"

// JWT requires a bearer token and stores its fid in the context.
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		fid, err := service.ParseJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(fidKey, fid)
		c.Next()
	}
}

// Admin lets through only fids accepted by isAdmin. Requires JWT to run first.
func Admin(isAdmin func(fid int64) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		fid, ok := FID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !isAdmin(fid) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

// FID returns the fid set by JWT.
func FID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(fidKey)
	if !ok {
		return 0, false
	}
	fid, ok := v.(int64)
	return fid, ok
}
