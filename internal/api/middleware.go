package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"delivery-service/internal/auth"
	"delivery-service/internal/authz"
	"delivery-service/internal/models"
	"delivery-service/internal/util"

	"github.com/gin-gonic/gin"
)

const callerKey = "caller"

// authMiddleware validates the Bearer token and stashes the caller identity
// on the request context.
func authMiddleware(tokens *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or malformed token"})
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(callerKey, authz.Caller{ID: claims.UserID, Role: claims.Role})
		c.Next()
	}
}

// requireRole rejects callers outside the allowed set before the handler runs.
func requireRole(allowed ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := callerFrom(c)
		if err := authz.RequireRole(caller.Role, allowed...); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		c.Next()
	}
}

// callerFrom reads the identity set by authMiddleware. Routes without the
// middleware see a zero caller, which every role gate rejects.
func callerFrom(c *gin.Context) authz.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(authz.Caller); ok {
			return caller
		}
	}
	return authz.Caller{}
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
