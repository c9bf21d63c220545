package server

import (
	"crypto/subtle"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	"go.uber.org/zap"
)

const bearerPrefix = "bearer "

// AdminTokenRequired admits requests carrying the configured operator token.
func (s *Server) AdminTokenRequired() gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(s.cfg.Admin.APIToken))
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		token := []byte(strings.TrimSpace(header[len(bearerPrefix):]))
		if len(expected) == 0 || subtle.ConstantTimeCompare(token, expected) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// InitializeRateLimit throttles checkout submissions per client IP.
func (s *Server) InitializeRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := s.limiter.AllowInitialize(c.Request.Context(), c.ClientIP())
		if decision.Allowed {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		logger.FromContext(c.Request.Context()).Warn("payment initialize rate limit exceeded",
			zap.Int("limit", decision.Limit),
			zap.Int("retry_after_seconds", retryAfter),
		)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		AbortWithError(c, ErrRateLimited)
	}
}
