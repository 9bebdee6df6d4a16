package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"receipts/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	routeReceiptsGenerate = "receipts:generate"
	routeReceiptsVerify   = "receipts:verify"
	routeReceiptsRead     = "receipts:read"
	routeLogRead          = "log:read"
	routeKeysRead         = "keys:read"
)

// enforceRateLimit keys on the authenticated subject when there is one and
// on the client address otherwise.
func (s *Server) enforceRateLimit(c *gin.Context, routeID string, principal domain.Principal) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	key := fmt.Sprintf("client:%s:endpoint:%s", c.ClientIP(), routeID)
	if principal.Subject != "" {
		key = fmt.Sprintf("subject:%s:endpoint:%s", principal.Subject, routeID)
	}

	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		if s.rateLimitFailClosed {
			writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
			return false
		}
		s.logger.Warn("rate limiter unavailable", zap.String("route", routeID), zap.Error(err))
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int64(decision.RetryAfter(time.Now()).Seconds())
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}
