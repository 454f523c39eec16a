package server

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tugas/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tugas/internal/observability/metrics"
	"github.com/smallbiznis/tugas/internal/orgcontext"
	"github.com/smallbiznis/tugas/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitEndpointVerify = "payments.verify"
	rateLimitReasonPayer    = "payer-rate"
)

type verifyLimiter interface {
	Allow(ctx context.Context, orgID, payerID string) (*ratelimit.RateLimitResult, error)
}

// VerifyRateLimit bounds verify calls per payer. A redis failure lets the
// request through; the ledger client has its own rate limit behind it.
func (s *Server) VerifyRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.verifyLimiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		orgID, ok := orgcontext.OrgIDFromContext(ctx)
		if !ok || orgID == 0 {
			AbortWithError(c, ErrOrgRequired)
			return
		}
		payerID, _ := orgcontext.UserIDFromContext(ctx)

		result, err := s.verifyLimiter.Allow(ctx, orgID.String(), payerID)
		if err != nil {
			logger.FromContext(ctx).Warn("verify rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			denyVerifyRateLimit(c, orgID.String(), result, s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, rateLimitEndpointVerify, orgID.String(), s.obsMetrics)
		c.Next()
	}
}

func denyVerifyRateLimit(c *gin.Context, orgID string, result *ratelimit.RateLimitResult, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("verify rate limit exceeded",
		zap.String("reason", rateLimitReasonPayer),
		zap.String("endpoint", rateLimitEndpointVerify),
	)
	recordRateLimitDenied(ctx, rateLimitEndpointVerify, orgID, rateLimitReasonPayer, metrics)

	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result.RetryAfter)))
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint, orgID string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, orgID, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, orgID, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, orgID, endpoint, reason)
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
