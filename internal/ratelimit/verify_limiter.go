package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tugas/internal/config"
)

const keyVerifyPayer = "payment:verify:%s:%s"

// VerifyLimiter bounds how often one payer may call the verify endpoint.
// Every attempt costs ledger round trips, so the limit is per payer, not per org.
type VerifyLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewVerifyLimiter(cfg config.Config, client *redis.Client) *VerifyLimiter {
	limiter := &VerifyLimiter{
		rate:  cfg.RateLimit.VerifyRate,
		burst: cfg.RateLimit.VerifyBurst,
	}
	if client != nil && limiter.rate > 0 && limiter.burst > 0 {
		limiter.bucket = NewTokenBucket(client)
	}
	return limiter
}

func (l *VerifyLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow always admits the request when the limiter is disabled.
func (l *VerifyLimiter) Allow(ctx context.Context, orgID, payerID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyVerifyPayer, strings.TrimSpace(orgID), strings.TrimSpace(payerID))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
