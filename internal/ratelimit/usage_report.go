package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/entityusage/internal/config"
)

const keyUsageReport = "entityusage:usage:report:%s"

// UsageReportLimiter throttles usage reports per entity type. A nil limiter
// allows everything.
type UsageReportLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewUsageReportLimiter(client *redis.Client, cfg config.Config) (*UsageReportLimiter, error) {
	if client == nil {
		return nil, nil
	}
	limitCfg := cfg.RateLimit
	if limitCfg.UsageReportRate <= 0 || limitCfg.UsageReportBurst <= 0 {
		return nil, errors.New("usage report rate limit must be positive")
	}
	return &UsageReportLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.UsageReportRate,
		burst:  limitCfg.UsageReportBurst,
	}, nil
}

func (l *UsageReportLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *UsageReportLimiter) Allow(ctx context.Context, entityType string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyUsageReport, strings.ToLower(strings.TrimSpace(entityType)))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
