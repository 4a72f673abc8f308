package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/stagepass/internal/config"
)

const keyPurchaseUser = "purchase:user:%s"

type allower interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error)
}

// PurchaseLimiter throttles ticket purchase attempts per user.
type PurchaseLimiter struct {
	enabled bool
	bucket  allower
	rate    float64
	burst   int
}

func NewPurchaseLimiter(cfg config.Config, bucket *TokenBucket) (*PurchaseLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.PurchaseEnabled || bucket == nil {
		return &PurchaseLimiter{}, nil
	}
	if limitCfg.PurchaseRate <= 0 || limitCfg.PurchaseBurst <= 0 {
		return nil, errors.New("purchase rate limit must be positive")
	}
	return &PurchaseLimiter{
		enabled: true,
		bucket:  bucket,
		rate:    limitCfg.PurchaseRate,
		burst:   limitCfg.PurchaseBurst,
	}, nil
}

func (l *PurchaseLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowUser consumes one purchase token for userID. A disabled limiter
// always allows.
func (l *PurchaseLimiter) AllowUser(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPurchaseUser, strings.TrimSpace(userID)), l.rate, l.burst)
}
