package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"github.com/clipverse/payrail/internal/config"
)

const (
	keyPayoutOwner   = "settlement:payout:owner:%s"
	keyEvidenceOwner = "settlement:evidence:owner:%s"
)

// SettlementLimiter throttles payout and evidence submission per owner and
// serializes payout requests for one owner behind a short redis lock. A nil
// limiter (rate limiting disabled) allows everything.
type SettlementLimiter struct {
	enabled bool

	bucket *TokenBucket
	lock   *ownerLock

	payoutRate    float64
	payoutBurst   int
	evidenceRate  float64
	evidenceBurst int
}

func NewSettlementLimiter(cfg config.Config) (*SettlementLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.PayoutRate <= 0 || limitCfg.PayoutBurst <= 0 {
		return nil, errors.New("payout rate limit must be positive")
	}
	if limitCfg.EvidenceRate <= 0 || limitCfg.EvidenceBurst <= 0 {
		return nil, errors.New("evidence rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &SettlementLimiter{
		enabled:       true,
		bucket:        NewTokenBucket(client),
		lock:          newOwnerLock(client),
		payoutRate:    limitCfg.PayoutRate,
		payoutBurst:   limitCfg.PayoutBurst,
		evidenceRate:  limitCfg.EvidenceRate,
		evidenceBurst: limitCfg.EvidenceBurst,
	}, nil
}

func (l *SettlementLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *SettlementLimiter) AllowPayout(ctx context.Context, ownerID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPayoutOwner, strings.TrimSpace(ownerID)), l.payoutRate, l.payoutBurst)
}

func (l *SettlementLimiter) AllowEvidence(ctx context.Context, ownerID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyEvidenceOwner, strings.TrimSpace(ownerID)), l.evidenceRate, l.evidenceBurst)
}

// TryLockOwner holds a short exclusive lock while one payout submission for
// the owner is in flight.
func (l *SettlementLimiter) TryLockOwner(ctx context.Context, ownerID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.lock.TryAcquire(ctx, ownerID)
}

func (l *SettlementLimiter) ReleaseOwner(ctx context.Context, ownerID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.lock.Release(ctx, ownerID, token)
}
