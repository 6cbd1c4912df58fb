package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shorelabs/textgate/internal/config"
)

const (
	keyCouponApply = "coupon:apply:%s"
	keySendLock    = "sms:send:%s"
)

// PublicLimiter throttles the unauthenticated coupon apply endpoint per
// client address and serializes concurrent sends to one recipient. It is
// optional; when disabled every check passes and no Redis connection is
// opened. The per-key hourly send limit lives in the key service and
// works without it.
type PublicLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	applyRate   float64
	applyBurst  int
	sendLockTTL time.Duration
}

func NewPublicLimiter(cfg config.Config) (*PublicLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.CouponApplyRate <= 0 || limitCfg.CouponApplyBurst <= 0 {
		return nil, errors.New("coupon apply rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	ttl := limitCfg.SendLockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	return &PublicLimiter{
		enabled:     true,
		bucket:      NewTokenBucket(client),
		locker:      NewLocker(client),
		applyRate:   limitCfg.CouponApplyRate,
		applyBurst:  limitCfg.CouponApplyBurst,
		sendLockTTL: ttl,
	}, nil
}

func (l *PublicLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *PublicLimiter) AllowCouponApply(ctx context.Context, clientAddr string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyCouponApply, strings.TrimSpace(clientAddr)), l.applyRate, l.applyBurst)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (l *PublicLimiter) TryLockRecipient(ctx context.Context, phoneNumber string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keySendLock, strings.TrimSpace(phoneNumber)), l.sendLockTTL)
}

func (l *PublicLimiter) ReleaseRecipient(ctx context.Context, phoneNumber, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keySendLock, strings.TrimSpace(phoneNumber)), token)
}
