package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Create inserts a new active coupon. Validation happens before any
	// store write; a code collision surfaces as ErrDuplicateCode.
	Create(ctx context.Context, req CreateRequest) (*Coupon, error)

	// Apply redeems the coupon exactly once and returns its value. The
	// increment is a conditional update so concurrent redemptions near the
	// cap can never push current_uses past usage_limit.
	Apply(ctx context.Context, code string) (float64, error)

	// List is unscoped; access control belongs to the caller.
	List(ctx context.Context) ([]Coupon, error)

	Activate(ctx context.Context, id snowflake.ID) (bool, error)
	Deactivate(ctx context.Context, id snowflake.ID) (bool, error)
	Delete(ctx context.Context, id snowflake.ID) (bool, error)
}

type CreateRequest struct {
	Code       string     `json:"code"`
	Value      float64    `json:"value"`
	UsageLimit int        `json:"usage_limit"`
	ExpiresAt  *time.Time `json:"expires_at"`
	CreatedBy  string     `json:"created_by"`
}

var (
	ErrInvalidCode       = errors.New("invalid_code")
	ErrInvalidValue      = errors.New("invalid_value")
	ErrInvalidUsageLimit = errors.New("invalid_usage_limit")
	ErrDuplicateCode     = errors.New("duplicate_code")
	ErrInvalidCoupon     = errors.New("invalid_coupon")
	ErrCouponExpired     = errors.New("coupon_expired")
	ErrUsageLimitReached = errors.New("usage_limit_reached")
	ErrNotFound          = errors.New("not_found")
)
