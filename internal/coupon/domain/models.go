// Package domain contains persistence models for coupon codes.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UnlimitedUsage is the sentinel usage limit for coupons with no cap.
const UnlimitedUsage = -1

// Coupon is a redeemable code granting a monetary value. Coupons are
// global administrative objects; unlike API keys they carry no ownership
// scoping beyond the creator audit field.
type Coupon struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Code        string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Value       float64      `gorm:"type:numeric(12,2);not null" json:"value"`
	UsageLimit  int          `gorm:"column:usage_limit;not null;default:1" json:"usage_limit"`
	CurrentUses int          `gorm:"column:current_uses;not null;default:0" json:"current_uses"`
	ExpiresAt   *time.Time   `gorm:"column:expires_at" json:"expires_at"`
	CreatedBy   string       `gorm:"column:created_by;type:text" json:"created_by"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	IsActive    bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
}

// TableName sets the database table name.
func (Coupon) TableName() string { return "coupon_codes" }

// Unlimited reports whether the coupon has no usage cap.
func (c *Coupon) Unlimited() bool { return c.UsageLimit == UnlimitedUsage }

// LimitReached reports whether the usage cap has been consumed.
func (c *Coupon) LimitReached() bool {
	return !c.Unlimited() && c.CurrentUses >= c.UsageLimit
}

// Expired reports whether the coupon's expiry, if any, has passed.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}
