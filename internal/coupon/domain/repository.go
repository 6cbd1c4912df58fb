package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the store boundary for coupon rows.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, coupon *Coupon) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Coupon, error)
	List(ctx context.Context, db *gorm.DB) ([]Coupon, error)
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)

	// IncrementUses bumps current_uses by one iff the coupon is still
	// active and under its cap; zero rows affected means the guard lost.
	IncrementUses(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
}
