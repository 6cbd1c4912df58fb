package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	coupondomain "github.com/shorelabs/textgate/internal/coupon/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() coupondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, coupon *coupondomain.Coupon) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO coupon_codes (id, code, value, usage_limit, current_uses, expires_at, created_by, created_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		coupon.ID,
		coupon.Code,
		coupon.Value,
		coupon.UsageLimit,
		coupon.CurrentUses,
		coupon.ExpiresAt,
		coupon.CreatedBy,
		coupon.CreatedAt,
		coupon.IsActive,
	).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*coupondomain.Coupon, error) {
	var coupon coupondomain.Coupon
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, value, usage_limit, current_uses, expires_at, created_by, created_at, is_active
		 FROM coupon_codes WHERE code = ? LIMIT 1`,
		code,
	).Scan(&coupon).Error
	if err != nil {
		return nil, err
	}
	if coupon.ID == 0 {
		return nil, nil
	}
	return &coupon, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]coupondomain.Coupon, error) {
	var coupons []coupondomain.Coupon
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, value, usage_limit, current_uses, expires_at, created_by, created_at, is_active
		 FROM coupon_codes ORDER BY created_at DESC`,
	).Scan(&coupons).Error
	if err != nil {
		return nil, err
	}
	return coupons, nil
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE coupon_codes SET is_active = ? WHERE id = ?`,
		active,
		id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM coupon_codes WHERE id = ?`,
		id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) IncrementUses(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	// The WHERE clause is the concurrency guard: two racing redemptions of
	// the last remaining use resolve at the store, only one row update wins.
	res := db.WithContext(ctx).Exec(
		`UPDATE coupon_codes SET current_uses = current_uses + 1
		 WHERE id = ? AND is_active = ? AND (usage_limit = ? OR current_uses < usage_limit)`,
		id,
		true,
		coupondomain.UnlimitedUsage,
	)
	return res.RowsAffected, res.Error
}
