package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the thin store boundary for API keys, send logs and daily
// stats. Implementations translate store responses into domain rows
// immediately; callers never see driver-level shapes.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByToken(ctx context.Context, db *gorm.DB, token string) (*APIKey, error)
	ListByOwner(ctx context.Context, db *gorm.DB, userID string) ([]APIKey, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, userID string) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID, userID string) (int64, error)

	CountLogsSince(ctx context.Context, db *gorm.DB, keyID snowflake.ID, since time.Time) (int64, error)
	InsertLog(ctx context.Context, db *gorm.DB, entry *SMSLog) error
	FinalizeLog(ctx context.Context, db *gorm.DB, entry *SMSLog) (int64, error)
	TouchKeyUsage(ctx context.Context, db *gorm.DB, keyID snowflake.ID, at time.Time) error

	// AddDailyStat upserts the (key, date) row, adding the given counter
	// deltas atomically with respect to concurrent callers.
	AddDailyStat(ctx context.Context, db *gorm.DB, row *UsageStat) error
	ListStats(ctx context.Context, db *gorm.DB, keyID snowflake.ID, fromDate string) ([]UsageStat, error)
}
