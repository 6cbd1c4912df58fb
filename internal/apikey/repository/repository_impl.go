package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/shorelabs/textgate/internal/apikey/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO api_keys (id, user_id, key_name, api_key, is_active, rate_limit, usage_count, created_at, updated_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.UserID,
		key.KeyName,
		key.Key,
		key.IsActive,
		key.RateLimit,
		key.UsageCount,
		key.CreatedAt,
		key.UpdatedAt,
		key.LastUsedAt,
	).Error
}

func (r *repo) FindByToken(ctx context.Context, db *gorm.DB, token string) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, key_name, api_key, is_active, rate_limit, usage_count, created_at, updated_at, last_used_at
		 FROM api_keys WHERE api_key = ? LIMIT 1`,
		token,
	).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, userID string) ([]apikeydomain.APIKey, error) {
	var keys []apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, key_name, api_key, is_active, rate_limit, usage_count, created_at, updated_at, last_used_at
		 FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	).Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, userID string) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE api_keys SET is_active = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		false,
		time.Now().UTC(),
		id,
		userID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID, userID string) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM api_keys WHERE id = ? AND user_id = ?`,
		id,
		userID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) CountLogsSince(ctx context.Context, db *gorm.DB, keyID snowflake.ID, since time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM sms_logs WHERE api_key_id = ? AND created_at >= ?`,
		keyID,
		since,
	).Scan(&count).Error
	return count, err
}

func (r *repo) InsertLog(ctx context.Context, db *gorm.DB, entry *apikeydomain.SMSLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sms_logs (id, api_key_id, phone_number, message, status, response_data, created_at, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.APIKeyID,
		entry.PhoneNumber,
		entry.Message,
		entry.Status,
		entry.ResponseData,
		entry.CreatedAt,
		entry.SentAt,
	).Error
}

func (r *repo) FinalizeLog(ctx context.Context, db *gorm.DB, entry *apikeydomain.SMSLog) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE sms_logs SET status = ?, response_data = ?, sent_at = ? WHERE id = ? AND status = ?`,
		entry.Status,
		entry.ResponseData,
		entry.SentAt,
		entry.ID,
		apikeydomain.SMSStatusPending,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) TouchKeyUsage(ctx context.Context, db *gorm.DB, keyID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = ?, updated_at = ? WHERE id = ?`,
		at,
		at,
		keyID,
	).Error
}

func (r *repo) AddDailyStat(ctx context.Context, db *gorm.DB, row *apikeydomain.UsageStat) error {
	return db.WithContext(ctx).Exec(
		dailyStatUpsertSQL(db.Dialector.Name()),
		row.ID,
		row.APIKeyID,
		row.Date,
		row.SMSCount,
		row.SuccessCount,
		row.FailedCount,
		row.CreatedAt,
	).Error
}

// dailyStatUpsertSQL returns the per-dialect upsert for usage_stats.
// Arithmetic on the conflict branch keeps concurrent increments for the
// same (key, date) from losing updates.
func dailyStatUpsertSQL(dialect string) string {
	if dialect == "mysql" {
		return `INSERT INTO usage_stats (id, api_key_id, date, sms_count, success_count, failed_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   sms_count = sms_count + VALUES(sms_count),
		   success_count = success_count + VALUES(success_count),
		   failed_count = failed_count + VALUES(failed_count)`
	}
	return `INSERT INTO usage_stats (id, api_key_id, date, sms_count, success_count, failed_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (api_key_id, date) DO UPDATE SET
		   sms_count = usage_stats.sms_count + excluded.sms_count,
		   success_count = usage_stats.success_count + excluded.success_count,
		   failed_count = usage_stats.failed_count + excluded.failed_count`
}

func (r *repo) ListStats(ctx context.Context, db *gorm.DB, keyID snowflake.ID, fromDate string) ([]apikeydomain.UsageStat, error) {
	var stats []apikeydomain.UsageStat
	err := db.WithContext(ctx).Raw(
		`SELECT id, api_key_id, date, sms_count, success_count, failed_count, created_at
		 FROM usage_stats WHERE api_key_id = ? AND date >= ? ORDER BY date ASC`,
		keyID,
		fromDate,
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}
