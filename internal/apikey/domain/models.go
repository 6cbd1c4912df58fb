// Package domain contains persistence models for API keys and their
// usage accounting.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// APIKey stores a send credential owned by a single dashboard user. The
// owner identity is an opaque string minted by the external auth provider.
type APIKey struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID     string       `gorm:"column:user_id;type:text;not null;index" json:"user_id"`
	KeyName    string       `gorm:"column:key_name;type:text;not null" json:"key_name"`
	Key        string       `gorm:"column:api_key;type:text;not null;uniqueIndex" json:"api_key"`
	IsActive   bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
	RateLimit  int          `gorm:"column:rate_limit;not null;default:100" json:"rate_limit"`
	UsageCount int64        `gorm:"column:usage_count;not null;default:0" json:"usage_count"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	LastUsedAt *time.Time   `gorm:"column:last_used_at" json:"last_used_at"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// SMSStatus is the lifecycle state of a logged send attempt.
type SMSStatus string

const (
	SMSStatusPending SMSStatus = "pending"
	SMSStatusSent    SMSStatus = "sent"
	SMSStatusFailed  SMSStatus = "failed"
)

// Terminal reports whether the status ends the pending→sent/failed flow.
func (s SMSStatus) Terminal() bool {
	return s == SMSStatusSent || s == SMSStatusFailed
}

// SMSLog records one send attempt. Inserted once as pending, then updated
// in place when the gateway outcome is known. Never deleted by the service.
type SMSLog struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	APIKeyID     snowflake.ID      `gorm:"column:api_key_id;not null;index:ix_sms_logs_key_created,priority:1" json:"api_key_id"`
	PhoneNumber  string            `gorm:"column:phone_number;type:text;not null" json:"phone_number"`
	Message      string            `gorm:"type:text;not null" json:"message"`
	Status       SMSStatus         `gorm:"type:text;not null;default:pending" json:"status"`
	ResponseData datatypes.JSONMap `gorm:"column:response_data;type:jsonb" json:"response_data"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_sms_logs_key_created,priority:2" json:"created_at"`
	SentAt       *time.Time        `gorm:"column:sent_at" json:"sent_at"`
}

// TableName sets the database table name.
func (SMSLog) TableName() string { return "sms_logs" }

// UsageStat aggregates send attempts per key per calendar day. The date is
// kept as YYYY-MM-DD so ordering and range filters behave the same on every
// dialect. Rows exist only for days with traffic.
type UsageStat struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	APIKeyID     snowflake.ID `gorm:"column:api_key_id;not null;uniqueIndex:ux_usage_stats_key_date,priority:1" json:"api_key_id"`
	Date         string       `gorm:"type:date;not null;uniqueIndex:ux_usage_stats_key_date,priority:2" json:"date"`
	SMSCount     int64        `gorm:"column:sms_count;not null;default:0" json:"sms_count"`
	SuccessCount int64        `gorm:"column:success_count;not null;default:0" json:"success_count"`
	FailedCount  int64        `gorm:"column:failed_count;not null;default:0" json:"failed_count"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (UsageStat) TableName() string { return "usage_stats" }

// StatDateFormat is the canonical layout for UsageStat.Date.
const StatDateFormat = "2006-01-02"
