package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// KeyPrefix namespaces every issued token so presented credentials are
// visually distinguishable and junk input is rejected before any lookup.
const KeyPrefix = "sms_"

type Service interface {
	// Create issues a new active key. The returned record is the only place
	// the plaintext token is guaranteed to be visible.
	Create(ctx context.Context, req CreateRequest) (*APIKey, error)

	// Validate resolves a presented token to its active record. It fails
	// closed: empty tokens, tokens without the expected prefix, store
	// errors and inactive or missing records all yield nil.
	Validate(ctx context.Context, token string) *APIKey

	// Lookup resolves a presented token regardless of the active flag so
	// callers can distinguish an inactive key from an unknown one. Store
	// errors still yield nil.
	Lookup(ctx context.Context, token string) *APIKey

	// CheckRateLimit reports whether the key is under its hourly sliding
	// window. Store errors count as over-limit.
	CheckRateLimit(ctx context.Context, keyID snowflake.ID, limit int) bool

	// LogUsage inserts a pending log entry, or finalizes an existing one
	// when req.EntryID is set, keeping the daily stats row in step.
	LogUsage(ctx context.Context, req LogUsageRequest) (*SMSLog, error)

	ListByOwner(ctx context.Context, userID string) ([]APIKey, error)

	// Deactivate and Delete are scoped to the owning user: a mismatched
	// owner is reported as false and leaves the row untouched.
	Deactivate(ctx context.Context, id snowflake.ID, userID string) (bool, error)
	Delete(ctx context.Context, id snowflake.ID, userID string) (bool, error)

	// UsageStats returns per-day aggregates with date >= today-days,
	// ascending. Days without traffic are absent, not zero-filled.
	UsageStats(ctx context.Context, keyID snowflake.ID, days int) ([]UsageStat, error)
}

type CreateRequest struct {
	UserID    string `json:"user_id"`
	KeyName   string `json:"key_name"`
	RateLimit int    `json:"rate_limit"`
}

type LogUsageRequest struct {
	// EntryID is zero for the initial pending insert and set for the
	// terminal sent/failed update.
	EntryID      snowflake.ID   `json:"entry_id"`
	KeyID        snowflake.ID   `json:"key_id"`
	PhoneNumber  string         `json:"phone_number"`
	Message      string         `json:"message"`
	Status       SMSStatus      `json:"status"`
	ResponseData map[string]any `json:"response_data"`
}

var (
	ErrInvalidOwner  = errors.New("invalid_owner")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidStatus = errors.New("invalid_status")
	ErrNotFound      = errors.New("not_found")
)
