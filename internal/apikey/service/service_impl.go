package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/shorelabs/textgate/internal/apikey/domain"
	"github.com/shorelabs/textgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	GenID *snowflake.Node
	Repo  apikeydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  apikeydomain.Repository
	genID *snowflake.Node

	defaultRateLimit int
	storeTimeout     time.Duration
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("apikey.service"),
		repo:             p.Repo,
		genID:            p.GenID,
		defaultRateLimit: p.Cfg.DefaultRateLimit,
		storeTimeout:     p.Cfg.StoreTimeout,
	}
}

func (s *Service) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.APIKey, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, apikeydomain.ErrInvalidOwner
	}

	name := strings.TrimSpace(req.KeyName)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}

	rateLimit := req.RateLimit
	if rateLimit <= 0 {
		rateLimit = s.defaultRateLimit
	}

	token, err := apikeydomain.GenerateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	key := &apikeydomain.APIKey{
		ID:        s.genID.Generate(),
		UserID:    userID,
		KeyName:   name,
		Key:       token,
		IsActive:  true,
		RateLimit: rateLimit,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	return key, nil
}

func (s *Service) Validate(ctx context.Context, token string) *apikeydomain.APIKey {
	key := s.Lookup(ctx, token)
	if key == nil || !key.IsActive {
		return nil
	}
	return key
}

func (s *Service) Lookup(ctx context.Context, token string) *apikeydomain.APIKey {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" || !strings.HasPrefix(trimmed, apikeydomain.KeyPrefix) {
		return nil
	}

	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	key, err := s.repo.FindByToken(ctx, s.db, trimmed)
	if err != nil {
		s.log.Warn("key lookup failed", zap.Error(err))
		return nil
	}
	return key
}

func (s *Service) CheckRateLimit(ctx context.Context, keyID snowflake.ID, limit int) bool {
	if limit <= 0 {
		return false
	}

	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	since := time.Now().UTC().Add(-time.Hour)
	count, err := s.repo.CountLogsSince(ctx, s.db, keyID, since)
	if err != nil {
		// Fail closed: an unreadable window must not admit traffic past
		// the contracted limit.
		s.log.Warn("rate limit count failed", zap.Error(err), zap.Int64("key_id", int64(keyID)))
		return false
	}

	return count < int64(limit)
}

func (s *Service) LogUsage(ctx context.Context, req apikeydomain.LogUsageRequest) (*apikeydomain.SMSLog, error) {
	if req.EntryID == 0 {
		return s.insertPending(ctx, req)
	}
	return s.finalize(ctx, req)
}

func (s *Service) insertPending(ctx context.Context, req apikeydomain.LogUsageRequest) (*apikeydomain.SMSLog, error) {
	if req.Status != apikeydomain.SMSStatusPending {
		return nil, apikeydomain.ErrInvalidStatus
	}
	if req.KeyID == 0 {
		return nil, apikeydomain.ErrNotFound
	}

	now := time.Now().UTC()
	entry := &apikeydomain.SMSLog{
		ID:          s.genID.Generate(),
		APIKeyID:    req.KeyID,
		PhoneNumber: req.PhoneNumber,
		Message:     req.Message,
		Status:      apikeydomain.SMSStatusPending,
		CreatedAt:   now,
	}
	if req.ResponseData != nil {
		entry.ResponseData = datatypes.JSONMap(req.ResponseData)
	}

	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	if err := s.repo.InsertLog(ctx, s.db, entry); err != nil {
		return nil, err
	}

	if err := s.repo.TouchKeyUsage(ctx, s.db, req.KeyID, now); err != nil {
		s.log.Warn("usage count touch failed", zap.Error(err), zap.Int64("key_id", int64(req.KeyID)))
	}

	if err := s.bumpStats(ctx, req.KeyID, now, apikeydomain.SMSStatusPending); err != nil {
		s.log.Warn("usage stat upsert failed", zap.Error(err), zap.Int64("key_id", int64(req.KeyID)))
	}

	return entry, nil
}

func (s *Service) finalize(ctx context.Context, req apikeydomain.LogUsageRequest) (*apikeydomain.SMSLog, error) {
	if !req.Status.Terminal() {
		return nil, apikeydomain.ErrInvalidStatus
	}

	now := time.Now().UTC()
	entry := &apikeydomain.SMSLog{
		ID:       req.EntryID,
		APIKeyID: req.KeyID,
		Status:   req.Status,
	}
	if req.ResponseData != nil {
		entry.ResponseData = datatypes.JSONMap(req.ResponseData)
	}
	if req.Status == apikeydomain.SMSStatusSent {
		entry.SentAt = &now
	}

	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	affected, err := s.repo.FinalizeLog(ctx, s.db, entry)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, apikeydomain.ErrNotFound
	}

	if err := s.bumpStats(ctx, req.KeyID, now, req.Status); err != nil {
		s.log.Warn("usage stat upsert failed", zap.Error(err), zap.Int64("key_id", int64(req.KeyID)))
	}

	return entry, nil
}

// bumpStats keeps the per-day aggregate in step: the pending insert counts
// the attempt, the terminal transition counts the outcome.
func (s *Service) bumpStats(ctx context.Context, keyID snowflake.ID, at time.Time, status apikeydomain.SMSStatus) error {
	row := &apikeydomain.UsageStat{
		ID:        s.genID.Generate(),
		APIKeyID:  keyID,
		Date:      at.Format(apikeydomain.StatDateFormat),
		CreatedAt: at,
	}

	switch status {
	case apikeydomain.SMSStatusPending:
		row.SMSCount = 1
	case apikeydomain.SMSStatusSent:
		row.SuccessCount = 1
	case apikeydomain.SMSStatusFailed:
		row.FailedCount = 1
	default:
		return apikeydomain.ErrInvalidStatus
	}

	return s.repo.AddDailyStat(ctx, s.db, row)
}

func (s *Service) ListByOwner(ctx context.Context, userID string) ([]apikeydomain.APIKey, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return nil, apikeydomain.ErrInvalidOwner
	}

	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	return s.repo.ListByOwner(ctx, s.db, trimmed)
}

func (s *Service) Deactivate(ctx context.Context, id snowflake.ID, userID string) (bool, error) {
	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	affected, err := s.repo.Deactivate(ctx, s.db, id, strings.TrimSpace(userID))
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID, userID string) (bool, error) {
	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	affected, err := s.repo.Delete(ctx, s.db, id, strings.TrimSpace(userID))
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Service) UsageStats(ctx context.Context, keyID snowflake.ID, days int) ([]apikeydomain.UsageStat, error) {
	if days <= 0 {
		days = 30
	}

	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	from := time.Now().UTC().AddDate(0, 0, -days).Format(apikeydomain.StatDateFormat)
	return s.repo.ListStats(ctx, s.db, keyID, from)
}

func (s *Service) boundCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}
