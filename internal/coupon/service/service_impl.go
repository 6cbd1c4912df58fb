package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shorelabs/textgate/internal/config"
	coupondomain "github.com/shorelabs/textgate/internal/coupon/domain"
	"github.com/shorelabs/textgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	GenID *snowflake.Node
	Repo  coupondomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  coupondomain.Repository
	genID *snowflake.Node

	storeTimeout time.Duration
}

func New(p Params) coupondomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("coupon.service"),
		repo:         p.Repo,
		genID:        p.GenID,
		storeTimeout: p.Cfg.StoreTimeout,
	}
}

func (s *Service) Create(ctx context.Context, req coupondomain.CreateRequest) (*coupondomain.Coupon, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		generated, err := coupondomain.GenerateCode(0)
		if err != nil {
			return nil, err
		}
		code = generated
	}

	if req.Value <= 0 {
		return nil, coupondomain.ErrInvalidValue
	}
	if req.UsageLimit == 0 || req.UsageLimit < coupondomain.UnlimitedUsage {
		return nil, coupondomain.ErrInvalidUsageLimit
	}

	coupon := &coupondomain.Coupon{
		ID:         s.genID.Generate(),
		Code:       code,
		Value:      req.Value,
		UsageLimit: req.UsageLimit,
		ExpiresAt:  req.ExpiresAt,
		CreatedBy:  strings.TrimSpace(req.CreatedBy),
		CreatedAt:  time.Now().UTC(),
		IsActive:   true,
	}

	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	if err := s.repo.Insert(ctx, s.db, coupon); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, coupondomain.ErrDuplicateCode
		}
		return nil, err
	}

	return coupon, nil
}

// Apply resolves the code regardless of active state so that an
// auto-deactivated coupon keeps reporting the reason it became unusable
// instead of collapsing into a generic invalid-coupon answer.
func (s *Service) Apply(ctx context.Context, code string) (float64, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return 0, coupondomain.ErrInvalidCoupon
	}

	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	coupon, err := s.repo.FindByCode(ctx, s.db, trimmed)
	if err != nil {
		return 0, err
	}
	if coupon == nil {
		return 0, coupondomain.ErrInvalidCoupon
	}

	now := time.Now().UTC()
	if coupon.Expired(now) {
		s.deactivate(ctx, coupon, "expired")
		return 0, coupondomain.ErrCouponExpired
	}
	if coupon.LimitReached() {
		s.deactivate(ctx, coupon, "usage limit reached")
		return 0, coupondomain.ErrUsageLimitReached
	}
	if !coupon.IsActive {
		return 0, coupondomain.ErrInvalidCoupon
	}

	affected, err := s.repo.IncrementUses(ctx, s.db, coupon.ID)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		// Lost the race for the final use, or the coupon was deactivated
		// under us. Re-read to report the right reason.
		fresh, err := s.repo.FindByCode(ctx, s.db, trimmed)
		if err != nil {
			return 0, err
		}
		if fresh != nil && fresh.LimitReached() {
			return 0, coupondomain.ErrUsageLimitReached
		}
		return 0, coupondomain.ErrInvalidCoupon
	}

	return coupon.Value, nil
}

func (s *Service) deactivate(ctx context.Context, coupon *coupondomain.Coupon, reason string) {
	if !coupon.IsActive {
		return
	}
	if _, err := s.repo.SetActive(ctx, s.db, coupon.ID, false); err != nil {
		s.log.Warn("coupon deactivation failed",
			zap.Error(err),
			zap.String("code", coupon.Code),
			zap.String("reason", reason),
		)
	}
}

func (s *Service) List(ctx context.Context) ([]coupondomain.Coupon, error) {
	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	return s.repo.List(ctx, s.db)
}

func (s *Service) Activate(ctx context.Context, id snowflake.ID) (bool, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) (bool, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) setActive(ctx context.Context, id snowflake.ID, active bool) (bool, error) {
	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	affected, err := s.repo.SetActive(ctx, s.db, id, active)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) (bool, error) {
	ctx, cancel := s.boundCtx(ctx)
	defer cancel()

	affected, err := s.repo.Delete(ctx, s.db, id)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Service) boundCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}
