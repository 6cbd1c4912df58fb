package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shorelabs/textgate/internal/admission"
	"github.com/shorelabs/textgate/internal/apikey"
	apikeydomain "github.com/shorelabs/textgate/internal/apikey/domain"
	"github.com/shorelabs/textgate/internal/config"
	"github.com/shorelabs/textgate/internal/coupon"
	coupondomain "github.com/shorelabs/textgate/internal/coupon/domain"
	"github.com/shorelabs/textgate/internal/observability"
	"github.com/shorelabs/textgate/internal/ratelimit"
	"github.com/shorelabs/textgate/internal/sms"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	observability.Module,
	admission.Module,
	apikey.Module,
	coupon.Module,
	ratelimit.Module,
	sms.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, metrics *observability.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(metrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

func registerGin(log *zap.Logger, metrics *observability.Metrics) *gin.Engine {
	return NewEngine(log, metrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger
	db     *gorm.DB
	genID  *snowflake.Node

	keySvc       apikeydomain.Service
	couponSvc    coupondomain.Service
	admissionSvc admission.Service
	sender       sms.Sender
	metrics      *observability.Metrics
	limiter      *ratelimit.PublicLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	DB           *gorm.DB
	GenID        *snowflake.Node
	KeySvc       apikeydomain.Service
	CouponSvc    coupondomain.Service
	AdmissionSvc admission.Service
	Sender       sms.Sender
	Metrics      *observability.Metrics
	Limiter      *ratelimit.PublicLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("server"),
		db:           p.DB,
		genID:        p.GenID,
		keySvc:       p.KeySvc,
		couponSvc:    p.CouponSvc,
		admissionSvc: p.AdmissionSvc,
		sender:       p.Sender,
		metrics:      p.Metrics,
		limiter:      p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- SMS sending --------
	// The GET route mirrors the legacy gateway convention of sending via
	// query parameters; both gates run through admission.
	api.POST("/sms/send", s.APIKeyRequired(), s.SendSMS)
	api.GET("/sms/send", s.APIKeyRequired(), s.SendSMSCompat)

	// -------- Key management --------
	keys := api.Group("/keys", s.AuthRequired())
	{
		keys.GET("", s.ListAPIKeys)
		keys.POST("", s.CreateAPIKey)
		keys.POST("/:id/deactivate", s.DeactivateAPIKey)
		keys.DELETE("/:id", s.DeleteAPIKey)
	}

	// -------- Usage stats --------
	api.GET("/stats", s.AuthRequired(), s.GetUsageStats)

	// -------- Coupons (public) --------
	api.POST("/coupons/apply", s.CouponApplyRateLimit(), s.ApplyCoupon)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AuthRequired())
	admin.Use(s.RequireRole(RoleAdmin, RoleOwner))

	coupons := admin.Group("/coupons")
	{
		coupons.GET("", s.ListCoupons)
		coupons.POST("", s.CreateCoupon)
		coupons.POST("/:id/activate", s.ActivateCoupon)
		coupons.POST("/:id/deactivate", s.DeactivateCoupon)
		coupons.DELETE("/:id", s.DeleteCoupon)
	}
}
