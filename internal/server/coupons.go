package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	coupondomain "github.com/shorelabs/textgate/internal/coupon/domain"
)

type applyCouponRequest struct {
	Code string `json:"code"`
}

func (s *Server) ApplyCoupon(c *gin.Context) {
	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		AbortWithError(c, newValidationError("code", "required", "coupon code is required"))
		return
	}

	value, err := s.couponSvc.Apply(c.Request.Context(), req.Code)
	if err != nil {
		s.metrics.RecordCouponApply(couponApplyResult(err))
		AbortWithError(c, err)
		return
	}

	s.metrics.RecordCouponApply("applied")
	c.JSON(http.StatusOK, gin.H{
		"code":  strings.TrimSpace(req.Code),
		"value": value,
	})
}

func couponApplyResult(err error) string {
	switch err {
	case coupondomain.ErrCouponExpired:
		return "expired"
	case coupondomain.ErrUsageLimitReached:
		return "limit_reached"
	default:
		return "invalid"
	}
}

type createCouponRequest struct {
	Code       string     `json:"code"`
	Value      float64    `json:"value"`
	UsageLimit int        `json:"usage_limit"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (s *Server) CreateCoupon(c *gin.Context) {
	var req createCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	coupon, err := s.couponSvc.Create(c.Request.Context(), coupondomain.CreateRequest{
		Code:       req.Code,
		Value:      req.Value,
		UsageLimit: req.UsageLimit,
		ExpiresAt:  req.ExpiresAt,
		CreatedBy:  c.GetString(contextUserIDKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, couponView(coupon))
}

func (s *Server) ListCoupons(c *gin.Context) {
	coupons, err := s.couponSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]gin.H, 0, len(coupons))
	for i := range coupons {
		views = append(views, couponView(&coupons[i]))
	}

	c.JSON(http.StatusOK, gin.H{"coupons": views})
}

func couponView(coupon *coupondomain.Coupon) gin.H {
	view := gin.H{
		"id":           coupon.ID.String(),
		"code":         coupon.Code,
		"value":        coupon.Value,
		"usage_limit":  coupon.UsageLimit,
		"current_uses": coupon.CurrentUses,
		"is_active":    coupon.IsActive,
		"created_at":   coupon.CreatedAt,
	}
	if coupon.ExpiresAt != nil {
		view["expires_at"] = coupon.ExpiresAt
	}
	return view
}

func (s *Server) ActivateCoupon(c *gin.Context) {
	s.setCouponActive(c, true)
}

func (s *Server) DeactivateCoupon(c *gin.Context) {
	s.setCouponActive(c, false)
}

func (s *Server) setCouponActive(c *gin.Context, active bool) {
	id, err := parseCouponID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var ok bool
	if active {
		ok, err = s.couponSvc.Activate(c.Request.Context(), id)
	} else {
		ok, err = s.couponSvc.Deactivate(c.Request.Context(), id)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !ok {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) DeleteCoupon(c *gin.Context) {
	id, err := parseCouponID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ok, err := s.couponSvc.Delete(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !ok {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseCouponID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param("id"))
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, newValidationError("id", "invalid_id", "invalid coupon id")
	}
	return snowflake.ID(parsed), nil
}
