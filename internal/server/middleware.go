package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/shorelabs/textgate/internal/admission"
	apikeydomain "github.com/shorelabs/textgate/internal/apikey/domain"
	"go.uber.org/zap"
)

const (
	contextUserIDKey = "user_id"
	contextAPIKeyKey = "api_key"

	RoleAdmin = "admin"
	RoleOwner = "owner"
)

// RequestLogger logs every request with a correlation id and safe fields.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			fields = append(fields, zap.String("error", lastErr.Err.Error()))
		}

		switch {
		case route == "/metrics" || route == "/health":
			log.Debug("http_request", fields...)
		case status >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header("X-Request-Id", requestID)
	return requestID
}

// AuthRequired authenticates dashboard requests with a bearer JWT issued
// by the identity provider. The subject claim is the user id.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		secret := strings.TrimSpace(s.cfg.AuthJWTSecret)
		if secret == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		sub, _ := claims["sub"].(string)
		if strings.TrimSpace(sub) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, sub)
		c.Next()
	}
}

// RequireRole gates a route on the caller's stored role. The users table
// is the source of truth; the token never carries authorization.
func (s *Server) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(contextUserIDKey)
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		var record struct {
			Role string `gorm:"column:role"`
		}
		if err := s.db.WithContext(c.Request.Context()).Raw(
			`SELECT role FROM users WHERE id = ? LIMIT 1`,
			userID,
		).Scan(&record).Error; err != nil {
			AbortWithError(c, err)
			return
		}

		for _, role := range roles {
			if record.Role == role {
				c.Next()
				return
			}
		}

		AbortWithError(c, ErrForbidden)
	}
}

// APIKeyRequired admits SMS traffic. The token may arrive in the
// x-api-key header, an Authorization bearer, or the api_key query
// parameter for legacy callers.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractAPIKeyToken(c)

		decision := s.admissionSvc.Admit(c.Request.Context(), token)
		if !decision.Allowed {
			s.metrics.RecordAdmissionDenied(decision.Reason)
			AbortWithError(c, admissionError(decision.Reason))
			return
		}

		c.Set(contextAPIKeyKey, decision.Key)
		c.Next()
	}
}

func extractAPIKeyToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader("x-api-key")); token != "" {
		return token
	}
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if parts := strings.Fields(header); len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return strings.TrimSpace(c.Query("api_key"))
}

func admissionError(reason string) error {
	switch reason {
	case admission.ReasonInactiveKey:
		return ErrInactiveAPIKey
	case admission.ReasonRateLimited:
		return ErrRateLimited
	default:
		return ErrInvalidAPIKey
	}
}

func admittedKey(c *gin.Context) *apikeydomain.APIKey {
	value, ok := c.Get(contextAPIKeyKey)
	if !ok {
		return nil
	}
	key, _ := value.(*apikeydomain.APIKey)
	return key
}

// CouponApplyRateLimit throttles the public coupon endpoint per client
// address. A limiter outage denies; abuse protection does not relax
// because Redis is away.
func (s *Server) CouponApplyRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		allowed, err := s.limiter.AllowCouponApply(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("coupon apply limiter failed", zap.Error(err))
			AbortWithError(c, ErrRateLimited)
			return
		}
		if !allowed {
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}
