// Package admission decides whether an inbound request bearing an API
// key token may proceed. A decision is a verdict plus the reason it was
// denied, so callers can report and meter rejections uniformly.
package admission

import (
	"context"

	apikeydomain "github.com/shorelabs/textgate/internal/apikey/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Denial reasons, stable identifiers used in responses and metrics.
const (
	ReasonInvalidKey  = "invalid_key"
	ReasonInactiveKey = "inactive_key"
	ReasonRateLimited = "rate_limited"
)

type Decision struct {
	Allowed bool
	Reason  string
	Key     *apikeydomain.APIKey
}

type Service interface {
	Admit(ctx context.Context, token string) Decision
}

type Params struct {
	fx.In

	Log  *zap.Logger
	Keys apikeydomain.Service
}

type service struct {
	log  *zap.Logger
	keys apikeydomain.Service
}

func New(p Params) Service {
	return &service{
		log:  p.Log.Named("admission"),
		keys: p.Keys,
	}
}

// Admit checks the token in three stages: existence, active state, then
// the key's sliding-window rate limit. Store failures deny; an outage
// must not waive the contracted limits.
func (s *service) Admit(ctx context.Context, token string) Decision {
	key := s.keys.Lookup(ctx, token)
	if key == nil {
		return Decision{Reason: ReasonInvalidKey}
	}
	if !key.IsActive {
		return Decision{Reason: ReasonInactiveKey, Key: key}
	}

	if !s.keys.CheckRateLimit(ctx, key.ID, key.RateLimit) {
		s.log.Debug("request rate limited",
			zap.Int64("key_id", int64(key.ID)),
			zap.Int("rate_limit", key.RateLimit),
		)
		return Decision{Reason: ReasonRateLimited, Key: key}
	}

	return Decision{Allowed: true, Key: key}
}

var Module = fx.Module("admission",
	fx.Provide(New),
)
