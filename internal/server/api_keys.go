package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	apikeydomain "github.com/shorelabs/textgate/internal/apikey/domain"
)

type createAPIKeyRequest struct {
	KeyName   string `json:"key_name"`
	RateLimit int    `json:"rate_limit"`
}

type createAPIKeyResponse struct {
	ID        string `json:"id"`
	KeyName   string `json:"key_name"`
	Key       string `json:"key"`
	RateLimit int    `json:"rate_limit"`
	IsActive  bool   `json:"is_active"`
}

func (s *Server) CreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	key, err := s.keySvc.Create(c.Request.Context(), apikeydomain.CreateRequest{
		UserID:    c.GetString(contextUserIDKey),
		KeyName:   req.KeyName,
		RateLimit: req.RateLimit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// The raw token is shown exactly once, on creation.
	c.JSON(http.StatusOK, createAPIKeyResponse{
		ID:        key.ID.String(),
		KeyName:   key.KeyName,
		Key:       key.Key,
		RateLimit: key.RateLimit,
		IsActive:  key.IsActive,
	})
}

type apiKeyView struct {
	ID         string `json:"id"`
	KeyName    string `json:"key_name"`
	KeyHint    string `json:"key_hint"`
	IsActive   bool   `json:"is_active"`
	RateLimit  int    `json:"rate_limit"`
	UsageCount int64  `json:"usage_count"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at,omitempty"`
}

func (s *Server) ListAPIKeys(c *gin.Context) {
	keys, err := s.keySvc.ListByOwner(c.Request.Context(), c.GetString(contextUserIDKey))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]apiKeyView, 0, len(keys))
	for _, key := range keys {
		view := apiKeyView{
			ID:         key.ID.String(),
			KeyName:    key.KeyName,
			KeyHint:    keyHint(key.Key),
			IsActive:   key.IsActive,
			RateLimit:  key.RateLimit,
			UsageCount: key.UsageCount,
			CreatedAt:  key.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if key.LastUsedAt != nil {
			view.LastUsedAt = key.LastUsedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"keys": views})
}

// keyHint shows the prefix and last four characters, never the token.
func keyHint(token string) string {
	if len(token) <= len(apikeydomain.KeyPrefix)+4 {
		return token
	}
	return apikeydomain.KeyPrefix + "..." + token[len(token)-4:]
}

func (s *Server) DeactivateAPIKey(c *gin.Context) {
	id, err := parseKeyID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ok, err := s.keySvc.Deactivate(c.Request.Context(), id, c.GetString(contextUserIDKey))
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

func (s *Server) DeleteAPIKey(c *gin.Context) {
	id, err := parseKeyID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ok, err := s.keySvc.Delete(c.Request.Context(), id, c.GetString(contextUserIDKey))
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

func parseKeyID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param("id"))
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, newValidationError("id", "invalid_id", "invalid key id")
	}
	return snowflake.ID(parsed), nil
}
