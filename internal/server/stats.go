package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type usageStatView struct {
	Date         string `json:"date"`
	SMSCount     int64  `json:"sms_count"`
	SuccessCount int64  `json:"success_count"`
	FailedCount  int64  `json:"failed_count"`
}

// GetUsageStats returns the daily aggregates for one of the caller's
// keys. Asking for another user's key answers not found rather than
// confirming the key exists.
func (s *Server) GetUsageStats(c *gin.Context) {
	rawKeyID := strings.TrimSpace(c.Query("api_key_id"))
	parsed, err := strconv.ParseInt(rawKeyID, 10, 64)
	if err != nil || parsed <= 0 {
		AbortWithError(c, newValidationError("api_key_id", "invalid_id", "invalid key id"))
		return
	}
	keyID := snowflake.ID(parsed)

	days := 30
	if rawDays := strings.TrimSpace(c.Query("days")); rawDays != "" {
		parsedDays, err := strconv.Atoi(rawDays)
		if err != nil || parsedDays <= 0 {
			AbortWithError(c, newValidationError("days", "invalid_days", "days must be a positive integer"))
			return
		}
		days = parsedDays
	}

	owned, err := s.ownsKey(c, keyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !owned {
		AbortWithError(c, ErrNotFound)
		return
	}

	stats, err := s.keySvc.UsageStats(c.Request.Context(), keyID, days)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]usageStatView, 0, len(stats))
	var totalSent, totalSuccess, totalFailed int64
	for _, stat := range stats {
		views = append(views, usageStatView{
			Date:         stat.Date,
			SMSCount:     stat.SMSCount,
			SuccessCount: stat.SuccessCount,
			FailedCount:  stat.FailedCount,
		})
		totalSent += stat.SMSCount
		totalSuccess += stat.SuccessCount
		totalFailed += stat.FailedCount
	}

	c.JSON(http.StatusOK, gin.H{
		"api_key_id": keyID.String(),
		"days":       days,
		"totals": gin.H{
			"sms_count":     totalSent,
			"success_count": totalSuccess,
			"failed_count":  totalFailed,
		},
		"stats": views,
	})
}

func (s *Server) ownsKey(c *gin.Context, keyID snowflake.ID) (bool, error) {
	keys, err := s.keySvc.ListByOwner(c.Request.Context(), c.GetString(contextUserIDKey))
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		if key.ID == keyID {
			return true, nil
		}
	}
	return false, nil
}
