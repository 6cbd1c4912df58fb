package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/shorelabs/textgate/internal/apikey/domain"
	"go.uber.org/zap"
)

type sendSMSRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

type sendSMSResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
}

func (s *Server) SendSMS(c *gin.Context) {
	var req sendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	s.sendSMS(c, req.PhoneNumber, req.Message)
}

// SendSMSCompat accepts the legacy query-parameter form of the send
// endpoint so existing integrations keep working unchanged.
func (s *Server) SendSMSCompat(c *gin.Context) {
	s.sendSMS(c, c.Query("phone_number"), c.Query("message"))
}

func (s *Server) sendSMS(c *gin.Context, phoneNumber, message string) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	message = strings.TrimSpace(message)
	if phoneNumber == "" {
		AbortWithError(c, newValidationError("phone_number", "required", "phone number is required"))
		return
	}
	if message == "" {
		AbortWithError(c, newValidationError("message", "required", "message is required"))
		return
	}

	key := admittedKey(c)
	if key == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()

	// Serialize concurrent sends to one recipient when the limiter is on.
	lockToken, acquired, err := s.limiter.TryLockRecipient(ctx, phoneNumber)
	if err != nil {
		s.log.Warn("recipient lock failed", zap.Error(err))
	} else if !acquired {
		AbortWithError(c, ErrRateLimited)
		return
	}
	if acquired && lockToken != "" {
		defer func() {
			if err := s.limiter.ReleaseRecipient(ctx, phoneNumber, lockToken); err != nil {
				s.log.Warn("recipient lock release failed", zap.Error(err))
			}
		}()
	}

	// The attempt is recorded before dispatch so a crash mid-send leaves
	// a pending row instead of silence.
	entry, err := s.keySvc.LogUsage(ctx, apikeydomain.LogUsageRequest{
		KeyID:       key.ID,
		PhoneNumber: phoneNumber,
		Message:     message,
		Status:      apikeydomain.SMSStatusPending,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := apikeydomain.SMSStatusFailed
	var responseData map[string]any
	var messageID string

	result, sendErr := s.sender.Send(ctx, phoneNumber, message)
	if sendErr != nil {
		responseData = map[string]any{"error": sendErr.Error()}
	} else {
		responseData = result.Metadata
		messageID = result.MessageID
		if result.Delivered {
			status = apikeydomain.SMSStatusSent
		}
	}

	final, err := s.keySvc.LogUsage(ctx, apikeydomain.LogUsageRequest{
		EntryID:      entry.ID,
		KeyID:        key.ID,
		Status:       status,
		ResponseData: responseData,
	})
	if err != nil {
		s.log.Warn("sms log finalize failed",
			zap.Error(err),
			zap.String("entry_id", entry.ID.String()),
		)
	} else {
		entry = final
	}

	s.metrics.RecordSMSOutcome(string(status))

	if sendErr != nil {
		AbortWithError(c, sendErr)
		return
	}

	httpStatus := http.StatusOK
	if status == apikeydomain.SMSStatusFailed {
		httpStatus = http.StatusBadGateway
	}
	c.JSON(httpStatus, sendSMSResponse{
		ID:        entry.ID.String(),
		Status:    string(status),
		MessageID: messageID,
	})
}
