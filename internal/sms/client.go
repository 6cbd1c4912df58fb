package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shorelabs/textgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type gatewayClient struct {
	url      string
	username string
	password string
	client   *http.Client
	log      *zap.Logger
}

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

func NewGatewayClient(p Params) Sender {
	timeout := p.Cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &gatewayClient{
		url:      strings.TrimRight(strings.TrimSpace(p.Cfg.Gateway.URL), "/"),
		username: p.Cfg.Gateway.Username,
		password: p.Cfg.Gateway.Password,
		client:   &http.Client{Timeout: timeout},
		log:      p.Log.Named("sms.gateway"),
	}
}

type gatewayRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

type gatewayResponse struct {
	Success   bool           `json:"success"`
	MessageID string         `json:"message_id"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func (c *gatewayClient) Send(ctx context.Context, phoneNumber, message string) (*Result, error) {
	if c.url == "" {
		return nil, ErrInvalidConfig
	}

	payload, err := json.Marshal(gatewayRequest{
		PhoneNumber: phoneNumber,
		Message:     message,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("gateway request failed", zap.Error(err))
		return nil, ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		c.log.Warn("gateway returned server error", zap.Int("status", resp.StatusCode))
		return nil, ErrGatewayUnavailable
	}

	var body gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("gateway_response_decode: %w", err)
	}

	result := &Result{
		Delivered: resp.StatusCode < http.StatusBadRequest && body.Success,
		MessageID: body.MessageID,
		Metadata: map[string]any{
			"status_code": resp.StatusCode,
		},
	}
	if body.MessageID != "" {
		result.Metadata["message_id"] = body.MessageID
	}
	if body.Error != "" {
		result.Metadata["error"] = body.Error
	}
	for k, v := range body.Details {
		result.Metadata[k] = v
	}

	return result, nil
}

var Module = fx.Module("sms.gateway",
	fx.Provide(NewGatewayClient),
)
