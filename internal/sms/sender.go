// Package sms delivers messages through the upstream SMS gateway. The
// gateway is an opaque HTTP endpoint; its proprietary carrier handling
// stays on the other side of the wire.
package sms

import (
	"context"
	"errors"
)

// Result is the gateway's answer for a single message. Metadata carries
// the raw response fields and is persisted alongside the delivery log.
type Result struct {
	Delivered bool
	MessageID string
	Metadata  map[string]any
}

type Sender interface {
	Send(ctx context.Context, phoneNumber, message string) (*Result, error)
}

var (
	ErrInvalidConfig      = errors.New("invalid_gateway_config")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
)
