// Package payments holds what the card and mobile-money adapters share.
package payments

import (
	"errors"
	"time"
)

var (
	// ErrGatewayUnavailable is retryable: the gateway could not be reached
	// or failed on its side.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayAuthFailed  = errors.New("payment gateway authentication failed")
	ErrInvalidAmount      = errors.New("invalid payment amount")
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrInvalidSignature   = errors.New("invalid gateway signature")
)

// Outcome is a terminal payment result reported by a gateway.
type Outcome struct {
	OrderID   string
	Success   bool
	Reason    string
	Reference string
	At        time.Time
}

// RejectedError is a definitive refusal from a gateway. Retrying the same
// request will not help, but a new attempt with other input may.
type RejectedError struct {
	Code   string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Code == "" {
		return "payment rejected: " + e.Reason
	}
	return "payment rejected (" + e.Code + "): " + e.Reason
}
