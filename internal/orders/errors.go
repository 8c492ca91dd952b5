package orders

import (
	"errors"

	"storefront/internal/payments"
)

var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrNoShippingAddress    = errors.New("no shipping address selected")
	ErrInvalidLineItem      = errors.New("invalid line item")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrOrderCreation        = errors.New("order could not be created")
	ErrOrderNotFound        = errors.New("order not found")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidTransition    = errors.New("invalid order status transition")
	ErrOrderDeleted         = errors.New("order deleted")
	ErrClientSecretMismatch = errors.New("client secret does not belong to this order")
	ErrGatewayUnavailable   = payments.ErrGatewayUnavailable
	ErrGatewayAuthFailed    = payments.ErrGatewayAuthFailed
	ErrInvalidAmount        = payments.ErrInvalidAmount
	ErrInvalidPhone         = payments.ErrInvalidPhone
)

// GatewayRejectedError carries the gateway's own reason for refusing a
// payment request.
type GatewayRejectedError = payments.RejectedError

// IsRetryable reports whether the same payment attempt may simply be repeated
// against the existing order.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, ErrGatewayAuthFailed)
}
