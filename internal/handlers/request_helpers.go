package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/orders"
	"storefront/internal/storage"
)

const requestTimeout = 15 * time.Second

func respondWithError(c *gin.Context, log *slog.Logger, status int, route string, message string) {
	log.WarnContext(c.Request.Context(), "returning error",
		slog.String("route", route),
		slog.Int("status", status),
		slog.String("message", message),
	)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// errorStatus maps orchestrator and storage errors to an HTTP status, the
// message shown to the client and whether the same call may be retried.
func errorStatus(err error) (int, string, bool) {
	var rejected *orders.GatewayRejectedError

	switch {
	case errors.Is(err, orders.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not authenticated", false
	case errors.Is(err, orders.ErrForbidden):
		return http.StatusForbidden, "forbidden", false
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not found", false
	case errors.Is(err, orders.ErrEmptyCart):
		return http.StatusBadRequest, "cart is empty", false
	case errors.Is(err, orders.ErrNoShippingAddress):
		return http.StatusBadRequest, "no shipping address selected", false
	case errors.Is(err, orders.ErrInvalidLineItem):
		return http.StatusBadRequest, "invalid line item", false
	case errors.Is(err, orders.ErrInvalidPaymentMethod):
		return http.StatusBadRequest, "invalid payment method", false
	case errors.Is(err, orders.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid amount", false
	case errors.Is(err, orders.ErrInvalidPhone):
		return http.StatusBadRequest, "invalid phone number", false
	case errors.Is(err, orders.ErrClientSecretMismatch):
		return http.StatusBadRequest, "client secret does not match order", false
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, "order is not in a state that allows this", false
	case errors.Is(err, storage.ErrDuplicate):
		return http.StatusConflict, "already exists", false
	case errors.As(err, &rejected):
		return http.StatusBadGateway, rejected.Reason, false
	case errors.Is(err, orders.ErrGatewayAuthFailed):
		return http.StatusBadGateway, "payment gateway authentication failed", true
	case errors.Is(err, orders.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, "payment gateway unavailable", true
	case errors.Is(err, orders.ErrOrderCreation):
		return http.StatusInternalServerError, "order could not be created", false
	default:
		return http.StatusInternalServerError, "internal error", false
	}
}

// respondServiceError writes the mapped error. extra fields, such as the id of
// an order that was created before its payment failed, are merged in.
func respondServiceError(c *gin.Context, log *slog.Logger, route string, err error, extra gin.H) {
	status, message, retryable := errorStatus(err)

	attrs := []any{
		slog.String("route", route),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), "request failed", attrs...)
	} else {
		log.WarnContext(c.Request.Context(), "request failed", attrs...)
	}

	body := gin.H{"error": message, "retryable": retryable}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
