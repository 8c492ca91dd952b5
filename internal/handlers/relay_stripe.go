package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"storefront/internal/middleware"
	"storefront/internal/orders"
	"storefront/internal/payments"
)

const maxWebhookBody = 64 << 10

type createIntentRequest struct {
	OrderID string          `json:"orderId" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

// CreateCardIntent exchanges an order id and its amount, in major units, for
// a card client secret.
func CreateCardIntent(log *slog.Logger, svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /stripe/create-intent"

		var req createIntentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		conf, err := svc.CreateCardIntent(ctx, middleware.Session(c), req.OrderID, req.Amount)
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"clientSecret": conf.ClientSecret})
	}
}

// StripeWebhook applies signed payment_intent events. Unknown orders are
// acknowledged so the gateway stops redelivering them.
func StripeWebhook(log *slog.Logger, parser WebhookParser, svc OrderService) gin.HandlerFunc {
	log = log.With(slog.String("op", "handlers.StripeWebhook"))

	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}

		outcome, ok, err := parser.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			log.WarnContext(c.Request.Context(), "webhook rejected", slog.String("error", err.Error()))
			status := http.StatusBadRequest
			if errors.Is(err, payments.ErrInvalidSignature) {
				status = http.StatusUnauthorized
			}
			c.AbortWithStatusJSON(status, gin.H{"error": "invalid webhook"})
			return
		}
		if !ok {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		applied, err := svc.ApplyPaymentOutcome(c.Request.Context(), outcome)
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			log.WarnContext(c.Request.Context(), "webhook for unknown order", slog.String("order_id", outcome.OrderID))
		case err != nil:
			log.ErrorContext(c.Request.Context(), "webhook apply failed", slog.String("error", err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"received": true, "applied": applied})
	}
}
