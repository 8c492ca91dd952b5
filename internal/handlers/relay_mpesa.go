package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/middleware"
	"storefront/internal/orders"
	"storefront/internal/payments/mpesa"
)

type stkPushRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	Phone   string `json:"phone"`
	Amount  int64  `json:"amount" binding:"required,gt=0"`
}

// stkPushResponse is the gateway's acknowledgment as received, plus ok.
type stkPushResponse struct {
	*mpesa.Ack
	OK        bool           `json:"ok"`
	OrderID   string         `json:"orderId"`
	Notice    *orders.Notice `json:"notice,omitempty"`
	Error     string         `json:"error,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// StkPush forwards a push-payment request for an order the caller owns.
// The amount is in the local currency.
func StkPush(log *slog.Logger, svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /mpesa/stkpush"

		var req stkPushRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		conf, err := svc.RequestMobilePayment(ctx, middleware.Session(c), req.OrderID, req.Phone, req.Amount)
		if err != nil {
			if conf == nil || conf.Ack == nil {
				respondServiceError(c, log, route, err, nil)
				return
			}
			status, message, retryable := errorStatus(err)
			log.WarnContext(c.Request.Context(), "push request not accepted",
				slog.String("route", route),
				slog.String("order_id", req.OrderID),
				slog.String("error", err.Error()),
			)
			c.JSON(status, stkPushResponse{
				Ack:       conf.Ack,
				OrderID:   conf.OrderID,
				Error:     message,
				Retryable: retryable,
			})
			return
		}

		c.JSON(http.StatusOK, stkPushResponse{
			Ack:     conf.Ack,
			OK:      true,
			OrderID: conf.OrderID,
			Notice:  conf.Notice,
		})
	}
}

// MpesaCallback receives the asynchronous STK result. The order comes from
// the signed callback URL; an unsigned or forged callback changes nothing.
func MpesaCallback(log *slog.Logger, verifier CallbackVerifier, svc OrderService) gin.HandlerFunc {
	log = log.With(slog.String("op", "handlers.MpesaCallback"))

	return func(c *gin.Context) {
		ref, ok := verifier.VerifyQuery(c.Request.URL.Query())
		if !ok {
			log.WarnContext(c.Request.Context(), "callback signature mismatch", slog.String("remote_addr", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ResultCode": 1, "ResultDesc": "Rejected"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ResultCode": 1, "ResultDesc": "Invalid body"})
			return
		}
		cb, err := mpesa.ParseCallback(body)
		if err != nil {
			log.WarnContext(c.Request.Context(), "callback rejected", slog.String("order_id", ref), slog.String("error", err.Error()))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ResultCode": 1, "ResultDesc": "Invalid payload"})
			return
		}

		applied, err := svc.HandleMobileMoneyCallback(c.Request.Context(), ref, cb)
		switch {
		case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, orders.ErrInvalidPaymentMethod):
			log.WarnContext(c.Request.Context(), "callback for unusable order", slog.String("order_id", ref), slog.String("error", err.Error()))
		case err != nil:
			log.ErrorContext(c.Request.Context(), "callback apply failed", slog.String("order_id", ref), slog.String("error", err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ResultCode": 1, "ResultDesc": "Temporary failure"})
			return
		default:
			log.InfoContext(c.Request.Context(), "callback accepted", slog.String("order_id", ref), slog.Bool("applied", applied))
		}

		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
	}
}
