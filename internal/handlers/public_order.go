package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/orders"
)

type retryPaymentRequest struct {
	PaymentMethod string `json:"paymentMethod"`
	Phone         string `json:"phone"`
}

type cardResultRequest struct {
	ClientSecret string `json:"clientSecret" binding:"required"`
	Outcome      string `json:"outcome" binding:"required"`
	Message      string `json:"message"`
}

func GetOrders(log *slog.Logger, svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders"

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		list, err := svc.ListOrders(ctx, middleware.Session(c))
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		if list == nil {
			list = []models.Order{}
		}
		c.JSON(http.StatusOK, gin.H{"orders": list})
	}
}

func GetOrder(log *slog.Logger, svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id"

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		order, err := svc.GetOrder(ctx, middleware.Session(c), c.Param("id"))
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// DeleteOrder serves both the owner's and the admin's delete route; the
// orchestrator decides who may delete.
func DeleteOrder(log *slog.Logger, svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /orders/:id"

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		if err := svc.DeleteOrder(ctx, middleware.Session(c), c.Param("id")); err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
	}
}

// RetryPayment starts another payment attempt for an unpaid order. An empty
// body reuses the order's payment method.
func RetryPayment(log *slog.Logger, svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders/:id/pay"

		var req retryPaymentRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondValidationError(c, err)
				return
			}
		}

		var method models.PaymentMethod
		if strings.TrimSpace(req.PaymentMethod) != "" {
			m, err := models.NewPaymentMethod(req.PaymentMethod, req.Phone)
			if err != nil {
				respondWithError(c, log, http.StatusBadRequest, route, "invalid payment method")
				return
			}
			method = m
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		conf, err := svc.RetryPayment(ctx, middleware.Session(c), c.Param("id"), method)
		if err != nil {
			respondServiceError(c, log, route, err, gin.H{"orderId": c.Param("id")})
			return
		}
		c.JSON(http.StatusOK, conf)
	}
}

// ReportCardResult takes the outcome of the card sheet the device presented
// and records the order's terminal payment status.
func ReportCardResult(log *slog.Logger, svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders/:id/card-result"

		var req cardResultRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		status, err := orders.ParseSheetStatus(req.Outcome)
		if err != nil {
			respondWithError(c, log, http.StatusBadRequest, route, "invalid outcome")
			return
		}

		sheet := orders.ReportedSheet{Status: status, Message: req.Message}
		paymentStatus, err := svc.ConfirmCardPayment(c.Request.Context(), middleware.Session(c), c.Param("id"), req.ClientSecret, sheet)
		if err != nil {
			extra := gin.H{"orderId": c.Param("id")}
			if paymentStatus != "" {
				extra["paymentStatus"] = paymentStatus
			}
			respondServiceError(c, log, route, err, extra)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orderId": c.Param("id"), "paymentStatus": paymentStatus})
	}
}
