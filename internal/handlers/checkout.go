package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/orders"
	"storefront/internal/storage"
)

type checkoutRequest struct {
	AddressID     string `json:"addressId"`
	PaymentMethod string `json:"paymentMethod" binding:"required"`
	Phone         string `json:"phone"`
}

// Checkout turns the caller's cart and a saved address into an order and
// starts its payment.
func Checkout(log *slog.Logger, svc OrderService, carts CartStore, customers CustomerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /checkout"
		log := log.With(slog.String("op", "handlers.Checkout"))

		var req checkoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		session := middleware.Session(c)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		cart, err := carts.Get(ctx, session.UserID)
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}

		var address *models.Address
		if id := strings.TrimSpace(req.AddressID); id != "" {
			addr, err := customers.FindAddress(ctx, session.UserID, id)
			switch {
			case errors.Is(err, storage.ErrNotFound):
			case err != nil:
				respondServiceError(c, log, route, err, nil)
				return
			default:
				address = &addr
			}
		}

		phone := strings.TrimSpace(req.Phone)
		if phone == "" && address != nil {
			phone = address.Phone
		}
		method, err := models.NewPaymentMethod(req.PaymentMethod, phone)
		if err != nil {
			respondWithError(c, log, http.StatusBadRequest, route, "invalid payment method")
			return
		}

		conf, err := svc.ConfirmOrder(ctx, session, orders.ConfirmRequest{
			Items:   cart.Items,
			Address: address,
			Method:  method,
		})
		if err != nil {
			var extra gin.H
			if conf != nil {
				extra = gin.H{"orderId": conf.OrderID}
			}
			respondServiceError(c, log, route, err, extra)
			return
		}

		c.JSON(http.StatusCreated, conf)
	}
}
