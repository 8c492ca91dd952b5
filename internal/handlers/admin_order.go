package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/middleware"
	"storefront/internal/models"
)

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func AdminListOrders(log *slog.Logger, svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders"

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, log, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		list, total, err := svc.ListAllOrders(ctx, middleware.Session(c), page, limit)
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		if list == nil {
			list = []models.Order{}
		}

		c.JSON(http.StatusOK, gin.H{
			"orders": list,
			"page":   page,
			"limit":  limit,
			"total":  total,
		})
	}
}

// AdminUpdateOrderStatus moves a paid order to its next fulfillment step.
func AdminUpdateOrderStatus(log *slog.Logger, svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /admin/api/orders/:id/status"

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		next, err := models.ParseFulfillmentStatus(req.Status)
		if err != nil {
			respondWithError(c, log, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		order, err := svc.UpdateFulfillment(ctx, middleware.Session(c), c.Param("id"), next)
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}
