package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/middleware"
	"storefront/internal/models"
)

type addressRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address" binding:"required"`
	City    string `json:"city" binding:"required"`
	Country string `json:"country" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
}

func (r addressRequest) toAddress() models.Address {
	return models.Address{
		Name:    strings.TrimSpace(r.Name),
		Address: strings.TrimSpace(r.Address),
		City:    strings.TrimSpace(r.City),
		Country: strings.TrimSpace(r.Country),
		Phone:   strings.TrimSpace(r.Phone),
	}
}

func GetMe(log *slog.Logger, customers CustomerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /auth/me"

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		customer, err := customers.FindByID(ctx, middleware.Session(c).UserID)
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":        customer.ID.Hex(),
			"email":     customer.Email,
			"name":      customer.Name,
			"phone":     customer.Phone,
			"role":      customer.Role,
			"addresses": customer.Addresses,
			"createdAt": customer.CreatedAt,
			"updatedAt": customer.UpdatedAt,
		})
	}
}

func GetUserAddresses(log *slog.Logger, customers CustomerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /user/addresses"

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		customer, err := customers.FindByID(ctx, middleware.Session(c).UserID)
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"addresses": customer.Addresses})
	}
}

func CreateUserAddress(log *slog.Logger, customers CustomerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /user/addresses"

		var req addressRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		address, err := customers.AddAddress(ctx, middleware.Session(c).UserID, req.toAddress())
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}

		log.InfoContext(c.Request.Context(), "address created", slog.String("address_id", address.ID))
		c.JSON(http.StatusCreated, gin.H{"address": address})
	}
}

func UpdateUserAddress(log *slog.Logger, customers CustomerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /user/addresses/:id"

		var req addressRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		addressID := strings.TrimSpace(c.Param("id"))
		if addressID == "" {
			respondWithError(c, log, http.StatusBadRequest, route, "invalid address id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		address := req.toAddress()
		address.ID = addressID
		if err := customers.UpdateAddress(ctx, middleware.Session(c).UserID, address); err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"address": address})
	}
}

func DeleteUserAddress(log *slog.Logger, customers CustomerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /user/addresses/:id"

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		if err := customers.DeleteAddress(ctx, middleware.Session(c).UserID, c.Param("id")); err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "address deleted"})
	}
}
