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

type addCartItemRequest struct {
	ProductID string       `json:"productId" binding:"required"`
	Title     string       `json:"title" binding:"required"`
	Price     models.Money `json:"price"`
	ImageURL  string       `json:"imageUrl"`
	Quantity  int          `json:"quantity" binding:"omitempty,gte=1"`
}

// updateCartItemRequest carries either a relative delta or an absolute
// quantity.
type updateCartItemRequest struct {
	Delta    *int `json:"delta"`
	Quantity *int `json:"quantity"`
}

type cartResponse struct {
	Items []models.LineItem `json:"items"`
	Total models.Money      `json:"total"`
}

func newCartResponse(cart *models.Cart) cartResponse {
	return cartResponse{Items: cart.Items, Total: cart.Total()}
}

func GetCart(log *slog.Logger, carts CartStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /cart"

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		cart, err := carts.Get(ctx, middleware.Session(c).UserID)
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		c.JSON(http.StatusOK, newCartResponse(cart))
	}
}

func AddCartItem(log *slog.Logger, carts CartStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /cart/items"

		var req addCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		if req.Price.IsNegative() {
			respondWithError(c, log, http.StatusBadRequest, route, "price must not be negative")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		cart, err := carts.Get(ctx, middleware.Session(c).UserID)
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		cart.Add(models.LineItem{
			ProductID: strings.TrimSpace(req.ProductID),
			Title:     strings.TrimSpace(req.Title),
			Price:     req.Price,
			ImageURL:  strings.TrimSpace(req.ImageURL),
			Quantity:  req.Quantity,
		})
		if err := carts.Save(ctx, cart); err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		c.JSON(http.StatusOK, newCartResponse(cart))
	}
}

func UpdateCartItem(log *slog.Logger, carts CartStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /cart/items/:productId"

		var req updateCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		if (req.Delta == nil) == (req.Quantity == nil) {
			respondWithError(c, log, http.StatusBadRequest, route, "exactly one of delta or quantity is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		cart, err := carts.Get(ctx, middleware.Session(c).UserID)
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}

		productID := c.Param("productId")
		var found bool
		if req.Delta != nil {
			found = cart.Adjust(productID, *req.Delta)
		} else {
			found = cart.SetQuantity(productID, *req.Quantity)
		}
		if !found {
			respondWithError(c, log, http.StatusNotFound, route, "item not in cart")
			return
		}

		if err := carts.Save(ctx, cart); err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		c.JSON(http.StatusOK, newCartResponse(cart))
	}
}

func RemoveCartItem(log *slog.Logger, carts CartStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /cart/items/:productId"

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		cart, err := carts.Get(ctx, middleware.Session(c).UserID)
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		if !cart.Remove(c.Param("productId")) {
			respondWithError(c, log, http.StatusNotFound, route, "item not in cart")
			return
		}
		if err := carts.Save(ctx, cart); err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}
		c.JSON(http.StatusOK, newCartResponse(cart))
	}
}
