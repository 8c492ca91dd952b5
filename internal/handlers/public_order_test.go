package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/identity"
	"storefront/internal/models"
	"storefront/internal/orders"
)

func TestGetOrders(t *testing.T) {
	e := newEnv(t)
	e.orders.listOrders = func(s identity.Session) ([]models.Order, error) {
		assert.Equal(t, userID, s.UserID)
		return nil, nil
	}

	w := e.do(t, http.MethodGet, "/orders", e.token(t, models.RoleCustomer), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"orders":[]}`, w.Body.String())
}

func TestGetOrder(t *testing.T) {
	e := newEnv(t)
	e.orders.getOrder = func(_ identity.Session, id string) (*models.Order, error) {
		if id != orderID {
			return nil, orders.ErrOrderNotFound
		}
		return &models.Order{
			UserID:        userID,
			Items:         sampleItems(),
			PaymentMethod: models.PaymentKindCard,
			PaymentStatus: models.PaymentCompleted,
			Total:         models.Total(sampleItems()),
		}, nil
	}

	w := e.do(t, http.MethodGet, "/orders/"+orderID, e.token(t, models.RoleCustomer), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Completed", body["status"])
	assert.Equal(t, "card", body["paymentMethod"])

	w = e.do(t, http.MethodGet, "/orders/other", e.token(t, models.RoleCustomer), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteOrder(t *testing.T) {
	e := newEnv(t)
	var deletedBy []string
	e.orders.deleteOrder = func(s identity.Session, id string) error {
		deletedBy = append(deletedBy, s.Role)
		return nil
	}

	w := e.do(t, http.MethodDelete, "/orders/"+orderID, e.token(t, models.RoleCustomer), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodDelete, "/admin/api/orders/"+orderID, e.token(t, models.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodDelete, "/admin/api/orders/"+orderID, e.token(t, models.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, []string{models.RoleCustomer, models.RoleAdmin}, deletedBy)
}

func TestRetryPayment(t *testing.T) {
	t.Run("empty body reuses the order's method", func(t *testing.T) {
		e := newEnv(t)
		e.orders.retryPayment = func(id string, m models.PaymentMethod) (*orders.Confirmation, error) {
			assert.Nil(t, m)
			return &orders.Confirmation{OrderID: id, ClientSecret: "pi_2_secret_y"}, nil
		}

		w := e.do(t, http.MethodPost, "/orders/"+orderID+"/pay", e.token(t, models.RoleCustomer), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "pi_2_secret_y", decode(t, w)["clientSecret"])
	})

	t.Run("new phone for mobile money", func(t *testing.T) {
		e := newEnv(t)
		e.orders.retryPayment = func(id string, m models.PaymentMethod) (*orders.Confirmation, error) {
			assert.Equal(t, models.MobileMoneyPayment{Phone: "0799000111"}, m)
			return &orders.Confirmation{OrderID: id}, nil
		}

		w := e.do(t, http.MethodPost, "/orders/"+orderID+"/pay", e.token(t, models.RoleCustomer), gin.H{
			"paymentMethod": "mpesa", "phone": "0799000111",
		})
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("paid order", func(t *testing.T) {
		e := newEnv(t)
		e.orders.retryPayment = func(string, models.PaymentMethod) (*orders.Confirmation, error) {
			return nil, orders.ErrInvalidTransition
		}

		w := e.do(t, http.MethodPost, "/orders/"+orderID+"/pay", e.token(t, models.RoleCustomer), nil)
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, orderID, decode(t, w)["orderId"])
	})
}

func TestReportCardResult(t *testing.T) {
	t.Run("completed sheet", func(t *testing.T) {
		e := newEnv(t)
		e.orders.confirmCard = func(id, secret string, sheet orders.PaymentSheet) (models.PaymentStatus, error) {
			assert.Equal(t, "pi_1_secret_x", secret)
			res, err := sheet.Present(context.Background(), secret)
			require.NoError(t, err)
			assert.Equal(t, orders.SheetCompleted, res.Status)
			return models.PaymentCompleted, nil
		}

		w := e.do(t, http.MethodPost, "/orders/"+orderID+"/card-result", e.token(t, models.RoleCustomer), gin.H{
			"clientSecret": "pi_1_secret_x", "outcome": "Completed",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "Completed", decode(t, w)["paymentStatus"])
	})

	t.Run("sheet error is recorded and reported retryable", func(t *testing.T) {
		e := newEnv(t)
		e.orders.confirmCard = func(string, string, orders.PaymentSheet) (models.PaymentStatus, error) {
			return models.PaymentFailed, orders.ErrGatewayUnavailable
		}

		w := e.do(t, http.MethodPost, "/orders/"+orderID+"/card-result", e.token(t, models.RoleCustomer), gin.H{
			"clientSecret": "pi_1_secret_x", "outcome": "error", "message": "network lost",
		})
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decode(t, w)
		assert.Equal(t, "PaymentFailed", body["paymentStatus"])
		assert.Equal(t, true, body["retryable"])
	})

	t.Run("unknown outcome", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(t, http.MethodPost, "/orders/"+orderID+"/card-result", e.token(t, models.RoleCustomer), gin.H{
			"clientSecret": "pi_1_secret_x", "outcome": "maybe",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminOrders(t *testing.T) {
	t.Run("lists with pagination", func(t *testing.T) {
		e := newEnv(t)
		e.orders.listAll = func(s identity.Session, page, limit int64) ([]models.Order, int64, error) {
			assert.True(t, s.IsAdmin())
			assert.Equal(t, int64(2), page)
			assert.Equal(t, int64(5), limit)
			return []models.Order{{UserID: userID, PaymentStatus: models.PaymentPending}}, 6, nil
		}

		w := e.do(t, http.MethodGet, "/admin/api/orders?page=2&limit=5", e.token(t, models.RoleAdmin), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decode(t, w)
		assert.Equal(t, float64(6), body["total"])
		assert.Len(t, body["orders"], 1)
	})

	t.Run("rejects bad pagination", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(t, http.MethodGet, "/admin/api/orders?limit=abc", e.token(t, models.RoleAdmin), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("customers are refused", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(t, http.MethodGet, "/admin/api/orders", e.token(t, models.RoleCustomer), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("advances fulfillment", func(t *testing.T) {
		e := newEnv(t)
		e.orders.updateStatus = func(_ identity.Session, id string, next models.FulfillmentStatus) (*models.Order, error) {
			assert.Equal(t, models.FulfillmentShipped, next)
			return &models.Order{UserID: userID, PaymentStatus: models.PaymentCompleted, FulfillmentStatus: next}, nil
		}

		w := e.do(t, http.MethodPatch, "/admin/api/orders/"+orderID+"/status", e.token(t, models.RoleAdmin), gin.H{"status": "Shipped"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "Shipped", decode(t, w)["status"])
	})

	t.Run("unpaid order cannot be fulfilled", func(t *testing.T) {
		e := newEnv(t)
		e.orders.updateStatus = func(identity.Session, string, models.FulfillmentStatus) (*models.Order, error) {
			return nil, orders.ErrInvalidTransition
		}

		w := e.do(t, http.MethodPatch, "/admin/api/orders/"+orderID+"/status", e.token(t, models.RoleAdmin), gin.H{"status": "Processing"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown status", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(t, http.MethodPatch, "/admin/api/orders/"+orderID+"/status", e.token(t, models.RoleAdmin), gin.H{"status": "Lost"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
