package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
)

func TestCart(t *testing.T) {
	e := newEnv(t)
	token := e.token(t, models.RoleCustomer)

	w := e.do(t, http.MethodGet, "/cart", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"total":0}`, w.Body.String())

	w = e.do(t, http.MethodPost, "/cart/items", token, `{"productId":"p1","title":"Tea","price":19.99,"quantity":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, http.MethodPost, "/cart/items", token, `{"productId":"p2","title":"Sugar","price":5.01}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 44.99, decode(t, w)["total"])

	w = e.do(t, http.MethodPatch, "/cart/items/p1", token, gin.H{"delta": -1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 25.0, decode(t, w)["total"])

	w = e.do(t, http.MethodPatch, "/cart/items/p2", token, gin.H{"quantity": 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 35.02, decode(t, w)["total"])

	w = e.do(t, http.MethodPatch, "/cart/items/p2", token, gin.H{"quantity": 3, "delta": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPatch, "/cart/items/nope", token, gin.H{"delta": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/cart/items/p1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "p2", items[0].(map[string]any)["productId"])

	w = e.do(t, http.MethodPost, "/cart/items", token, `{"productId":"p3","title":"Bad","price":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCart_StoreFailure(t *testing.T) {
	e := newEnv(t)
	e.carts.err = errors.New("mongo down")

	w := e.do(t, http.MethodGet, "/cart", e.token(t, models.RoleCustomer), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
