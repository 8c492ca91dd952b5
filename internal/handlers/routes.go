package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"storefront/internal/identity"
	"storefront/internal/middleware"
)

// Deps is everything the routes need.
type Deps struct {
	Log       *slog.Logger
	Issuer    *identity.Issuer
	Orders    OrderService
	Subscribe SubscribeFunc
	Carts     CartStore
	Customers CustomerStore
	Webhooks  WebhookParser
	Callbacks CallbackVerifier
	Ping      PingFunc
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	log := d.Log
	userAuth := middleware.UserAuth(log, d.Issuer)

	r.GET("/healthz", Healthz(log, d.Ping))

	r.POST("/auth/register", Register(log, d.Customers))
	r.POST("/auth/login", Login(log, d.Customers, d.Issuer))
	r.GET("/auth/me", userAuth, GetMe(log, d.Customers))
	r.POST("/admin/login", AdminLogin(log, d.Customers, d.Issuer))

	// Gateway-initiated; authenticated by signature, not by session.
	if d.Webhooks != nil {
		r.POST("/stripe/webhook", StripeWebhook(log, d.Webhooks, d.Orders))
	}
	r.POST("/mpesa/callback", MpesaCallback(log, d.Callbacks, d.Orders))

	relay := r.Group("/", userAuth)
	{
		relay.POST("/stripe/create-intent", CreateCardIntent(log, d.Orders))
		relay.POST("/mpesa/stkpush", StkPush(log, d.Orders))
		relay.POST("/checkout", Checkout(log, d.Orders, d.Carts, d.Customers))
	}

	orders := r.Group("/orders", userAuth)
	{
		orders.GET("", GetOrders(log, d.Orders))
		orders.GET("/:id", GetOrder(log, d.Orders))
		orders.DELETE("/:id", DeleteOrder(log, d.Orders))
		orders.POST("/:id/pay", RetryPayment(log, d.Orders))
		orders.POST("/:id/card-result", ReportCardResult(log, d.Orders))
		orders.GET("/:id/track", TrackOrder(log, d.Subscribe))
	}

	cart := r.Group("/cart", userAuth)
	{
		cart.GET("", GetCart(log, d.Carts))
		cart.POST("/items", AddCartItem(log, d.Carts))
		cart.PATCH("/items/:productId", UpdateCartItem(log, d.Carts))
		cart.DELETE("/items/:productId", RemoveCartItem(log, d.Carts))
	}

	user := r.Group("/user", userAuth)
	{
		user.GET("/addresses", GetUserAddresses(log, d.Customers))
		user.POST("/addresses", CreateUserAddress(log, d.Customers))
		user.PUT("/addresses/:id", UpdateUserAddress(log, d.Customers))
		user.DELETE("/addresses/:id", DeleteUserAddress(log, d.Customers))
	}

	admin := r.Group("/admin/api", middleware.AdminAuth(log, d.Issuer))
	{
		admin.GET("/me", func(c *gin.Context) {
			c.JSON(200, gin.H{"ok": true})
		})
		admin.GET("/orders", AdminListOrders(log, d.Orders))
		admin.PATCH("/orders/:id/status", AdminUpdateOrderStatus(log, d.Orders))
		admin.DELETE("/orders/:id", DeleteOrder(log, d.Orders))
	}
}
