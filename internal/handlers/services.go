package handlers

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/identity"
	"storefront/internal/models"
	"storefront/internal/orders"
	"storefront/internal/payments"
	"storefront/internal/payments/mpesa"
)

// OrderService is the part of orders.Service the HTTP layer drives.
type OrderService interface {
	ConfirmOrder(ctx context.Context, session identity.Session, req orders.ConfirmRequest) (*orders.Confirmation, error)
	RetryPayment(ctx context.Context, session identity.Session, orderID string, method models.PaymentMethod) (*orders.Confirmation, error)
	CreateCardIntent(ctx context.Context, session identity.Session, orderID string, amount decimal.Decimal) (*orders.Confirmation, error)
	RequestMobilePayment(ctx context.Context, session identity.Session, orderID, phone string, amount int64) (*orders.Confirmation, error)
	ConfirmCardPayment(ctx context.Context, session identity.Session, orderID, clientSecret string, sheet orders.PaymentSheet) (models.PaymentStatus, error)
	GetOrder(ctx context.Context, session identity.Session, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, session identity.Session) ([]models.Order, error)
	ListAllOrders(ctx context.Context, session identity.Session, page, limit int64) ([]models.Order, int64, error)
	DeleteOrder(ctx context.Context, session identity.Session, orderID string) error
	UpdateFulfillment(ctx context.Context, session identity.Session, orderID string, next models.FulfillmentStatus) (*models.Order, error)
	ApplyPaymentOutcome(ctx context.Context, outcome payments.Outcome) (bool, error)
	HandleMobileMoneyCallback(ctx context.Context, ref string, cb mpesa.Callback) (bool, error)
}

// OrderStream is a live order subscription.
type OrderStream interface {
	Updates() <-chan *models.Order
	Err() error
	Close()
}

type SubscribeFunc func(ctx context.Context, session identity.Session, orderID string) (OrderStream, error)

// SubscribeWith adapts the orchestrator's Subscribe to a SubscribeFunc.
func SubscribeWith(svc *orders.Service) SubscribeFunc {
	return func(ctx context.Context, session identity.Session, orderID string) (OrderStream, error) {
		sub, err := svc.Subscribe(ctx, session, orderID)
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
}

type CartStore interface {
	Get(ctx context.Context, userID string) (*models.Cart, error)
	Save(ctx context.Context, cart *models.Cart) error
}

type CustomerStore interface {
	Create(ctx context.Context, customer *models.Customer) error
	FindByEmail(ctx context.Context, email string) (*models.Customer, error)
	FindByID(ctx context.Context, id string) (*models.Customer, error)
	AddAddress(ctx context.Context, userID string, addr models.Address) (models.Address, error)
	UpdateAddress(ctx context.Context, userID string, addr models.Address) error
	DeleteAddress(ctx context.Context, userID, addressID string) error
	FindAddress(ctx context.Context, userID, addressID string) (models.Address, error)
}

// TokenIssuer signs session tokens for the login endpoints.
type TokenIssuer interface {
	Issue(s identity.Session) (string, time.Time, error)
}

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (payments.Outcome, bool, error)
}

type CallbackVerifier interface {
	VerifyQuery(query url.Values) (string, bool)
}
