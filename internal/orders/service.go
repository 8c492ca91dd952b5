// Package orders turns a cart into a durable order, dispatches exactly one
// payment attempt for it and reconciles gateway outcomes back onto it.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/events"
	"storefront/internal/identity"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/payments/card"
	"storefront/internal/payments/mpesa"
	"storefront/internal/storage"
)

// Store is the order persistence the service needs.
type Store interface {
	Create(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListAll(ctx context.Context, page, limit int64) ([]models.Order, int64, error)
	RecordDispatch(ctx context.Context, id string, dispatch models.PaymentDispatch) error
	ReopenPayment(ctx context.Context, id string) error
	SettlePayment(ctx context.Context, id string, settlement models.PaymentSettlement) (bool, error)
	AdvanceFulfillment(ctx context.Context, id string, from, to models.FulfillmentStatus, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	Watch(ctx context.Context, id string) (<-chan models.OrderChange, error)
}

type CardGateway interface {
	CreateIntent(ctx context.Context, orderID string, amount decimal.Decimal) (card.Intent, error)
}

type MobileMoneyGateway interface {
	RequestPush(ctx context.Context, orderID, phone string, amount int64) (mpesa.Ack, error)
}

type Config struct {
	// ConversionRate is local mobile-money currency per unit of the store currency.
	ConversionRate decimal.Decimal
	CountryCode    string
}

type Service struct {
	log    *slog.Logger
	store  Store
	card   CardGateway
	mobile MobileMoneyGateway
	events events.Publisher
	cfg    Config
	clock  func() time.Time
}

func NewService(log *slog.Logger, store Store, cardGateway CardGateway, mobile MobileMoneyGateway, publisher events.Publisher, cfg Config) *Service {
	if !cfg.ConversionRate.IsPositive() {
		cfg.ConversionRate = decimal.NewFromInt(mpesa.DefaultConversionRate)
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = mpesa.DefaultCountryCode
	}
	if publisher == nil {
		publisher = events.LogPublisher{Log: log}
	}
	return &Service{
		log:    log,
		store:  store,
		card:   cardGateway,
		mobile: mobile,
		events: publisher,
		cfg:    cfg,
		clock:  time.Now,
	}
}

// ConversionRate is the configured store-to-local currency rate.
func (s *Service) ConversionRate() decimal.Decimal {
	return s.cfg.ConversionRate
}

// LocalAmount is the mobile-money amount charged for total.
func (s *Service) LocalAmount(total models.Money) (int64, error) {
	return mpesa.ConvertAmount(total.Decimal, s.cfg.ConversionRate)
}

type ConfirmRequest struct {
	Items   []models.LineItem
	Address *models.Address
	Method  models.PaymentMethod
}

// Notice is the message shown once a push prompt is on its way to the phone.
type Notice struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Confirmation tells the caller which order was created and how to continue paying for it.
type Confirmation struct {
	OrderID           string             `json:"orderId"`
	Method            models.PaymentKind `json:"paymentMethod"`
	Total             models.Money       `json:"total"`
	ClientSecret      string             `json:"clientSecret,omitempty"`
	IntentID          string             `json:"intentId,omitempty"`
	LocalAmount       int64              `json:"localAmount,omitempty"`
	CheckoutRequestID string             `json:"checkoutRequestId,omitempty"`
	Notice            *Notice            `json:"notice,omitempty"`

	// Ack is the gateway's answer to a push request, accepted or not.
	Ack *mpesa.Ack `json:"-"`
}

// ConfirmOrder creates a PendingPayment order from the request and dispatches
// one payment attempt for it. When the order was created but the dispatch
// failed, both the confirmation and the error are returned so the caller can
// retry against the same order.
func (s *Service) ConfirmOrder(ctx context.Context, session identity.Session, req ConfirmRequest) (*Confirmation, error) {
	const op = "orders.Service.ConfirmOrder"
	log := s.log.With(slog.String("op", op), slog.String("user_id", session.UserID))

	if !session.Authenticated() {
		return nil, fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyCart)
	}
	if req.Address == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoShippingAddress)
	}
	if err := validateItems(req.Items); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.checkMethod(req.Method); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	items := make([]models.LineItem, len(req.Items))
	copy(items, req.Items)

	order := &models.Order{
		UserID:          session.UserID,
		Items:           items,
		ShippingAddress: *req.Address,
		PaymentMethod:   req.Method.Kind(),
		Total:           models.Total(items),
		PaymentStatus:   models.PaymentPending,
		Payment:         models.PaymentRecord{Attempts: 1},
		CreatedAt:       s.clock().UTC(),
	}

	if err := s.store.Create(ctx, order); err != nil {
		log.ErrorContext(ctx, "order insert failed", logger.Err(err))
		return nil, fmt.Errorf("%s: %w: %v", op, ErrOrderCreation, err)
	}

	log.InfoContext(ctx, "order created",
		slog.String("order_id", order.HexID()),
		slog.String("payment_method", string(order.PaymentMethod)),
		slog.String("total", order.Total.String()),
	)
	s.publish(ctx, events.OrderCreated, events.NewOrderEvent(order))

	return s.dispatch(ctx, order, req.Method)
}

// RetryPayment dispatches a new payment attempt for an order that is still
// PendingPayment or whose last attempt failed. A nil method reuses the
// order's rail, with the shipping phone for mobile money.
func (s *Service) RetryPayment(ctx context.Context, session identity.Session, orderID string, method models.PaymentMethod) (*Confirmation, error) {
	const op = "orders.Service.RetryPayment"
	log := s.log.With(slog.String("op", op), slog.String("order_id", orderID))

	order, err := s.authorizedOrder(ctx, session, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if method == nil {
		method, err = models.NewPaymentMethod(string(order.PaymentMethod), order.ShippingAddress.Phone)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidPaymentMethod, err)
		}
	}
	if method.Kind() != order.PaymentMethod {
		return nil, fmt.Errorf("%s: %w: order is paid by %s", op, ErrInvalidPaymentMethod, order.PaymentMethod)
	}
	if order.PaymentStatus == models.PaymentCompleted {
		return nil, fmt.Errorf("%s: %w: payment already completed", op, ErrInvalidTransition)
	}
	if err := s.checkMethod(method); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.ReopenPayment(ctx, orderID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidTransition)
		}
		return nil, fmt.Errorf("%s: %w", op, mapStoreError(err))
	}

	previous := order.PaymentStatus
	order.PaymentStatus = models.PaymentPending
	order.Payment.Attempts++
	order.Payment.FailureReason = ""

	log.InfoContext(ctx, "payment retry", slog.String("previous_status", string(previous)), slog.Int("attempt", order.Payment.Attempts))
	if previous == models.PaymentFailed {
		s.publish(ctx, events.PaymentReopened, events.NewOrderEvent(order))
	}

	return s.dispatch(ctx, order, method)
}

// CreateCardIntent is the relay's card entry point: it opens a new card
// attempt for an existing order once the caller's amount matches the total.
func (s *Service) CreateCardIntent(ctx context.Context, session identity.Session, orderID string, amount decimal.Decimal) (*Confirmation, error) {
	const op = "orders.Service.CreateCardIntent"

	order, err := s.authorizedOrder(ctx, session, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !amount.IsPositive() || !amount.Equal(order.Total.Decimal) {
		return nil, fmt.Errorf("%s: %w: %s for order total %s", op, ErrInvalidAmount, amount.String(), order.Total.String())
	}
	return s.RetryPayment(ctx, session, orderID, models.CardPayment{})
}

// RequestMobilePayment is the relay's push entry point. The amount is in
// the local currency and must equal the converted order total.
func (s *Service) RequestMobilePayment(ctx context.Context, session identity.Session, orderID, phone string, amount int64) (*Confirmation, error) {
	const op = "orders.Service.RequestMobilePayment"

	order, err := s.authorizedOrder(ctx, session, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	expected, err := s.LocalAmount(order.Total)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if amount <= 0 || amount != expected {
		return nil, fmt.Errorf("%s: %w: %d, expected %d", op, ErrInvalidAmount, amount, expected)
	}
	if strings.TrimSpace(phone) == "" {
		phone = order.ShippingAddress.Phone
	}
	return s.RetryPayment(ctx, session, orderID, models.MobileMoneyPayment{Phone: phone})
}

func (s *Service) GetOrder(ctx context.Context, session identity.Session, orderID string) (*models.Order, error) {
	const op = "orders.Service.GetOrder"

	order, err := s.authorizedOrder(ctx, session, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

// ListOrders returns the caller's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, session identity.Session) ([]models.Order, error) {
	const op = "orders.Service.ListOrders"

	if !session.Authenticated() {
		return nil, fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}
	orders, err := s.store.ListByUser(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// ListAllOrders pages over every order for the admin screens.
func (s *Service) ListAllOrders(ctx context.Context, session identity.Session, page, limit int64) ([]models.Order, int64, error) {
	const op = "orders.Service.ListAllOrders"

	if err := requireAdmin(session); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	orders, total, err := s.store.ListAll(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return orders, total, nil
}

// DeleteOrder removes an order on request of its owner or an admin.
func (s *Service) DeleteOrder(ctx context.Context, session identity.Session, orderID string) error {
	const op = "orders.Service.DeleteOrder"

	order, err := s.authorizedOrder(ctx, session, orderID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.Delete(ctx, orderID); err != nil {
		return fmt.Errorf("%s: %w", op, mapStoreError(err))
	}

	s.log.InfoContext(ctx, "order deleted",
		slog.String("op", op),
		slog.String("order_id", orderID),
		slog.String("by", session.UserID),
	)
	s.publish(ctx, events.OrderDeleted, events.NewOrderEvent(order))
	return nil
}

func (s *Service) authorizedOrder(ctx context.Context, session identity.Session, orderID string) (*models.Order, error) {
	if !session.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !session.Owns(order.UserID) {
		return nil, ErrForbidden
	}
	return order, nil
}

func requireAdmin(session identity.Session) error {
	if !session.Authenticated() {
		return ErrNotAuthenticated
	}
	if !session.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

func validateItems(items []models.LineItem) error {
	for i, item := range items {
		switch {
		case strings.TrimSpace(item.ProductID) == "":
			return fmt.Errorf("%w: item %d has no product id", ErrInvalidLineItem, i)
		case item.Quantity < 1:
			return fmt.Errorf("%w: %s quantity %d", ErrInvalidLineItem, item.ProductID, item.Quantity)
		case item.Price.IsNegative():
			return fmt.Errorf("%w: %s price %s", ErrInvalidLineItem, item.ProductID, item.Price.String())
		}
	}
	return nil
}

func mapStoreError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrOrderNotFound, err)
	}
	return err
}

// publish never fails the caller: the state write it reports has already happened.
func (s *Service) publish(ctx context.Context, pattern string, event events.OrderEvent) {
	if err := s.events.Publish(context.WithoutCancel(ctx), pattern, event); err != nil {
		s.log.WarnContext(ctx, "event publish failed",
			slog.String("pattern", pattern),
			slog.String("order_id", event.OrderID),
			logger.Err(err),
		)
	}
}
