package orders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/identity"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/payments/card"
	"storefront/internal/payments/mpesa"
	"storefront/internal/storage"
)

var (
	customer = identity.Session{UserID: "user-1", Email: "ann@example.com", Role: models.RoleCustomer}
	stranger = identity.Session{UserID: "user-2", Role: models.RoleCustomer}
	admin    = identity.Session{UserID: "admin-1", Role: models.RoleAdmin}
	now      = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
)

// memoryStore applies the same conditional writes as the Mongo repository.
type memoryStore struct {
	mu        sync.Mutex
	orders    map[string]models.Order
	createErr error
	watchers  map[string]chan models.OrderChange
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders:   make(map[string]models.Order),
		watchers: make(map[string]chan models.OrderChange),
	}
}

func (m *memoryStore) Create(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	order.ID = primitive.NewObjectID()
	m.orders[order.HexID()] = *order
	return nil
}

func (m *memoryStore) put(order models.Order) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	m.orders[order.HexID()] = order
	return order.HexID()
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memoryStore) Get(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &order, nil
}

func (m *memoryStore) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Order
	for _, order := range m.orders {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	return out, nil
}

func (m *memoryStore) ListAll(_ context.Context, _, _ int64) ([]models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Order
	for _, order := range m.orders {
		out = append(out, order)
	}
	return out, int64(len(out)), nil
}

func (m *memoryStore) RecordDispatch(_ context.Context, id string, dispatch models.PaymentDispatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return storage.ErrNotFound
	}
	if order.PaymentStatus != models.PaymentPending {
		return storage.ErrConflict
	}
	if dispatch.IntentID != "" {
		order.Payment.IntentID = dispatch.IntentID
	}
	if dispatch.CheckoutRequestID != "" {
		order.Payment.CheckoutRequestID = dispatch.CheckoutRequestID
	}
	if dispatch.MerchantRequestID != "" {
		order.Payment.MerchantRequestID = dispatch.MerchantRequestID
	}
	m.orders[id] = order
	return nil
}

func (m *memoryStore) ReopenPayment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return storage.ErrNotFound
	}
	if order.PaymentStatus == models.PaymentCompleted {
		return storage.ErrConflict
	}
	order.PaymentStatus = models.PaymentPending
	order.Payment.FailureReason = ""
	order.Payment.Attempts++
	m.orders[id] = order
	return nil
}

func (m *memoryStore) SettlePayment(_ context.Context, id string, s models.PaymentSettlement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	switch {
	case order.PaymentStatus == models.PaymentPending:
	case order.PaymentStatus == models.PaymentFailed && s.Status == models.PaymentCompleted:
	default:
		return false, nil
	}
	order.PaymentStatus = s.Status
	if s.Status == models.PaymentCompleted {
		at := s.At
		order.PaymentCompletedAt = &at
		order.Payment.FailureReason = ""
	}
	if s.Reference != "" {
		order.Payment.Receipt = s.Reference
	}
	if s.FailureReason != "" {
		order.Payment.FailureReason = s.FailureReason
	}
	m.orders[id] = order
	return true, nil
}

func (m *memoryStore) AdvanceFulfillment(_ context.Context, id string, from, to models.FulfillmentStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok || order.PaymentStatus != models.PaymentCompleted || order.FulfillmentStatus != from {
		return false, nil
	}
	order.FulfillmentStatus = to
	order.FulfillmentUpdatedAt = &at
	m.orders[id] = order
	return true, nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *memoryStore) Watch(_ context.Context, id string) (<-chan models.OrderChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[id]; !ok {
		return nil, storage.ErrNotFound
	}
	ch := make(chan models.OrderChange, 4)
	m.watchers[id] = ch
	return ch, nil
}

func (m *memoryStore) watcher(id string) chan models.OrderChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watchers[id]
}

type fakeCard struct {
	// intentID defaults to pi_123.
	intentID string
	calls    int
	orderID  string
	amount   decimal.Decimal
	err      error
}

func (f *fakeCard) CreateIntent(_ context.Context, orderID string, amount decimal.Decimal) (card.Intent, error) {
	f.calls++
	f.orderID = orderID
	f.amount = amount
	if f.err != nil {
		return card.Intent{}, f.err
	}
	id := f.intentID
	if id == "" {
		id = "pi_123"
	}
	return card.Intent{ID: id, ClientSecret: id + "_secret_abc", Amount: card.ToMinorUnits(amount)}, nil
}

type fakeMobile struct {
	calls   int
	orderID string
	phone   string
	amount  int64
	ack     mpesa.Ack
	err     error
}

func (f *fakeMobile) RequestPush(_ context.Context, orderID, phone string, amount int64) (mpesa.Ack, error) {
	f.calls++
	f.orderID = orderID
	f.phone = phone
	f.amount = amount
	return f.ack, f.err
}

func acceptedAck(checkoutID string) mpesa.Ack {
	return mpesa.Ack{
		MerchantRequestID:   "29115-34620561-1",
		CheckoutRequestID:   checkoutID,
		ResponseCode:        []byte(`"0"`),
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
		HTTPStatus:          200,
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	patterns []string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, pattern string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patterns = append(p.patterns, pattern)
	return p.err
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.patterns...)
}

type fixture struct {
	svc    *Service
	store  *memoryStore
	card   *fakeCard
	mobile *fakeMobile
	events *recordingPublisher
}

func newFixture() *fixture {
	f := &fixture{
		store:  newMemoryStore(),
		card:   &fakeCard{},
		mobile: &fakeMobile{ack: acceptedAck("ws_CO_1")},
		events: &recordingPublisher{},
	}
	f.svc = NewService(logger.Discard(), f.store, f.card, f.mobile, f.events, Config{
		ConversionRate: decimal.NewFromInt(135),
		CountryCode:    "254",
	})
	f.svc.clock = func() time.Time { return now }
	return f
}

func sampleItems() []models.LineItem {
	return []models.LineItem{
		{ProductID: "p1", Title: "Tea", Price: mustMoney("19.99"), Quantity: 2},
		{ProductID: "p2", Title: "Honey", Price: mustMoney("5.01"), Quantity: 1},
	}
}

func sampleAddress() *models.Address {
	return &models.Address{ID: "a1", Name: "Ann", Address: "1 Road", City: "Nairobi", Country: "KE", Phone: "0712345678"}
}

func mustMoney(value string) models.Money {
	m, err := models.ParseMoney(value)
	if err != nil {
		panic(err)
	}
	return m
}

// storedOrder places an order directly, as if created earlier.
func (f *fixture) storedOrder(kind models.PaymentKind, status models.PaymentStatus) string {
	items := sampleItems()
	return f.store.put(models.Order{
		UserID:          customer.UserID,
		Items:           items,
		ShippingAddress: *sampleAddress(),
		PaymentMethod:   kind,
		Total:           models.Total(items),
		PaymentStatus:   status,
		Payment:         models.PaymentRecord{Attempts: 1},
		CreatedAt:       now.Add(-time.Hour),
	})
}

var errBoom = errors.New("boom")
