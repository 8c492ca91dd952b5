package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/identity"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/orders"
	"storefront/internal/payments"
	"storefront/internal/payments/mpesa"
	"storefront/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testSecret = "test-secret"
	userID     = "507f1f77bcf86cd799439011"
	orderID    = "65f1a2b3c4d5e6f708192a3b"
)

// fakeOrders implements OrderService; tests set only the funcs they need.
type fakeOrders struct {
	OrderService

	confirmOrder   func(identity.Session, orders.ConfirmRequest) (*orders.Confirmation, error)
	retryPayment   func(string, models.PaymentMethod) (*orders.Confirmation, error)
	createIntent   func(string, decimal.Decimal) (*orders.Confirmation, error)
	requestMobile  func(string, string, int64) (*orders.Confirmation, error)
	confirmCard    func(string, string, orders.PaymentSheet) (models.PaymentStatus, error)
	getOrder       func(identity.Session, string) (*models.Order, error)
	listOrders     func(identity.Session) ([]models.Order, error)
	listAll        func(identity.Session, int64, int64) ([]models.Order, int64, error)
	deleteOrder    func(identity.Session, string) error
	updateStatus   func(identity.Session, string, models.FulfillmentStatus) (*models.Order, error)
	applyOutcome   func(payments.Outcome) (bool, error)
	handleCallback func(string, mpesa.Callback) (bool, error)
}

func (f *fakeOrders) ConfirmOrder(_ context.Context, s identity.Session, req orders.ConfirmRequest) (*orders.Confirmation, error) {
	return f.confirmOrder(s, req)
}

func (f *fakeOrders) RetryPayment(_ context.Context, _ identity.Session, id string, m models.PaymentMethod) (*orders.Confirmation, error) {
	return f.retryPayment(id, m)
}

func (f *fakeOrders) CreateCardIntent(_ context.Context, _ identity.Session, id string, amount decimal.Decimal) (*orders.Confirmation, error) {
	return f.createIntent(id, amount)
}

func (f *fakeOrders) RequestMobilePayment(_ context.Context, _ identity.Session, id, phone string, amount int64) (*orders.Confirmation, error) {
	return f.requestMobile(id, phone, amount)
}

func (f *fakeOrders) ConfirmCardPayment(_ context.Context, _ identity.Session, id, secret string, sheet orders.PaymentSheet) (models.PaymentStatus, error) {
	return f.confirmCard(id, secret, sheet)
}

func (f *fakeOrders) GetOrder(_ context.Context, s identity.Session, id string) (*models.Order, error) {
	return f.getOrder(s, id)
}

func (f *fakeOrders) ListOrders(_ context.Context, s identity.Session) ([]models.Order, error) {
	return f.listOrders(s)
}

func (f *fakeOrders) ListAllOrders(_ context.Context, s identity.Session, page, limit int64) ([]models.Order, int64, error) {
	return f.listAll(s, page, limit)
}

func (f *fakeOrders) DeleteOrder(_ context.Context, s identity.Session, id string) error {
	return f.deleteOrder(s, id)
}

func (f *fakeOrders) UpdateFulfillment(_ context.Context, s identity.Session, id string, next models.FulfillmentStatus) (*models.Order, error) {
	return f.updateStatus(s, id, next)
}

func (f *fakeOrders) ApplyPaymentOutcome(_ context.Context, o payments.Outcome) (bool, error) {
	return f.applyOutcome(o)
}

func (f *fakeOrders) HandleMobileMoneyCallback(_ context.Context, ref string, cb mpesa.Callback) (bool, error) {
	return f.handleCallback(ref, cb)
}

type memoryCarts struct {
	mu    sync.Mutex
	carts map[string]*models.Cart
	err   error
}

func newMemoryCarts() *memoryCarts {
	return &memoryCarts{carts: map[string]*models.Cart{}}
}

func (m *memoryCarts) Get(_ context.Context, id string) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	cart, ok := m.carts[id]
	if !ok {
		return &models.Cart{UserID: id, Items: []models.LineItem{}}, nil
	}
	cp := *cart
	cp.Items = append([]models.LineItem(nil), cart.Items...)
	return &cp, nil
}

func (m *memoryCarts) Save(_ context.Context, cart *models.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cart
	cp.Items = append([]models.LineItem(nil), cart.Items...)
	m.carts[cart.UserID] = &cp
	return nil
}

type memoryCustomers struct {
	mu        sync.Mutex
	customers map[string]*models.Customer
	nextAddr  int
}

func newMemoryCustomers() *memoryCustomers {
	return &memoryCustomers{customers: map[string]*models.Customer{}}
}

func (m *memoryCustomers) Create(_ context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.customers {
		if existing.Email == c.Email {
			return storage.ErrDuplicate
		}
	}
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if c.Addresses == nil {
		c.Addresses = []models.Address{}
	}
	cp := *c
	m.customers[c.ID.Hex()] = &cp
	return nil
}

func (m *memoryCustomers) FindByEmail(_ context.Context, email string) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memoryCustomers) FindByID(_ context.Context, id string) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memoryCustomers) AddAddress(_ context.Context, uid string, addr models.Address) (models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[uid]
	if !ok {
		return models.Address{}, storage.ErrNotFound
	}
	m.nextAddr++
	addr.ID = "addr-" + strconv.Itoa(m.nextAddr)
	c.Addresses = append(c.Addresses, addr)
	return addr, nil
}

func (m *memoryCustomers) UpdateAddress(_ context.Context, uid string, addr models.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[uid]
	if !ok {
		return storage.ErrNotFound
	}
	for i := range c.Addresses {
		if c.Addresses[i].ID == addr.ID {
			c.Addresses[i] = addr
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memoryCustomers) DeleteAddress(_ context.Context, uid, addressID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[uid]
	if !ok {
		return storage.ErrNotFound
	}
	for i := range c.Addresses {
		if c.Addresses[i].ID == addressID {
			c.Addresses = append(c.Addresses[:i], c.Addresses[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memoryCustomers) FindAddress(_ context.Context, uid, addressID string) (models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[uid]
	if !ok {
		return models.Address{}, storage.ErrNotFound
	}
	addr, ok := c.FindAddress(addressID)
	if !ok {
		return models.Address{}, storage.ErrNotFound
	}
	return addr, nil
}

// seedCustomer stores a customer under the fixed test user id.
func (m *memoryCustomers) seedCustomer(t *testing.T, c models.Customer) {
	t.Helper()
	if c.ID.IsZero() {
		oid, err := primitive.ObjectIDFromHex(userID)
		require.NoError(t, err)
		c.ID = oid
	}
	require.NoError(t, m.Create(context.Background(), &c))
}

type fakeParser struct {
	outcome payments.Outcome
	ok      bool
	err     error
	gotSig  string
}

func (p *fakeParser) ParseWebhook(_ []byte, signature string) (payments.Outcome, bool, error) {
	p.gotSig = signature
	return p.outcome, p.ok, p.err
}

// signedVerifier accepts ?ref=<id>&sig=ok.
type signedVerifier struct{}

func (signedVerifier) VerifyQuery(q url.Values) (string, bool) {
	if q.Get("sig") != "ok" {
		return "", false
	}
	return q.Get("ref"), true
}

type env struct {
	router    *gin.Engine
	issuer    *identity.Issuer
	orders    *fakeOrders
	carts     *memoryCarts
	customers *memoryCustomers
	parser    *fakeParser
	pingErr   error
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		issuer:    identity.NewIssuer(testSecret, time.Hour),
		orders:    &fakeOrders{},
		carts:     newMemoryCarts(),
		customers: newMemoryCustomers(),
		parser:    &fakeParser{},
	}
	e.router = gin.New()
	RegisterRoutes(e.router, Deps{
		Log:       logger.Discard(),
		Issuer:    e.issuer,
		Orders:    e.orders,
		Subscribe: func(context.Context, identity.Session, string) (OrderStream, error) { return nil, orders.ErrOrderNotFound },
		Carts:     e.carts,
		Customers: e.customers,
		Webhooks:  e.parser,
		Callbacks: signedVerifier{},
		Ping:      func(context.Context) error { return e.pingErr },
	})
	return e
}

func (e *env) token(t *testing.T, role string) string {
	t.Helper()
	tok, _, err := e.issuer.Issue(identity.Session{UserID: userID, Email: "jane@example.com", Role: role})
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func sampleAddress() models.Address {
	return models.Address{ID: "addr-1", Name: "Jane", Address: "1 Moi Ave", City: "Nairobi", Country: "KE", Phone: "0712345678"}
}

func sampleItems() []models.LineItem {
	return []models.LineItem{
		{ProductID: "p1", Title: "Tea", Price: models.NewMoney(19.99), Quantity: 2},
	}
}
