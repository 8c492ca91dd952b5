package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrMalformedOrder = errors.New("malformed order document")

// PaymentStatus is written only by the payment paths.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PendingPayment"
	PaymentCompleted PaymentStatus = "Completed"
	PaymentFailed    PaymentStatus = "PaymentFailed"
)

// FulfillmentStatus is written only by the administrative path and only once
// the payment is Completed.
type FulfillmentStatus string

const (
	FulfillmentNone       FulfillmentStatus = ""
	FulfillmentProcessing FulfillmentStatus = "Processing"
	FulfillmentShipped    FulfillmentStatus = "Shipped"
	FulfillmentDelivered  FulfillmentStatus = "Delivered"
)

// Next returns the step that follows s, or "" when s is the last one.
func (s FulfillmentStatus) Next() FulfillmentStatus {
	switch s {
	case FulfillmentNone:
		return FulfillmentProcessing
	case FulfillmentProcessing:
		return FulfillmentShipped
	case FulfillmentShipped:
		return FulfillmentDelivered
	default:
		return FulfillmentNone
	}
}

func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	switch s := FulfillmentStatus(value); s {
	case FulfillmentProcessing, FulfillmentShipped, FulfillmentDelivered:
		return s, nil
	default:
		return FulfillmentNone, fmt.Errorf("unknown fulfillment status %q", value)
	}
}

// LineItem is a cart entry; inside an order it is an immutable snapshot.
type LineItem struct {
	ProductID string `bson:"productId" json:"productId" binding:"required" validate:"required"`
	Title     string `bson:"title" json:"title"`
	Price     Money  `bson:"price" json:"price"`
	Quantity  int    `bson:"quantity" json:"quantity" binding:"required,gte=1" validate:"gte=1"`
	ImageURL  string `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
}

func (i LineItem) Subtotal() decimal.Decimal {
	return i.Price.Decimal.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total sums price × quantity over items exactly as given.
func Total(items []LineItem) Money {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Subtotal())
	}
	return Money{sum}
}

// PaymentRecord keeps the gateway correlation for the active attempt.
type PaymentRecord struct {
	IntentID          string `bson:"intentId,omitempty" json:"intentId,omitempty"`
	CheckoutRequestID string `bson:"checkoutRequestId,omitempty" json:"checkoutRequestId,omitempty"`
	MerchantRequestID string `bson:"merchantRequestId,omitempty" json:"merchantRequestId,omitempty"`
	Receipt           string `bson:"receipt,omitempty" json:"receipt,omitempty"`
	FailureReason     string `bson:"failureReason,omitempty" json:"failureReason,omitempty"`
	Attempts          int    `bson:"attempts" json:"attempts"`
}

// Order defines the persisted order document.
type Order struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID               string             `bson:"userId" json:"userId" validate:"required"`
	Items                []LineItem         `bson:"items" json:"items" validate:"required,min=1,dive"`
	ShippingAddress      Address            `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod        PaymentKind        `bson:"paymentMethod" json:"paymentMethod" validate:"oneof=card mobile-money"`
	Total                Money              `bson:"total" json:"total"`
	PaymentStatus        PaymentStatus      `bson:"paymentStatus" json:"paymentStatus" validate:"oneof=PendingPayment Completed PaymentFailed"`
	FulfillmentStatus    FulfillmentStatus  `bson:"fulfillmentStatus,omitempty" json:"fulfillmentStatus,omitempty" validate:"omitempty,oneof=Processing Shipped Delivered"`
	Payment              PaymentRecord      `bson:"payment" json:"payment"`
	CreatedAt            time.Time          `bson:"createdAt" json:"createdAt"`
	PaymentCompletedAt   *time.Time         `bson:"paymentCompletedAt,omitempty" json:"paymentCompletedAt,omitempty"`
	FulfillmentUpdatedAt *time.Time         `bson:"fulfillmentUpdatedAt,omitempty" json:"fulfillmentUpdatedAt,omitempty"`
}

// Status is what the tracking screens show: the fulfillment step once one
// exists, the payment status before that.
func (o Order) Status() string {
	if o.FulfillmentStatus != FulfillmentNone {
		return string(o.FulfillmentStatus)
	}
	return string(o.PaymentStatus)
}

func (o Order) HexID() string {
	return o.ID.Hex()
}

func (o Order) MarshalJSON() ([]byte, error) {
	type orderJSON Order
	return json.Marshal(struct {
		orderJSON
		Status string `json:"status"`
	}{orderJSON(o), o.Status()})
}

// Validate rejects documents that would otherwise flow through with zero
// values: missing items, negative prices, unknown statuses.
func (o *Order) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOrder, err)
	}
	for _, item := range o.Items {
		if item.Price.IsNegative() {
			return fmt.Errorf("%w: negative price for product %s", ErrMalformedOrder, item.ProductID)
		}
	}
	if o.Total.IsNegative() {
		return fmt.Errorf("%w: negative total", ErrMalformedOrder)
	}
	return nil
}

// PaymentDispatch records the correlation ids a gateway handed back for one attempt.
type PaymentDispatch struct {
	IntentID          string
	CheckoutRequestID string
	MerchantRequestID string
}

// PaymentSettlement is the terminal payment write applied by a callback,
// webhook or hosted sheet outcome.
type PaymentSettlement struct {
	Status        PaymentStatus
	At            time.Time
	Reference     string
	FailureReason string
}

// OrderChange is one event on a live order subscription.
type OrderChange struct {
	Order   *Order
	Deleted bool
	Err     error
}
