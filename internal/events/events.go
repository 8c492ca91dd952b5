// Package events publishes order and payment notifications.
package events

import (
	"context"
	"log/slog"
	"time"

	"storefront/internal/models"
)

// Routing keys.
const (
	OrderCreated     = "order.created"
	OrderFulfillment = "order.fulfillment"
	OrderDeleted     = "order.deleted"
	PaymentRequested = "payment.requested"
	PaymentCompleted = "payment.completed"
	PaymentFailed    = "payment.failed"
	PaymentReopened  = "payment.reopened"
)

type Publisher interface {
	Publish(ctx context.Context, pattern string, data interface{}) error
}

// Message is the envelope written to the exchange.
type Message struct {
	Pattern    string      `json:"pattern"`
	Data       interface{} `json:"data"`
	ID         string      `json:"id,omitempty"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// OrderEvent is the payload of every order and payment event.
type OrderEvent struct {
	OrderID           string                   `json:"orderId"`
	UserID            string                   `json:"userId"`
	PaymentMethod     models.PaymentKind       `json:"paymentMethod"`
	Total             models.Money             `json:"total"`
	PaymentStatus     models.PaymentStatus     `json:"paymentStatus"`
	FulfillmentStatus models.FulfillmentStatus `json:"fulfillmentStatus,omitempty"`
	Reference         string                   `json:"reference,omitempty"`
	Reason            string                   `json:"reason,omitempty"`
}

func NewOrderEvent(order *models.Order) OrderEvent {
	return OrderEvent{
		OrderID:           order.HexID(),
		UserID:            order.UserID,
		PaymentMethod:     order.PaymentMethod,
		Total:             order.Total,
		PaymentStatus:     order.PaymentStatus,
		FulfillmentStatus: order.FulfillmentStatus,
	}
}

// LogPublisher only logs events. It is used when no broker is configured.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, pattern string, data interface{}) error {
	p.Log.DebugContext(ctx, "event", slog.String("pattern", pattern), slog.Any("data", data))
	return nil
}
