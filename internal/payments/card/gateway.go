// Package card talks to Stripe: it creates PaymentIntents for the hosted
// payment sheet and turns signed webhook deliveries into payment outcomes.
package card

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"

	"storefront/internal/payments"
)

const (
	DefaultCurrency = "usd"
	metadataOrderID = "orderId"
)

// IntentAPI is the slice of the Stripe client the gateway uses.
type IntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// Intent is what the hosted payment sheet needs to collect the card.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
}

type Gateway struct {
	log           *slog.Logger
	intents       IntentAPI
	currency      string
	webhookSecret string
}

func New(log *slog.Logger, cfg Config) *Gateway {
	api := paymentintent.Client{
		B:   stripe.GetBackend(stripe.APIBackend),
		Key: cfg.SecretKey,
	}
	return NewWithAPI(log, api, cfg)
}

func NewWithAPI(log *slog.Logger, api IntentAPI, cfg Config) *Gateway {
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Gateway{
		log:           log,
		intents:       api,
		currency:      currency,
		webhookSecret: cfg.WebhookSecret,
	}
}

// ToMinorUnits converts a major-unit amount to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// CreateIntent opens a PaymentIntent for orderID tagged with the order id.
func (g *Gateway) CreateIntent(ctx context.Context, orderID string, amount decimal.Decimal) (Intent, error) {
	const op = "card.Gateway.CreateIntent"
	log := g.log.With(slog.String("op", op), slog.String("order_id", orderID))

	minor := ToMinorUnits(amount)
	if !amount.IsPositive() || minor <= 0 {
		return Intent{}, fmt.Errorf("%s: %w: %s", op, payments.ErrInvalidAmount, amount.String())
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minor),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataOrderID, orderID)

	pi, err := g.intents.New(params)
	if err != nil {
		log.ErrorContext(ctx, "create payment intent failed", slog.String("error", err.Error()))
		return Intent{}, fmt.Errorf("%s: %w", op, mapStripeError(err))
	}

	log.InfoContext(ctx, "payment intent created", slog.String("intent_id", pi.ID), slog.Int64("amount", minor))
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Amount: minor}, nil
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %v", payments.ErrGatewayUnavailable, err)
	}

	switch {
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", payments.ErrGatewayAuthFailed, stripeErr.Msg)
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.Type == stripe.ErrorTypeAPI:
		return fmt.Errorf("%w: %s", payments.ErrGatewayUnavailable, stripeErr.Msg)
	default:
		return &payments.RejectedError{Code: string(stripeErr.Code), Reason: stripeErr.Msg}
	}
}

// ParseWebhook verifies a Stripe delivery and maps PaymentIntent events to
// an outcome. The bool is false for event types that carry no outcome.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (payments.Outcome, bool, error) {
	const op = "card.Gateway.ParseWebhook"

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return payments.Outcome{}, false, fmt.Errorf("%s: %w: %v", op, payments.ErrInvalidSignature, err)
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
	default:
		return payments.Outcome{}, false, nil
	}
	if event.Data == nil {
		return payments.Outcome{}, false, fmt.Errorf("%s: event %s has no data", op, event.ID)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return payments.Outcome{}, false, fmt.Errorf("%s: decode payment intent: %w", op, err)
	}

	orderID := pi.Metadata[metadataOrderID]
	if orderID == "" {
		return payments.Outcome{}, false, fmt.Errorf("%s: payment intent %s has no %s metadata", op, pi.ID, metadataOrderID)
	}

	outcome := payments.Outcome{
		OrderID:   orderID,
		Reference: pi.ID,
		At:        time.Unix(event.Created, 0).UTC(),
	}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		outcome.Success = true
	case stripe.EventTypePaymentIntentPaymentFailed:
		outcome.Reason = "payment failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			outcome.Reason = pi.LastPaymentError.Msg
		}
	case stripe.EventTypePaymentIntentCanceled:
		outcome.Reason = "payment canceled"
		if pi.CancellationReason != "" {
			outcome.Reason = "payment canceled: " + string(pi.CancellationReason)
		}
	}
	return outcome, true, nil
}
