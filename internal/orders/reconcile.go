package orders

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"storefront/internal/events"
	"storefront/internal/identity"
	"storefront/internal/models"
	"storefront/internal/payments"
	"storefront/internal/payments/mpesa"
)

// ApplyPaymentOutcome settles an order from a gateway report. Redeliveries
// for an order that is already settled change nothing and report false.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, outcome payments.Outcome) (bool, error) {
	const op = "orders.Service.ApplyPaymentOutcome"
	log := s.log.With(
		slog.String("op", op),
		slog.String("order_id", outcome.OrderID),
		slog.String("reference", outcome.Reference),
	)

	order, err := s.store.Get(ctx, outcome.OrderID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, mapStoreError(err))
	}
	if order.PaymentMethod == models.PaymentKindCard && supersededAttempt(ctx, log, order.Payment.IntentID, outcome.Reference, outcome.Success) {
		return false, nil
	}
	if outcome.At.IsZero() {
		outcome.At = s.clock().UTC()
	}
	applied, err := s.settle(ctx, order, outcome)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return applied, nil
}

// HandleMobileMoneyCallback applies an STK callback to the order named by
// the verified callback reference.
func (s *Service) HandleMobileMoneyCallback(ctx context.Context, ref string, cb mpesa.Callback) (bool, error) {
	const op = "orders.Service.HandleMobileMoneyCallback"
	log := s.log.With(
		slog.String("op", op),
		slog.String("order_id", ref),
		slog.String("checkout_request_id", cb.CheckoutRequestID),
	)

	order, err := s.store.Get(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, mapStoreError(err))
	}
	if order.PaymentMethod != models.PaymentKindMobileMoney {
		return false, fmt.Errorf("%s: %w: order is paid by %s", op, ErrInvalidPaymentMethod, order.PaymentMethod)
	}

	if supersededAttempt(ctx, log, order.Payment.CheckoutRequestID, cb.CheckoutRequestID, cb.Succeeded()) {
		return false, nil
	}

	if paid, ok := cb.Amount(); ok && cb.Succeeded() {
		if expected, err := s.LocalAmount(order.Total); err == nil && !paid.Equal(decimal.NewFromInt(expected)) {
			log.WarnContext(ctx, "callback amount differs from order",
				slog.String("paid", paid.String()),
				slog.Int64("expected", expected),
			)
		}
	}

	applied, err := s.settle(ctx, order, cb.Outcome(ref, s.clock().UTC()))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	log.InfoContext(ctx, "callback processed",
		slog.Bool("applied", applied),
		slog.String("result_code", cb.ResultCode.String()),
	)
	return applied, nil
}

// supersededAttempt reports whether a gateway result for attempt must be
// dropped because the order has moved on to current. A failure for a replaced
// attempt must not fail the newer one. A success is money received and is
// always applied.
func supersededAttempt(ctx context.Context, log *slog.Logger, current, attempt string, success bool) bool {
	if current == "" || attempt == "" || current == attempt {
		return false
	}
	if !success {
		log.InfoContext(ctx, "ignoring failure for superseded attempt", slog.String("current", current), slog.String("attempt", attempt))
		return true
	}
	log.WarnContext(ctx, "success for superseded attempt", slog.String("current", current), slog.String("attempt", attempt))
	return false
}

// settle writes a terminal payment status and, when it was this call that
// wrote it, updates order in place and publishes the payment event.
func (s *Service) settle(ctx context.Context, order *models.Order, outcome payments.Outcome) (bool, error) {
	settlement := models.PaymentSettlement{
		Status:        models.PaymentFailed,
		At:            outcome.At,
		Reference:     outcome.Reference,
		FailureReason: outcome.Reason,
	}
	pattern := events.PaymentFailed
	if outcome.Success {
		settlement.Status = models.PaymentCompleted
		settlement.FailureReason = ""
		pattern = events.PaymentCompleted
	}

	applied, err := s.store.SettlePayment(ctx, order.HexID(), settlement)
	if err != nil {
		return false, mapStoreError(err)
	}
	if !applied {
		s.log.InfoContext(ctx, "payment already settled",
			slog.String("order_id", order.HexID()),
			slog.String("payment_status", string(order.PaymentStatus)),
		)
		return false, nil
	}

	order.PaymentStatus = settlement.Status
	if outcome.Success {
		at := outcome.At
		order.PaymentCompletedAt = &at
		order.Payment.Receipt = outcome.Reference
		order.Payment.FailureReason = ""
	} else {
		order.Payment.FailureReason = outcome.Reason
	}

	s.log.InfoContext(ctx, "payment settled",
		slog.String("order_id", order.HexID()),
		slog.String("payment_status", string(settlement.Status)),
	)
	event := events.NewOrderEvent(order)
	event.Reference = outcome.Reference
	event.Reason = outcome.Reason
	s.publish(ctx, pattern, event)
	return true, nil
}

// UpdateFulfillment moves a paid order one fulfillment step forward.
// Asking for the step the order is already at is a no-op.
func (s *Service) UpdateFulfillment(ctx context.Context, session identity.Session, orderID string, next models.FulfillmentStatus) (*models.Order, error) {
	const op = "orders.Service.UpdateFulfillment"
	log := s.log.With(slog.String("op", op), slog.String("order_id", orderID))

	if err := requireAdmin(session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapStoreError(err))
	}
	if order.PaymentStatus != models.PaymentCompleted {
		return nil, fmt.Errorf("%s: %w: payment is %s", op, ErrInvalidTransition, order.PaymentStatus)
	}
	if order.FulfillmentStatus == next {
		return order, nil
	}
	if order.FulfillmentStatus.Next() != next {
		return nil, fmt.Errorf("%s: %w: %q to %q", op, ErrInvalidTransition, order.FulfillmentStatus, next)
	}

	at := s.clock().UTC()
	applied, err := s.store.AdvanceFulfillment(ctx, orderID, order.FulfillmentStatus, next, at)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapStoreError(err))
	}
	if !applied {
		current, err := s.store.Get(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, mapStoreError(err))
		}
		if current.FulfillmentStatus == next {
			return current, nil
		}
		return nil, fmt.Errorf("%s: %w: order moved to %q", op, ErrInvalidTransition, current.FulfillmentStatus)
	}

	order.FulfillmentStatus = next
	order.FulfillmentUpdatedAt = &at

	log.InfoContext(ctx, "fulfillment updated", slog.String("status", string(next)), slog.String("by", session.UserID))
	s.publish(ctx, events.OrderFulfillment, events.NewOrderEvent(order))
	return order, nil
}
