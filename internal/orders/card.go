package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"storefront/internal/identity"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/payments"
)

// SheetStatus is how the hosted card sheet was left by the user.
type SheetStatus string

const (
	SheetCompleted SheetStatus = "completed"
	SheetCanceled  SheetStatus = "canceled"
	SheetFailed    SheetStatus = "failed"
	SheetError     SheetStatus = "error"
)

func ParseSheetStatus(value string) (SheetStatus, error) {
	switch s := SheetStatus(strings.ToLower(strings.TrimSpace(value))); s {
	case SheetCompleted, SheetCanceled, SheetFailed, SheetError:
		return s, nil
	case "cancelled":
		return SheetCanceled, nil
	default:
		return "", fmt.Errorf("unknown payment sheet outcome %q", value)
	}
}

type SheetResult struct {
	Status  SheetStatus
	Message string
}

// PaymentSheet presents the hosted card UI for a client secret and blocks
// until the user leaves it.
type PaymentSheet interface {
	Present(ctx context.Context, clientSecret string) (SheetResult, error)
}

// ReportedSheet is a sheet the device already presented; it replays the
// result the device reported.
type ReportedSheet SheetResult

func (r ReportedSheet) Present(_ context.Context, _ string) (SheetResult, error) {
	switch r.Status {
	case SheetCompleted, SheetCanceled, SheetFailed:
		return SheetResult(r), nil
	case SheetError:
		msg := r.Message
		if msg == "" {
			msg = "payment sheet error"
		}
		return SheetResult{}, errors.New(msg)
	default:
		return SheetResult{}, fmt.Errorf("unknown payment sheet outcome %q", r.Status)
	}
}

// ConfirmCardPayment presents the card sheet for the order's intent and
// writes the terminal payment status it ends with. The write is not tied to
// ctx, so it still lands when the caller goes away mid-sheet.
func (s *Service) ConfirmCardPayment(ctx context.Context, session identity.Session, orderID, clientSecret string, sheet PaymentSheet) (models.PaymentStatus, error) {
	const op = "orders.Service.ConfirmCardPayment"
	log := s.log.With(slog.String("op", op), slog.String("order_id", orderID))

	order, err := s.authorizedOrder(ctx, session, orderID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if order.PaymentMethod != models.PaymentKindCard {
		return order.PaymentStatus, fmt.Errorf("%s: %w: order is paid by %s", op, ErrInvalidPaymentMethod, order.PaymentMethod)
	}
	if order.PaymentStatus != models.PaymentPending {
		return order.PaymentStatus, fmt.Errorf("%s: %w: payment is %s", op, ErrInvalidTransition, order.PaymentStatus)
	}
	if order.Payment.IntentID == "" || !strings.HasPrefix(clientSecret, order.Payment.IntentID+"_secret_") {
		return order.PaymentStatus, fmt.Errorf("%s: %w", op, ErrClientSecretMismatch)
	}

	result, sheetErr := presentSheet(ctx, sheet, clientSecret)

	outcome := payments.Outcome{OrderID: orderID, At: s.clock().UTC()}
	switch {
	case sheetErr != nil:
		outcome.Reason = sheetErr.Error()
	case result.Status == SheetCompleted:
		outcome.Success = true
		outcome.Reference = order.Payment.IntentID
	case result.Status == SheetCanceled:
		outcome.Reason = "canceled by user"
	default:
		outcome.Reason = result.Message
		if outcome.Reason == "" {
			outcome.Reason = "card declined"
		}
	}

	writeCtx := context.WithoutCancel(ctx)
	applied, err := s.settle(writeCtx, order, outcome)
	if err != nil {
		log.ErrorContext(writeCtx, "card outcome write failed", logger.Err(err))
		return order.PaymentStatus, fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		current, err := s.store.Get(writeCtx, orderID)
		if err == nil {
			order = current
		}
		log.InfoContext(writeCtx, "card outcome already settled", slog.String("payment_status", string(order.PaymentStatus)))
	}

	if sheetErr != nil {
		log.WarnContext(writeCtx, "payment sheet error", logger.Err(sheetErr))
		return order.PaymentStatus, fmt.Errorf("%s: %w: %v", op, ErrGatewayUnavailable, sheetErr)
	}
	return order.PaymentStatus, nil
}

// presentSheet turns a panicking sheet into an error so the outcome is
// still written.
func presentSheet(ctx context.Context, sheet PaymentSheet, clientSecret string) (result SheetResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("payment sheet panic: %v", r)
		}
	}()
	if sheet == nil {
		return SheetResult{}, errors.New("no payment sheet")
	}
	return sheet.Present(ctx, clientSecret)
}
