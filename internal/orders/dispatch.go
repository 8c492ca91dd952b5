package orders

import (
	"context"
	"fmt"
	"log/slog"

	"storefront/internal/events"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/payments/mpesa"
)

// checkMethod rejects input the gateway would refuse anyway, before any
// order is written.
func (s *Service) checkMethod(method models.PaymentMethod) error {
	if method == nil {
		return ErrInvalidPaymentMethod
	}
	return method.Accept(methodCheck{s: s})
}

type methodCheck struct {
	s *Service
}

func (c methodCheck) VisitCard(models.CardPayment) error {
	if c.s.card == nil {
		return fmt.Errorf("%w: card payments are not configured", ErrInvalidPaymentMethod)
	}
	return nil
}

func (c methodCheck) VisitMobileMoney(m models.MobileMoneyPayment) error {
	if c.s.mobile == nil {
		return fmt.Errorf("%w: mobile money is not configured", ErrInvalidPaymentMethod)
	}
	_, err := mpesa.NormalizePhone(m.Phone, c.s.cfg.CountryCode)
	return err
}

// dispatcher runs one payment attempt for an order. Each rail fills in the
// confirmation it shares with the caller.
type dispatcher struct {
	ctx   context.Context
	s     *Service
	log   *slog.Logger
	order *models.Order
	conf  *Confirmation
}

func (s *Service) dispatch(ctx context.Context, order *models.Order, method models.PaymentMethod) (*Confirmation, error) {
	d := &dispatcher{
		ctx:   ctx,
		s:     s,
		log:   s.log.With(slog.String("op", "orders.Service.dispatch"), slog.String("order_id", order.HexID())),
		order: order,
		conf: &Confirmation{
			OrderID: order.HexID(),
			Method:  order.PaymentMethod,
			Total:   order.Total,
		},
	}
	if err := method.Accept(d); err != nil {
		return d.conf, err
	}
	return d.conf, nil
}

func (d *dispatcher) VisitCard(models.CardPayment) error {
	intent, err := d.s.card.CreateIntent(d.ctx, d.conf.OrderID, d.order.Total.Decimal)
	if err != nil {
		d.log.WarnContext(d.ctx, "card intent failed", logger.Err(err))
		return fmt.Errorf("create card intent: %w", err)
	}

	d.conf.ClientSecret = intent.ClientSecret
	d.conf.IntentID = intent.ID
	d.order.Payment.IntentID = intent.ID

	d.record(models.PaymentDispatch{IntentID: intent.ID})
	d.s.publish(d.ctx, events.PaymentRequested, events.NewOrderEvent(d.order))
	return nil
}

func (d *dispatcher) VisitMobileMoney(m models.MobileMoneyPayment) error {
	phone, err := mpesa.NormalizePhone(m.Phone, d.s.cfg.CountryCode)
	if err != nil {
		return err
	}
	amount, err := d.s.LocalAmount(d.order.Total)
	if err != nil {
		return err
	}
	d.conf.LocalAmount = amount

	ack, err := d.s.mobile.RequestPush(d.ctx, d.conf.OrderID, phone, amount)
	if ack.HTTPStatus != 0 {
		d.conf.Ack = &ack
	}
	if err != nil {
		d.log.WarnContext(d.ctx, "push request failed", logger.Err(err))
		return fmt.Errorf("request push payment: %w", err)
	}
	if !ack.Accepted() {
		d.log.WarnContext(d.ctx, "push request rejected",
			slog.String("code", ack.Code()),
			slog.Int("http_status", ack.HTTPStatus),
		)
		return &GatewayRejectedError{Code: ack.Code(), Reason: ack.Reason()}
	}

	d.conf.CheckoutRequestID = ack.CheckoutRequestID
	d.conf.Notice = &Notice{
		Title:   "Payment Request Sent",
		Message: fmt.Sprintf("Check your phone (%s) to enter PIN.", phone),
	}
	d.order.Payment.CheckoutRequestID = ack.CheckoutRequestID
	d.order.Payment.MerchantRequestID = ack.MerchantRequestID

	d.record(models.PaymentDispatch{
		CheckoutRequestID: ack.CheckoutRequestID,
		MerchantRequestID: ack.MerchantRequestID,
	})
	d.s.publish(d.ctx, events.PaymentRequested, events.NewOrderEvent(d.order))
	return nil
}

// record stores the correlation ids. The gateway already holds the attempt,
// so a failed write is logged rather than surfaced: outcomes are still routed
// by order id.
func (d *dispatcher) record(dispatch models.PaymentDispatch) {
	if err := d.s.store.RecordDispatch(context.WithoutCancel(d.ctx), d.conf.OrderID, dispatch); err != nil {
		d.log.ErrorContext(d.ctx, "record dispatch failed", logger.Err(err))
	}
}
