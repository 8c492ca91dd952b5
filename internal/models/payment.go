package models

import (
	"fmt"
	"strings"
)

// PaymentKind is the persisted tag of the payment method chosen for an order.
type PaymentKind string

const (
	PaymentKindCard        PaymentKind = "card"
	PaymentKindMobileMoney PaymentKind = "mobile-money"
)

// ParsePaymentKind also accepts the names the mobile client has always sent.
func ParsePaymentKind(value string) (PaymentKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "card", "visa":
		return PaymentKindCard, nil
	case "mobile-money", "mpesa", "m-pesa":
		return PaymentKindMobileMoney, nil
	default:
		return "", fmt.Errorf("unknown payment method %q", value)
	}
}

// PaymentMethod is a closed set of rails. Adding a rail means adding a
// method to PaymentVisitor, which every dispatcher must then implement.
type PaymentMethod interface {
	Kind() PaymentKind
	Accept(v PaymentVisitor) error
}

type PaymentVisitor interface {
	VisitCard(m CardPayment) error
	VisitMobileMoney(m MobileMoneyPayment) error
}

type CardPayment struct{}

func (CardPayment) Kind() PaymentKind { return PaymentKindCard }

func (m CardPayment) Accept(v PaymentVisitor) error { return v.VisitCard(m) }

// MobileMoneyPayment carries the payer's phone as typed by the user.
type MobileMoneyPayment struct {
	Phone string
}

func (MobileMoneyPayment) Kind() PaymentKind { return PaymentKindMobileMoney }

func (m MobileMoneyPayment) Accept(v PaymentVisitor) error { return v.VisitMobileMoney(m) }

// NewPaymentMethod builds the variant for a kind name coming off the wire.
func NewPaymentMethod(kind, phone string) (PaymentMethod, error) {
	parsed, err := ParsePaymentKind(kind)
	if err != nil {
		return nil, err
	}
	switch parsed {
	case PaymentKindCard:
		return CardPayment{}, nil
	case PaymentKindMobileMoney:
		return MobileMoneyPayment{Phone: strings.TrimSpace(phone)}, nil
	}
	return nil, fmt.Errorf("unknown payment method %q", kind)
}
