package mpesa

import (
	"fmt"

	"github.com/shopspring/decimal"

	"storefront/internal/payments"
)

// DefaultConversionRate is KES per USD used when none is configured.
const DefaultConversionRate = 135

// ConvertAmount converts a USD total to whole shillings, rounding half up.
func ConvertAmount(total, rate decimal.Decimal) (int64, error) {
	if !rate.IsPositive() {
		return 0, fmt.Errorf("%w: conversion rate %s", payments.ErrInvalidAmount, rate.String())
	}
	amount := total.Mul(rate).Round(0).IntPart()
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %s converts to %d", payments.ErrInvalidAmount, total.String(), amount)
	}
	return amount, nil
}
