package mpesa

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"storefront/internal/payments"
)

var validate = validator.New()

type callbackEnvelope struct {
	Body struct {
		StkCallback *Callback `json:"stkCallback" validate:"required"`
	} `json:"Body"`
}

// Callback is the asynchronous STK push result.
type Callback struct {
	MerchantRequestID string           `json:"MerchantRequestID"`
	CheckoutRequestID string           `json:"CheckoutRequestID" validate:"required"`
	ResultCode        json.Number      `json:"ResultCode" validate:"required"`
	ResultDesc        string           `json:"ResultDesc"`
	Metadata          CallbackMetadata `json:"CallbackMetadata"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// ParseCallback decodes the Body.stkCallback payload.
func ParseCallback(body []byte) (Callback, error) {
	var envelope callbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Callback{}, fmt.Errorf("decode stk callback: %w", err)
	}
	if err := validate.Struct(envelope); err != nil {
		return Callback{}, fmt.Errorf("invalid stk callback: %w", err)
	}
	return *envelope.Body.StkCallback, nil
}

func (c Callback) Succeeded() bool {
	return c.ResultCode.String() == "0"
}

func (c Callback) item(name string) (json.RawMessage, bool) {
	for _, item := range c.Metadata.Item {
		if item.Name == name {
			return item.Value, len(item.Value) > 0
		}
	}
	return nil, false
}

func (c Callback) itemString(name string) string {
	raw, ok := c.item(name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func (c Callback) Receipt() string {
	return c.itemString("MpesaReceiptNumber")
}

func (c Callback) PhoneNumber() string {
	return c.itemString("PhoneNumber")
}

// Amount is the amount actually paid, present only on successful callbacks.
func (c Callback) Amount() (decimal.Decimal, bool) {
	s := c.itemString("Amount")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Outcome maps the callback onto a payment outcome for orderID.
func (c Callback) Outcome(orderID string, at time.Time) payments.Outcome {
	outcome := payments.Outcome{
		OrderID: orderID,
		Success: c.Succeeded(),
		At:      at,
	}
	if outcome.Success {
		outcome.Reference = c.Receipt()
	} else {
		outcome.Reason = c.ResultDesc
		if outcome.Reason == "" {
			outcome.Reason = "payment failed (code " + c.ResultCode.String() + ")"
		}
	}
	return outcome
}
