package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Money is a decimal amount in the store's base currency (USD).
type Money struct {
	decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{decimal.NewFromFloat(value)}
}

func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{d}
}

// ParseMoney parses a decimal string such as "12.50".
func ParseMoney(value string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Money{}, err
	}
	return Money{d}, nil
}

// MarshalBSONValue stores amounts as Decimal128 so totals never pass through
// a float on the way to disk.
func (m Money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d128, err := primitive.ParseDecimal128(m.Decimal.String())
	if err != nil {
		return 0, nil, fmt.Errorf("money %s: %w", m.Decimal.String(), err)
	}
	return bson.MarshalValue(d128)
}

// UnmarshalBSONValue accepts Decimal128 plus the numeric and string shapes
// older documents were written with. Anything else is rejected instead of
// silently decoding to zero.
func (m *Money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null:
		m.Decimal = decimal.Zero
		return nil
	case bsontype.Decimal128:
		var value primitive.Decimal128
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		parsed, err := decimal.NewFromString(value.String())
		if err != nil {
			return fmt.Errorf("cannot decode decimal128 %s into Money: %w", value.String(), err)
		}
		m.Decimal = parsed
		return nil
	case bsontype.Double:
		var value float64
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		m.Decimal = decimal.NewFromFloat(value)
		return nil
	case bsontype.Int32:
		var value int32
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		m.Decimal = decimal.NewFromInt32(value)
		return nil
	case bsontype.Int64:
		var value int64
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		m.Decimal = decimal.NewFromInt(value)
		return nil
	case bsontype.String:
		var value string
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		parsed, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("cannot decode %q into Money: %w", value, err)
		}
		m.Decimal = parsed
		return nil
	default:
		return fmt.Errorf("cannot decode %s into Money", t)
	}
}

// MarshalJSON writes a bare JSON number; the mobile client does arithmetic on it.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	return m.Decimal.UnmarshalJSON(data)
}
