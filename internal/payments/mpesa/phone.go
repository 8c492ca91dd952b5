package mpesa

import (
	"fmt"
	"strings"

	"storefront/internal/payments"
)

const DefaultCountryCode = "254"

// NormalizePhone turns a local 0XXXXXXXXX number into the international
// form Daraja expects. International numbers pass through unchanged.
func NormalizePhone(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	phone := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
	phone = strings.TrimPrefix(phone, "+")

	if phone == "" || strings.Trim(phone, "0123456789") != "" {
		return "", fmt.Errorf("%w: %q", payments.ErrInvalidPhone, raw)
	}

	switch {
	case len(phone) == 10 && strings.HasPrefix(phone, "0"):
		return countryCode + phone[1:], nil
	case len(phone) == len(countryCode)+9 && strings.HasPrefix(phone, countryCode):
		return phone, nil
	default:
		return "", fmt.Errorf("%w: %q", payments.ErrInvalidPhone, raw)
	}
}
