package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod is the tender used for all or part of a sale.
type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "CASH"
	PaymentMethodCard        PaymentMethod = "CARD"
	PaymentMethodMobile      PaymentMethod = "MOBILE"
	PaymentMethodStoreCredit PaymentMethod = "STORE_CREDIT"
	// PaymentMethodSplit marks a sale settled by more than one split.
	PaymentMethodSplit PaymentMethod = "SPLIT"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodCard,
	PaymentMethodMobile,
	PaymentMethodStoreCredit,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a tender a split may use.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod. Matching is case-insensitive.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validPaymentMethods {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
