package enums

import (
	"fmt"
	"strings"
)

// RewardType distinguishes configured reward tiers from free-form redemptions.
type RewardType string

const (
	RewardTypePredefined RewardType = "predefined"
	RewardTypeCustom     RewardType = "custom"
)

var validRewardTypes = []RewardType{RewardTypePredefined, RewardTypeCustom}

// String implements fmt.Stringer.
func (r RewardType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RewardType.
func (r RewardType) IsValid() bool {
	for _, candidate := range validRewardTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRewardType converts raw input into a RewardType.
func ParseRewardType(value string) (RewardType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validRewardTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reward type %q", value)
}

// DebitMode controls when redeemed points leave the customer's balance.
type DebitMode string

const (
	// DebitModeDeferred debits after the sale commits.
	DebitModeDeferred DebitMode = "deferred"
	// DebitModeImmediate debits at redeem time and is not undone on abandon.
	DebitModeImmediate DebitMode = "immediate"
)

// ParseDebitMode converts raw input into a DebitMode.
func ParseDebitMode(value string) (DebitMode, error) {
	switch DebitMode(strings.ToLower(strings.TrimSpace(value))) {
	case DebitModeDeferred:
		return DebitModeDeferred, nil
	case DebitModeImmediate:
		return DebitModeImmediate, nil
	}
	return "", fmt.Errorf("invalid debit mode %q", value)
}
