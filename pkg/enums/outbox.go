package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateSale     OutboxAggregateType = "sale"
	AggregateCustomer OutboxAggregateType = "customer"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateSale,
	AggregateCustomer,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventLoyaltyPointsDebit OutboxEventType = "loyalty_points_debit"
	EventReceiptRender      OutboxEventType = "receipt_render"
)

var validOutboxEventTypes = []OutboxEventType{
	EventLoyaltyPointsDebit,
	EventReceiptRender,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
