package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateRechargeCode OutboxAggregateType = "recharge_code"
	AggregatePurchase     OutboxAggregateType = "purchase"
	AggregatePlan         OutboxAggregateType = "plan"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRechargeCode,
	AggregatePurchase,
	AggregatePlan,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventRechargeCodesImported       OutboxEventType = "recharge_codes_imported"
	EventRechargeCodeSold            OutboxEventType = "recharge_code_sold"
	EventPurchaseCodeDeliveryPending OutboxEventType = "purchase_code_delivery_pending"
	EventPurchaseCodeAssigned        OutboxEventType = "purchase_code_assigned"
	EventPurchasePaymentRejected     OutboxEventType = "purchase_payment_rejected"
	EventPurchaseReminderSent        OutboxEventType = "purchase_reminder_sent"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRechargeCodesImported,
	EventRechargeCodeSold,
	EventPurchaseCodeDeliveryPending,
	EventPurchaseCodeAssigned,
	EventPurchasePaymentRejected,
	EventPurchaseReminderSent,
}

// IsValid reports whether the value matches the canonical event_type enum.
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
