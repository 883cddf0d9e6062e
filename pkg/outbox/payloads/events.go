package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
)

// RechargeCodesImportedEvent reports a pool replenishment.
type RechargeCodesImportedEvent struct {
	PlanID     uuid.UUID   `json:"plan_id"`
	CodeIDs    []uuid.UUID `json:"code_ids"`
	Duplicates int         `json:"duplicates"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// RechargeCodeSoldEvent is emitted when a code is bound to a purchase.
type RechargeCodeSoldEvent struct {
	CodeID     uuid.UUID       `json:"code_id"`
	PurchaseID uuid.UUID       `json:"purchase_id"`
	PlanID     uuid.UUID       `json:"plan_id"`
	Value      decimal.Decimal `json:"value"`
	SoldAt     time.Time       `json:"sold_at"`
}

// PurchaseCodeDeliveryPendingEvent signals a paid purchase parked for manual delivery.
type PurchaseCodeDeliveryPendingEvent struct {
	PurchaseID uuid.UUID  `json:"purchase_id"`
	PlanID     uuid.UUID  `json:"plan_id"`
	ResellerID *uuid.UUID `json:"reseller_id,omitempty"`
	Reason     string     `json:"reason"`
}

// PurchaseCodeAssignedEvent is emitted when a purchase is approved with a code.
type PurchaseCodeAssignedEvent struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	CodeID     uuid.UUID `json:"code_id"`
	PlanID     uuid.UUID `json:"plan_id"`
	ApprovedAt time.Time `json:"approved_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Manual     bool      `json:"manual"`
}

// PurchasePaymentRejectedEvent reports a failed payment for an open checkout.
type PurchasePaymentRejectedEvent struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	PlanID     uuid.UUID `json:"plan_id"`
	Reason     string    `json:"reason,omitempty"`
}

// PurchaseReminderSentEvent records a latched expiry reminder.
type PurchaseReminderSentEvent struct {
	PurchaseID uuid.UUID               `json:"purchase_id"`
	Milestone  enums.ReminderMilestone `json:"milestone"`
	MessageID  string                  `json:"message_id,omitempty"`
	SentAt     time.Time               `json:"sent_at"`
	ExpiresAt  time.Time               `json:"expires_at"`
}
