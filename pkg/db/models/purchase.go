package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
)

// CustomerData is the buyer contact snapshot captured at checkout.
type CustomerData struct {
	Name     string `json:"name" validate:"required,max=120"`
	Phone    string `json:"phone,omitempty" validate:"max=32"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Document string `json:"document,omitempty" validate:"max=32"`
}

// ReminderState is one latched expiry reminder.
type ReminderState struct {
	Sent      bool       `gorm:"column:sent;not null;default:false" json:"sent"`
	SentAt    *time.Time `gorm:"column:sent_at" json:"sentAt,omitempty"`
	MessageID *string    `gorm:"column:message_id" json:"messageId,omitempty"`
}

// ExpiryReminders groups the three milestone latches stored inline on purchases.
type ExpiryReminders struct {
	ThreeDays ReminderState `gorm:"embedded;embeddedPrefix:reminder_3_days_" json:"reminder3Days"`
	OneDay    ReminderState `gorm:"embedded;embeddedPrefix:reminder_1_day_" json:"reminder1Day"`
	Today     ReminderState `gorm:"embedded;embeddedPrefix:reminder_today_" json:"reminderToday"`
}

// For returns the latch for a milestone.
func (r ExpiryReminders) For(m enums.ReminderMilestone) ReminderState {
	switch m {
	case enums.ReminderThreeDays:
		return r.ThreeDays
	case enums.ReminderOneDay:
		return r.OneDay
	default:
		return r.Today
	}
}

// ReminderColumnPrefix maps a milestone to its column prefix on the purchases table.
func ReminderColumnPrefix(m enums.ReminderMilestone) string {
	switch m {
	case enums.ReminderThreeDays:
		return "reminder_3_days_"
	case enums.ReminderOneDay:
		return "reminder_1_day_"
	default:
		return "reminder_today_"
	}
}

// Purchase records a checkout and, once approved, the code bound to it.
type Purchase struct {
	ID                        uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID                uuid.UUID            `gorm:"column:customer_id;type:uuid;not null"`
	PlanID                    uuid.UUID            `gorm:"column:plan_id;type:uuid;not null"`
	ResellerID                *uuid.UUID           `gorm:"column:reseller_id;type:uuid"`
	RechargeCode              string               `gorm:"column:recharge_code;not null;default:''"`
	AssignedCodeID            *uuid.UUID           `gorm:"column:assigned_code_id;type:uuid"`
	Amount                    decimal.Decimal      `gorm:"column:amount;type:numeric(12,2);not null"`
	Status                    enums.PurchaseStatus `gorm:"column:status;type:purchase_status;not null"`
	PaymentMethod             enums.PaymentMethod  `gorm:"column:payment_method;type:payment_method;not null"`
	PaymentID                 string               `gorm:"column:payment_id;not null;default:''"`
	CodeDeliveryFailureReason *string              `gorm:"column:code_delivery_failure_reason"`
	CustomerData              CustomerData         `gorm:"column:customer_data;type:jsonb;serializer:json"`
	ExpiryReminders           ExpiryReminders      `gorm:"embedded"`
	CreatedAt                 time.Time            `gorm:"column:created_at"`
	ApprovedAt                *time.Time           `gorm:"column:approved_at"`
	ExpiresAt                 time.Time            `gorm:"column:expires_at;not null"`
	UpdatedAt                 time.Time            `gorm:"column:updated_at"`
}
