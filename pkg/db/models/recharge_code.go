package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
)

// RechargeCode is a single sellable token in a plan's pool.
// AppName is a snapshot taken from the plan at import time.
type RechargeCode struct {
	ID        uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Code      string                   `gorm:"column:code;not null;uniqueIndex:ux_recharge_codes_code"`
	Value     decimal.Decimal          `gorm:"column:value;type:numeric(12,2);not null"`
	Status    enums.RechargeCodeStatus `gorm:"column:status;type:recharge_code_status;not null"`
	PlanID    uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	AppName   string                   `gorm:"column:app_name;not null"`
	CreatedAt time.Time                `gorm:"column:created_at"`
	ExpiresAt time.Time                `gorm:"column:expires_at;not null"`
	SoldAt    *time.Time               `gorm:"column:sold_at"`
}

// IsSellable reports whether the code can still be claimed at the given instant.
func (c RechargeCode) IsSellable(now time.Time) bool {
	return c.Status == enums.RechargeCodeStatusAvailable && now.Before(c.ExpiresAt)
}
