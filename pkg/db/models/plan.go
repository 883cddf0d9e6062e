package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
)

// DefaultPlanValidityDays applies when a plan row carries no validity window.
const DefaultPlanValidityDays = 30

// Plan is the priced product codes are pooled under. It is managed elsewhere and read-only here;
// Status decides whether it may be sold or restocked.
type Plan struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name         string           `gorm:"column:name;not null"`
	Value        decimal.Decimal  `gorm:"column:value;type:numeric(12,2);not null"`
	ValidityDays int              `gorm:"column:validity_days;not null;default:30"`
	AppName      string           `gorm:"column:app_name;not null"`
	Status       enums.PlanStatus `gorm:"column:status;type:plan_status;not null;default:active"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// Validity returns the plan's purchase validity window.
func (p Plan) Validity() time.Duration {
	days := p.ValidityDays
	if days <= 0 {
		days = DefaultPlanValidityDays
	}
	return time.Duration(days) * 24 * time.Hour
}
