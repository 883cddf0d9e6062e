// Package dbtest opens throwaway sqlite databases carrying the recharge schema.
package dbtest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/rechargecodes-backend/pkg/db"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
)

const schema = `
CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  value NUMERIC NOT NULL,
  validity_days INTEGER NOT NULL DEFAULT 30,
  app_name TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS recharge_codes (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL,
  value NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'available',
  plan_id TEXT NOT NULL,
  app_name TEXT NOT NULL,
  created_at DATETIME,
  expires_at DATETIME NOT NULL,
  sold_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_recharge_codes_code ON recharge_codes (code);
CREATE TABLE IF NOT EXISTS purchases (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  plan_id TEXT NOT NULL,
  reseller_id TEXT,
  recharge_code TEXT NOT NULL DEFAULT '',
  assigned_code_id TEXT,
  amount NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_method TEXT NOT NULL,
  payment_id TEXT NOT NULL DEFAULT '',
  code_delivery_failure_reason TEXT,
  customer_data TEXT,
  reminder_3_days_sent INTEGER NOT NULL DEFAULT 0,
  reminder_3_days_sent_at DATETIME,
  reminder_3_days_message_id TEXT,
  reminder_1_day_sent INTEGER NOT NULL DEFAULT 0,
  reminder_1_day_sent_at DATETIME,
  reminder_1_day_message_id TEXT,
  reminder_today_sent INTEGER NOT NULL DEFAULT 0,
  reminder_today_sent_at DATETIME,
  reminder_today_message_id TEXT,
  created_at DATETIME,
  approved_at DATETIME,
  expires_at DATETIME NOT NULL,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_purchases_assigned_code ON purchases (assigned_code_id);
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`

// Open returns an isolated in-memory database with every table created.
// A single connection serializes writers so concurrent tests do not trip sqlite table locks.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                db.UTCNow,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// Client wraps Open in a db.Client for services that need WithTx.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.FromGorm(conn), conn
}

// SeedPlan inserts a plan with the given value.
func SeedPlan(t testing.TB, conn *gorm.DB, name, value string) models.Plan {
	t.Helper()
	plan := models.Plan{
		ID:           uuid.New(),
		Name:         name,
		Value:        decimal.RequireFromString(value),
		ValidityDays: 30,
		AppName:      name + " App",
		Status:       enums.PlanStatusActive,
	}
	if err := conn.WithContext(context.Background()).Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}

// SeedCode inserts a code directly, bypassing import normalization.
func SeedCode(t testing.TB, conn *gorm.DB, plan models.Plan, code string, status enums.RechargeCodeStatus, createdAt time.Time) models.RechargeCode {
	t.Helper()
	row := models.RechargeCode{
		ID:        uuid.New(),
		Code:      code,
		Value:     plan.Value,
		Status:    status,
		PlanID:    plan.ID,
		AppName:   plan.AppName,
		CreatedAt: createdAt.UTC(),
		ExpiresAt: createdAt.UTC().Add(30 * 24 * time.Hour),
	}
	if status == enums.RechargeCodeStatusSold {
		soldAt := createdAt.UTC()
		row.SoldAt = &soldAt
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed code: %v", err)
	}
	return row
}
