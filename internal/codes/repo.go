package codes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
)

const dialectPostgres = "postgres"

// Repository defines persistence operations for the recharge code pool.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, rows []models.RechargeCode) error
	ExistingCodes(ctx context.Context, codes []string) ([]string, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.RechargeCode, error)
	FindAvailable(ctx context.Context, planID uuid.UUID, now time.Time, exclude ...uuid.UUID) (*models.RechargeCode, error)
	ClaimAvailable(ctx context.Context, id uuid.UUID, soldAt time.Time) (bool, error)
	CountByStatus(ctx context.Context, planID uuid.UUID, status enums.RechargeCodeStatus) (int64, error)
	ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error)
	SumSoldValue(ctx context.Context, from, to *time.Time) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a code pool repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateBatch(ctx context.Context, rows []models.RechargeCode) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&rows, 500).Error
}

// ExistingCodes returns which of the given strings are already in the pool.
func (r *repository) ExistingCodes(ctx context.Context, codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var found []string
	err := r.db.WithContext(ctx).
		Model(&models.RechargeCode{}).
		Where("code IN ?", codes).
		Pluck("code", &found).Error
	return found, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RechargeCode, error) {
	var code models.RechargeCode
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&code).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

// FindAvailable returns the oldest sellable code for the plan, or nil when the pool is dry.
func (r *repository) FindAvailable(ctx context.Context, planID uuid.UUID, now time.Time, exclude ...uuid.UUID) (*models.RechargeCode, error) {
	var code models.RechargeCode
	err := availableQuery(r.db.WithContext(ctx), planID, now, exclude).Take(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &code, nil
}

// availableQuery selects the next claim candidate. On postgres the row is locked
// and rows held by other sellers are skipped, so concurrent sales fan out
// across the pool instead of racing for the same code.
func availableQuery(db *gorm.DB, planID uuid.UUID, now time.Time, exclude []uuid.UUID) *gorm.DB {
	q := db.Where("plan_id = ? AND status = ? AND expires_at > ?", planID, enums.RechargeCodeStatusAvailable, now)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	if db.Dialector.Name() == dialectPostgres {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	return q.Order("created_at ASC").Order("id ASC").Limit(1)
}

// ClaimAvailable flips one code from available to sold. It reports false when
// another writer got there first.
func (r *repository) ClaimAvailable(ctx context.Context, id uuid.UUID, soldAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RechargeCode{}).
		Where("id = ? AND status = ?", id, enums.RechargeCodeStatusAvailable).
		Updates(map[string]any{
			"status":  enums.RechargeCodeStatusSold,
			"sold_at": soldAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CountByStatus(ctx context.Context, planID uuid.UUID, status enums.RechargeCodeStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RechargeCode{}).
		Where("plan_id = ? AND status = ?", planID, status).
		Count(&count).Error
	return count, err
}

// ExpireStale moves available codes past their expiry to expired.
func (r *repository) ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error) {
	sub := r.db.WithContext(ctx).
		Model(&models.RechargeCode{}).
		Select("id").
		Where("status = ? AND expires_at <= ?", enums.RechargeCodeStatusAvailable, now)
	if limit > 0 {
		sub = sub.Limit(limit)
	}
	res := r.db.WithContext(ctx).
		Model(&models.RechargeCode{}).
		Where("id IN (?) AND status = ?", sub, enums.RechargeCodeStatusAvailable).
		Update("status", enums.RechargeCodeStatusExpired)
	return res.RowsAffected, res.Error
}

// SumSoldValue totals the value of sold codes, optionally bounded to [from, to).
func (r *repository) SumSoldValue(ctx context.Context, from, to *time.Time) (decimal.Decimal, error) {
	q := r.db.WithContext(ctx).
		Model(&models.RechargeCode{}).
		Where("status = ?", enums.RechargeCodeStatusSold)
	if from != nil {
		q = q.Where("sold_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("sold_at < ?", *to)
	}
	var total decimal.NullDecimal
	if err := q.Select("SUM(value)").Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
