package purchases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	"github.com/angelmondragon/rechargecodes-backend/pkg/pagination"
)

// Repository defines persistence operations for the purchase ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, purchase *models.Purchase) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	ListByStatus(ctx context.Context, status enums.PurchaseStatus) ([]models.Purchase, error)
	ListApprovedActive(ctx context.Context, now time.Time) ([]models.Purchase, error)
	ListApprovedPage(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Purchase, *pagination.Cursor, error)
	Transition(ctx context.Context, id uuid.UUID, from enums.PurchaseStatus, updates map[string]any) (bool, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, milestone enums.ReminderMilestone, sentAt time.Time, messageID string) (bool, error)
	CountByStatus(ctx context.Context, status enums.PurchaseStatus) (int64, error)
	CountApprovedExpiringBetween(ctx context.Context, from, to time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a purchase ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

// ListByStatus returns every purchase in a status, oldest first.
func (r *repository) ListByStatus(ctx context.Context, status enums.PurchaseStatus) ([]models.Purchase, error) {
	var rows []models.Purchase
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// ListApprovedActive returns approved purchases whose expiry has not passed yet.
func (r *repository) ListApprovedActive(ctx context.Context, now time.Time) ([]models.Purchase, error) {
	var rows []models.Purchase
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at > ?", enums.PurchaseStatusApproved, now).
		Order("expires_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// ListApprovedPage walks approved purchases newest approval first.
func (r *repository) ListApprovedPage(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Purchase, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(limit)
	query := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("status = ?", enums.PurchaseStatusApproved)
	if cursor != nil {
		query = query.Where("(approved_at < ?) OR (approved_at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}

	var rows []models.Purchase
	if err := query.Order("approved_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) <= normalized {
		return rows, nil, nil
	}
	rows = rows[:normalized]
	last := rows[len(rows)-1]
	next := &pagination.Cursor{ID: last.ID}
	if last.ApprovedAt != nil {
		next.At = *last.ApprovedAt
	}
	return rows, next, nil
}

// Transition moves a purchase out of from, reporting false when the row was
// missing or already left that status.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from enums.PurchaseStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkReminderSent latches one milestone. Only the first caller sees true.
func (r *repository) MarkReminderSent(ctx context.Context, id uuid.UUID, milestone enums.ReminderMilestone, sentAt time.Time, messageID string) (bool, error) {
	prefix := models.ReminderColumnPrefix(milestone)
	var msg any
	if messageID != "" {
		msg = messageID
	}
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ? AND "+prefix+"sent = ?", id, enums.PurchaseStatusApproved, false).
		Updates(map[string]any{
			prefix + "sent":       true,
			prefix + "sent_at":    sentAt,
			prefix + "message_id": msg,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CountByStatus(ctx context.Context, status enums.PurchaseStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// CountApprovedExpiringBetween counts approved purchases with from <= expires_at < to.
func (r *repository) CountApprovedExpiringBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("status = ? AND expires_at >= ? AND expires_at < ?", enums.PurchaseStatusApproved, from, to).
		Count(&count).Error
	return count, err
}
