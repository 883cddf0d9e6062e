package plans

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
)

// ErrPlanNotFound is returned when a plan id does not resolve.
var ErrPlanNotFound = errors.New("plan not found")

// Repository is the read-only view of plans owned by plan management.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a plans repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// GetPlan loads a plan or returns ErrPlanNotFound wrapped as NOT_FOUND.
func (r *repository) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrPlanNotFound, "plan not found")
	}
	var plan models.Plan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrPlanNotFound, "plan not found").
				WithDetails(map[string]any{"plan_id": id.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	return &plan, nil
}
