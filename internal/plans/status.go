package plans

import (
	"errors"

	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
)

var (
	ErrPlanNotSellable    = errors.New("plan is not on sale")
	ErrPlanNotRestockable = errors.New("plan no longer accepts codes")
)

// RequireSellable rejects new sales and checkouts on paused or retired plans.
func RequireSellable(plan *models.Plan) error {
	if plan.Status.Sellable() {
		return nil
	}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrPlanNotSellable, "plan is not on sale").
		WithDetails(map[string]any{"plan_id": plan.ID.String(), "status": plan.Status.String()})
}

// RequireRestockable rejects imports into retired plans.
func RequireRestockable(plan *models.Plan) error {
	if plan.Status.Restockable() {
		return nil
	}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrPlanNotRestockable, "plan no longer accepts codes").
		WithDetails(map[string]any{"plan_id": plan.ID.String(), "status": plan.Status.String()})
}
