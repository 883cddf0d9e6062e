package enums

import "fmt"

// PlanStatus gates what the engine may do with a plan's pool.
type PlanStatus string

const (
	PlanStatusActive  PlanStatus = "active"
	PlanStatusPaused  PlanStatus = "paused"
	PlanStatusRetired PlanStatus = "retired"
)

func (p PlanStatus) String() string {
	return string(p)
}

func (p PlanStatus) IsValid() bool {
	switch p {
	case PlanStatusActive, PlanStatusPaused, PlanStatusRetired:
		return true
	}
	return false
}

// Sellable reports whether new sales and checkouts may open against the plan.
func (p PlanStatus) Sellable() bool {
	return p == PlanStatusActive
}

// Restockable reports whether codes may still be imported. A paused plan can be
// refilled before it goes back on sale.
func (p PlanStatus) Restockable() bool {
	return p == PlanStatusActive || p == PlanStatusPaused
}

func ParsePlanStatus(value string) (PlanStatus, error) {
	status := PlanStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid plan status %q", value)
	}
	return status, nil
}
