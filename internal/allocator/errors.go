package allocator

import (
	"errors"

	"github.com/angelmondragon/rechargecodes-backend/internal/plans"
	"github.com/angelmondragon/rechargecodes-backend/internal/purchases"
)

// ReasonCodeUnavailable is the AllocationResult reason when a plan's pool is dry.
const ReasonCodeUnavailable = "code_unavailable"

// FailureReasonNoAvailableCodes is recorded on purchases parked for manual delivery.
const FailureReasonNoAvailableCodes = "no_available_codes"

var (
	ErrPlanNotFound     = plans.ErrPlanNotFound
	ErrPlanNotSellable  = plans.ErrPlanNotSellable
	ErrPurchaseNotFound = purchases.ErrPurchaseNotFound
	ErrCodeNotFound     = errors.New("recharge code not found")
	ErrCodeNotAvailable = errors.New("recharge code not available")
)
