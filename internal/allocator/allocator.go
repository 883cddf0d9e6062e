package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rechargecodes-backend/internal/codes"
	"github.com/angelmondragon/rechargecodes-backend/internal/plans"
	"github.com/angelmondragon/rechargecodes-backend/internal/purchases"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
	"github.com/angelmondragon/rechargecodes-backend/pkg/metrics"
	"github.com/angelmondragon/rechargecodes-backend/pkg/outbox"
	"github.com/angelmondragon/rechargecodes-backend/pkg/outbox/payloads"
)

const defaultMaxClaimAttempts = 32

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type saleMetrics interface {
	IncSale(outcome string)
	IncClaim(outcome string)
}

// Service binds purchases to codes.
type Service interface {
	Sell(ctx context.Context, input SellInput) (*AllocationResult, error)
	AssignCodeToPending(ctx context.Context, input AssignInput) (*AssignmentResult, error)
}

// SellInput is a paid checkout. PurchaseID resolves an already opened checkout
// instead of recording a new purchase; ResellerScope, when set, must own it.
type SellInput struct {
	PlanID        uuid.UUID
	PurchaseID    *uuid.UUID
	ResellerScope *uuid.UUID
	Buyer         purchases.Buyer
	Actor         *outbox.ActorRef
}

// AllocationResult reports a sale. When Success is false Reason is
// ReasonCodeUnavailable and Purchase is the parked purchase.
type AllocationResult struct {
	Success  bool                 `json:"success"`
	Reason   string               `json:"reason,omitempty"`
	Code     *models.RechargeCode `json:"code,omitempty"`
	Purchase *models.Purchase     `json:"purchase"`
}

// AssignInput names the parked purchase and the code an operator picked for it.
type AssignInput struct {
	PurchaseID uuid.UUID
	CodeID     uuid.UUID
	Actor      *outbox.ActorRef
}

// AssignmentResult is the approved purchase and the code now sold to it.
type AssignmentResult struct {
	Purchase *models.Purchase     `json:"purchase"`
	Code     *models.RechargeCode `json:"code"`
}

// ServiceParams wires the allocator.
type ServiceParams struct {
	Codes            codes.Repository
	Purchases        purchases.Repository
	Plans            plans.Repository
	Tx               txRunner
	Outbox           outboxPublisher
	Metrics          saleMetrics
	Logger           *logger.Logger
	MaxClaimAttempts int
	Now              func() time.Time
}

type service struct {
	codes       codes.Repository
	purchases   purchases.Repository
	plans       plans.Repository
	tx          txRunner
	outbox      outboxPublisher
	metrics     saleMetrics
	logg        *logger.Logger
	maxAttempts int
	now         func() time.Time
}

// NewService wires the allocator.
func NewService(params ServiceParams) (Service, error) {
	if params.Codes == nil {
		return nil, fmt.Errorf("codes repository required")
	}
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchases repository required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plans repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	attempts := params.MaxClaimAttempts
	if attempts <= 0 {
		attempts = defaultMaxClaimAttempts
	}
	var m saleMetrics = (*metrics.RechargeMetrics)(nil)
	if params.Metrics != nil {
		m = params.Metrics
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		codes:       params.Codes,
		purchases:   params.Purchases,
		plans:       params.Plans,
		tx:          params.Tx,
		outbox:      params.Outbox,
		metrics:     m,
		logg:        logg,
		maxAttempts: attempts,
		now:         now,
	}, nil
}

func (s *service) Sell(ctx context.Context, input SellInput) (*AllocationResult, error) {
	if input.PurchaseID == nil {
		if err := input.Buyer.Validate(); err != nil {
			return nil, err
		}
	}

	var result *AllocationResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		plan, err := s.plans.WithTx(tx).GetPlan(ctx, input.PlanID)
		if err != nil {
			return err
		}
		// A checkout opened while the plan was on sale has already been paid for.
		if input.PurchaseID == nil {
			if err := plans.RequireSellable(plan); err != nil {
				return err
			}
		}
		codeRepo := s.codes.WithTx(tx)
		purchaseRepo := s.purchases.WithTx(tx)

		var existing *models.Purchase
		if input.PurchaseID != nil {
			existing, err = s.loadOpenCheckout(ctx, purchaseRepo, *input.PurchaseID, plan.ID, input.ResellerScope)
			if err != nil {
				return err
			}
		}

		now := s.now().UTC()
		code, err := s.claimNext(ctx, codeRepo, plan.ID, now)
		if err != nil {
			return err
		}
		if code == nil {
			parked, err := s.park(ctx, tx, purchaseRepo, plan, existing, input, now)
			if err != nil {
				return err
			}
			result = &AllocationResult{Success: false, Reason: ReasonCodeUnavailable, Purchase: parked}
			return nil
		}

		approved, err := s.approveWithCode(ctx, purchaseRepo, plan, existing, input.Buyer, code, now)
		if err != nil {
			return err
		}
		if err := s.emitSold(ctx, tx, code, approved, input.Actor, false); err != nil {
			return err
		}
		result = &AllocationResult{Success: true, Code: code, Purchase: approved}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"plan_id":     input.PlanID.String(),
		"purchase_id": result.Purchase.ID.String(),
	}
	if result.Success {
		s.metrics.IncSale(metrics.OutcomeSold)
		fields["code_id"] = result.Code.ID.String()
		s.logg.Info(s.logg.WithFields(ctx, fields), "recharge code sold")
	} else {
		s.metrics.IncSale(metrics.OutcomeParked)
		fields["reason"] = FailureReasonNoAvailableCodes
		s.logg.Warn(s.logg.WithFields(ctx, fields), "no available codes, purchase parked for delivery")
	}
	return result, nil
}

// claimNext walks the pool oldest first until one compare-and-set wins or the pool runs dry.
func (s *service) claimNext(ctx context.Context, repo codes.Repository, planID uuid.UUID, now time.Time) (*models.RechargeCode, error) {
	var lost []uuid.UUID
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidate, err := repo.FindAvailable(ctx, planID, now, lost...)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find available code")
		}
		if candidate == nil {
			return nil, nil
		}
		won, err := repo.ClaimAvailable(ctx, candidate.ID, now)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim code")
		}
		if won {
			s.metrics.IncClaim(metrics.OutcomeSold)
			candidate.Status = enums.RechargeCodeStatusSold
			soldAt := now
			candidate.SoldAt = &soldAt
			return candidate, nil
		}
		s.metrics.IncClaim(metrics.OutcomeLostRace)
		lost = append(lost, candidate.ID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "too much contention claiming a recharge code").
		WithDetails(map[string]any{"plan_id": planID.String(), "attempts": s.maxAttempts})
}

func (s *service) loadOpenCheckout(ctx context.Context, repo purchases.Repository, id, planID uuid.UUID, reseller *uuid.UUID) (*models.Purchase, error) {
	purchase, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, purchases.NotFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
	}
	if purchase.Status != enums.PurchaseStatusPending || !purchases.VisibleTo(purchase, reseller) {
		return nil, purchases.NotFound(id)
	}
	if purchase.PlanID != planID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase belongs to a different plan").
			WithDetails(map[string]any{"purchase_plan_id": purchase.PlanID.String(), "plan_id": planID.String()})
	}
	return purchase, nil
}

func (s *service) approveWithCode(ctx context.Context, repo purchases.Repository, plan *models.Plan, existing *models.Purchase, buyer purchases.Buyer, code *models.RechargeCode, now time.Time) (*models.Purchase, error) {
	expiresAt := now.Add(plan.Validity())
	if existing == nil {
		p := purchases.NewPurchase(plan, buyer, enums.PurchaseStatusApproved, now)
		p.RechargeCode = code.Code
		p.AssignedCodeID = &code.ID
		p.ApprovedAt = &now
		p.ExpiresAt = expiresAt
		if err := repo.Create(ctx, &p); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase")
		}
		return &p, nil
	}

	ok, err := repo.Transition(ctx, existing.ID, enums.PurchaseStatusPending, approvalUpdates(code, now, expiresAt))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve purchase")
	}
	if !ok {
		return nil, purchases.NotFound(existing.ID)
	}
	return reload(ctx, repo, existing.ID)
}

func (s *service) park(ctx context.Context, tx *gorm.DB, repo purchases.Repository, plan *models.Plan, existing *models.Purchase, input SellInput, now time.Time) (*models.Purchase, error) {
	reason := FailureReasonNoAvailableCodes
	var parked *models.Purchase
	if existing == nil {
		p := purchases.NewPurchase(plan, input.Buyer, enums.PurchaseStatusPendingCodeDelivery, now)
		p.CodeDeliveryFailureReason = &reason
		if err := repo.Create(ctx, &p); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create parked purchase")
		}
		parked = &p
	} else {
		ok, err := repo.Transition(ctx, existing.ID, enums.PurchaseStatusPending, map[string]any{
			"status":                       enums.PurchaseStatusPendingCodeDelivery,
			"code_delivery_failure_reason": reason,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "park purchase")
		}
		if !ok {
			return nil, purchases.NotFound(existing.ID)
		}
		if parked, err = reload(ctx, repo, existing.ID); err != nil {
			return nil, err
		}
	}

	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPurchaseCodeDeliveryPending,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   parked.ID,
		Actor:         input.Actor,
		Data: payloads.PurchaseCodeDeliveryPendingEvent{
			PurchaseID: parked.ID,
			PlanID:     parked.PlanID,
			ResellerID: parked.ResellerID,
			Reason:     reason,
		},
		OccurredAt: now,
	})
	if err != nil {
		return nil, err
	}
	return parked, nil
}

func (s *service) AssignCodeToPending(ctx context.Context, input AssignInput) (*AssignmentResult, error) {
	if input.PurchaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase id is required")
	}
	if input.CodeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code id is required")
	}

	var result *AssignmentResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		purchaseRepo := s.purchases.WithTx(tx)
		codeRepo := s.codes.WithTx(tx)

		purchase, err := purchaseRepo.FindByID(ctx, input.PurchaseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return purchases.NotFound(input.PurchaseID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
		}
		if purchase.Status != enums.PurchaseStatusPendingCodeDelivery {
			return purchases.NotFound(input.PurchaseID)
		}

		code, err := codeRepo.FindByID(ctx, input.CodeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return codeNotFound(input.CodeID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recharge code")
		}

		now := s.now().UTC()
		if code.PlanID != purchase.PlanID {
			return codeNotAvailable(code, map[string]any{
				"reason":           "plan_mismatch",
				"code_plan_id":     code.PlanID.String(),
				"purchase_plan_id": purchase.PlanID.String(),
			})
		}
		if !code.IsSellable(now) {
			return codeNotAvailable(code, nil)
		}

		won, err := codeRepo.ClaimAvailable(ctx, code.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim code")
		}
		if !won {
			s.metrics.IncClaim(metrics.OutcomeLostRace)
			return codeNotAvailable(code, map[string]any{"reason": "claimed_concurrently"})
		}
		s.metrics.IncClaim(metrics.OutcomeSold)
		code.Status = enums.RechargeCodeStatusSold
		code.SoldAt = &now

		plan, err := s.plans.WithTx(tx).GetPlan(ctx, purchase.PlanID)
		if err != nil {
			return err
		}
		updates := approvalUpdates(code, now, now.Add(plan.Validity()))
		for k, v := range unsentReminders() {
			updates[k] = v
		}
		ok, err := purchaseRepo.Transition(ctx, purchase.ID, enums.PurchaseStatusPendingCodeDelivery, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve purchase")
		}
		if !ok {
			return purchases.NotFound(purchase.ID)
		}
		approved, err := reload(ctx, purchaseRepo, purchase.ID)
		if err != nil {
			return err
		}
		if err := s.emitSold(ctx, tx, code, approved, input.Actor, true); err != nil {
			return err
		}
		result = &AssignmentResult{Purchase: approved, Code: code}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"purchase_id": input.PurchaseID.String(),
		"code_id":     input.CodeID.String(),
	})
	s.logg.Info(logCtx, "recharge code assigned to pending purchase")
	return result, nil
}

func (s *service) emitSold(ctx context.Context, tx *gorm.DB, code *models.RechargeCode, purchase *models.Purchase, actor *outbox.ActorRef, manual bool) error {
	soldAt := time.Time{}
	if code.SoldAt != nil {
		soldAt = *code.SoldAt
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRechargeCodeSold,
		AggregateType: enums.AggregateRechargeCode,
		AggregateID:   code.ID,
		Actor:         actor,
		Data: payloads.RechargeCodeSoldEvent{
			CodeID:     code.ID,
			PurchaseID: purchase.ID,
			PlanID:     code.PlanID,
			Value:      code.Value,
			SoldAt:     soldAt,
		},
		OccurredAt: soldAt,
	}); err != nil {
		return err
	}
	approvedAt := soldAt
	if purchase.ApprovedAt != nil {
		approvedAt = *purchase.ApprovedAt
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPurchaseCodeAssigned,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchase.ID,
		Actor:         actor,
		Data: payloads.PurchaseCodeAssignedEvent{
			PurchaseID: purchase.ID,
			CodeID:     code.ID,
			PlanID:     purchase.PlanID,
			ApprovedAt: approvedAt,
			ExpiresAt:  purchase.ExpiresAt,
			Manual:     manual,
		},
		OccurredAt: approvedAt,
	})
}

func approvalUpdates(code *models.RechargeCode, now, expiresAt time.Time) map[string]any {
	return map[string]any{
		"status":           enums.PurchaseStatusApproved,
		"recharge_code":    code.Code,
		"assigned_code_id": code.ID,
		"approved_at":      now,
		"expires_at":       expiresAt,
	}
}

// unsentReminders initialises every milestone latch for a newly approved purchase.
func unsentReminders() map[string]any {
	out := map[string]any{}
	for _, m := range enums.ReminderMilestones() {
		prefix := models.ReminderColumnPrefix(m)
		out[prefix+"sent"] = false
		out[prefix+"sent_at"] = nil
		out[prefix+"message_id"] = nil
	}
	return out
}

func reload(ctx context.Context, repo purchases.Repository, id uuid.UUID) (*models.Purchase, error) {
	p, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload purchase")
	}
	return p, nil
}

func codeNotFound(id uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrCodeNotFound, "recharge code not found").
		WithDetails(map[string]any{"code_id": id.String()})
}

func codeNotAvailable(code *models.RechargeCode, extra map[string]any) error {
	details := map[string]any{
		"code_id": code.ID.String(),
		"status":  string(code.Status),
	}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrCodeNotAvailable, "recharge code not available").
		WithDetails(details)
}
