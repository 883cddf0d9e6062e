package purchases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rechargecodes-backend/internal/plans"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
	"github.com/angelmondragon/rechargecodes-backend/pkg/outbox"
	"github.com/angelmondragon/rechargecodes-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/rechargecodes-backend/pkg/pagination"
)

// ErrPurchaseNotFound is returned when a purchase is unknown or no longer in the expected state.
var ErrPurchaseNotFound = errors.New("purchase not found")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the purchase ledger: read models plus the mutators that do not claim codes.
type Service interface {
	OpenCheckout(ctx context.Context, input CheckoutInput) (*models.Purchase, error)
	RejectPayment(ctx context.Context, input RejectInput) (*models.Purchase, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	ListPendingDeliveries(ctx context.Context) ([]models.Purchase, error)
	ListApproved(ctx context.Context) ([]models.Purchase, error)
	ListApprovedActive(ctx context.Context, now time.Time) ([]models.Purchase, error)
	ListApprovedPage(ctx context.Context, params pagination.Params) (*ApprovedList, error)
	MarkReminderSent(ctx context.Context, input ReminderSentInput) (bool, error)
}

// Buyer is the checkout-time snapshot of who is paying.
type Buyer struct {
	CustomerID    uuid.UUID           `json:"customer_id" validate:"required"`
	ResellerID    *uuid.UUID          `json:"reseller_id,omitempty"`
	PaymentMethod enums.PaymentMethod `json:"payment_method" validate:"required,payment_method"`
	PaymentID     string              `json:"payment_id"`
	Customer      models.CustomerData `json:"customer"`
}

// Validate checks the fields every purchase needs.
func (b Buyer) Validate() error {
	if b.CustomerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if !b.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"payment_method": string(b.PaymentMethod)})
	}
	if strings.TrimSpace(b.Customer.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	return nil
}

// CheckoutInput opens a pending purchase before payment settles.
type CheckoutInput struct {
	PlanID uuid.UUID
	Buyer  Buyer
}

// RejectInput records a failed payment for a pending purchase.
// ResellerScope restricts the call to that reseller's purchases; nil means unrestricted.
type RejectInput struct {
	PurchaseID    uuid.UUID
	Reason        string
	ResellerScope *uuid.UUID
	Actor         *outbox.ActorRef
}

// ReminderSentInput latches one expiry reminder.
type ReminderSentInput struct {
	PurchaseID uuid.UUID
	Milestone  enums.ReminderMilestone
	SentAt     time.Time
	MessageID  string
	ExpiresAt  time.Time
}

// ApprovedList is one page of approved purchases.
type ApprovedList struct {
	Purchases  []models.Purchase `json:"purchases"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// ServiceParams wires the purchase ledger service.
type ServiceParams struct {
	Repo   Repository
	Plans  plans.Repository
	Tx     txRunner
	Outbox outboxPublisher
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo   Repository
	plans  plans.Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the purchase ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
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
	now := params.Now
	if now == nil {
		now = time.Now
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   params.Repo,
		plans:  params.Plans,
		tx:     params.Tx,
		outbox: params.Outbox,
		logg:   logg,
		now:    now,
	}, nil
}

// NewPurchase builds an unsaved purchase for a plan with every reminder unsent.
func NewPurchase(plan *models.Plan, buyer Buyer, status enums.PurchaseStatus, now time.Time) models.Purchase {
	return models.Purchase{
		ID:            uuid.New(),
		CustomerID:    buyer.CustomerID,
		PlanID:        plan.ID,
		ResellerID:    buyer.ResellerID,
		Amount:        plan.Value,
		Status:        status,
		PaymentMethod: buyer.PaymentMethod,
		PaymentID:     buyer.PaymentID,
		CustomerData:  buyer.Customer,
		CreatedAt:     now,
		ExpiresAt:     now.Add(plan.Validity()),
	}
}

func (s *service) OpenCheckout(ctx context.Context, input CheckoutInput) (*models.Purchase, error) {
	if err := input.Buyer.Validate(); err != nil {
		return nil, err
	}
	plan, err := s.plans.GetPlan(ctx, input.PlanID)
	if err != nil {
		return nil, err
	}
	if err := plans.RequireSellable(plan); err != nil {
		return nil, err
	}
	purchase := NewPurchase(plan, input.Buyer, enums.PurchaseStatusPending, s.now().UTC())
	if err := s.repo.Create(ctx, &purchase); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"purchase_id": purchase.ID.String(),
		"plan_id":     plan.ID.String(),
	})
	s.logg.Info(logCtx, "checkout opened")
	return &purchase, nil
}

func (s *service) RejectPayment(ctx context.Context, input RejectInput) (*models.Purchase, error) {
	if input.PurchaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase id is required")
	}
	reason := strings.TrimSpace(input.Reason)
	var out *models.Purchase
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if input.ResellerScope != nil {
			if err := ensureVisible(ctx, repo, input.PurchaseID, input.ResellerScope); err != nil {
				return err
			}
		}
		ok, err := repo.Transition(ctx, input.PurchaseID, enums.PurchaseStatusPending, map[string]any{
			"status": enums.PurchaseStatusRejected,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject purchase")
		}
		if !ok {
			return notPendingError(ctx, repo, input.PurchaseID, enums.PurchaseStatusPending)
		}
		purchase, err := repo.FindByID(ctx, input.PurchaseID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload purchase")
		}
		out = purchase
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchasePaymentRejected,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Actor:         input.Actor,
			Data: payloads.PurchasePaymentRejectedEvent{
				PurchaseID: purchase.ID,
				PlanID:     purchase.PlanID,
				Reason:     reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	purchase, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
	}
	return purchase, nil
}

func (s *service) ListPendingDeliveries(ctx context.Context) ([]models.Purchase, error) {
	rows, err := s.repo.ListByStatus(ctx, enums.PurchaseStatusPendingCodeDelivery)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending deliveries")
	}
	return rows, nil
}

func (s *service) ListApproved(ctx context.Context) ([]models.Purchase, error) {
	rows, err := s.repo.ListByStatus(ctx, enums.PurchaseStatusApproved)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list approved purchases")
	}
	return rows, nil
}

func (s *service) ListApprovedActive(ctx context.Context, now time.Time) ([]models.Purchase, error) {
	rows, err := s.repo.ListApprovedActive(ctx, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active approved purchases")
	}
	return rows, nil
}

func (s *service) ListApprovedPage(ctx context.Context, params pagination.Params) (*ApprovedList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListApprovedPage(ctx, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list approved purchases")
	}
	list := &ApprovedList{Purchases: rows}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

// MarkReminderSent latches the milestone and queues a reminder event in one transaction.
// It returns false when the milestone was already latched.
func (s *service) MarkReminderSent(ctx context.Context, input ReminderSentInput) (bool, error) {
	if !input.Milestone.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "invalid reminder milestone")
	}
	sentAt := input.SentAt.UTC()
	var latched bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).MarkReminderSent(ctx, input.PurchaseID, input.Milestone, sentAt, input.MessageID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "latch reminder")
		}
		if !ok {
			return nil
		}
		latched = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseReminderSent,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   input.PurchaseID,
			Data: payloads.PurchaseReminderSentEvent{
				PurchaseID: input.PurchaseID,
				Milestone:  input.Milestone,
				MessageID:  input.MessageID,
				SentAt:     sentAt,
				ExpiresAt:  input.ExpiresAt,
			},
			OccurredAt: sentAt,
		})
	})
	if err != nil {
		return false, err
	}
	return latched, nil
}

// NotFound builds the typed error for an unknown or already-resolved purchase.
func NotFound(id uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrPurchaseNotFound, "purchase not found").
		WithDetails(map[string]any{"purchase_id": id.String()})
}

// VisibleTo reports whether a caller scoped to reseller may act on p.
// A nil scope sees every purchase.
func VisibleTo(p *models.Purchase, reseller *uuid.UUID) bool {
	if reseller == nil {
		return true
	}
	return p.ResellerID != nil && *p.ResellerID == *reseller
}

// ensureVisible hides purchases of other resellers behind NotFound.
func ensureVisible(ctx context.Context, repo Repository, id uuid.UUID, reseller *uuid.UUID) error {
	purchase, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFound(id)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
	}
	if !VisibleTo(purchase, reseller) {
		return NotFound(id)
	}
	return nil
}

// notPendingError explains why a status CAS did not apply.
func notPendingError(ctx context.Context, repo Repository, id uuid.UUID, expected enums.PurchaseStatus) error {
	current, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFound(id)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "purchase is not in the expected state").
		WithDetails(map[string]any{
			"purchase_id": id.String(),
			"status":      string(current.Status),
			"expected":    string(expected),
		})
}
