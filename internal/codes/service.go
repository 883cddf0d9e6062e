package codes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rechargecodes-backend/internal/plans"
	dbpkg "github.com/angelmondragon/rechargecodes-backend/pkg/db"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
	"github.com/angelmondragon/rechargecodes-backend/pkg/outbox"
	"github.com/angelmondragon/rechargecodes-backend/pkg/outbox/payloads"
)

const (
	// DefaultExpiryHorizon is how long an imported code stays sellable.
	DefaultExpiryHorizon = 30 * 24 * time.Hour
	defaultMaxImportSize = 5000

	uniqueCodeConstraint = "ux_recharge_codes_code"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes the code pool operations.
type Service interface {
	ImportCodes(ctx context.Context, input ImportInput) (*ImportResult, error)
	FindAvailable(ctx context.Context, planID uuid.UUID) (*models.RechargeCode, error)
	CountByStatus(ctx context.Context, planID uuid.UUID, status enums.RechargeCodeStatus) (int, error)
	Counts(ctx context.Context, planID uuid.UUID) (StatusCounts, error)
	ExpireStale(ctx context.Context, limit int) (int64, error)
}

// ImportInput carries a replenishment batch for one plan.
type ImportInput struct {
	PlanID uuid.UUID
	Codes  []string
	Actor  *outbox.ActorRef
}

// ImportResult lists the codes created and the strings skipped because they already exist.
type ImportResult struct {
	Codes      []models.RechargeCode `json:"codes"`
	Duplicates []string              `json:"duplicates"`
}

// StatusCounts reports a plan's pool by status.
type StatusCounts struct {
	PlanID    uuid.UUID `json:"plan_id"`
	Available int       `json:"available"`
	Sold      int       `json:"sold"`
	Expired   int       `json:"expired"`
}

// ServiceParams wires the code pool service.
type ServiceParams struct {
	Repo          Repository
	Plans         plans.Repository
	Tx            txRunner
	Outbox        outboxPublisher
	Logger        *logger.Logger
	ExpiryHorizon time.Duration
	MaxImportSize int
	Now           func() time.Time
}

type service struct {
	repo      Repository
	plans     plans.Repository
	tx        txRunner
	outbox    outboxPublisher
	logg      *logger.Logger
	horizon   time.Duration
	maxImport int
	now       func() time.Time
}

// NewService wires the code pool service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("codes repository required")
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
	horizon := params.ExpiryHorizon
	if horizon <= 0 {
		horizon = DefaultExpiryHorizon
	}
	maxImport := params.MaxImportSize
	if maxImport <= 0 {
		maxImport = defaultMaxImportSize
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
		repo:      params.Repo,
		plans:     params.Plans,
		tx:        params.Tx,
		outbox:    params.Outbox,
		logg:      logg,
		horizon:   horizon,
		maxImport: maxImport,
		now:       now,
	}, nil
}

// NormalizeCodes trims and upper-cases each code, dropping in-batch repeats
// while keeping first-seen order.
func NormalizeCodes(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for i, value := range raw {
		code := strings.ToUpper(strings.TrimSpace(value))
		if code == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "codes must not be blank").
				WithDetails(map[string]any{"index": i})
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out, nil
}

func (s *service) ImportCodes(ctx context.Context, input ImportInput) (*ImportResult, error) {
	if len(input.Codes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one code is required")
	}
	if len(input.Codes) > s.maxImport {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "import batch too large").
			WithDetails(map[string]any{"max": s.maxImport, "received": len(input.Codes)})
	}
	normalized, err := NormalizeCodes(input.Codes)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		plan, err := s.plans.WithTx(tx).GetPlan(ctx, input.PlanID)
		if err != nil {
			return err
		}
		if err := plans.RequireRestockable(plan); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)

		existing, err := repo.ExistingCodes(ctx, normalized)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing codes")
		}
		taken := make(map[string]struct{}, len(existing))
		for _, code := range existing {
			taken[code] = struct{}{}
		}

		now := s.now().UTC()
		expiresAt := now.Add(s.horizon)
		rows := make([]models.RechargeCode, 0, len(normalized))
		duplicates := make([]string, 0, len(existing))
		for _, code := range normalized {
			if _, dup := taken[code]; dup {
				duplicates = append(duplicates, code)
				continue
			}
			rows = append(rows, models.RechargeCode{
				ID:        uuid.New(),
				Code:      code,
				Value:     plan.Value,
				Status:    enums.RechargeCodeStatusAvailable,
				PlanID:    plan.ID,
				AppName:   plan.AppName,
				CreatedAt: now,
				ExpiresAt: expiresAt,
			})
		}
		sort.Strings(duplicates)
		result.Duplicates = duplicates
		result.Codes = rows
		if len(rows) == 0 {
			return nil
		}

		if err := repo.CreateBatch(ctx, rows); err != nil {
			if dbpkg.IsUniqueViolation(err, uniqueCodeConstraint) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "recharge code imported concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert recharge codes")
		}

		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRechargeCodesImported,
			AggregateType: enums.AggregatePlan,
			AggregateID:   plan.ID,
			Actor:         input.Actor,
			Data: payloads.RechargeCodesImportedEvent{
				PlanID:     plan.ID,
				CodeIDs:    ids,
				Duplicates: len(duplicates),
				ExpiresAt:  expiresAt,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"plan_id":    input.PlanID.String(),
		"imported":   len(result.Codes),
		"duplicates": len(result.Duplicates),
	})
	s.logg.Info(logCtx, "recharge codes imported")
	return result, nil
}

func (s *service) FindAvailable(ctx context.Context, planID uuid.UUID) (*models.RechargeCode, error) {
	code, err := s.repo.FindAvailable(ctx, planID, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find available code")
	}
	return code, nil
}

func (s *service) CountByStatus(ctx context.Context, planID uuid.UUID, status enums.RechargeCodeStatus) (int, error) {
	if !status.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid recharge code status").
			WithDetails(map[string]any{"status": string(status)})
	}
	count, err := s.repo.CountByStatus(ctx, planID, status)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count recharge codes")
	}
	return int(count), nil
}

// Counts reports every status for a plan after confirming the plan exists.
func (s *service) Counts(ctx context.Context, planID uuid.UUID) (StatusCounts, error) {
	if _, err := s.plans.GetPlan(ctx, planID); err != nil {
		return StatusCounts{}, err
	}
	out := StatusCounts{PlanID: planID}
	targets := map[enums.RechargeCodeStatus]*int{
		enums.RechargeCodeStatusAvailable: &out.Available,
		enums.RechargeCodeStatusSold:      &out.Sold,
		enums.RechargeCodeStatusExpired:   &out.Expired,
	}
	for status, dst := range targets {
		count, err := s.CountByStatus(ctx, planID, status)
		if err != nil {
			return StatusCounts{}, err
		}
		*dst = count
	}
	return out, nil
}

func (s *service) ExpireStale(ctx context.Context, limit int) (int64, error) {
	expired, err := s.repo.ExpireStale(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire stale codes")
	}
	return expired, nil
}
