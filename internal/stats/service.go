package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
)

type codeTotals interface {
	SumSoldValue(ctx context.Context, from, to *time.Time) (decimal.Decimal, error)
}

type purchaseCounts interface {
	CountByStatus(ctx context.Context, status enums.PurchaseStatus) (int64, error)
	CountApprovedExpiringBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// Snapshot is the operator dashboard summary.
type Snapshot struct {
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TodayRevenue      decimal.Decimal `json:"today_revenue"`
	ExpiringToday     int64           `json:"expiring_today"`
	PendingDeliveries int64           `json:"pending_deliveries"`
	Day               string          `json:"day"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// Service computes dashboard snapshots.
type Service interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// ServiceParams wires the aggregator. Location defines the calendar day used for "today".
type ServiceParams struct {
	Codes     codeTotals
	Purchases purchaseCounts
	Location  *time.Location
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	codes     codeTotals
	purchases purchaseCounts
	loc       *time.Location
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Codes == nil {
		return nil, fmt.Errorf("codes repository required")
	}
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchases repository required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		codes:     params.Codes,
		purchases: params.Purchases,
		loc:       loc,
		logg:      logg,
		now:       now,
	}, nil
}

// DayBounds returns [start, end) of the calendar day containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func (s *service) Snapshot(ctx context.Context) (*Snapshot, error) {
	now := s.now()
	start, end := DayBounds(now, s.loc)
	startUTC, endUTC := start.UTC(), end.UTC()

	snap := &Snapshot{
		Day:         start.Format("2006-01-02"),
		GeneratedAt: now.UTC(),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, err := s.codes.SumSoldValue(gctx, nil, nil)
		if err != nil {
			return fmt.Errorf("total revenue: %w", err)
		}
		snap.TotalRevenue = total
		return nil
	})
	g.Go(func() error {
		today, err := s.codes.SumSoldValue(gctx, &startUTC, &endUTC)
		if err != nil {
			return fmt.Errorf("today revenue: %w", err)
		}
		snap.TodayRevenue = today
		return nil
	})
	g.Go(func() error {
		n, err := s.purchases.CountApprovedExpiringBetween(gctx, startUTC, endUTC)
		if err != nil {
			return fmt.Errorf("expiring today: %w", err)
		}
		snap.ExpiringToday = n
		return nil
	})
	g.Go(func() error {
		n, err := s.purchases.CountByStatus(gctx, enums.PurchaseStatusPendingCodeDelivery)
		if err != nil {
			return fmt.Errorf("pending deliveries: %w", err)
		}
		snap.PendingDeliveries = n
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logg.Error(ctx, "stats snapshot failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute stats")
	}
	return snap, nil
}
