package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/rechargecodes-backend/internal/purchases"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
	"github.com/angelmondragon/rechargecodes-backend/pkg/metrics"
)

const (
	defaultSendTimeout = 10 * time.Second
	defaultConcurrency = 4
)

type ledger interface {
	ListApprovedActive(ctx context.Context, now time.Time) ([]models.Purchase, error)
	MarkReminderSent(ctx context.Context, input purchases.ReminderSentInput) (bool, error)
}

type planLookup interface {
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type reminderMetrics interface {
	IncReminder(milestone, outcome string)
}

// SchedulerParams wires the expiry reminder sweep.
type SchedulerParams struct {
	Purchases   ledger
	Plans       planLookup
	Transport   Transport
	Metrics     reminderMetrics
	Logger      *logger.Logger
	Location    *time.Location
	SendTimeout time.Duration
	Concurrency int
	Now         func() time.Time
}

// SweepResult tallies one sweep.
type SweepResult struct {
	Considered int  `json:"considered"`
	Sent       int  `json:"sent"`
	Failed     int  `json:"failed"`
	Skipped    int  `json:"skipped"`
	Idle       bool `json:"idle"`
	InProgress bool `json:"in_progress"`
}

// Scheduler sends at most one reminder per purchase milestone.
type Scheduler struct {
	purchases   ledger
	plans       planLookup
	transport   Transport
	metrics     reminderMetrics
	logg        *logger.Logger
	loc         *time.Location
	sendTimeout time.Duration
	concurrency int
	now         func() time.Time

	running sync.Mutex
}

// NewScheduler validates dependencies. A nil Transport is allowed and behaves as unconfigured.
func NewScheduler(params SchedulerParams) (*Scheduler, error) {
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchase ledger required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan lookup required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := params.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	var m reminderMetrics = (*metrics.RechargeMetrics)(nil)
	if params.Metrics != nil {
		m = params.Metrics
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		purchases:   params.Purchases,
		plans:       params.Plans,
		transport:   params.Transport,
		metrics:     m,
		logg:        logg,
		loc:         loc,
		sendTimeout: timeout,
		concurrency: concurrency,
		now:         now,
	}, nil
}

// Sweep evaluates every active approved purchase once. Delivery failures are
// logged and counted but never abort the sweep; the returned error only
// aggregates ledger failures.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	if !s.running.TryLock() {
		s.logg.Warn(ctx, "reminder sweep already running; skipping")
		return SweepResult{InProgress: true}, nil
	}
	defer s.running.Unlock()

	if s.transport == nil || !s.transport.Configured() {
		s.logg.Debug(ctx, "reminder transport not configured; sweep idle")
		return SweepResult{Idle: true}, nil
	}

	now := s.now()
	active, err := s.purchases.ListApprovedActive(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list approved purchases: %w", err)
	}

	var (
		mu     sync.Mutex
		result = SweepResult{Considered: len(active)}
		errs   error
	)
	record := func(outcome string, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case metrics.OutcomeSent:
			result.Sent++
		case metrics.OutcomeFailed:
			result.Failed++
		case metrics.OutcomeSkipped:
			result.Skipped++
		}
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range active {
		purchase := active[i]
		milestone, due := DueMilestone(purchase, now, s.loc)
		if !due {
			continue
		}
		g.Go(func() error {
			outcome, err := s.remind(gctx, purchase, milestone, now)
			record(outcome, err)
			return nil
		})
	}
	_ = g.Wait()

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"considered": result.Considered,
		"sent":       result.Sent,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
	})
	s.logg.Info(logCtx, "reminder sweep complete")
	return result, errs
}

// remind handles one due milestone. Only ledger errors are returned; delivery
// problems are reported through the outcome.
func (s *Scheduler) remind(ctx context.Context, purchase models.Purchase, milestone enums.ReminderMilestone, now time.Time) (string, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"purchase_id": purchase.ID.String(),
		"plan_id":     purchase.PlanID.String(),
		"milestone":   milestone.String(),
	})

	plan, err := s.plans.GetPlan(ctx, purchase.PlanID)
	if err != nil {
		s.logg.Debug(logCtx, "plan lookup failed; purchase cannot be reminded")
		s.metrics.IncReminder(milestone.String(), metrics.OutcomeSkipped)
		return metrics.OutcomeSkipped, nil
	}

	days := milestone.DaysBefore()
	message := ComposeMessage(purchase.CustomerData.Name, plan.Name, days, purchase.ExpiresAt, s.loc)
	sent, err := s.send(ctx, purchase.CustomerData.Phone, message)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "reminder send failed; will retry next sweep")
		s.metrics.IncReminder(milestone.String(), metrics.OutcomeFailed)
		return metrics.OutcomeFailed, nil
	}

	latched, err := s.purchases.MarkReminderSent(ctx, purchases.ReminderSentInput{
		PurchaseID: purchase.ID,
		Milestone:  milestone,
		SentAt:     s.now(),
		MessageID:  sent.MessageID,
		ExpiresAt:  purchase.ExpiresAt,
	})
	if err != nil {
		s.logg.Error(logCtx, "failed to latch reminder", err)
		s.metrics.IncReminder(milestone.String(), metrics.OutcomeFailed)
		return metrics.OutcomeFailed, fmt.Errorf("purchase %s %s: %w", purchase.ID, milestone, err)
	}
	if !latched {
		s.logg.Warn(logCtx, "reminder already latched by another sweep")
	}
	s.metrics.IncReminder(milestone.String(), metrics.OutcomeSent)
	s.logg.Info(s.logg.WithField(logCtx, "message_id", sent.MessageID), "reminder sent")
	return metrics.OutcomeSent, nil
}

func (s *Scheduler) send(ctx context.Context, phone, message string) (SendResult, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return SendResult{}, fmt.Errorf("%w: %w", ErrSendFailure, ErrMissingPhone)
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	res, err := s.transport.SendReminder(sendCtx, phone, message)
	if err != nil {
		if errors.Is(err, ErrSendFailure) {
			return SendResult{}, err
		}
		return SendResult{}, fmt.Errorf("%w: %w", ErrSendFailure, err)
	}
	return res, nil
}

// Name identifies the sweep in the cron registry.
func (s *Scheduler) Name() string { return "recharge-expiry-reminders" }

// Run adapts Sweep to the cron job contract.
func (s *Scheduler) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}
