package purchases

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rechargecodes-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	"github.com/angelmondragon/rechargecodes-backend/pkg/pagination"
)

func seedPurchase(t *testing.T, conn *gorm.DB, plan models.Plan, status enums.PurchaseStatus, createdAt time.Time, mutate func(*models.Purchase)) models.Purchase {
	t.Helper()
	buyer := Buyer{
		CustomerID:    uuid.New(),
		PaymentMethod: enums.PaymentMethodPix,
		PaymentID:     "pay_" + uuid.NewString()[:8],
		Customer:      models.CustomerData{Name: "Maria Souza", Phone: "+5511999990000"},
	}
	p := NewPurchase(&plan, buyer, status, createdAt.UTC())
	if status == enums.PurchaseStatusApproved {
		approvedAt := createdAt.UTC()
		codeID := uuid.New()
		p.ApprovedAt = &approvedAt
		p.AssignedCodeID = &codeID
		p.RechargeCode = "CODE-" + codeID.String()[:6]
	}
	if mutate != nil {
		mutate(&p)
	}
	require.NoError(t, conn.Create(&p).Error)
	return p
}

func TestListByStatusAndActive(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()
	plan := dbtest.SeedPlan(t, conn, "Basic", "10.00")

	first := seedPurchase(t, conn, plan, enums.PurchaseStatusPendingCodeDelivery, now.Add(-2*time.Hour), nil)
	second := seedPurchase(t, conn, plan, enums.PurchaseStatusPendingCodeDelivery, now.Add(-time.Hour), nil)
	seedPurchase(t, conn, plan, enums.PurchaseStatusRejected, now, nil)
	active := seedPurchase(t, conn, plan, enums.PurchaseStatusApproved, now.Add(-time.Hour), nil)
	seedPurchase(t, conn, plan, enums.PurchaseStatusApproved, now.Add(-40*24*time.Hour), nil)

	pending, err := repo.ListByStatus(ctx, enums.PurchaseStatusPendingCodeDelivery)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID)
	require.Equal(t, second.ID, pending[1].ID)
	require.Equal(t, "Maria Souza", pending[0].CustomerData.Name)

	approved, err := repo.ListByStatus(ctx, enums.PurchaseStatusApproved)
	require.NoError(t, err)
	require.Len(t, approved, 2)

	live, err := repo.ListApprovedActive(ctx, now)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, active.ID, live[0].ID)
}

func TestTransitionIsCompareAndSet(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	plan := dbtest.SeedPlan(t, conn, "Basic", "10.00")
	p := seedPurchase(t, conn, plan, enums.PurchaseStatusPending, time.Now(), nil)

	ok, err := repo.Transition(ctx, p.ID, enums.PurchaseStatusPending, map[string]any{"status": enums.PurchaseStatusRejected})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Transition(ctx, p.ID, enums.PurchaseStatusPending, map[string]any{"status": enums.PurchaseStatusPendingCodeDelivery})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.Transition(ctx, uuid.New(), enums.PurchaseStatusPending, map[string]any{"status": enums.PurchaseStatusRejected})
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PurchaseStatusRejected, stored.Status)
}

func TestMarkReminderSentLatchesOnce(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()
	plan := dbtest.SeedPlan(t, conn, "Basic", "10.00")
	p := seedPurchase(t, conn, plan, enums.PurchaseStatusApproved, now, nil)

	ok, err := repo.MarkReminderSent(ctx, p.ID, enums.ReminderOneDay, now, "wamid.1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.MarkReminderSent(ctx, p.ID, enums.ReminderOneDay, now.Add(time.Minute), "wamid.2")
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, stored.ExpiryReminders.OneDay.Sent)
	require.NotNil(t, stored.ExpiryReminders.OneDay.MessageID)
	require.Equal(t, "wamid.1", *stored.ExpiryReminders.OneDay.MessageID)
	require.False(t, stored.ExpiryReminders.ThreeDays.Sent)
	require.False(t, stored.ExpiryReminders.Today.Sent)
	require.Nil(t, stored.ExpiryReminders.Today.SentAt)
}

func TestListApprovedPageWalksEveryRowOnce(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	plan := dbtest.SeedPlan(t, conn, "Basic", "10.00")

	want := map[uuid.UUID]bool{}
	for i := 0; i < 5; i++ {
		p := seedPurchase(t, conn, plan, enums.PurchaseStatusApproved, now.Add(-time.Duration(i)*time.Minute), nil)
		want[p.ID] = true
	}
	seedPurchase(t, conn, plan, enums.PurchaseStatusPendingCodeDelivery, now, nil)

	seen := map[uuid.UUID]bool{}
	var cursorPtr *pagination.Cursor
	pages := 0
	for {
		rows, next, err := repo.ListApprovedPage(ctx, 2, cursorPtr)
		require.NoError(t, err)
		pages++
		for _, row := range rows {
			require.False(t, seen[row.ID], "row %s returned twice", row.ID)
			seen[row.ID] = true
		}
		if next == nil {
			break
		}
		cursorPtr = next
	}
	require.Equal(t, 3, pages)
	require.Equal(t, want, seen)
}

func TestCountsForStats(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	day := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	plan := dbtest.SeedPlan(t, conn, "Basic", "10.00")

	seedPurchase(t, conn, plan, enums.PurchaseStatusPendingCodeDelivery, day, nil)
	seedPurchase(t, conn, plan, enums.PurchaseStatusApproved, day, func(p *models.Purchase) { p.ExpiresAt = day.Add(23 * time.Hour) })
	seedPurchase(t, conn, plan, enums.PurchaseStatusApproved, day, func(p *models.Purchase) { p.ExpiresAt = day.Add(24 * time.Hour) })

	pending, err := repo.CountByStatus(ctx, enums.PurchaseStatusPendingCodeDelivery)
	require.NoError(t, err)
	require.EqualValues(t, 1, pending)

	today, err := repo.CountApprovedExpiringBetween(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, today)
}
