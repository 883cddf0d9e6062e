package codes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rechargecodes-backend/internal/plans"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
	"github.com/angelmondragon/rechargecodes-backend/pkg/outbox"
)

type serviceFixture struct {
	svc  Service
	conn *gorm.DB
	now  time.Time
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	now := time.Date(2026, 10, 18, 14, 30, 0, 0, time.UTC)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Plans:  plans.NewRepository(conn),
		Tx:     client,
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)
	return serviceFixture{svc: svc, conn: conn, now: now}
}

func TestImportCodesNormalizesAndStampsFromPlan(t *testing.T) {
	f := newServiceFixture(t)
	plan := dbtest.SeedPlan(t, f.conn, "Basic", "19.90")

	res, err := f.svc.ImportCodes(context.Background(), ImportInput{
		PlanID: plan.ID,
		Codes:  []string{" abc-123 ", "Xyz-9"},
	})
	require.NoError(t, err)
	require.Len(t, res.Codes, 2)
	require.Empty(t, res.Duplicates)

	var stored []models.RechargeCode
	require.NoError(t, f.conn.Order("code ASC").Find(&stored).Error)
	require.Len(t, stored, 2)
	require.Equal(t, "ABC-123", stored[0].Code)
	require.Equal(t, "XYZ-9", stored[1].Code)
	for _, code := range stored {
		require.Equal(t, enums.RechargeCodeStatusAvailable, code.Status)
		require.Equal(t, plan.ID, code.PlanID)
		require.Equal(t, plan.AppName, code.AppName)
		require.True(t, code.Value.Equal(plan.Value))
		require.True(t, code.CreatedAt.Equal(f.now), "created_at %s", code.CreatedAt)
		require.True(t, code.ExpiresAt.Equal(f.now.Add(30*24*time.Hour)), "expires_at %s", code.ExpiresAt)
		require.Nil(t, code.SoldAt)
	}

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventRechargeCodesImported, events[0].EventType)
	require.Equal(t, plan.ID, events[0].AggregateID)
}

func TestImportCodesUnknownPlanMutatesNothing(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.ImportCodes(context.Background(), ImportInput{PlanID: uuid.New(), Codes: []string{"A"}})
	require.Error(t, err)
	require.True(t, errors.Is(err, plans.ErrPlanNotFound))
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	var count int64
	require.NoError(t, f.conn.Model(&models.RechargeCode{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestImportCodesRespectsPlanStatus(t *testing.T) {
	f := newServiceFixture(t)
	plan := dbtest.SeedPlan(t, f.conn, "Mensal", "29.90")
	setStatus := func(status enums.PlanStatus) {
		require.NoError(t, f.conn.Model(&models.Plan{}).Where("id = ?", plan.ID).Update("status", status).Error)
	}

	setStatus(enums.PlanStatusPaused)
	res, err := f.svc.ImportCodes(context.Background(), ImportInput{PlanID: plan.ID, Codes: []string{"refill-1"}})
	require.NoError(t, err)
	require.Len(t, res.Codes, 1)

	setStatus(enums.PlanStatusRetired)
	_, err = f.svc.ImportCodes(context.Background(), ImportInput{PlanID: plan.ID, Codes: []string{"refill-2"}})
	require.True(t, errors.Is(err, plans.ErrPlanNotRestockable))
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	var count int64
	require.NoError(t, f.conn.Model(&models.RechargeCode{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestImportCodesCollapsesAndReportsDuplicates(t *testing.T) {
	f := newServiceFixture(t)
	plan := dbtest.SeedPlan(t, f.conn, "Basic", "10.00")
	dbtest.SeedCode(t, f.conn, plan, "EXISTING", enums.RechargeCodeStatusSold, f.now)

	res, err := f.svc.ImportCodes(context.Background(), ImportInput{
		PlanID: plan.ID,
		Codes:  []string{"new-1", "NEW-1", "existing", "new-2"},
	})
	require.NoError(t, err)
	require.Len(t, res.Codes, 2)
	require.Equal(t, []string{"EXISTING"}, res.Duplicates)

	count, err := f.svc.CountByStatus(context.Background(), plan.ID, enums.RechargeCodeStatusAvailable)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestImportCodesValidation(t *testing.T) {
	f := newServiceFixture(t)
	plan := dbtest.SeedPlan(t, f.conn, "Basic", "10.00")

	_, err := f.svc.ImportCodes(context.Background(), ImportInput{PlanID: plan.ID})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.ImportCodes(context.Background(), ImportInput{PlanID: plan.ID, Codes: []string{"OK", "   "}})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestCountsAndExpireStale(t *testing.T) {
	f := newServiceFixture(t)
	plan := dbtest.SeedPlan(t, f.conn, "Basic", "10.00")
	dbtest.SeedCode(t, f.conn, plan, "OLD", enums.RechargeCodeStatusAvailable, f.now.Add(-45*24*time.Hour))
	dbtest.SeedCode(t, f.conn, plan, "LIVE", enums.RechargeCodeStatusAvailable, f.now.Add(-time.Hour))
	dbtest.SeedCode(t, f.conn, plan, "GONE", enums.RechargeCodeStatusSold, f.now.Add(-time.Hour))

	found, err := f.svc.FindAvailable(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Equal(t, "LIVE", found.Code)

	expired, err := f.svc.ExpireStale(context.Background(), 100)
	require.NoError(t, err)
	require.EqualValues(t, 1, expired)

	counts, err := f.svc.Counts(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCounts{PlanID: plan.ID, Available: 1, Sold: 1, Expired: 1}, counts)

	_, err = f.svc.CountByStatus(context.Background(), plan.ID, enums.RechargeCodeStatus("lost"))
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Counts(context.Background(), uuid.New())
	require.True(t, errors.Is(err, plans.ErrPlanNotFound))
}

func TestNormalizeCodes(t *testing.T) {
	out, err := NormalizeCodes([]string{"a", "A", " b "})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, out)
}
