package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rechargecodes-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
	"github.com/angelmondragon/rechargecodes-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client, conn := dbtest.Client(t)
	svc := NewService(NewRepository(conn), logger.Nop())
	purchaseID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPurchasePaymentRejected,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchaseID,
			Actor:         &ActorRef{UserID: uuid.New(), Role: "admin"},
			Data:          payloads.PurchasePaymentRejectedEvent{PurchaseID: purchaseID, Reason: "card_declined"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, purchaseID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, CurrentVersion, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.Equal(t, "admin", envelope.Actor.Role)

	var data payloads.PurchasePaymentRejectedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, "card_declined", data.Reason)
}

func TestEmitRollsBackWithBusinessWrite(t *testing.T) {
	client, conn := dbtest.Client(t)
	svc := NewService(NewRepository(conn), nil)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventRechargeCodeSold,
			AggregateType: enums.AggregateRechargeCode,
			AggregateID:   uuid.New(),
			Data:          payloads.RechargeCodeSoldEvent{},
		}); err != nil {
			return err
		}
		return errors.New("claim failed")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitRejectsUnknownEventAndMissingTx(t *testing.T) {
	_, conn := dbtest.Client(t)
	svc := NewService(NewRepository(conn), nil)

	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventRechargeCodeSold}))
	require.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: "nope"}))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	_, conn := dbtest.Client(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	old := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventRechargeCodeSold,
		AggregateType: enums.AggregateRechargeCode,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		CreatedAt:     time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, repo.Insert(conn, old))

	rows, err := repo.FetchUnpublished(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.MarkFailed(ctx, old.ID, errors.New("unavailable")))
	}
	rows, err = repo.FetchUnpublished(ctx, 10, 3)
	require.NoError(t, err)
	require.Empty(t, rows)

	exhausted, err := repo.FetchExhausted(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, exhausted, 1)
	require.Equal(t, 3, exhausted[0].AttemptCount)

	require.NoError(t, repo.MarkPublished(ctx, old.ID))
	deleted, err := repo.DeletePublishedBefore(ctx, nil, time.Now().UTC().Add(time.Minute), 5)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}
