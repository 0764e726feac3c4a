package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/tixmarket-backend/pkg/db/models"
	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
	"github.com/angelmondragon/tixmarket-backend/pkg/logger"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`
CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`).Error)
	return db
}

func insertEvent(t *testing.T, db *gorm.DB, createdAt time.Time, published bool, attempts int) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		EventType:     enums.EventEscrowHoldReleased,
		AggregateType: enums.AggregateEscrowHold,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		CreatedAt:     createdAt,
		AttemptCount:  attempts,
	}
	if published {
		at := createdAt.Add(time.Minute)
		row.PublishedAt = &at
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func TestServiceEmitStoresEnvelope(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}))
	holdID := uuid.New()
	adminID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventEscrowHoldReleased,
			AggregateType: enums.AggregateEscrowHold,
			AggregateID:   holdID,
			Actor:         &ActorRef{UserID: &adminID, Role: "admin"},
			Data:          map[string]any{"hold_id": holdID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, holdID, rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, adminID, *envelope.Actor.UserID)
	assert.JSONEq(t, fmt.Sprintf(`{"hold_id":%q}`, holdID.String()), string(envelope.Data))
}

func TestServiceEmitRejectsUnknownTypes(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     "order_created",
			AggregateType: enums.AggregateEscrowHold,
			AggregateID:   uuid.New(),
		})
	})
	require.Error(t, err)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestRepositoryFetchSkipsPublishedAndExhausted(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	first := insertEvent(t, db, base, false, 0)
	insertEvent(t, db, base.Add(time.Second), true, 0)
	insertEvent(t, db, base.Add(2*time.Second), false, 10)
	second := insertEvent(t, db, base.Add(3*time.Second), false, 3)

	var rows []models.OutboxEvent
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		rows, err = repo.FetchUnpublishedForPublish(tx, 10, 10)
		return err
	}))
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, second.ID, rows[1].ID)
}

func TestRepositoryMarkFailedAndPublished(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	row := insertEvent(t, db, time.Now().UTC(), false, 0)

	require.NoError(t, repo.MarkFailedTx(db, row.ID, errors.New("pubsub unavailable")))
	require.NoError(t, repo.MarkFailedTx(db, row.ID, errors.New("pubsub unavailable")))

	var stored models.OutboxEvent
	require.NoError(t, db.Where("id = ?", row.ID).First(&stored).Error)
	assert.Equal(t, 2, stored.AttemptCount)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "pubsub unavailable", *stored.LastError)

	require.NoError(t, repo.MarkPublishedTx(db, row.ID))
	require.NoError(t, db.Where("id = ?", row.ID).First(&stored).Error)
	assert.NotNil(t, stored.PublishedAt)

	require.NoError(t, repo.MarkTerminalTx(db, row.ID, errors.New("bad payload"), 10))
	require.NoError(t, db.Where("id = ?", row.ID).First(&stored).Error)
	assert.Equal(t, 10, stored.AttemptCount)
}

func TestRepositoryPruneBefore(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	oldPublished := insertEvent(t, db, cutoff.Add(-48*time.Hour), true, 0)
	oldDead := insertEvent(t, db, cutoff.Add(-48*time.Hour), false, 10)
	oldPending := insertEvent(t, db, cutoff.Add(-48*time.Hour), false, 2)
	recentPublished := insertEvent(t, db, cutoff.Add(time.Hour), true, 0)

	var deleted int64
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.PruneBefore(context.Background(), tx, cutoff, 10, 0)
		return err
	}))
	assert.Equal(t, int64(2), deleted)

	var remaining []uuid.UUID
	require.NoError(t, db.Model(&models.OutboxEvent{}).Order("created_at ASC").Pluck("id", &remaining).Error)
	assert.ElementsMatch(t, []uuid.UUID{oldPending.ID, recentPublished.ID}, remaining)
	assert.NotContains(t, remaining, oldPublished.ID)
	assert.NotContains(t, remaining, oldDead.ID)
}

func TestRepositoryPruneBeforeHonorsBatchLimit(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	oldest := insertEvent(t, db, cutoff.Add(-72*time.Hour), true, 0)
	older := insertEvent(t, db, cutoff.Add(-48*time.Hour), true, 0)
	old := insertEvent(t, db, cutoff.Add(-24*time.Hour), true, 0)

	var deleted int64
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.PruneBefore(context.Background(), tx, cutoff, 10, 2)
		return err
	}))
	assert.Equal(t, int64(2), deleted)

	var remaining []uuid.UUID
	require.NoError(t, db.Model(&models.OutboxEvent{}).Pluck("id", &remaining).Error)
	assert.Equal(t, []uuid.UUID{old.ID}, remaining)
	assert.NotContains(t, remaining, oldest.ID)
	assert.NotContains(t, remaining, older.ID)
}

func TestPayloadEnvelopeValidate(t *testing.T) {
	valid := PayloadEnvelope{Version: EnvelopeVersion, EventID: uuid.NewString(), OccurredAt: time.Now()}
	assert.NoError(t, valid.Validate())

	badVersion := valid
	badVersion.Version = 2
	assert.Error(t, badVersion.Validate())

	badID := valid
	badID.EventID = "evt-1"
	assert.Error(t, badID.Validate())

	noTime := valid
	noTime.OccurredAt = time.Time{}
	assert.Error(t, noTime.Validate())
}
