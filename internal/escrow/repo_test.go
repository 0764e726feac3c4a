package escrow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/tixmarket-backend/pkg/db/models"
	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func setupEscrowTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	ddl := []string{`
CREATE TABLE escrow_holds (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  ticket_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  payment_reference TEXT NOT NULL,
  total_amount_cents INTEGER NOT NULL CHECK (total_amount_cents > 0),
  platform_fee_cents INTEGER NOT NULL,
  seller_amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  payout_outcome TEXT,
  inbound_transfer_id TEXT,
  outbound_transfer_id TEXT,
  released_at DATETIME,
  released_by TEXT,
  release_source TEXT,
  last_error TEXT,
  funding_attempts INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (platform_fee_cents + seller_amount_cents = total_amount_cents)
);`, `
CREATE TABLE tickets (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  status TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  purchased_at DATETIME NOT NULL,
  payout_transfer_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE profiles (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  role TEXT NOT NULL,
  stripe_account_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE payout_transfers (
  id TEXT PRIMARY KEY,
  hold_id TEXT,
  ticket_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  gross_cents INTEGER NOT NULL,
  platform_fee_cents INTEGER NOT NULL,
  processor_fee_cents INTEGER NOT NULL,
  net_cents INTEGER NOT NULL,
  provider_transfer_id TEXT NOT NULL,
  source TEXT NOT NULL,
  created_at DATETIME
);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedHold(t *testing.T, db *gorm.DB, status enums.EscrowStatus, createdAt time.Time) models.EscrowHold {
	t.Helper()
	inbound := "tr_in_" + uuid.NewString()[:8]
	hold := models.EscrowHold{
		EventID:           uuid.New(),
		TicketID:          uuid.New(),
		BuyerID:           uuid.New(),
		SellerID:          uuid.New(),
		PaymentReference:  "pi_test",
		TotalAmountCents:  10000,
		PlatformFeeCents:  500,
		SellerAmountCents: 9500,
		Currency:          "usd",
		Status:            status,
		CreatedAt:         createdAt,
	}
	if status != enums.EscrowStatusPending {
		hold.InboundTransferID = &inbound
	}
	require.NoError(t, db.Create(&hold).Error)
	return hold
}

func TestRepositoryMarkHeldOnlyFromPending(t *testing.T) {
	db := setupEscrowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	pending := seedHold(t, db, enums.EscrowStatusPending, testNow)
	released := seedHold(t, db, enums.EscrowStatusReleased, testNow)

	ok, err := repo.MarkHeld(ctx, pending.ID, "tr_in")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkHeld(ctx, pending.ID, "tr_in_again")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkHeld(ctx, released.ID, "tr_in")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusHeld, stored.Status)
	require.NotNil(t, stored.InboundTransferID)
	assert.Equal(t, "tr_in", *stored.InboundTransferID)

	reloaded, err := repo.FindByID(ctx, released.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusReleased, reloaded.Status)
}

func TestRepositoryClaimReleaseSingleWinner(t *testing.T) {
	db := setupEscrowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	hold := seedHold(t, db, enums.EscrowStatusHeld, testNow.Add(-48*time.Hour))

	const callers = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ClaimRelease(ctx, hold.ID, ReleaseClaim{At: testNow, Source: enums.ReleaseSourceSweep})
			if err != nil {
				t.Errorf("claim release: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	stored, err := repo.FindByID(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusReleased, stored.Status)
	require.NotNil(t, stored.ReleasedAt)
	require.NotNil(t, stored.ReleaseSource)
	assert.Equal(t, enums.ReleaseSourceSweep, *stored.ReleaseSource)
	assert.Nil(t, stored.ReleasedBy)
}

func TestRepositoryClaimReleaseRejectsPending(t *testing.T) {
	db := setupEscrowTestDB(t)
	repo := NewRepository(db)
	hold := seedHold(t, db, enums.EscrowStatusPending, testNow)

	ok, err := repo.ClaimRelease(context.Background(), hold.ID, ReleaseClaim{At: testNow, Source: enums.ReleaseSourceAdmin})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryRecordPayoutRequiresReleased(t *testing.T) {
	db := setupEscrowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	held := seedHold(t, db, enums.EscrowStatusHeld, testNow)
	transferID := "po_123"

	require.NoError(t, repo.RecordPayout(ctx, held.ID, PayoutRecord{Outcome: enums.PayoutOutcomeConfirmed, OutboundTransferID: &transferID}))
	stored, err := repo.FindByID(ctx, held.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PayoutOutcome)

	ok, err := repo.ClaimRelease(ctx, held.ID, ReleaseClaim{At: testNow, Source: enums.ReleaseSourceAdmin})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.RecordPayout(ctx, held.ID, PayoutRecord{Outcome: enums.PayoutOutcomeConfirmed, OutboundTransferID: &transferID}))

	stored, err = repo.FindByID(ctx, held.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PayoutOutcome)
	assert.Equal(t, enums.PayoutOutcomeConfirmed, *stored.PayoutOutcome)
	require.NotNil(t, stored.OutboundTransferID)
	assert.Equal(t, transferID, *stored.OutboundTransferID)
}

func TestRepositoryListHeldBeforeExcludesRecent(t *testing.T) {
	db := setupEscrowTestDB(t)
	repo := NewRepository(db)
	cutoff := testNow.Add(-24 * time.Hour)

	older := seedHold(t, db, enums.EscrowStatusHeld, testNow.Add(-72*time.Hour))
	old := seedHold(t, db, enums.EscrowStatusHeld, testNow.Add(-48*time.Hour))
	seedHold(t, db, enums.EscrowStatusHeld, testNow)
	seedHold(t, db, enums.EscrowStatusHeld, cutoff)
	seedHold(t, db, enums.EscrowStatusPending, testNow.Add(-48*time.Hour))
	seedHold(t, db, enums.EscrowStatusReleased, testNow.Add(-48*time.Hour))

	rows, err := repo.ListHeldBefore(context.Background(), cutoff, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, older.ID, rows[0].ID)
	assert.Equal(t, old.ID, rows[1].ID)
}

func TestRepositoryListFiltersByStatus(t *testing.T) {
	db := setupEscrowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seedHold(t, db, enums.EscrowStatusHeld, testNow.Add(-time.Hour))
	seedHold(t, db, enums.EscrowStatusHeld, testNow)
	seedHold(t, db, enums.EscrowStatusPending, testNow)

	held, err := repo.List(ctx, enums.EscrowStatusHeld, 0)
	require.NoError(t, err)
	assert.Len(t, held, 2)
	assert.True(t, held[0].CreatedAt.After(held[1].CreatedAt))

	all, err := repo.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRepositoryRecordFundingErrorOnlyWhilePending(t *testing.T) {
	db := setupEscrowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	pending := seedHold(t, db, enums.EscrowStatusPending, testNow)
	held := seedHold(t, db, enums.EscrowStatusHeld, testNow)

	require.NoError(t, repo.RecordFundingError(ctx, pending.ID, "card_declined"))
	require.NoError(t, repo.RecordFundingError(ctx, held.ID, "late error"))

	stored, err := repo.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "card_declined", *stored.LastError)
	assert.Equal(t, 1, stored.FundingAttempts)

	require.NoError(t, repo.RecordFundingError(ctx, pending.ID, "balance_insufficient"))
	stored, err = repo.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "balance_insufficient", *stored.LastError)
	assert.Equal(t, 2, stored.FundingAttempts)

	stored, err = repo.FindByID(ctx, held.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastError)
	assert.Zero(t, stored.FundingAttempts)
}
