package tickets

import (
	"context"
	"fmt"
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

func setupTicketsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	tickets := `
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
);`
	holds := `
CREATE TABLE escrow_holds (
  id TEXT PRIMARY KEY,
  ticket_id TEXT NOT NULL
);`
	require.NoError(t, db.Exec(tickets).Error)
	require.NoError(t, db.Exec(holds).Error)
	return db
}

func seedTicket(t *testing.T, db *gorm.DB, status enums.TicketStatus, purchasedAt time.Time, payoutID *string) models.Ticket {
	t.Helper()
	ticket := models.Ticket{
		EventID:          uuid.New(),
		BuyerID:          uuid.New(),
		SellerID:         uuid.New(),
		Status:           status,
		PriceCents:       5000,
		PurchasedAt:      purchasedAt,
		PayoutTransferID: payoutID,
	}
	require.NoError(t, db.Create(&ticket).Error)
	return ticket
}

func TestListUnpaidBefore(t *testing.T) {
	db := setupTicketsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)

	eligible := seedTicket(t, db, enums.TicketStatusValid, now.Add(-48*time.Hour), nil)
	seedTicket(t, db, enums.TicketStatusValid, now, nil)
	seedTicket(t, db, enums.TicketStatusCancelled, now.Add(-48*time.Hour), nil)
	paid := "tr_done"
	seedTicket(t, db, enums.TicketStatusValid, now.Add(-48*time.Hour), &paid)
	escrowed := seedTicket(t, db, enums.TicketStatusValid, now.Add(-48*time.Hour), nil)
	require.NoError(t, db.Exec("INSERT INTO escrow_holds (id, ticket_id) VALUES (?, ?)", uuid.NewString(), escrowed.ID.String()).Error)

	rows, err := repo.ListUnpaidBefore(ctx, cutoff, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, eligible.ID, rows[0].ID)
}

func TestClaimPayoutSingleWinner(t *testing.T) {
	db := setupTicketsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	ticket := seedTicket(t, db, enums.TicketStatusValid, time.Now().Add(-48*time.Hour), nil)

	ok, err := repo.ClaimPayout(ctx, ticket.ID, "claim:a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ClaimPayout(ctx, ticket.ID, "claim:b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetPayoutTransfer(ctx, ticket.ID, "claim:b", "tr_wrong"))
	require.NoError(t, repo.SetPayoutTransfer(ctx, ticket.ID, "claim:a", "tr_123"))

	got, err := repo.FindByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PayoutTransferID)
	assert.Equal(t, "tr_123", *got.PayoutTransferID)
}
