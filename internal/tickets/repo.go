package tickets

import (
	"context"
	"time"

	"github.com/angelmondragon/tixmarket-backend/pkg/db/models"
	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages ticket persistence needed by escrow.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	ListUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Ticket, error)
	ClaimPayout(ctx context.Context, id uuid.UUID, marker string) (bool, error)
	SetPayoutTransfer(ctx context.Context, id uuid.UUID, marker, transferID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a tickets repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ticket).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

// ListUnpaidBefore returns valid tickets purchased before cutoff that were
// never paid out and never entered escrow.
func (r *repository) ListUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Ticket, error) {
	var rows []models.Ticket
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.TicketStatusValid).
		Where("payout_transfer_id IS NULL").
		Where("price_cents > 0").
		Where("purchased_at < ?", cutoff).
		Where("NOT EXISTS (SELECT 1 FROM escrow_holds h WHERE h.ticket_id = tickets.id)").
		Order("purchased_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ClaimPayout stamps marker on an unpaid ticket. Only one caller can win.
func (r *repository) ClaimPayout(ctx context.Context, id uuid.UUID, marker string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND payout_transfer_id IS NULL", id).
		Update("payout_transfer_id", marker)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetPayoutTransfer replaces the claim marker with the final transfer reference.
func (r *repository) SetPayoutTransfer(ctx context.Context, id uuid.UUID, marker, transferID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND payout_transfer_id = ?", id, marker).
		Update("payout_transfer_id", transferID).Error
}
