package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tixmarket-backend/pkg/db/models"
)

// Repository persists payout_transfers rows. Rows are append-only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transfer *models.PayoutTransfer) error
	ExistsForTicket(ctx context.Context, ticketID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, transfer *models.PayoutTransfer) error {
	return r.db.WithContext(ctx).Create(transfer).Error
}

func (r *repository) ExistsForTicket(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.PayoutTransfer{}).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Pluck("id", &ids).Error
	return len(ids) > 0, err
}
