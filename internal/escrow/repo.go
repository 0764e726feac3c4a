package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tixmarket-backend/pkg/db/models"
	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
)

// ReleaseClaim is stamped on a hold by whoever wins the held -> released race.
type ReleaseClaim struct {
	At     time.Time
	By     *uuid.UUID
	Source enums.ReleaseSource
}

// PayoutRecord is the result of the payout attempt that followed a claim.
type PayoutRecord struct {
	Outcome            enums.PayoutOutcome
	OutboundTransferID *string
	LastError          *string
}

// Repository persists escrow holds. Every status change is a conditional
// update on the expected current status so transitions can only move forward.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, hold *models.EscrowHold) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowHold, error)
	MarkHeld(ctx context.Context, id uuid.UUID, inboundTransferID string) (bool, error)
	RecordFundingError(ctx context.Context, id uuid.UUID, message string) error
	ClaimRelease(ctx context.Context, id uuid.UUID, claim ReleaseClaim) (bool, error)
	RecordPayout(ctx context.Context, id uuid.UUID, record PayoutRecord) error
	ListHeldBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.EscrowHold, error)
	List(ctx context.Context, status enums.EscrowStatus, limit int) ([]models.EscrowHold, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an escrow repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, hold *models.EscrowHold) error {
	return r.db.WithContext(ctx).Create(hold).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowHold, error) {
	var hold models.EscrowHold
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&hold).Error; err != nil {
		return nil, err
	}
	return &hold, nil
}

// MarkHeld moves a pending hold to held. It reports false when the hold was no
// longer pending.
func (r *repository) MarkHeld(ctx context.Context, id uuid.UUID, inboundTransferID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.EscrowHold{}).
		Where("id = ? AND status = ?", id, enums.EscrowStatusPending).
		Updates(map[string]any{
			"status":              enums.EscrowStatusHeld,
			"inbound_transfer_id": inboundTransferID,
			"last_error":          nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordFundingError stores the failure on a pending hold and advances its
// funding attempt counter, which scopes the provider idempotency key.
func (r *repository) RecordFundingError(ctx context.Context, id uuid.UUID, message string) error {
	return r.db.WithContext(ctx).
		Model(&models.EscrowHold{}).
		Where("id = ? AND status = ?", id, enums.EscrowStatusPending).
		Updates(map[string]any{
			"last_error":       message,
			"funding_attempts": gorm.Expr("funding_attempts + 1"),
		}).Error
}

// ClaimRelease is the single atomic held -> released transition. Exactly one
// concurrent caller observes true.
func (r *repository) ClaimRelease(ctx context.Context, id uuid.UUID, claim ReleaseClaim) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.EscrowHold{}).
		Where("id = ? AND status = ?", id, enums.EscrowStatusHeld).
		Updates(map[string]any{
			"status":         enums.EscrowStatusReleased,
			"released_at":    claim.At,
			"released_by":    claim.By,
			"release_source": claim.Source,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordPayout stores the payout outcome of a released hold. It never touches
// status or released_at.
func (r *repository) RecordPayout(ctx context.Context, id uuid.UUID, record PayoutRecord) error {
	return r.db.WithContext(ctx).
		Model(&models.EscrowHold{}).
		Where("id = ? AND status = ?", id, enums.EscrowStatusReleased).
		Updates(map[string]any{
			"payout_outcome":       record.Outcome,
			"outbound_transfer_id": record.OutboundTransferID,
			"last_error":           record.LastError,
		}).Error
}

// ListHeldBefore returns held holds created strictly before cutoff, oldest first.
func (r *repository) ListHeldBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.EscrowHold, error) {
	var rows []models.EscrowHold
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.EscrowStatusHeld).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// List returns holds in status, newest first. An empty status lists all.
func (r *repository) List(ctx context.Context, status enums.EscrowStatus, limit int) ([]models.EscrowHold, error) {
	var rows []models.EscrowHold
	query := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
