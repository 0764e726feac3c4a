package ledger

import (
	"context"
	"errors"
	"fmt"

	pkgdb "github.com/angelmondragon/tixmarket-backend/pkg/db"
	"github.com/angelmondragon/tixmarket-backend/pkg/db/models"
	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrDuplicateTransfer means the provider transfer is already in the ledger.
var ErrDuplicateTransfer = errors.New("provider transfer already recorded")

// Service records confirmed seller payouts.
type Service interface {
	RecordPayout(ctx context.Context, tx *gorm.DB, input RecordPayoutInput) (*models.PayoutTransfer, error)
	HasPayout(ctx context.Context, ticketID uuid.UUID) (bool, error)
}

type service struct {
	repo Repository
}

// RecordPayoutInput captures the immutable data a payout row requires.
type RecordPayoutInput struct {
	HoldID             *uuid.UUID          `json:"hold_id,omitempty"`
	TicketID           uuid.UUID           `json:"ticket_id"`
	SellerID           uuid.UUID           `json:"seller_id"`
	GrossCents         int64               `json:"gross_cents"`
	PlatformFeeCents   int64               `json:"platform_fee_cents"`
	ProcessorFeeCents  int64               `json:"processor_fee_cents"`
	NetCents           int64               `json:"net_cents"`
	ProviderTransferID string              `json:"provider_transfer_id"`
	Source             enums.ReleaseSource `json:"source"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// RecordPayout writes the row inside tx when provided so it commits together
// with the hold update.
func (s *service) RecordPayout(ctx context.Context, tx *gorm.DB, input RecordPayoutInput) (*models.PayoutTransfer, error) {
	if input.TicketID == uuid.Nil {
		return nil, fmt.Errorf("ticket id is required")
	}
	if input.SellerID == uuid.Nil {
		return nil, fmt.Errorf("seller id is required")
	}
	if input.ProviderTransferID == "" {
		return nil, fmt.Errorf("provider transfer id is required")
	}
	if input.NetCents <= 0 {
		return nil, fmt.Errorf("net amount must be positive")
	}
	if input.GrossCents != input.PlatformFeeCents+input.ProcessorFeeCents+input.NetCents {
		return nil, fmt.Errorf("gross %d does not match fees plus net", input.GrossCents)
	}
	if !input.Source.IsValid() {
		return nil, fmt.Errorf("invalid release source %q", input.Source)
	}

	transfer := &models.PayoutTransfer{
		HoldID:             input.HoldID,
		TicketID:           input.TicketID,
		SellerID:           input.SellerID,
		GrossCents:         input.GrossCents,
		PlatformFeeCents:   input.PlatformFeeCents,
		ProcessorFeeCents:  input.ProcessorFeeCents,
		NetCents:           input.NetCents,
		ProviderTransferID: input.ProviderTransferID,
		Source:             input.Source,
	}

	if err := s.repo.WithTx(tx).Create(ctx, transfer); err != nil {
		if pkgdb.IsUniqueViolation(err, "") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTransfer, input.ProviderTransferID)
		}
		return nil, err
	}
	return transfer, nil
}

func (s *service) HasPayout(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	if ticketID == uuid.Nil {
		return false, fmt.Errorf("ticket id is required")
	}
	return s.repo.ExistsForTicket(ctx, ticketID)
}
