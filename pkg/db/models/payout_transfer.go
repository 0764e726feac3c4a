package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
)

// PayoutTransfer is an append-only ledger row written for every payout the
// provider confirmed.
type PayoutTransfer struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	HoldID             *uuid.UUID          `gorm:"column:hold_id;type:uuid;index"`
	TicketID           uuid.UUID           `gorm:"column:ticket_id;type:uuid;not null;index"`
	SellerID           uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	GrossCents         int64               `gorm:"column:gross_cents;not null"`
	PlatformFeeCents   int64               `gorm:"column:platform_fee_cents;not null"`
	ProcessorFeeCents  int64               `gorm:"column:processor_fee_cents;not null"`
	NetCents           int64               `gorm:"column:net_cents;not null"`
	ProviderTransferID string              `gorm:"column:provider_transfer_id;not null"`
	Source             enums.ReleaseSource `gorm:"column:source;not null"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (p *PayoutTransfer) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
