package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
)

// EscrowHold is the bookkeeping record for funds set aside for a seller until
// release. PlatformFeeCents + SellerAmountCents always equals TotalAmountCents.
type EscrowHold struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	EventID            uuid.UUID            `gorm:"column:event_id;type:uuid;not null;index" json:"event_id"`
	TicketID           uuid.UUID            `gorm:"column:ticket_id;type:uuid;not null;index" json:"ticket_id"`
	BuyerID            uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SellerID           uuid.UUID            `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	PaymentReference   string               `gorm:"column:payment_reference;not null" json:"payment_reference"`
	TotalAmountCents   int64                `gorm:"column:total_amount_cents;not null" json:"total_amount_cents"`
	PlatformFeeCents   int64                `gorm:"column:platform_fee_cents;not null" json:"platform_fee_cents"`
	SellerAmountCents  int64                `gorm:"column:seller_amount_cents;not null" json:"seller_amount_cents"`
	Currency           string               `gorm:"column:currency;not null" json:"currency"`
	Status             enums.EscrowStatus   `gorm:"column:status;type:escrow_status;not null;index" json:"status"`
	PayoutOutcome      *enums.PayoutOutcome `gorm:"column:payout_outcome;type:payout_outcome" json:"payout_outcome"`
	InboundTransferID  *string              `gorm:"column:inbound_transfer_id" json:"inbound_transfer_id"`
	OutboundTransferID *string              `gorm:"column:outbound_transfer_id" json:"outbound_transfer_id"`
	ReleasedAt         *time.Time           `gorm:"column:released_at" json:"released_at"`
	ReleasedBy         *uuid.UUID           `gorm:"column:released_by;type:uuid" json:"released_by"`
	ReleaseSource      *enums.ReleaseSource `gorm:"column:release_source" json:"release_source"`
	LastError          *string              `gorm:"column:last_error" json:"last_error"`
	FundingAttempts    int                  `gorm:"column:funding_attempts;not null;default:0" json:"funding_attempts"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (h *EscrowHold) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
