package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
)

// Ticket is a purchased seat. PayoutTransferID stays nil until the seller has
// been paid for it outside of an escrow hold.
type Ticket struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	EventID          uuid.UUID          `gorm:"column:event_id;type:uuid;not null;index"`
	BuyerID          uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID         uuid.UUID          `gorm:"column:seller_id;type:uuid;not null"`
	Status           enums.TicketStatus `gorm:"column:status;type:ticket_status;not null"`
	PriceCents       int64              `gorm:"column:price_cents;not null"`
	PurchasedAt      time.Time          `gorm:"column:purchased_at;not null"`
	PayoutTransferID *string            `gorm:"column:payout_transfer_id"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Ticket) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
