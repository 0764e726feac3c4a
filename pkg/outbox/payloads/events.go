package payloads

import (
	"time"

	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
	"github.com/google/uuid"
)

// EscrowHoldCreatedEvent is emitted when checkout completion opens a hold.
type EscrowHoldCreatedEvent struct {
	HoldID            uuid.UUID `json:"hold_id"`
	EventID           uuid.UUID `json:"event_id"`
	TicketID          uuid.UUID `json:"ticket_id"`
	BuyerID           uuid.UUID `json:"buyer_id"`
	SellerID          uuid.UUID `json:"seller_id"`
	TotalAmountCents  int64     `json:"total_amount_cents"`
	PlatformFeeCents  int64     `json:"platform_fee_cents"`
	SellerAmountCents int64     `json:"seller_amount_cents"`
	Currency          string    `json:"currency"`
}

// EscrowHoldFundedEvent is emitted when the seller amount reached holding.
type EscrowHoldFundedEvent struct {
	HoldID            uuid.UUID `json:"hold_id"`
	SellerID          uuid.UUID `json:"seller_id"`
	InboundTransferID string    `json:"inbound_transfer_id"`
	SellerAmountCents int64     `json:"seller_amount_cents"`
}

// EscrowHoldReleasedEvent is emitted once per hold, after the payout attempt.
type EscrowHoldReleasedEvent struct {
	HoldID             uuid.UUID           `json:"hold_id"`
	TicketID           uuid.UUID           `json:"ticket_id"`
	SellerID           uuid.UUID           `json:"seller_id"`
	Source             enums.ReleaseSource `json:"source"`
	Outcome            enums.PayoutOutcome `json:"outcome"`
	PayoutAmountCents  int64               `json:"payout_amount_cents"`
	OutboundTransferID string              `json:"outbound_transfer_id,omitempty"`
	ReleasedAt         time.Time           `json:"released_at"`
}

// LegacyTicketPaidEvent is emitted when the sweep pays out a ticket sold
// before escrow holds existed.
type LegacyTicketPaidEvent struct {
	TicketID           uuid.UUID           `json:"ticket_id"`
	SellerID           uuid.UUID           `json:"seller_id"`
	Outcome            enums.PayoutOutcome `json:"outcome"`
	NetCents           int64               `json:"net_cents"`
	OutboundTransferID string              `json:"outbound_transfer_id,omitempty"`
}
