package escrow

import (
	"time"

	"github.com/angelmondragon/tixmarket-backend/pkg/db/models"
	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
	"github.com/google/uuid"
)

// CreateHoldInput is what checkout completion knows about a purchase. Buyer
// and seller are read from the ticket.
type CreateHoldInput struct {
	EventID          uuid.UUID
	TicketID         uuid.UUID
	PaymentReference string
	TotalAmountCents int64
}

// CreateHoldResult reports the stored hold. FundingError is set when the hold
// was kept in pending because moving funds into holding failed.
type CreateHoldResult struct {
	Hold         *models.EscrowHold `json:"hold"`
	Funded       bool               `json:"funded"`
	FundingError *string            `json:"funding_error,omitempty"`
}

// ReleaseInput identifies the hold and the admin performing the release.
type ReleaseInput struct {
	HoldID  uuid.UUID
	AdminID uuid.UUID
}

// ReleaseResult is returned to whoever won the release.
type ReleaseResult struct {
	Hold        *models.EscrowHold  `json:"hold"`
	Outcome     enums.PayoutOutcome `json:"outcome"`
	TransferID  *string             `json:"transfer_id,omitempty"`
	PayoutError *string             `json:"payout_error,omitempty"`
}

// ListInput filters the admin payout listing. An empty status lists held holds.
type ListInput struct {
	AdminID uuid.UUID
	Status  enums.EscrowStatus
	Limit   int
}

// EntryKind distinguishes escrow holds from tickets sold before holds existed.
type EntryKind string

const (
	EntryKindHold   EntryKind = "hold"
	EntryKindTicket EntryKind = "ticket"
)

// PayoutRow is the shared row shape of the listing and the sweep report.
type PayoutRow struct {
	Kind              EntryKind          `json:"kind"`
	HoldID            *uuid.UUID         `json:"hold_id,omitempty"`
	TicketID          uuid.UUID          `json:"ticket_id"`
	EventID           uuid.UUID          `json:"event_id"`
	SellerID          uuid.UUID          `json:"seller_id"`
	Status            enums.EscrowStatus `json:"status,omitempty"`
	GrossCents        int64              `json:"gross_cents"`
	PlatformFeeCents  int64              `json:"platform_fee_cents"`
	ProcessorFeeCents int64              `json:"processor_fee_cents"`
	NetCents          int64              `json:"net_cents"`
	Currency          string             `json:"currency"`
	PurchasedAt       time.Time          `json:"purchased_at"`
	ReadyAt           time.Time          `json:"ready_at"`
}

// PayoutListing splits rows into those past the holding period and those
// still holding.
type PayoutListing struct {
	Ready        []PayoutRow `json:"ready"`
	Holding      []PayoutRow `json:"holding"`
	ReadyCount   int         `json:"ready_count"`
	HoldingCount int         `json:"holding_count"`
	ReadyNet     int64       `json:"ready_net_cents"`
	HoldingNet   int64       `json:"holding_net_cents"`
	Cutoff       time.Time   `json:"cutoff"`
}

// SweepEntry is the per-row result of a sweep run.
type SweepEntry struct {
	PayoutRow
	Outcome    enums.PayoutOutcome `json:"outcome,omitempty"`
	TransferID *string             `json:"transfer_id,omitempty"`
	Skipped    bool                `json:"skipped,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// SweepReport summarizes one sweep run. Failed entries do not stop the run.
type SweepReport struct {
	Cutoff    time.Time    `json:"cutoff"`
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Entries   []SweepEntry `json:"entries"`
}

func holdRow(hold models.EscrowHold, processorFee, net int64, holdingPeriod time.Duration) PayoutRow {
	id := hold.ID
	return PayoutRow{
		Kind:              EntryKindHold,
		HoldID:            &id,
		TicketID:          hold.TicketID,
		EventID:           hold.EventID,
		SellerID:          hold.SellerID,
		Status:            hold.Status,
		GrossCents:        hold.TotalAmountCents,
		PlatformFeeCents:  hold.PlatformFeeCents,
		ProcessorFeeCents: processorFee,
		NetCents:          net,
		Currency:          hold.Currency,
		PurchasedAt:       hold.CreatedAt,
		ReadyAt:           hold.CreatedAt.Add(holdingPeriod),
	}
}

func ticketRow(ticket models.Ticket, split FeeSplit, processorFee, net int64, currency string, holdingPeriod time.Duration) PayoutRow {
	return PayoutRow{
		Kind:              EntryKindTicket,
		TicketID:          ticket.ID,
		EventID:           ticket.EventID,
		SellerID:          ticket.SellerID,
		GrossCents:        split.TotalAmountCents,
		PlatformFeeCents:  split.PlatformFeeCents,
		ProcessorFeeCents: processorFee,
		NetCents:          net,
		Currency:          currency,
		PurchasedAt:       ticket.PurchasedAt,
		ReadyAt:           ticket.PurchasedAt.Add(holdingPeriod),
	}
}
