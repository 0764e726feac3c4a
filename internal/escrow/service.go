package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tixmarket-backend/internal/ledger"
	"github.com/angelmondragon/tixmarket-backend/internal/payments"
	"github.com/angelmondragon/tixmarket-backend/internal/tickets"
	"github.com/angelmondragon/tixmarket-backend/pkg/db"
	"github.com/angelmondragon/tixmarket-backend/pkg/db/models"
	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tixmarket-backend/pkg/errors"
	"github.com/angelmondragon/tixmarket-backend/pkg/logger"
	"github.com/angelmondragon/tixmarket-backend/pkg/metrics"
	"github.com/angelmondragon/tixmarket-backend/pkg/outbox"
	"github.com/angelmondragon/tixmarket-backend/pkg/outbox/payloads"
)

const (
	DefaultHoldingPeriod = 24 * time.Hour
	defaultCurrency      = "usd"
	defaultSweepLimit    = 500
	defaultListLimit     = 200
	maxListLimit         = 1000

	// Legacy tickets carry one of these in payout_transfer_id until the
	// provider transfer id replaces them.
	claimMarkerPrefix     = "claim:"
	manualPayoutMarker    = "manual_payout_pending"
	msgCannotRelease      = "cannot release in current status"
	msgMissingSellerSetup = "missing seller payment setup"
)

var (
	errMissingPayoutAccount = errors.New("seller has no connected payment account")
	errPayoutsDisabled      = errors.New("connected account payouts are disabled")
	errNonPositivePayout    = errors.New("net payout is not positive")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type profileLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// Service owns the escrow hold lifecycle: pending -> held -> released.
type Service interface {
	CreateHold(ctx context.Context, input CreateHoldInput) (*CreateHoldResult, error)
	RetryFunding(ctx context.Context, holdID uuid.UUID) (*CreateHoldResult, error)
	Release(ctx context.Context, input ReleaseInput) (*ReleaseResult, error)
	Sweep(ctx context.Context) (*SweepReport, error)
	ListForPayout(ctx context.Context, input ListInput) (*PayoutListing, error)
}

// ServiceParams collects escrow dependencies. Zero HoldingPeriod, Currency and
// SweepLimit fall back to defaults; FeeRate is used as given.
type ServiceParams struct {
	Tx            txRunner
	Holds         Repository
	Tickets       tickets.Repository
	Profiles      profileLoader
	Ledger        ledger.Service
	Provider      payments.Provider
	Outbox        outboxPublisher
	Logger        *logger.Logger
	Metrics       *metrics.EscrowMetrics
	FeeRate       decimal.Decimal
	HoldingPeriod time.Duration
	Currency      string
	SweepLimit    int
	Now           func() time.Time
}

type service struct {
	tx            txRunner
	holds         Repository
	tickets       tickets.Repository
	profiles      profileLoader
	ledger        ledger.Service
	provider      payments.Provider
	outbox        outboxPublisher
	logg          *logger.Logger
	metrics       *metrics.EscrowMetrics
	feeRate       decimal.Decimal
	holdingPeriod time.Duration
	currency      string
	sweepLimit    int
	now           func() time.Time
}

// NewService validates dependencies and builds the escrow service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Holds == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if params.Tickets == nil {
		return nil, fmt.Errorf("tickets repository required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile loader required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payments provider required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.FeeRate.IsNegative() || params.FeeRate.GreaterThan(one) {
		return nil, fmt.Errorf("fee rate must be within [0,1], got %s", params.FeeRate)
	}
	if params.HoldingPeriod < 0 {
		return nil, fmt.Errorf("holding period must not be negative")
	}

	holdingPeriod := params.HoldingPeriod
	if holdingPeriod == 0 {
		holdingPeriod = DefaultHoldingPeriod
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	sweepLimit := params.SweepLimit
	if sweepLimit <= 0 {
		sweepLimit = defaultSweepLimit
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &service{
		tx:            params.Tx,
		holds:         params.Holds,
		tickets:       params.Tickets,
		profiles:      params.Profiles,
		ledger:        params.Ledger,
		provider:      params.Provider,
		outbox:        params.Outbox,
		logg:          params.Logger,
		metrics:       params.Metrics,
		feeRate:       params.FeeRate,
		holdingPeriod: holdingPeriod,
		currency:      currency,
		sweepLimit:    sweepLimit,
		now:           now,
	}, nil
}

// CreateHold stores a pending hold for a completed purchase and tries to move
// the seller amount into holding. A failed fund movement keeps the hold in
// pending and is returned as a dependency error alongside the result.
func (s *service) CreateHold(ctx context.Context, input CreateHoldInput) (*CreateHoldResult, error) {
	if input.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event_id is required")
	}
	if input.TicketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket_id is required")
	}
	reference := strings.TrimSpace(input.PaymentReference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_reference is required")
	}
	split, err := SplitFee(input.TotalAmountCents, s.feeRate)
	if err != nil {
		return nil, err
	}

	ticket, err := s.tickets.FindByID(ctx, input.TicketID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ticket")
	}
	if ticket.EventID != input.EventID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket does not belong to event")
	}
	if ticket.Status != enums.TicketStatusValid {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket is not valid").
			WithDetails(map[string]any{"status": ticket.Status})
	}

	accountID, err := s.sellerAccount(ctx, ticket.SellerID)
	if err != nil {
		return nil, err
	}

	hold := &models.EscrowHold{
		EventID:           input.EventID,
		TicketID:          ticket.ID,
		BuyerID:           ticket.BuyerID,
		SellerID:          ticket.SellerID,
		PaymentReference:  reference,
		TotalAmountCents:  split.TotalAmountCents,
		PlatformFeeCents:  split.PlatformFeeCents,
		SellerAmountCents: split.SellerAmountCents,
		Currency:          s.currency,
		Status:            enums.EscrowStatusPending,
		CreatedAt:         s.now().UTC(),
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.holds.WithTx(tx).Create(ctx, hold); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowHoldCreated,
			AggregateType: enums.AggregateEscrowHold,
			AggregateID:   hold.ID,
			Data: payloads.EscrowHoldCreatedEvent{
				HoldID:            hold.ID,
				EventID:           hold.EventID,
				TicketID:          hold.TicketID,
				BuyerID:           hold.BuyerID,
				SellerID:          hold.SellerID,
				TotalAmountCents:  hold.TotalAmountCents,
				PlatformFeeCents:  hold.PlatformFeeCents,
				SellerAmountCents: hold.SellerAmountCents,
				Currency:          hold.Currency,
			},
		})
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create escrow hold")
	}

	ctx = s.logg.WithHoldID(ctx, hold.ID.String())
	s.logg.Info(ctx, "escrow hold created")

	result, fundErr := s.fund(ctx, hold, accountID)
	s.metrics.HoldCreated(string(hold.Status))
	return result, fundErr
}

// RetryFunding repeats the move-into-holding step for a pending hold.
func (s *service) RetryFunding(ctx context.Context, holdID uuid.UUID) (*CreateHoldResult, error) {
	if holdID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold_id is required")
	}
	hold, err := s.loadHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Status != enums.EscrowStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "hold is not pending").
			WithDetails(map[string]any{"status": hold.Status})
	}
	accountID, err := s.sellerAccount(ctx, hold.SellerID)
	if err != nil {
		return nil, err
	}
	return s.fund(s.logg.WithHoldID(ctx, hold.ID.String()), hold, accountID)
}

func (s *service) fund(ctx context.Context, hold *models.EscrowHold, accountID string) (*CreateHoldResult, error) {
	result := &CreateHoldResult{Hold: hold}

	capability, err := s.provider.AccountCapability(ctx, accountID)
	if err != nil {
		return result, s.fundingFailed(ctx, result, err)
	}
	if !capability.SupportsHolding() {
		s.logg.Info(ctx, "seller account cannot receive transfers yet; hold stays pending")
		return result, nil
	}

	transfer, err := s.provider.MoveToHolding(ctx, payments.TransferRequest{
		AccountID:      accountID,
		AmountCents:    hold.SellerAmountCents,
		Currency:       hold.Currency,
		IdempotencyKey: fundingKey(hold),
		Group:          hold.ID.String(),
		Description:    "ticket sale held in escrow",
		Metadata:       holdMetadata(hold),
	})
	if err != nil {
		return result, s.fundingFailed(ctx, result, err)
	}

	moved := false
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.holds.WithTx(tx).MarkHeld(ctx, hold.ID, transfer.ID)
		if err != nil || !ok {
			return err
		}
		moved = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowHoldFunded,
			AggregateType: enums.AggregateEscrowHold,
			AggregateID:   hold.ID,
			Data: payloads.EscrowHoldFundedEvent{
				HoldID:            hold.ID,
				SellerID:          hold.SellerID,
				InboundTransferID: transfer.ID,
				SellerAmountCents: hold.SellerAmountCents,
			},
		})
	}); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "inbound_transfer_id", transfer.ID), "funds moved but hold could not be marked held", err)
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark escrow hold held")
	}
	if !moved {
		return result, pkgerrors.New(pkgerrors.CodeStateConflict, "hold is no longer pending")
	}

	transferID := transfer.ID
	hold.Status = enums.EscrowStatusHeld
	hold.InboundTransferID = &transferID
	hold.LastError = nil
	result.Funded = true
	s.logg.Info(s.logg.WithField(ctx, "inbound_transfer_id", transfer.ID), "escrow hold funded")
	return result, nil
}

// fundingKey is stable across the provider's own retries within one attempt
// and changes once a failed attempt is recorded, so a retry is not answered
// with the provider's cached failure.
func fundingKey(hold *models.EscrowHold) string {
	return fmt.Sprintf("escrow-hold-%s-fund-%d", hold.ID, hold.FundingAttempts)
}

func (s *service) fundingFailed(ctx context.Context, result *CreateHoldResult, cause error) error {
	msg := cause.Error()
	if err := s.holds.RecordFundingError(ctx, result.Hold.ID, msg); err != nil {
		s.logg.Error(ctx, "failed to record funding error", err)
	} else {
		result.Hold.FundingAttempts++
	}
	result.Hold.LastError = &msg
	result.FundingError = &msg
	s.logg.Warn(s.logg.WithField(ctx, "error", msg), "external fund movement failed; hold stays pending")
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "external fund movement failed").
		WithDetails(map[string]any{"hold_id": result.Hold.ID, "status": result.Hold.Status})
}

// Release is the admin-triggered held -> released transition. The payout
// result never blocks the transition; it is recorded as the hold's outcome.
func (s *service) Release(ctx context.Context, input ReleaseInput) (*ReleaseResult, error) {
	if input.HoldID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold_id is required")
	}
	if err := s.requireAdmin(ctx, input.AdminID); err != nil {
		return nil, err
	}
	hold, err := s.loadHold(ctx, input.HoldID)
	if err != nil {
		return nil, err
	}
	if !hold.Status.Releasable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, msgCannotRelease).
			WithDetails(map[string]any{"status": hold.Status})
	}

	adminID := input.AdminID
	ctx = s.logg.WithUserID(s.logg.WithHoldID(ctx, hold.ID.String()), adminID.String())
	return s.releaseHold(ctx, hold, releasePlan{
		source:      enums.ReleaseSourceAdmin,
		releasedBy:  &adminID,
		amountCents: hold.SellerAmountCents,
	})
}

type releasePlan struct {
	source            enums.ReleaseSource
	releasedBy        *uuid.UUID
	amountCents       int64
	processorFeeCents int64
}

// releaseHold claims the hold, attempts the payout and records the outcome.
// Losing the claim is a state conflict and nothing is paid.
func (s *service) releaseHold(ctx context.Context, hold *models.EscrowHold, plan releasePlan) (*ReleaseResult, error) {
	releasedAt := s.now().UTC()
	won, err := s.holds.ClaimRelease(ctx, hold.ID, ReleaseClaim{
		At:     releasedAt,
		By:     plan.releasedBy,
		Source: plan.source,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim escrow release")
	}
	if !won {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, msgCannotRelease).
			WithDetails(map[string]any{"reason": "already released"})
	}

	source := plan.source
	hold.Status = enums.EscrowStatusReleased
	hold.ReleasedAt = &releasedAt
	hold.ReleasedBy = plan.releasedBy
	hold.ReleaseSource = &source

	transferID, payErr := s.payOutHold(ctx, hold, plan.amountCents)
	outcome := enums.PayoutOutcomeConfirmed
	var lastError *string
	if payErr != nil {
		outcome = enums.PayoutOutcomePendingManual
		msg := payErr.Error()
		lastError = &msg
		s.logg.Warn(s.logg.WithField(ctx, "error", msg), "payout failed; hold released pending manual payout")
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.holds.WithTx(tx).RecordPayout(ctx, hold.ID, PayoutRecord{
			Outcome:            outcome,
			OutboundTransferID: transferID,
			LastError:          lastError,
		}); err != nil {
			return err
		}
		if outcome == enums.PayoutOutcomeConfirmed {
			holdID := hold.ID
			if _, err := s.ledger.RecordPayout(ctx, tx, ledger.RecordPayoutInput{
				HoldID:             &holdID,
				TicketID:           hold.TicketID,
				SellerID:           hold.SellerID,
				GrossCents:         hold.TotalAmountCents,
				PlatformFeeCents:   hold.PlatformFeeCents,
				ProcessorFeeCents:  plan.processorFeeCents,
				NetCents:           plan.amountCents,
				ProviderTransferID: *transferID,
				Source:             plan.source,
			}); err != nil {
				return err
			}
		}
		event := payloads.EscrowHoldReleasedEvent{
			HoldID:            hold.ID,
			TicketID:          hold.TicketID,
			SellerID:          hold.SellerID,
			Source:            plan.source,
			Outcome:           outcome,
			PayoutAmountCents: plan.amountCents,
			ReleasedAt:        releasedAt,
		}
		if transferID != nil {
			event.OutboundTransferID = *transferID
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowHoldReleased,
			AggregateType: enums.AggregateEscrowHold,
			AggregateID:   hold.ID,
			Actor:         releaseActor(plan),
			Data:          event,
		})
	}); err != nil {
		s.logg.Error(ctx, "escrow hold released but payout bookkeeping failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record escrow payout")
	}

	hold.PayoutOutcome = &outcome
	hold.OutboundTransferID = transferID
	hold.LastError = lastError
	s.metrics.Released(string(plan.source), string(outcome))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"source":  plan.source,
		"outcome": outcome,
	}), "escrow hold released")

	return &ReleaseResult{
		Hold:        hold,
		Outcome:     outcome,
		TransferID:  transferID,
		PayoutError: lastError,
	}, nil
}

// payOutHold pays amountCents to the seller. Funded holds already sit in the
// connected account, so only a bank payout from that balance is attempted;
// unfunded holds are paid by a direct platform transfer.
func (s *service) payOutHold(ctx context.Context, hold *models.EscrowHold, amountCents int64) (*string, error) {
	if amountCents <= 0 {
		return nil, errNonPositivePayout
	}
	seller, err := s.profiles.FindByID(ctx, hold.SellerID)
	if err != nil {
		return nil, fmt.Errorf("load seller profile: %w", err)
	}
	if !seller.HasPayoutAccount() {
		return nil, errMissingPayoutAccount
	}
	req := payments.TransferRequest{
		AccountID:      *seller.StripeAccountID,
		AmountCents:    amountCents,
		Currency:       hold.Currency,
		IdempotencyKey: fmt.Sprintf("escrow-hold-%s-payout", hold.ID),
		Group:          hold.ID.String(),
		Description:    "escrow release",
		Metadata:       holdMetadata(hold),
	}

	var result payments.TransferResult
	if hold.InboundTransferID == nil {
		result, err = s.provider.TransferToSeller(ctx, req)
	} else {
		capability, capErr := s.provider.AccountCapability(ctx, req.AccountID)
		if capErr != nil {
			return nil, capErr
		}
		if !capability.PayoutsEnabled {
			return nil, errPayoutsDisabled
		}
		result, err = s.provider.PayOut(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	id := result.ID
	return &id, nil
}

// Sweep releases every held hold and pays every unpaid legacy ticket whose
// holding period has elapsed. Entry failures are reported and do not stop
// the run.
func (s *service) Sweep(ctx context.Context) (*SweepReport, error) {
	cutoff := s.now().UTC().Add(-s.holdingPeriod)
	ctx = s.logg.WithField(ctx, "cutoff", cutoff.Format(time.RFC3339))

	holds, err := s.holds.ListHeldBefore(ctx, cutoff, s.sweepLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list releasable holds")
	}
	legacy, err := s.tickets.ListUnpaidBefore(ctx, cutoff, s.sweepLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list unpaid tickets")
	}

	report := &SweepReport{Cutoff: cutoff, Entries: make([]SweepEntry, 0, len(holds)+len(legacy))}
	var failures error
	for i := range holds {
		entry, err := s.sweepHold(ctx, &holds[i])
		report.add(entry)
		failures = multierr.Append(failures, err)
	}
	for i := range legacy {
		entry, err := s.sweepTicket(ctx, &legacy[i])
		report.add(entry)
		failures = multierr.Append(failures, err)
	}

	fields := map[string]any{
		"processed": report.Processed,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
	}
	if failures != nil {
		fields["error"] = failures.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "escrow sweep finished with failures")
	} else {
		s.logg.Info(s.logg.WithFields(ctx, fields), "escrow sweep finished")
	}
	return report, nil
}

func (r *SweepReport) add(entry SweepEntry) {
	r.Processed++
	switch {
	case entry.Skipped:
		r.Skipped++
	case entry.Error != "":
		r.Failed++
	default:
		r.Succeeded++
	}
	r.Entries = append(r.Entries, entry)
}

func (s *service) sweepHold(ctx context.Context, hold *models.EscrowHold) (SweepEntry, error) {
	processorFee := ProcessorFee(hold.TotalAmountCents)
	net := NetPayout(hold.TotalAmountCents, hold.PlatformFeeCents)
	entry := SweepEntry{PayoutRow: holdRow(*hold, processorFee, net, s.holdingPeriod)}

	result, err := s.releaseHold(s.logg.WithHoldID(ctx, hold.ID.String()), hold, releasePlan{
		source:            enums.ReleaseSourceSweep,
		amountCents:       net,
		processorFeeCents: processorFee,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			entry.Skipped = true
			entry.Error = "already released"
			return entry, nil
		}
		entry.Error = err.Error()
		s.metrics.SweepFailure()
		return entry, fmt.Errorf("hold %s: %w", hold.ID, err)
	}

	entry.Status = enums.EscrowStatusReleased
	entry.Outcome = result.Outcome
	entry.TransferID = result.TransferID
	if result.PayoutError != nil {
		entry.Error = *result.PayoutError
		s.metrics.SweepFailure()
		return entry, fmt.Errorf("hold %s: %s", hold.ID, *result.PayoutError)
	}
	return entry, nil
}

// sweepTicket pays a ticket sold before escrow holds existed. The ticket is
// claimed with a marker first so concurrent sweeps never pay it twice.
func (s *service) sweepTicket(ctx context.Context, ticket *models.Ticket) (SweepEntry, error) {
	ctx = s.logg.WithField(ctx, "ticket_id", ticket.ID.String())
	processorFee := ProcessorFee(ticket.PriceCents)
	net := NetPayout(ticket.PriceCents, 0)
	split, splitErr := SplitFee(ticket.PriceCents, s.feeRate)
	if splitErr == nil {
		net = NetPayout(ticket.PriceCents, split.PlatformFeeCents)
	}
	entry := SweepEntry{PayoutRow: ticketRow(*ticket, split, processorFee, net, s.currency, s.holdingPeriod)}
	fail := func(err error) (SweepEntry, error) {
		entry.Error = err.Error()
		s.metrics.SweepFailure()
		return entry, fmt.Errorf("ticket %s: %w", ticket.ID, err)
	}

	if splitErr != nil {
		return fail(splitErr)
	}
	if net <= 0 {
		return fail(errNonPositivePayout)
	}
	seller, err := s.profiles.FindByID(ctx, ticket.SellerID)
	if err != nil {
		return fail(fmt.Errorf("load seller profile: %w", err))
	}
	if !seller.HasPayoutAccount() {
		return fail(errors.New(msgMissingSellerSetup))
	}
	paid, err := s.ledger.HasPayout(ctx, ticket.ID)
	if err != nil {
		return fail(fmt.Errorf("check payout ledger: %w", err))
	}
	if paid {
		entry.Skipped = true
		entry.Error = "already paid"
		return entry, nil
	}

	marker := claimMarkerPrefix + uuid.NewString()
	won, err := s.tickets.ClaimPayout(ctx, ticket.ID, marker)
	if err != nil {
		return fail(fmt.Errorf("claim ticket payout: %w", err))
	}
	if !won {
		entry.Skipped = true
		entry.Error = "already paid"
		return entry, nil
	}

	outcome := enums.PayoutOutcomeConfirmed
	reference := manualPayoutMarker
	var transferID *string
	transfer, payErr := s.provider.TransferToSeller(ctx, payments.TransferRequest{
		AccountID:      *seller.StripeAccountID,
		AmountCents:    net,
		Currency:       s.currency,
		IdempotencyKey: fmt.Sprintf("ticket-%s-payout", ticket.ID),
		Group:          "ticket-" + ticket.ID.String(),
		Description:    "ticket sale payout",
		Metadata: map[string]string{
			"ticket_id": ticket.ID.String(),
			"event_id":  ticket.EventID.String(),
			"seller_id": ticket.SellerID.String(),
		},
	})
	if payErr != nil {
		outcome = enums.PayoutOutcomePendingManual
		s.logg.Warn(s.logg.WithField(ctx, "error", payErr.Error()), "ticket payout failed; pending manual payout")
	} else {
		reference = transfer.ID
		transferID = &transfer.ID
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.tickets.WithTx(tx).SetPayoutTransfer(ctx, ticket.ID, marker, reference); err != nil {
			return err
		}
		if outcome == enums.PayoutOutcomeConfirmed {
			if _, err := s.ledger.RecordPayout(ctx, tx, ledger.RecordPayoutInput{
				TicketID:           ticket.ID,
				SellerID:           ticket.SellerID,
				GrossCents:         ticket.PriceCents,
				PlatformFeeCents:   split.PlatformFeeCents,
				ProcessorFeeCents:  processorFee,
				NetCents:           net,
				ProviderTransferID: transfer.ID,
				Source:             enums.ReleaseSourceSweep,
			}); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLegacyTicketPaid,
			AggregateType: enums.AggregateTicket,
			AggregateID:   ticket.ID,
			Actor:         &outbox.ActorRef{Role: string(enums.ReleaseSourceSweep)},
			Data: payloads.LegacyTicketPaidEvent{
				TicketID:           ticket.ID,
				SellerID:           ticket.SellerID,
				Outcome:            outcome,
				NetCents:           net,
				OutboundTransferID: reference,
			},
		})
	}); err != nil {
		s.logg.Error(ctx, "ticket payout sent but bookkeeping failed", err)
		return fail(fmt.Errorf("record ticket payout: %w", err))
	}

	entry.Outcome = outcome
	entry.TransferID = transferID
	s.metrics.Released(string(enums.ReleaseSourceSweep), string(outcome))
	if payErr != nil {
		return fail(payErr)
	}
	return entry, nil
}

// ListForPayout is a read-only view for operators. Rows past the holding
// period are ready; the rest are still holding.
func (s *service) ListForPayout(ctx context.Context, input ListInput) (*PayoutListing, error) {
	if err := s.requireAdmin(ctx, input.AdminID); err != nil {
		return nil, err
	}
	status := input.Status
	if status == "" {
		status = enums.EscrowStatusHeld
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").
			WithDetails(map[string]any{"status": status})
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.holds.List(ctx, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list escrow holds")
	}

	cutoff := s.now().UTC().Add(-s.holdingPeriod)
	listing := &PayoutListing{Ready: []PayoutRow{}, Holding: []PayoutRow{}, Cutoff: cutoff}
	for _, hold := range rows {
		row := holdRow(hold, ProcessorFee(hold.TotalAmountCents), NetPayout(hold.TotalAmountCents, hold.PlatformFeeCents), s.holdingPeriod)
		if hold.CreatedAt.Before(cutoff) {
			listing.addReady(row)
		} else {
			listing.addHolding(row)
		}
	}

	if status == enums.EscrowStatusHeld {
		legacy, err := s.tickets.ListUnpaidBefore(ctx, cutoff, limit)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list unpaid tickets")
		}
		for _, ticket := range legacy {
			split, err := SplitFee(ticket.PriceCents, s.feeRate)
			if err != nil {
				continue
			}
			fee := ProcessorFee(ticket.PriceCents)
			listing.addReady(ticketRow(ticket, split, fee, NetPayout(ticket.PriceCents, split.PlatformFeeCents), s.currency, s.holdingPeriod))
		}
	}
	return listing, nil
}

func (l *PayoutListing) addReady(row PayoutRow) {
	l.Ready = append(l.Ready, row)
	l.ReadyCount++
	l.ReadyNet += row.NetCents
}

func (l *PayoutListing) addHolding(row PayoutRow) {
	l.Holding = append(l.Holding, row)
	l.HoldingCount++
	l.HoldingNet += row.NetCents
}

func (s *service) requireAdmin(ctx context.Context, adminID uuid.UUID) error {
	if adminID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin id is required")
	}
	profile, err := s.profiles.FindByID(ctx, adminID)
	if err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load admin profile")
	}
	if !profile.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	return nil
}

func (s *service) loadHold(ctx context.Context, id uuid.UUID) (*models.EscrowHold, error) {
	hold, err := s.holds.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow hold not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load escrow hold")
	}
	return hold, nil
}

func (s *service) sellerAccount(ctx context.Context, sellerID uuid.UUID) (string, error) {
	seller, err := s.profiles.FindByID(ctx, sellerID)
	if err != nil {
		if db.IsNotFound(err) {
			return "", pkgerrors.New(pkgerrors.CodeValidation, msgMissingSellerSetup)
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load seller profile")
	}
	if !seller.HasPayoutAccount() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, msgMissingSellerSetup)
	}
	return *seller.StripeAccountID, nil
}

func holdMetadata(hold *models.EscrowHold) map[string]string {
	return map[string]string{
		"hold_id":   hold.ID.String(),
		"ticket_id": hold.TicketID.String(),
		"event_id":  hold.EventID.String(),
		"seller_id": hold.SellerID.String(),
	}
}

func releaseActor(plan releasePlan) *outbox.ActorRef {
	if plan.releasedBy == nil {
		return &outbox.ActorRef{Role: string(plan.source)}
	}
	return &outbox.ActorRef{UserID: plan.releasedBy, Role: string(enums.ProfileRoleAdmin)}
}
