package payments

import (
	"context"
	"errors"
)

// ErrAccountRequired is returned when a call is made without a connected account.
var ErrAccountRequired = errors.New("connected account id is required")

// Capability describes what a seller's connected account can do right now.
type Capability struct {
	AccountID       string
	TransfersActive bool
	PayoutsEnabled  bool
}

// SupportsHolding reports whether funds can be routed into the account immediately.
func (c Capability) SupportsHolding() bool {
	return c.TransfersActive
}

// TransferRequest moves AmountCents to or from a connected account.
type TransferRequest struct {
	AccountID      string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	Group          string
	Description    string
	Metadata       map[string]string
}

func (r TransferRequest) validate() error {
	if r.AccountID == "" {
		return ErrAccountRequired
	}
	if r.AmountCents <= 0 {
		return errors.New("amount must be positive")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	return nil
}

// TransferResult carries the provider-side identifier of a money movement.
type TransferResult struct {
	ID string
}

// Provider is the payments platform as seen by escrow bookkeeping.
type Provider interface {
	// AccountCapability checks whether the connected account can receive funds.
	AccountCapability(ctx context.Context, accountID string) (Capability, error)
	// MoveToHolding routes the seller amount into the connected account balance
	// where it waits until release.
	MoveToHolding(ctx context.Context, req TransferRequest) (TransferResult, error)
	// PayOut sends held funds from the connected account balance to the seller's bank.
	PayOut(ctx context.Context, req TransferRequest) (TransferResult, error)
	// TransferToSeller is the fallback path: a direct platform transfer to the
	// connected account, leaving the bank payout to the account's own schedule.
	TransferToSeller(ctx context.Context, req TransferRequest) (TransferResult, error)
}
