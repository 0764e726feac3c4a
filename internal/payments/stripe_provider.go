package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/payout"
	"github.com/stripe/stripe-go/v84/transfer"

	"github.com/angelmondragon/tixmarket-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/tixmarket-backend/pkg/stripe"
)

// stripeAPI is the subset of Stripe endpoints the provider calls.
type stripeAPI interface {
	GetAccount(ctx context.Context, id string) (*stripe.Account, error)
	CreateTransfer(ctx context.Context, params *stripe.TransferParams) (*stripe.Transfer, error)
	CreatePayout(ctx context.Context, params *stripe.PayoutParams) (*stripe.Payout, error)
}

type stripeGlobalAPI struct{}

func (stripeGlobalAPI) GetAccount(ctx context.Context, id string) (*stripe.Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	return account.GetByID(id, params)
}

func (stripeGlobalAPI) CreateTransfer(ctx context.Context, params *stripe.TransferParams) (*stripe.Transfer, error) {
	params.Context = ctx
	return transfer.New(params)
}

func (stripeGlobalAPI) CreatePayout(ctx context.Context, params *stripe.PayoutParams) (*stripe.Payout, error) {
	params.Context = ctx
	return payout.New(params)
}

// StripeProvider implements Provider on Stripe Connect.
type StripeProvider struct {
	api    stripeAPI
	policy RetryPolicy
	logg   *logger.Logger
}

// NewStripeProvider requires an initialized Stripe client so the API key is set.
func NewStripeProvider(client *pkgstripe.Client, policy RetryPolicy, logg *logger.Logger) (*StripeProvider, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return &StripeProvider{api: stripeGlobalAPI{}, policy: policy, logg: logg}, nil
}

func (p *StripeProvider) AccountCapability(ctx context.Context, accountID string) (Capability, error) {
	if strings.TrimSpace(accountID) == "" {
		return Capability{}, ErrAccountRequired
	}
	var acct *stripe.Account
	err := p.policy.do(ctx, func(ctx context.Context) error {
		var err error
		acct, err = p.api.GetAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return Capability{}, fmt.Errorf("retrieve stripe account: %w", err)
	}
	capability := Capability{AccountID: acct.ID, PayoutsEnabled: acct.PayoutsEnabled}
	if acct.Capabilities != nil {
		capability.TransfersActive = acct.Capabilities.Transfers == stripe.AccountCapabilityStatusActive
	}
	return capability, nil
}

func (p *StripeProvider) MoveToHolding(ctx context.Context, req TransferRequest) (TransferResult, error) {
	return p.transfer(ctx, "move to holding", req)
}

func (p *StripeProvider) TransferToSeller(ctx context.Context, req TransferRequest) (TransferResult, error) {
	return p.transfer(ctx, "transfer to seller", req)
}

func (p *StripeProvider) PayOut(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if err := req.validate(); err != nil {
		return TransferResult{}, err
	}
	var out *stripe.Payout
	err := p.policy.do(ctx, func(ctx context.Context) error {
		params := &stripe.PayoutParams{
			Amount:   stripe.Int64(req.AmountCents),
			Currency: stripe.String(req.Currency),
		}
		if req.Description != "" {
			params.Description = stripe.String(req.Description)
		}
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
		}
		params.SetStripeAccount(req.AccountID)
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey(req.IdempotencyKey)
		}
		var err error
		out, err = p.api.CreatePayout(ctx, params)
		return err
	})
	if err != nil {
		p.logFailure(ctx, "payout", req, err)
		return TransferResult{}, fmt.Errorf("stripe payout: %w", err)
	}
	return TransferResult{ID: out.ID}, nil
}

func (p *StripeProvider) transfer(ctx context.Context, op string, req TransferRequest) (TransferResult, error) {
	if err := req.validate(); err != nil {
		return TransferResult{}, err
	}
	var out *stripe.Transfer
	err := p.policy.do(ctx, func(ctx context.Context) error {
		params := &stripe.TransferParams{
			Amount:      stripe.Int64(req.AmountCents),
			Currency:    stripe.String(req.Currency),
			Destination: stripe.String(req.AccountID),
		}
		if req.Group != "" {
			params.TransferGroup = stripe.String(req.Group)
		}
		if req.Description != "" {
			params.Description = stripe.String(req.Description)
		}
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
		}
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey(req.IdempotencyKey)
		}
		var err error
		out, err = p.api.CreateTransfer(ctx, params)
		return err
	})
	if err != nil {
		p.logFailure(ctx, op, req, err)
		return TransferResult{}, fmt.Errorf("stripe %s: %w", op, err)
	}
	return TransferResult{ID: out.ID}, nil
}

func (p *StripeProvider) logFailure(ctx context.Context, op string, req TransferRequest, err error) {
	if p.logg == nil {
		return
	}
	logCtx := p.logg.WithFields(ctx, map[string]any{
		"operation":    op,
		"account_id":   req.AccountID,
		"amount_cents": req.AmountCents,
		"transient":    IsTransient(err),
	})
	p.logg.Warn(logCtx, "payment provider call failed")
}
