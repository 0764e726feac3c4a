package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
)

type fakeStripeAPI struct {
	account        *stripe.Account
	transferErrs   []error
	payoutErrs     []error
	transferCalls  []*stripe.TransferParams
	payoutCalls    []*stripe.PayoutParams
	accountLookups int
}

func (f *fakeStripeAPI) GetAccount(_ context.Context, id string) (*stripe.Account, error) {
	f.accountLookups++
	if f.account == nil {
		return nil, &stripe.Error{HTTPStatusCode: http.StatusNotFound, Type: stripe.ErrorTypeInvalidRequest}
	}
	return f.account, nil
}

func (f *fakeStripeAPI) CreateTransfer(_ context.Context, params *stripe.TransferParams) (*stripe.Transfer, error) {
	f.transferCalls = append(f.transferCalls, params)
	if n := len(f.transferCalls); n <= len(f.transferErrs) && f.transferErrs[n-1] != nil {
		return nil, f.transferErrs[n-1]
	}
	return &stripe.Transfer{ID: "tr_123"}, nil
}

func (f *fakeStripeAPI) CreatePayout(_ context.Context, params *stripe.PayoutParams) (*stripe.Payout, error) {
	f.payoutCalls = append(f.payoutCalls, params)
	if n := len(f.payoutCalls); n <= len(f.payoutErrs) && f.payoutErrs[n-1] != nil {
		return nil, f.payoutErrs[n-1]
	}
	return &stripe.Payout{ID: "po_123"}, nil
}

func testProvider(api stripeAPI) *StripeProvider {
	return &StripeProvider{
		api:    api,
		policy: RetryPolicy{MaxRetries: 2, Base: time.Millisecond, Cap: 2 * time.Millisecond},
	}
}

func validRequest() TransferRequest {
	return TransferRequest{
		AccountID:      "acct_seller",
		AmountCents:    9500,
		Currency:       "usd",
		IdempotencyKey: "hold-1:payout",
		Group:          "hold-1",
		Metadata:       map[string]string{"hold_id": "hold-1"},
	}
}

func TestAccountCapability(t *testing.T) {
	api := &fakeStripeAPI{account: &stripe.Account{
		ID:             "acct_seller",
		PayoutsEnabled: true,
		Capabilities:   &stripe.AccountCapabilities{Transfers: stripe.AccountCapabilityStatusActive},
	}}
	capability, err := testProvider(api).AccountCapability(context.Background(), "acct_seller")
	require.NoError(t, err)
	assert.True(t, capability.SupportsHolding())
	assert.True(t, capability.PayoutsEnabled)

	api.account.Capabilities.Transfers = stripe.AccountCapabilityStatusPending
	capability, err = testProvider(api).AccountCapability(context.Background(), "acct_seller")
	require.NoError(t, err)
	assert.False(t, capability.SupportsHolding())

	_, err = testProvider(api).AccountCapability(context.Background(), " ")
	assert.ErrorIs(t, err, ErrAccountRequired)
}

func TestAccountCapabilityDoesNotRetryPermanentErrors(t *testing.T) {
	api := &fakeStripeAPI{}
	_, err := testProvider(api).AccountCapability(context.Background(), "acct_missing")
	require.Error(t, err)
	assert.Equal(t, 1, api.accountLookups)
}

func TestMoveToHoldingRetriesTransientErrors(t *testing.T) {
	api := &fakeStripeAPI{transferErrs: []error{
		&stripe.Error{HTTPStatusCode: http.StatusTooManyRequests},
		&stripe.Error{HTTPStatusCode: http.StatusBadGateway, Type: stripe.ErrorTypeAPI},
	}}
	res, err := testProvider(api).MoveToHolding(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "tr_123", res.ID)
	require.Len(t, api.transferCalls, 3)

	params := api.transferCalls[2]
	assert.Equal(t, int64(9500), *params.Amount)
	assert.Equal(t, "acct_seller", *params.Destination)
	assert.Equal(t, "hold-1", *params.TransferGroup)
	assert.Equal(t, "hold-1:payout", *params.IdempotencyKey)
	assert.Equal(t, "hold-1", params.Metadata["hold_id"])
}

func TestMoveToHoldingGivesUpAfterMaxRetries(t *testing.T) {
	transient := &stripe.Error{HTTPStatusCode: http.StatusServiceUnavailable}
	api := &fakeStripeAPI{transferErrs: []error{transient, transient, transient, transient}}
	_, err := testProvider(api).MoveToHolding(context.Background(), validRequest())
	require.Error(t, err)
	assert.Len(t, api.transferCalls, 3)
}

func TestPayOutStopsOnPermanentError(t *testing.T) {
	api := &fakeStripeAPI{payoutErrs: []error{
		&stripe.Error{HTTPStatusCode: http.StatusBadRequest, Type: stripe.ErrorTypeInvalidRequest, Msg: "insufficient funds"},
	}}
	_, err := testProvider(api).PayOut(context.Background(), validRequest())
	require.Error(t, err)
	assert.Len(t, api.payoutCalls, 1)

	var stripeErr *stripe.Error
	assert.True(t, errors.As(err, &stripeErr))
}

func TestPayOutTargetsConnectedAccount(t *testing.T) {
	api := &fakeStripeAPI{}
	res, err := testProvider(api).PayOut(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "po_123", res.ID)
	require.Len(t, api.payoutCalls, 1)
	assert.Equal(t, "acct_seller", *api.payoutCalls[0].StripeAccount)
}

func TestTransferRequestValidation(t *testing.T) {
	api := &fakeStripeAPI{}
	req := validRequest()
	req.AmountCents = 0
	_, err := testProvider(api).TransferToSeller(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, api.transferCalls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(&stripe.Error{HTTPStatusCode: http.StatusInternalServerError}))
	assert.True(t, IsTransient(&stripe.Error{HTTPStatusCode: http.StatusConflict, Code: stripe.ErrorCodeLockTimeout}))
	assert.False(t, IsTransient(&stripe.Error{HTTPStatusCode: http.StatusPaymentRequired, Type: stripe.ErrorTypeCard}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(errors.New("boom")))
}
