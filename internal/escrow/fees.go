package escrow

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/tixmarket-backend/pkg/errors"
)

var (
	// DefaultFeeRate is the platform's share of every ticket sale.
	DefaultFeeRate = decimal.RequireFromString("0.05")

	processorRate     = decimal.RequireFromString("0.029")
	processorFixedFee = decimal.NewFromInt(30)
	one               = decimal.NewFromInt(1)
)

// FeeSplit divides a gross amount between the platform and the seller.
// PlatformFeeCents + SellerAmountCents == TotalAmountCents.
type FeeSplit struct {
	TotalAmountCents  int64
	PlatformFeeCents  int64
	SellerAmountCents int64
}

// SplitFee computes round_half_up(total * rate) as the platform fee and gives
// the remainder to the seller.
func SplitFee(totalCents int64, rate decimal.Decimal) (FeeSplit, error) {
	if totalCents <= 0 {
		return FeeSplit{}, pkgerrors.New(pkgerrors.CodeValidation, "total amount must be a positive number of cents")
	}
	if rate.IsNegative() || rate.GreaterThan(one) {
		return FeeSplit{}, pkgerrors.New(pkgerrors.CodeValidation, "fee rate must be within [0,1]")
	}
	fee := decimal.NewFromInt(totalCents).Mul(rate).Round(0).IntPart()
	return FeeSplit{
		TotalAmountCents:  totalCents,
		PlatformFeeCents:  fee,
		SellerAmountCents: totalCents - fee,
	}, nil
}

// ProcessorFee models the card processor's cut: 2.9% plus 30 cents, rounded
// to the nearest cent.
func ProcessorFee(grossCents int64) int64 {
	if grossCents <= 0 {
		return 0
	}
	return decimal.NewFromInt(grossCents).Mul(processorRate).Add(processorFixedFee).Round(0).IntPart()
}

// NetPayout is what the sweep sends to a seller: gross minus platform fee minus
// processor fee, never negative.
func NetPayout(grossCents, platformFeeCents int64) int64 {
	net := grossCents - platformFeeCents - ProcessorFee(grossCents)
	if net < 0 {
		return 0
	}
	return net
}
