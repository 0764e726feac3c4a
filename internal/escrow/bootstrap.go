package escrow

import (
	"context"

	"github.com/angelmondragon/tixmarket-backend/internal/ledger"
	"github.com/angelmondragon/tixmarket-backend/internal/payments"
	"github.com/angelmondragon/tixmarket-backend/internal/profiles"
	"github.com/angelmondragon/tixmarket-backend/internal/tickets"
	"github.com/angelmondragon/tixmarket-backend/pkg/config"
	"github.com/angelmondragon/tixmarket-backend/pkg/db"
	"github.com/angelmondragon/tixmarket-backend/pkg/logger"
	"github.com/angelmondragon/tixmarket-backend/pkg/metrics"
	"github.com/angelmondragon/tixmarket-backend/pkg/outbox"
	"github.com/angelmondragon/tixmarket-backend/pkg/stripe"
)

// NewFromConfig wires the escrow service against Postgres and Stripe. The api
// and the cron worker share it.
func NewFromConfig(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, escrowMetrics *metrics.EscrowMetrics) (Service, error) {
	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, err
	}
	provider, err := payments.NewStripeProvider(stripeClient, payments.RetryPolicy{
		MaxRetries:  cfg.Escrow.ProviderMaxRetries,
		Base:        cfg.Escrow.ProviderRetryBase,
		CallTimeout: cfg.Escrow.ProviderCallTimeout,
	}, logg)
	if err != nil {
		return nil, err
	}
	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}

	return NewService(ServiceParams{
		Tx:            dbClient,
		Holds:         NewRepository(dbClient.DB()),
		Tickets:       tickets.NewRepository(dbClient.DB()),
		Profiles:      profiles.NewRepository(dbClient.DB()),
		Ledger:        ledgerService,
		Provider:      provider,
		Outbox:        outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger:        logg,
		Metrics:       escrowMetrics,
		FeeRate:       cfg.Escrow.FeeRate,
		HoldingPeriod: cfg.Escrow.HoldingPeriod,
		Currency:      cfg.Escrow.Currency,
	})
}
