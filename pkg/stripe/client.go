// Package stripe configures the stripe-go SDK for payout calls.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/tixmarket-backend/pkg/config"
	"github.com/angelmondragon/tixmarket-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	appName = "tixmarket-escrow"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// keyModes maps secret and restricted key prefixes to the environment they
// authenticate against.
var keyModes = map[string]string{
	"sk_test_": testEnv,
	"rk_test_": testEnv,
	"sk_live_": liveEnv,
	"rk_live_": liveEnv,
}

// Client is the configured Stripe account handle. The SDK keeps its key and
// backends at package level, so only one Client should exist per process.
type Client struct {
	environment string
}

// NewClient checks the key against the configured environment, then points
// the SDK at it. SDK-level network retries are disabled because payout calls
// are retried by the payout policy.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey
	stripe.SetAppInfo(&stripe.AppInfo{Name: appName})
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     sdkLogger{ctx: ctx, logg: logg},
	}))

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe configured")
	}
	return &Client{environment: env}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Live reports whether real money moves through this client.
func (c *Client) Live() bool {
	return c.Environment() == liveEnv
}

func normalizeEnv(raw string) (string, error) {
	switch env := strings.ToLower(strings.TrimSpace(raw)); env {
	case "":
		return testEnv, nil
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func keyMode(key string) string {
	for prefix, mode := range keyModes {
		if strings.HasPrefix(key, prefix) {
			return mode
		}
	}
	return ""
}

func validateAPIKey(env, key string) error {
	if env != testEnv && env != liveEnv {
		return errInvalidStripeEnv
	}
	if mode := keyMode(key); mode != env {
		return fmt.Errorf("stripe environment %q requires a %s secret key (sk_%s_/rk_%s_)", env, env, env, env)
	}
	return nil
}

// sdkLogger forwards stripe-go request logs into the service logger.
type sdkLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (s sdkLogger) Debugf(format string, v ...interface{}) {
	if s.logg != nil {
		s.logg.Debug(s.ctx, "stripe: "+fmt.Sprintf(format, v...))
	}
}

func (s sdkLogger) Infof(format string, v ...interface{}) {
	s.Debugf(format, v...)
}

func (s sdkLogger) Warnf(format string, v ...interface{}) {
	if s.logg != nil {
		s.logg.Warn(s.ctx, "stripe: "+fmt.Sprintf(format, v...))
	}
}

func (s sdkLogger) Errorf(format string, v ...interface{}) {
	if s.logg != nil {
		s.logg.Error(s.ctx, "stripe sdk error", fmt.Errorf(format, v...))
	}
}
