package payments

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stripe/stripe-go/v84"
)

// RetryPolicy bounds provider call retries.
type RetryPolicy struct {
	MaxRetries  uint64
	Base        time.Duration
	Cap         time.Duration
	CallTimeout time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	capped := p.Cap
	if capped <= 0 {
		capped = 5 * time.Second
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithCappedDuration(capped, b)
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// do runs fn until it succeeds, fails permanently, or the policy gives up.
func (p RetryPolicy) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		callCtx := ctx
		if p.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
			defer cancel()
		}
		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsTransient reports whether a provider error is worth retrying: server-side
// API errors, rate limits, lock timeouts and network failures. Card and
// invalid-request errors are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
			return true
		case stripeErr.HTTPStatusCode == http.StatusConflict && stripeErr.Code == stripe.ErrorCodeLockTimeout:
			return true
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return true
		case stripeErr.Type == stripe.ErrorTypeAPI:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
