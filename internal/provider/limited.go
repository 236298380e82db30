package provider

import (
	"context"
	"time"

	"github.com/guregu/null/v6"

	"stockvault/internal/util"
)

// limited wraps a Provider with a shared rate limiter and retry policy.
type limited struct {
	next      Provider
	limiter   *util.RateLimiter
	attempts  int
	baseDelay time.Duration
}

var _ Provider = (*limited)(nil)

// WithLimits returns p throttled to perMinute calls (unthrottled when
// perMinute is not positive) with each call retried up to attempts times
// using exponential backoff from baseDelay.
func WithLimits(p Provider, perMinute, attempts int, baseDelay time.Duration) Provider {
	return &limited{
		next:      p,
		limiter:   util.NewRateLimiter(perMinute),
		attempts:  attempts,
		baseDelay: baseDelay,
	}
}

func (l *limited) Name() string { return l.next.Name() }

func (l *limited) Download(ctx context.Context, symbols []string, start, end time.Time) (map[string]Frame, error) {
	var out map[string]Frame
	err := l.do(ctx, func() error {
		var err error
		out, err = l.next.Download(ctx, symbols, start, end)
		return err
	})
	return out, err
}

func (l *limited) LastPrice(ctx context.Context, symbol string) (null.Float, error) {
	var out null.Float
	err := l.do(ctx, func() error {
		var err error
		out, err = l.next.LastPrice(ctx, symbol)
		return err
	})
	return out, err
}

func (l *limited) OptionExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	var out []time.Time
	err := l.do(ctx, func() error {
		var err error
		out, err = l.next.OptionExpirations(ctx, symbol)
		return err
	})
	return out, err
}

func (l *limited) do(ctx context.Context, fn func() error) error {
	return util.Retry(ctx, l.attempts, l.baseDelay, func() error {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn()
	})
}
