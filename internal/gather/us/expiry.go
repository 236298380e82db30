package us

import (
	"context"
	"log/slog"
	"time"

	"github.com/guregu/null/v6"

	"stockvault/internal/domain"
	"stockvault/internal/provider"
)

// ExpiryResult is the nearest option expiration found for one instrument.
type ExpiryResult struct {
	Symbol string
	Expiry null.Time // null when no expiration is on or after the reference
	Err    error
}

// NearestExpiration returns the first of expirations on or after ref's
// date, or null when none qualifies.
func NearestExpiration(expirations []time.Time, ref time.Time) null.Time {
	refDate := domain.TradingDate(ref, time.UTC)
	var best null.Time
	for _, exp := range expirations {
		d := domain.TradingDate(exp, time.UTC)
		if d.Before(refDate) {
			continue
		}
		if !best.Valid || d.Before(best.Time) {
			best = null.TimeFrom(d)
		}
	}
	return best
}

// ExpiryLookup resolves nearest option expirations through a provider.
type ExpiryLookup struct {
	provider provider.Provider
	log      *slog.Logger
}

// NewExpiryLookup creates a lookup.
func NewExpiryLookup(p provider.Provider) *ExpiryLookup {
	return &ExpiryLookup{
		provider: p,
		log:      slog.Default().With("gatherer", "us-expiry"),
	}
}

// Lookup returns one result per instrument in order. A provider failure is
// recorded in that instrument's result and the rest continue; only context
// cancellation stops the lookup.
func (l *ExpiryLookup) Lookup(ctx context.Context, instruments []domain.Instrument, ref time.Time) ([]ExpiryResult, error) {
	out := make([]ExpiryResult, 0, len(instruments))
	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res := ExpiryResult{Symbol: inst.Symbol}

		exps, err := l.provider.OptionExpirations(ctx, inst.ProviderSymbol())
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			l.log.Warn("expiration lookup failed", "symbol", inst.Symbol, "err", err)
			res.Err = err
		} else {
			res.Expiry = NearestExpiration(exps, ref)
		}
		out = append(out, res)
	}
	return out, nil
}
