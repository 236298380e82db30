// Package provider defines the market-data source contract the gatherers
// consume, and the tabular frame shape adapters return bars in.
package provider

import (
	"context"
	"time"

	"github.com/guregu/null/v6"
)

// Provider is an external market-data source.
//
// Download returns one frame per requested symbol that the provider
// answered for. A returned error means the whole call failed; a failure
// confined to one symbol is reported through that symbol's Frame.Err.
// Symbols with no data map to an empty frame or are absent.
//
// LastPrice returns a null value when the provider has no current price.
type Provider interface {
	Name() string
	Download(ctx context.Context, symbols []string, start, end time.Time) (map[string]Frame, error)
	LastPrice(ctx context.Context, symbol string) (null.Float, error)
	OptionExpirations(ctx context.Context, symbol string) ([]time.Time, error)
}
