// Package store defines the persistence contracts the gatherers write
// through, and their SQL and Parquet implementations.
package store

import (
	"context"
	"time"

	"stockvault/internal/domain"
)

// BarStore persists daily bars.
type BarStore interface {
	// InsertBars writes bars in one transaction, skipping any (symbol, date)
	// already present, and returns the number of rows inserted.
	InsertBars(ctx context.Context, bars []domain.Bar) (int, error)
}

// SampleStore persists live price samples.
type SampleStore interface {
	// InsertSample appends one sample.
	InsertSample(ctx context.Context, s domain.Sample) error
}

// InstrumentSource answers the universe queries.
type InstrumentSource interface {
	// ActiveInstruments returns the distinct symbols with a tracked expiry on
	// or after asOf, each with its nearest such expiry.
	ActiveInstruments(ctx context.Context, asOf time.Time) ([]domain.Instrument, error)

	// TickerMaster returns the distinct non-empty symbols of the ticker
	// master table.
	TickerMaster(ctx context.Context) ([]string, error)
}

// BarArchive mirrors bars to a columnar file archive.
type BarArchive interface {
	WriteBars(ctx context.Context, bars []domain.Bar) error
}
