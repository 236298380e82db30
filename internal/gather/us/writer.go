package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/guregu/null/v6"

	"stockvault/internal/domain"
	"stockvault/internal/metrics"
	"stockvault/internal/provider"
	"stockvault/internal/store"
)

// BarsFromFrame converts one symbol's provider frame into bars. Column keys
// are flattened to their field names first; every bar carries symbol
// explicitly. Prices are rounded to domain.PricePlaces, volumes to whole
// shares, and NaN becomes null. A missing field column, a column whose
// length disagrees with the index, or an infinite value is an error.
func BarsFromFrame(symbol string, f provider.Frame) ([]domain.Bar, error) {
	flat := f.Flatten()
	n := len(flat.Index)

	fields := []string{provider.FieldOpen, provider.FieldHigh, provider.FieldLow, provider.FieldClose, provider.FieldVolume}
	cols := make(map[string][]null.Float, len(fields))
	for _, name := range fields {
		c, ok := flat.Column(name)
		if !ok {
			return nil, fmt.Errorf("%s: missing %s column", symbol, name)
		}
		if len(c.Values) != n {
			return nil, fmt.Errorf("%s: %s column has %d values for %d rows", symbol, name, len(c.Values), n)
		}
		cols[name] = c.Values
	}

	bars := make([]domain.Bar, 0, n)
	for i, ts := range flat.Index {
		b := domain.Bar{
			Symbol: symbol,
			Date:   domain.TradingDate(ts, time.UTC),
		}
		for _, p := range []struct {
			name string
			dst  *null.Float
		}{
			{provider.FieldOpen, &b.Open},
			{provider.FieldHigh, &b.High},
			{provider.FieldLow, &b.Low},
			{provider.FieldClose, &b.Close},
		} {
			v := cols[p.name][i]
			if v.Valid && math.IsInf(v.Float64, 0) {
				return nil, fmt.Errorf("%s %s: infinite %s", symbol, b.Date.Format(domain.DateLayout), p.name)
			}
			*p.dst = domain.RoundNull(v, domain.PricePlaces)
		}

		vol := cols[provider.FieldVolume][i]
		switch {
		case !vol.Valid || math.IsNaN(vol.Float64):
		case math.IsInf(vol.Float64, 0):
			return nil, fmt.Errorf("%s %s: infinite volume", symbol, b.Date.Format(domain.DateLayout))
		default:
			b.Volume = null.IntFrom(int64(math.Round(vol.Float64)))
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// ---------------------------------------------------------------------------
// HistoricalWriter
// ---------------------------------------------------------------------------

// HistoricalWriter appends bars to the historical store and, when an
// archive is attached, mirrors them there after the commit.
type HistoricalWriter struct {
	store   store.BarStore
	archive store.BarArchive
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewHistoricalWriter creates a writer. archive may be nil.
func NewHistoricalWriter(s store.BarStore, archive store.BarArchive) *HistoricalWriter {
	return &HistoricalWriter{
		store:   s,
		archive: archive,
		log:     slog.Default().With("gatherer", "historical-writer"),
	}
}

// SetMetrics attaches a metrics sink.
func (w *HistoricalWriter) SetMetrics(m *metrics.Metrics) { w.metrics = m }

// Append writes bars in one transaction and returns the number of rows
// inserted; rows already present are skipped. An empty slice returns 0
// without touching the store. Failures wrap domain.ErrStorage.
func (w *HistoricalWriter) Append(ctx context.Context, bars []domain.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	n, err := w.store.InsertBars(ctx, bars)
	if err != nil {
		if !errors.Is(err, domain.ErrStorage) {
			err = fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}
		return 0, err
	}
	w.metrics.AddBars(n)

	if w.archive != nil {
		if err := w.archive.WriteBars(ctx, bars); err != nil {
			w.log.Warn("archive write failed", "bars", len(bars), "err", err)
		}
	}

	w.log.Debug("bars appended", "submitted", len(bars), "inserted", n)
	return n, nil
}
