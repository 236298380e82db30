package us

import (
	"context"
	"log/slog"
	"math"
	"time"

	"stockvault/internal/domain"
	"stockvault/internal/metrics"
	"stockvault/internal/provider"
	"stockvault/internal/store"
)

// CycleReport summarises one live sampling cycle.
type CycleReport struct {
	Started  time.Time `json:"started"`
	Tickers  int       `json:"tickers"`
	Inserted int       `json:"inserted"`
	Skipped  int       `json:"skipped"`
	Failed   []string  `json:"failed,omitempty"` // symbols whose price lookup errored
}

// LiveSampler records one price sample per active instrument per cycle.
type LiveSampler struct {
	universe Universe
	provider provider.Provider
	store    store.SampleStore
	now      func() time.Time
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewLiveSampler creates a sampler over the given active universe.
func NewLiveSampler(u Universe, p provider.Provider, s store.SampleStore) *LiveSampler {
	return &LiveSampler{
		universe: u,
		provider: p,
		store:    s,
		now:      time.Now,
		log:      slog.Default().With("gatherer", "us-live-sampler"),
	}
}

// SetClock replaces the wall clock used for sample timestamps.
func (s *LiveSampler) SetClock(now func() time.Time) { s.now = now }

// SetMetrics attaches a metrics sink.
func (s *LiveSampler) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Run executes one cycle: resolve the active set, fetch a last price for
// each instrument and append a sample per price found. A failed or absent
// price skips that instrument only. A storage error aborts the cycle.
func (s *LiveSampler) Run(ctx context.Context) (CycleReport, error) {
	report := CycleReport{Started: s.now()}

	instruments, err := s.universe.Instruments(ctx)
	if err != nil {
		return report, err
	}
	report.Tickers = len(instruments)
	if len(instruments) == 0 {
		s.log.Info("no active tickers")
		return report, nil
	}

	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		price, err := s.provider.LastPrice(ctx, inst.ProviderSymbol())
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			s.log.Warn("price lookup failed", "symbol", inst.Symbol, "err", err)
			report.Skipped++
			report.Failed = append(report.Failed, inst.Symbol)
			continue
		}
		if !price.Valid || math.IsNaN(price.Float64) || math.IsInf(price.Float64, 0) || price.Float64 <= 0 {
			s.log.Debug("no price", "symbol", inst.Symbol)
			report.Skipped++
			continue
		}

		sample := domain.Sample{
			Symbol:    inst.Symbol,
			Timestamp: s.now(),
			Price:     domain.Round(price.Float64, domain.SamplePlaces),
		}
		if err := s.store.InsertSample(ctx, sample); err != nil {
			s.metrics.AddSamples(report.Inserted)
			return report, err
		}
		report.Inserted++
	}

	s.metrics.AddSamples(report.Inserted)
	s.log.Info("cycle done",
		"tickers", report.Tickers,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
	)
	return report, nil
}
