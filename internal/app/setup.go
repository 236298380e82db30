// Package app builds the ingestion components from a loaded configuration.
// The commands under cmd/ call these constructors and own the lifecycle.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"stockvault/internal/config"
	"stockvault/internal/domain"
	"stockvault/internal/gather"
	"stockvault/internal/gather/us"
	"stockvault/internal/metrics"
	"stockvault/internal/provider"
	"stockvault/internal/provider/alpaca"
	"stockvault/internal/provider/yahoo"
	"stockvault/internal/store"
	"stockvault/internal/util"
)

// SetupLogging installs the configured logger, writing to w (stdout when
// nil), as the slog default and returns it.
func SetupLogging(cfg config.Logging, w io.Writer) *slog.Logger {
	logger := util.NewLogger(cfg.Level, cfg.Format, w)
	util.SetDefault(logger)
	return logger
}

// OpenStore connects to the configured database and creates any missing
// tables.
func OpenStore(ctx context.Context, cfg config.Storage) (*store.SQLStore, error) {
	s, err := store.OpenSQL(ctx, cfg.Driver, cfg.DSN, store.Tables{
		Bars:         cfg.Tables.Bars,
		Samples:      cfg.Tables.Samples,
		Spreads:      cfg.Tables.Spreads,
		TickerMaster: cfg.Tables.TickerMaster,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// NewArchive returns the Parquet archive when enabled, or nil.
func NewArchive(cfg config.Storage) store.BarArchive {
	if !cfg.Archive {
		return nil
	}
	return store.NewParquetArchive(cfg.DataDir, domain.MarketUS)
}

// CreateProvider creates the configured market-data provider wrapped in the
// rate limit and retry policy.
func CreateProvider(cfg config.Provider) (provider.Provider, error) {
	var p provider.Provider
	switch strings.ToLower(cfg.Name) {
	case "alpaca":
		if cfg.APIKey == "" || cfg.APISecret == "" {
			return nil, fmt.Errorf("%w: APCA_API_KEY_ID or APCA_API_SECRET_KEY not set", domain.ErrConfiguration)
		}
		p = alpaca.New(alpaca.Options{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			DataURL:   cfg.DataURL,
			Feed:      cfg.Feed,
			Timeout:   cfg.Timeout,
		})
	case "yahoo":
		p = yahoo.New(yahoo.Options{
			BaseURL:    cfg.YahooURL,
			Timeout:    cfg.Timeout,
			MaxWorkers: cfg.MaxWorkers,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q, options: alpaca, yahoo", domain.ErrConfiguration, cfg.Name)
	}

	slog.Info("wire", "provider", p.Name(), "rate_limit_per_min", cfg.RateLimitPerMin, "retries", cfg.Retries)
	return provider.WithLimits(p, cfg.RateLimitPerMin, cfg.Retries, cfg.RetryDelay), nil
}

// NewUniverse builds the backfill universe named by cfg.Universe.
func NewUniverse(cfg config.Backfill, src store.InstrumentSource) (us.Universe, error) {
	switch cfg.Universe {
	case "static":
		return us.StaticUniverse(cfg.Symbols), nil
	case "csv":
		return &us.CSVUniverse{Path: cfg.SymbolsCSV}, nil
	case "ticker_master":
		if src == nil {
			return nil, fmt.Errorf("%w: ticker_master universe needs a database", domain.ErrConfiguration)
		}
		return &us.TickerMasterUniverse{Source: src}, nil
	default:
		return nil, fmt.Errorf("%w: unknown universe %q", domain.ErrConfiguration, cfg.Universe)
	}
}

// NewMarketWindow builds the live collection window.
func NewMarketWindow(cfg config.Live) (*util.MarketWindow, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	w, err := util.NewMarketWindow(loc, cfg.Open, cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return w, nil
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// Deps are the shared components a job is assembled from.
type Deps struct {
	Store    *store.SQLStore
	Archive  store.BarArchive
	Provider provider.Provider
	Metrics  *metrics.Metrics // optional
}

func (d Deps) fetcher(cfg *config.Config) *us.BatchFetcher {
	f := us.NewBatchFetcher(d.Provider, cfg.Backfill.BatchSize)
	f.SetMetrics(d.Metrics)
	return f
}

func (d Deps) writer() *us.HistoricalWriter {
	var bars store.BarStore
	if d.Store != nil {
		bars = d.Store
	}
	w := us.NewHistoricalWriter(bars, d.Archive)
	w.SetMetrics(d.Metrics)
	return w
}

func (d Deps) source() store.InstrumentSource {
	if d.Store == nil {
		return nil
	}
	return d.Store
}

// NewBackfillJob assembles the monthly backfill job.
func NewBackfillJob(cfg *config.Config, d Deps) (*us.BackfillJob, error) {
	u, err := NewUniverse(cfg.Backfill, d.source())
	if err != nil {
		return nil, err
	}
	cp := us.NewCheckpointStore(cfg.Backfill.CheckpointPath, cfg.Backfill.InitialReferenceDate())
	job := us.NewBackfillJob(cp, u, d.fetcher(cfg), d.writer(), cfg.Backfill.EarliestDate())
	job.SetMetrics(d.Metrics)
	return job, nil
}

// NewRangeLoader assembles a loader for window.
func NewRangeLoader(cfg *config.Config, d Deps, window gather.DateRange) (*us.RangeLoader, error) {
	u, err := NewUniverse(cfg.Backfill, d.source())
	if err != nil {
		return nil, err
	}
	loader := us.NewRangeLoader(u, d.fetcher(cfg), d.writer(), window)
	loader.SetMetrics(d.Metrics)
	return loader, nil
}

// NewLiveDaemon assembles the sampler and the daemon driving it.
func NewLiveDaemon(cfg *config.Config, d Deps) (*us.LiveDaemon, *us.LiveSampler, error) {
	window, err := NewMarketWindow(cfg.Live)
	if err != nil {
		return nil, nil, err
	}
	active := &us.ActiveUniverse{Source: d.Store, Location: window.Location()}
	sampler := us.NewLiveSampler(active, d.Provider, d.Store)
	sampler.SetMetrics(d.Metrics)
	daemon := us.NewLiveDaemon(sampler, window, cfg.Live.Interval)
	daemon.SetMetrics(d.Metrics)
	return daemon, sampler, nil
}

// ---------------------------------------------------------------------------
// Range arguments
// ---------------------------------------------------------------------------

// DefaultRangeDays is the span of a range load when no start is given.
const DefaultRangeDays = 7

// RangeWindow parses the range-load bounds. An empty end defaults to the day
// after the latest finished trading day when cal is set, or the day after
// today in loc otherwise. An empty start defaults to DefaultRangeDays before
// end.
func RangeWindow(start, end string, cal alpaca.Calendar, loc *time.Location, now time.Time) (gather.DateRange, error) {
	var r gather.DateRange
	var err error

	if end != "" {
		if r.End, err = time.Parse(domain.DateLayout, end); err != nil {
			return r, fmt.Errorf("%w: end %q: %v", domain.ErrConfiguration, end, err)
		}
	} else if cal != nil {
		last, err := alpaca.LatestFinishedTradingDay(cal, now)
		if err != nil {
			return r, fmt.Errorf("resolving latest trading day: %w", err)
		}
		r.End = last.AddDate(0, 0, 1)
	} else {
		r.End = domain.TradingDate(now, loc).AddDate(0, 0, 1)
	}

	if start != "" {
		if r.Start, err = time.Parse(domain.DateLayout, start); err != nil {
			return r, fmt.Errorf("%w: start %q: %v", domain.ErrConfiguration, start, err)
		}
	} else {
		r.Start = r.End.AddDate(0, 0, -DefaultRangeDays)
	}

	if !r.Valid() {
		return r, fmt.Errorf("%w: empty range %s", domain.ErrConfiguration, r)
	}
	return r, nil
}
