package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	tradeapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockvault/internal/config"
	"stockvault/internal/domain"
	"stockvault/internal/gather"
	"stockvault/internal/gather/us"
	"stockvault/internal/metrics"
	"stockvault/internal/provider"
	"stockvault/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Storage.DSN = filepath.Join(dir, "stockvault.db")
	cfg.Storage.DataDir = dir
	cfg.Backfill.CheckpointPath = filepath.Join(dir, ".backfill_checkpoint")
	cfg.Backfill.Universe = "static"
	cfg.Backfill.Symbols = []string{"AAPL"}
	cfg.Provider.Name = "yahoo"
	return cfg
}

func day(s string) time.Time {
	t, _ := time.Parse(domain.DateLayout, s)
	return t
}

func TestOpenStoreMigrates(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	s, err := OpenStore(ctx, cfg.Storage)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.InsertBars(ctx, []domain.Bar{{Symbol: "AAPL", Date: day("2026-02-02")}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	syms, err := s.TickerMaster(ctx)
	require.NoError(t, err)
	assert.Empty(t, syms)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "mysql"
	_, err := OpenStore(context.Background(), cfg.Storage)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewArchive(t *testing.T) {
	cfg := testConfig(t)
	assert.Nil(t, NewArchive(cfg.Storage))

	cfg.Storage.Archive = true
	a, ok := NewArchive(cfg.Storage).(*store.ParquetArchive)
	require.True(t, ok)
	assert.Equal(t, cfg.Storage.DataDir, a.DataDir)
	assert.Equal(t, domain.MarketUS, a.Market)
}

func TestCreateProvider(t *testing.T) {
	p, err := CreateProvider(config.Provider{Name: "yahoo", Retries: 1})
	require.NoError(t, err)
	assert.Equal(t, "yahoo", p.Name())

	p, err = CreateProvider(config.Provider{Name: "Alpaca", APIKey: "k", APISecret: "s", Retries: 1})
	require.NoError(t, err)
	assert.Equal(t, "alpaca", p.Name())

	_, err = CreateProvider(config.Provider{Name: "alpaca"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = CreateProvider(config.Provider{Name: "polygon"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewUniverse(t *testing.T) {
	u, err := NewUniverse(config.Backfill{Universe: "static", Symbols: []string{"AAPL"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, us.StaticUniverse{}, u)

	u, err = NewUniverse(config.Backfill{Universe: "csv", SymbolsCSV: "x.csv"}, nil)
	require.NoError(t, err)
	assert.Equal(t, &us.CSVUniverse{Path: "x.csv"}, u)

	_, err = NewUniverse(config.Backfill{Universe: "ticker_master"}, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewUniverse(config.Backfill{Universe: "nasdaq"}, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewMarketWindow(t *testing.T) {
	w, err := NewMarketWindow(config.Default().Live)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", w.Location().String())

	_, err = NewMarketWindow(config.Live{Timezone: "Mars/Olympus", Open: "08:24", Close: "16:01"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewJobs(t *testing.T) {
	cfg := testConfig(t)
	p, err := CreateProvider(cfg.Provider)
	require.NoError(t, err)
	d := Deps{Provider: p}

	job, err := NewBackfillJob(cfg, d)
	require.NoError(t, err)
	assert.Equal(t, "us-backfill", job.Name())

	loader, err := NewRangeLoader(cfg, d, gather.MonthWindow(day("2026-02-01")))
	require.NoError(t, err)
	assert.Equal(t, "us-range-load", loader.Name())

	daemon, sampler, err := NewLiveDaemon(cfg, d)
	require.NoError(t, err)
	assert.NotNil(t, sampler)
	assert.Equal(t, "us-live", daemon.Name())

	cfg.Backfill.Universe = "ticker_master"
	_, err = NewBackfillJob(cfg, d)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

// barProvider returns one bar on the first requested day for every symbol.
type barProvider struct{}

func (barProvider) Name() string { return "fake" }

func (barProvider) Download(_ context.Context, symbols []string, start, _ time.Time) (map[string]provider.Frame, error) {
	out := make(map[string]provider.Frame, len(symbols))
	for _, sym := range symbols {
		f := provider.Frame{Index: []time.Time{start}}
		for _, field := range []string{provider.FieldOpen, provider.FieldHigh, provider.FieldLow, provider.FieldClose, provider.FieldVolume} {
			f.Columns = append(f.Columns, provider.Column{Levels: []string{field, sym}, Values: []null.Float{null.FloatFrom(10)}})
		}
		out[sym] = f
	}
	return out, nil
}

func (barProvider) LastPrice(context.Context, string) (null.Float, error) { return null.FloatFrom(10), nil }

func (barProvider) OptionExpirations(context.Context, string) ([]time.Time, error) { return nil, nil }

func TestBackfillJobRecordsMetrics(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	st, err := OpenStore(ctx, cfg.Storage)
	require.NoError(t, err)
	defer st.Close()

	m := metrics.New()
	job, err := NewBackfillJob(cfg, Deps{Store: st, Provider: barProvider{}, Metrics: m})
	require.NoError(t, err)
	_, err = job.RunOnce(ctx)
	require.NoError(t, err)

	path := filepath.Join(cfg.Storage.DataDir, "backfill.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stockvault_bars_written_total 1")
	assert.Contains(t, string(data), `stockvault_batches_total{result="ok"} 1`)
	assert.Contains(t, string(data), `stockvault_cycles_total{job="us-backfill",result="ok"} 1`)
}

type fakeCalendar []tradeapi.CalendarDay

func (f fakeCalendar) GetCalendar(tradeapi.GetCalendarRequest) ([]tradeapi.CalendarDay, error) {
	return f, nil
}

func TestRangeWindow(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2026, 2, 9, 15, 0, 0, 0, ny) // Monday, before the cutoff

	r, err := RangeWindow("2026-01-05", "2026-01-12", nil, ny, now)
	require.NoError(t, err)
	assert.Equal(t, gather.DateRange{Start: day("2026-01-05"), End: day("2026-01-12")}, r)

	cal := fakeCalendar{{Date: "2026-02-05"}, {Date: "2026-02-06"}, {Date: "2026-02-09"}}
	r, err = RangeWindow("", "", cal, ny, now)
	require.NoError(t, err)
	assert.Equal(t, day("2026-02-07"), r.End)
	assert.Equal(t, day("2026-01-31"), r.Start)

	r, err = RangeWindow("2026-02-01", "", nil, ny, now)
	require.NoError(t, err)
	assert.Equal(t, day("2026-02-10"), r.End)

	_, err = RangeWindow("2026-02-10", "2026-02-01", nil, ny, now)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = RangeWindow("02/01/2026", "", nil, ny, now)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := SetupLogging(config.Logging{Level: "warn", Format: "json"}, &buf)
	slog.Info("dropped")
	slog.Warn("kept", "k", 1)

	assert.Same(t, logger, slog.Default())
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}
