// Command us-range-load loads daily bars for an explicit date range without
// touching the backfill checkpoint.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"stockvault/internal/app"
	"stockvault/internal/config"
	"stockvault/internal/metrics"
	"stockvault/internal/provider/alpaca"
)

func main() {
	start := flag.String("start", "", "first date to load, YYYY-MM-DD (default: 7 days before end)")
	end := flag.String("end", "", "exclusive end date, YYYY-MM-DD (default: day after the latest finished trading day)")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	app.SetupLogging(cfg.Logging, nil)

	loc, err := cfg.Live.Location()
	if err != nil {
		log.Fatalf("failed to load timezone: %v", err)
	}
	var cal alpaca.Calendar
	if cfg.Provider.APIKey != "" && cfg.Provider.APISecret != "" {
		cal = alpaca.NewCalendar(cfg.Provider.APIKey, cfg.Provider.APISecret, cfg.Provider.BaseURL)
	}
	window, err := app.RangeWindow(*start, *end, cal, loc, time.Now())
	if err != nil {
		log.Fatalf("invalid range: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := app.OpenStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	p, err := app.CreateProvider(cfg.Provider)
	if err != nil {
		log.Fatalf("failed to create provider: %v", err)
	}

	m := metrics.New()
	loader, err := app.NewRangeLoader(cfg, app.Deps{Store: st, Archive: app.NewArchive(cfg.Storage), Provider: p, Metrics: m}, window)
	if err != nil {
		log.Fatalf("failed to build range loader: %v", err)
	}

	slog.Info("starting us-range-load", "window", window.String())
	err = loader.Run(ctx)
	if werr := m.WriteTextfile(cfg.Backfill.MetricsFile); werr != nil {
		slog.Warn("metrics not written", "path", cfg.Backfill.MetricsFile, "err", werr)
	}
	if err != nil {
		log.Fatalf("range load error: %v", err)
	}
}
