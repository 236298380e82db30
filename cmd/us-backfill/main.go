// Command us-backfill loads one calendar month of daily bars per run,
// walking backward from the checkpoint until the earliest configured date.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"stockvault/internal/app"
	"stockvault/internal/config"
	"stockvault/internal/metrics"
)

func main() {
	all := flag.Bool("all", false, "keep loading months until the earliest date is reached")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	app.SetupLogging(cfg.Logging, nil)

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
	job, err := app.NewBackfillJob(cfg, app.Deps{Store: st, Archive: app.NewArchive(cfg.Storage), Provider: p, Metrics: m})
	if err != nil {
		log.Fatalf("failed to build backfill: %v", err)
	}

	slog.Info("starting us-backfill", "all", *all, "checkpoint", cfg.Backfill.CheckpointPath)
	if *all {
		err = job.RunUntilComplete(ctx)
	} else {
		err = job.Run(ctx)
	}
	if werr := m.WriteTextfile(cfg.Backfill.MetricsFile); werr != nil {
		slog.Warn("metrics not written", "path", cfg.Backfill.MetricsFile, "err", werr)
	}
	if err != nil {
		log.Fatalf("backfill error: %v", err)
	}
}
