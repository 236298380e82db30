// Command us-live samples the latest price of every active instrument on a
// fixed interval while the market window is open, and serves health,
// status and metrics endpoints.
package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"stockvault/internal/api"
	"stockvault/internal/app"
	"stockvault/internal/config"
	"stockvault/internal/metrics"
)

func main() {
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
	daemon, _, err := app.NewLiveDaemon(cfg, app.Deps{Store: st, Provider: p, Metrics: m})
	if err != nil {
		log.Fatalf("failed to build live daemon: %v", err)
	}

	srv := api.NewServer(api.Options{
		HTTPAddr: cfg.Server.HTTPAddr,
		GRPCAddr: cfg.Server.GRPCAddr,
		Metrics:  m.Handler(),
		Status:   func() any { return daemon.Status() },
	})
	daemon.SetHealthHook(srv.Health().SetServing)

	slog.Info("starting us-live",
		"interval", cfg.Live.Interval,
		"open", cfg.Live.Open,
		"close", cfg.Live.Close,
		"timezone", cfg.Live.Timezone,
		"http", cfg.Server.HTTPAddr,
		"grpc", cfg.Server.GRPCAddr,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error {
		defer cancel()
		return daemon.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("daemon error: %v", err)
	}
	slog.Info("us-live stopped")
}
