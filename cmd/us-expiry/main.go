// Command us-expiry prints the nearest option expiration on or after a
// reference date for each symbol, as CSV on stdout.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stockvault/internal/app"
	"stockvault/internal/config"
	"stockvault/internal/domain"
	"stockvault/internal/gather/us"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbols (default: the configured backfill universe)")
	ref := flag.String("date", "", "reference date, YYYY-MM-DD (default: today in the market timezone)")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// stdout carries the CSV.
	app.SetupLogging(cfg.Logging, os.Stderr)

	loc, err := cfg.Live.Location()
	if err != nil {
		log.Fatalf("failed to load timezone: %v", err)
	}
	refDate := domain.TradingDate(time.Now(), loc)
	if *ref != "" {
		if refDate, err = time.Parse(domain.DateLayout, *ref); err != nil {
			log.Fatalf("invalid -date %q: %v", *ref, err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var universe us.Universe
	if *symbols != "" {
		universe = us.StaticUniverse(strings.Split(*symbols, ","))
	} else {
		st, err := app.OpenStore(ctx, cfg.Storage)
		if err != nil {
			log.Fatalf("failed to open store: %v", err)
		}
		defer st.Close()
		if universe, err = app.NewUniverse(cfg.Backfill, st); err != nil {
			log.Fatalf("failed to build universe: %v", err)
		}
	}

	instruments, err := universe.Instruments(ctx)
	if err != nil {
		log.Fatalf("failed to resolve symbols: %v", err)
	}

	p, err := app.CreateProvider(cfg.Provider)
	if err != nil {
		log.Fatalf("failed to create provider: %v", err)
	}

	results, err := us.NewExpiryLookup(p).Lookup(ctx, instruments, refDate)
	if err != nil {
		log.Fatalf("expiry lookup error: %v", err)
	}

	w := csv.NewWriter(os.Stdout)
	_ = w.Write([]string{"symbol", "expiry_date"})
	for _, r := range results {
		expiry := ""
		if r.Expiry.Valid {
			expiry = r.Expiry.Time.Format(domain.DateLayout)
		}
		_ = w.Write([]string{r.Symbol, expiry})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatalf("writing CSV: %v", err)
	}
}
