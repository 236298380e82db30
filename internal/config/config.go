// Package config loads the stockvault configuration: a YAML file, optional
// .env file, environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"
	_ "time/tzdata" // market timezone must resolve on hosts without zoneinfo

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stockvault/internal/domain"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "STOCKVAULT_CONFIG"

// DefaultPath is used when EnvPath is unset.
const DefaultPath = "config/stockvault.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the ingestion jobs.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Provider Provider `yaml:"provider"`
	Logging  Logging  `yaml:"logging"`
	Backfill Backfill `yaml:"backfill"`
	Live     Live     `yaml:"live"`
	Server   Server   `yaml:"server"`
}

// Storage selects the database and the optional Parquet archive.
type Storage struct {
	Driver  string `yaml:"driver" env:"STOCKVAULT_DB_DRIVER" validate:"oneof=sqlite postgres"`
	DSN     string `yaml:"dsn" env:"STOCKVAULT_DB_DSN" validate:"required"`
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
	Archive bool   `yaml:"archive" env:"STOCKVAULT_ARCHIVE"`
	Tables  Tables `yaml:"tables"`
}

// Tables names the four tables the jobs read and write.
type Tables struct {
	Bars         string `yaml:"bars" validate:"required"`
	Samples      string `yaml:"samples" validate:"required"`
	Spreads      string `yaml:"spreads" validate:"required"`
	TickerMaster string `yaml:"ticker_master" validate:"required"`
}

// Provider configures the market-data source.
type Provider struct {
	Name            string        `yaml:"name" env:"STOCKVAULT_PROVIDER" validate:"oneof=alpaca yahoo"`
	APIKey          string        `yaml:"api_key" env:"APCA_API_KEY_ID"`
	APISecret       string        `yaml:"api_secret" env:"APCA_API_SECRET_KEY"`
	BaseURL         string        `yaml:"base_url" env:"ALPACA_BASE_URL" validate:"omitempty,url"`
	DataURL         string        `yaml:"data_url" env:"ALPACA_DATA_URL" validate:"omitempty,url"`
	Feed            string        `yaml:"feed" validate:"omitempty,oneof=iex sip delayed_sip otc"`
	YahooURL        string        `yaml:"yahoo_url" env:"YAHOO_BASE_URL" validate:"omitempty,url"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min" validate:"min=0"`
	MaxWorkers      int           `yaml:"max_workers" validate:"min=1"`
	Retries         int           `yaml:"retries" validate:"min=1"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"LOG_FORMAT" validate:"oneof=text json"`
}

// Backfill controls the month-by-month historical load.
type Backfill struct {
	BatchSize        int      `yaml:"batch_size" validate:"min=1"`
	Earliest         string   `yaml:"earliest" validate:"datetime=2006-01-02"`
	InitialReference string   `yaml:"initial_reference" validate:"datetime=2006-01-02"`
	CheckpointPath   string   `yaml:"checkpoint_path" env:"STOCKVAULT_CHECKPOINT" validate:"required"`
	Universe         string   `yaml:"universe" validate:"oneof=static csv ticker_master"`
	Symbols          []string `yaml:"symbols" env:"STOCKVAULT_SYMBOLS" envSeparator:","`
	SymbolsCSV       string   `yaml:"symbols_csv"`
	MetricsFile      string   `yaml:"metrics_file" env:"STOCKVAULT_METRICS_FILE"`
}

// Live controls the market-hours sampling daemon.
type Live struct {
	Interval time.Duration `yaml:"interval"`
	Open     string        `yaml:"open" validate:"datetime=15:04"`
	Close    string        `yaml:"close" validate:"datetime=15:04"`
	Timezone string        `yaml:"timezone" validate:"required"`
}

// Server holds the daemon's health and metrics listeners. An empty address
// disables that listener.
type Server struct {
	HTTPAddr string `yaml:"http_addr" env:"STOCKVAULT_HTTP_ADDR"`
	GRPCAddr string `yaml:"grpc_addr" env:"STOCKVAULT_GRPC_ADDR"`
}

// Default returns the configuration used for any key the file leaves out.
func Default() *Config {
	return &Config{
		Storage: Storage{
			Driver:  "sqlite",
			DSN:     "data/stockvault.db",
			DataDir: "data",
			Tables: Tables{
				Bars:         "stocks_history",
				Samples:      "spread_prices",
				Spreads:      "option_spreads",
				TickerMaster: "ticker_master",
			},
		},
		Provider: Provider{
			Name:            "alpaca",
			Feed:            "iex",
			RateLimitPerMin: 200,
			MaxWorkers:      4,
			Retries:         3,
			RetryDelay:      2 * time.Second,
			Timeout:         30 * time.Second,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Backfill: Backfill{
			BatchSize:        50,
			Earliest:         "2020-01-01",
			InitialReference: "2026-02-06",
			CheckpointPath:   "data/.backfill_checkpoint",
			Universe:         "ticker_master",
			MetricsFile:      "data/backfill.prom",
		},
		Live: Live{
			Interval: 15 * time.Minute,
			Open:     "08:24",
			Close:    "16:01",
			Timezone: "America/New_York",
		},
		Server: Server{HTTPAddr: ":8080"},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the config file path from EnvPath, or DefaultPath.
func Path() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML file at path over the defaults, loads a .env file from
// the working directory when present, applies environment overrides and
// validates the result. Every failure wraps domain.ErrConfiguration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrConfiguration, path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrConfiguration, path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: loading .env: %v", domain.ErrConfiguration, err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: environment: %v", domain.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Validate checks field constraints and the cross-field rules the struct
// tags cannot express.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	var errs []error
	for name, table := range map[string]string{
		"bars":          c.Storage.Tables.Bars,
		"samples":       c.Storage.Tables.Samples,
		"spreads":       c.Storage.Tables.Spreads,
		"ticker_master": c.Storage.Tables.TickerMaster,
	} {
		if !identRe.MatchString(table) {
			errs = append(errs, fmt.Errorf("storage.tables.%s %q is not a plain identifier", name, table))
		}
	}

	if c.Provider.Name == "alpaca" && (c.Provider.APIKey == "" || c.Provider.APISecret == "") {
		errs = append(errs, errors.New("provider alpaca requires api_key and api_secret"))
	}

	if c.Backfill.EarliestDate().After(c.Backfill.InitialReferenceDate()) {
		errs = append(errs, fmt.Errorf("backfill.earliest %s is after initial_reference %s",
			c.Backfill.Earliest, c.Backfill.InitialReference))
	}
	switch c.Backfill.Universe {
	case "static":
		if len(c.Backfill.Symbols) == 0 {
			errs = append(errs, errors.New("backfill.universe static requires symbols"))
		}
	case "csv":
		if c.Backfill.SymbolsCSV == "" {
			errs = append(errs, errors.New("backfill.universe csv requires symbols_csv"))
		}
	}

	if c.Live.Interval <= 0 {
		errs = append(errs, fmt.Errorf("live.interval %s must be positive", c.Live.Interval))
	}
	openAt, oerr := time.Parse("15:04", c.Live.Open)
	closeAt, cerr := time.Parse("15:04", c.Live.Close)
	if oerr == nil && cerr == nil && !openAt.Before(closeAt) {
		errs = append(errs, fmt.Errorf("live.open %s is not before live.close %s", c.Live.Open, c.Live.Close))
	}
	if _, err := time.LoadLocation(c.Live.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("live.timezone: %v", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return nil
}

// EarliestDate returns the parsed earliest bound. Call after Validate.
func (b Backfill) EarliestDate() time.Time {
	t, _ := time.Parse(domain.DateLayout, b.Earliest)
	return t
}

// InitialReferenceDate returns the parsed initial reference. Call after
// Validate.
func (b Backfill) InitialReferenceDate() time.Time {
	t, _ := time.Parse(domain.DateLayout, b.InitialReference)
	return t
}

// Location resolves the live window timezone.
func (l Live) Location() (*time.Location, error) {
	return time.LoadLocation(l.Timezone)
}
