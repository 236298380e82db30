// Package alpaca adapts the Alpaca market-data API to provider.Provider.
package alpaca

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/guregu/null/v6"

	"stockvault/internal/domain"
	"stockvault/internal/provider"
)

var _ provider.Provider = (*Client)(nil)

// marketData is the subset of *marketdata.Client the adapter calls.
type marketData interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
	GetOptionChain(underlying string, req marketdata.GetOptionChainRequest) (map[string]marketdata.OptionSnapshot, error)
}

// Options configures the adapter.
type Options struct {
	APIKey    string
	APISecret string
	DataURL   string // empty selects the SDK default
	Feed      string // iex, sip, delayed_sip or otc
	Timeout   time.Duration // per-request HTTP timeout; zero keeps the SDK client
}

// Client serves daily bars, latest trades and option chains from Alpaca.
type Client struct {
	md   marketData
	feed marketdata.Feed
	log  *slog.Logger
}

// New creates a Client with the given credentials.
func New(opts Options) *Client {
	return newClient(marketdata.NewClient(clientOpts(opts)), opts.Feed)
}

func clientOpts(opts Options) marketdata.ClientOpts {
	mdOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		mdOpts.BaseURL = opts.DataURL
	}
	if opts.Timeout > 0 {
		mdOpts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return mdOpts
}

func newClient(md marketData, feed string) *Client {
	if feed == "" {
		feed = "iex"
	}
	return &Client{
		md:   md,
		feed: marketdata.Feed(feed),
		log:  slog.Default().With("provider", "alpaca"),
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "alpaca" }

// Download fetches raw daily bars for all symbols in one GetMultiBars call.
// Symbols are accepted in dash form (BRK-B) and translated to Alpaca's dot
// form on the wire; result keys use the caller's spelling.
func (c *Client) Download(ctx context.Context, symbols []string, start, end time.Time) (map[string]provider.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wire := make([]string, len(symbols))
	back := make(map[string]string, len(symbols))
	for i, s := range symbols {
		wire[i] = toAlpaca(s)
		back[wire[i]] = s
	}

	multiBars, err := c.md.GetMultiBars(wire, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.Raw,
		Start:      start,
		End:        end,
		Feed:       c.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: GetMultiBars: %w", domain.ErrProviderFetch, err)
	}

	out := make(map[string]provider.Frame, len(multiBars))
	for sym, bars := range multiBars {
		key, ok := back[strings.ToUpper(sym)]
		if !ok {
			key = domain.NormalizeSymbol(sym)
		}
		out[key] = barsToFrame(bars)
	}
	return out, nil
}

// barsToFrame lays Alpaca bars out as a single-level OHLCV frame.
func barsToFrame(bars []marketdata.Bar) provider.Frame {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	f := provider.Frame{Index: make([]time.Time, len(bars))}
	open := make([]null.Float, len(bars))
	high := make([]null.Float, len(bars))
	low := make([]null.Float, len(bars))
	cls := make([]null.Float, len(bars))
	vol := make([]null.Float, len(bars))
	for i, b := range bars {
		// Daily bar timestamps are midnight Eastern, which is the same
		// calendar day in UTC.
		f.Index[i] = domain.TradingDate(b.Timestamp, time.UTC)
		open[i] = null.FloatFrom(b.Open)
		high[i] = null.FloatFrom(b.High)
		low[i] = null.FloatFrom(b.Low)
		cls[i] = null.FloatFrom(b.Close)
		vol[i] = null.FloatFrom(float64(b.Volume))
	}
	f.Columns = []provider.Column{
		{Levels: []string{provider.FieldOpen}, Values: open},
		{Levels: []string{provider.FieldHigh}, Values: high},
		{Levels: []string{provider.FieldLow}, Values: low},
		{Levels: []string{provider.FieldClose}, Values: cls},
		{Levels: []string{provider.FieldVolume}, Values: vol},
	}
	return f
}

// LastPrice returns the price of the latest trade, or null when Alpaca has
// no trade for the symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (null.Float, error) {
	if err := ctx.Err(); err != nil {
		return null.Float{}, err
	}
	trade, err := c.md.GetLatestTrade(toAlpaca(symbol), marketdata.GetLatestTradeRequest{Feed: c.feed})
	if err != nil {
		return null.Float{}, fmt.Errorf("%w: GetLatestTrade %s: %w", domain.ErrProviderFetch, symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return null.Float{}, nil
	}
	return null.FloatFrom(trade.Price), nil
}

// OptionExpirations returns the distinct expiration dates listed in the
// symbol's option chain, ascending.
func (c *Client) OptionExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chain, err := c.md.GetOptionChain(toAlpaca(symbol), marketdata.GetOptionChainRequest{})
	if err != nil {
		return nil, fmt.Errorf("%w: GetOptionChain %s: %w", domain.ErrProviderFetch, symbol, err)
	}

	seen := make(map[time.Time]struct{})
	var out []time.Time
	for contract := range chain {
		exp, err := ParseOCCExpiry(contract)
		if err != nil {
			c.log.Debug("skipping contract", "contract", contract, "err", err)
			continue
		}
		if _, dup := seen[exp]; dup {
			continue
		}
		seen[exp] = struct{}{}
		out = append(out, exp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// ParseOCCExpiry extracts the expiration date from an OCC option symbol
// such as AAPL240119C00150000 (root, YYMMDD, C/P, 8-digit strike).
func ParseOCCExpiry(contract string) (time.Time, error) {
	if len(contract) < 16 {
		return time.Time{}, fmt.Errorf("option symbol %q too short", contract)
	}
	tail := contract[len(contract)-15:]
	if tail[6] != 'C' && tail[6] != 'P' {
		return time.Time{}, fmt.Errorf("option symbol %q has no put/call flag", contract)
	}
	return time.Parse("060102", tail[:6])
}

func toAlpaca(symbol string) string {
	return strings.ReplaceAll(domain.NormalizeSymbol(symbol), "-", ".")
}
