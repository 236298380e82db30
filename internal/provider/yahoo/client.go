// Package yahoo adapts the Yahoo Finance chart and options endpoints to
// provider.Provider.
package yahoo

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/guregu/null/v6"
	"golang.org/x/sync/errgroup"

	"stockvault/internal/domain"
	"stockvault/internal/provider"
)

// DefaultBaseURL is the public query host.
const DefaultBaseURL = "https://query2.finance.yahoo.com"

var _ provider.Provider = (*Client)(nil)

// Options configures the adapter.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxWorkers int // concurrent per-symbol requests inside one Download
}

// Client downloads daily bars one symbol per request, fanned out across a
// bounded worker pool, and presents them as multi-level frames.
type Client struct {
	http       *resty.Client
	maxWorkers int
	log        *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	return &Client{
		http: resty.New().
			SetBaseURL(opts.BaseURL).
			SetTimeout(opts.Timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "Mozilla/5.0 (compatible; stockvault)"),
		maxWorkers: opts.MaxWorkers,
		log:        slog.Default().With("provider", "yahoo"),
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "yahoo" }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type quote struct {
	Open   []null.Float `json:"open"`
	High   []null.Float `json:"high"`
	Low    []null.Float `json:"low"`
	Close  []null.Float `json:"close"`
	Volume []null.Float `json:"volume"`
}

type chartResult struct {
	Meta struct {
		Symbol             string     `json:"symbol"`
		RegularMarketPrice null.Float `json:"regularMarketPrice"`
		GMTOffset          int64      `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []quote `json:"quote"`
	} `json:"indicators"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type optionsResponse struct {
	OptionChain struct {
		Result []struct {
			UnderlyingSymbol string  `json:"underlyingSymbol"`
			ExpirationDates  []int64 `json:"expirationDates"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"optionChain"`
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// Download fetches each symbol's daily chart for [start, end). A failure for
// one symbol lands in that frame's Err; only context cancellation fails the
// whole call.
func (c *Client) Download(ctx context.Context, symbols []string, start, end time.Time) (map[string]provider.Frame, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]provider.Frame, len(symbols))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)
	for _, sym := range symbols {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			frame, err := c.chart(gctx, sym, start, end)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.log.Warn("symbol download failed", "symbol", sym, "err", err)
				frame = provider.Frame{Err: err}
			}
			mu.Lock()
			out[sym] = frame
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) chart(ctx context.Context, symbol string, start, end time.Time) (provider.Frame, error) {
	var body chartResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"period1":        strconv.FormatInt(start.Unix(), 10),
			"period2":        strconv.FormatInt(end.Unix(), 10),
			"interval":       "1d",
			"includePrePost": "false",
		}).
		SetResult(&body).
		SetError(&body).
		Get("/v8/finance/chart/{symbol}")
	if err != nil {
		return provider.Frame{}, fmt.Errorf("%w: chart %s: %w", domain.ErrProviderFetch, symbol, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return provider.Frame{}, nil
	}
	if resp.IsError() {
		return provider.Frame{}, fmt.Errorf("%w: chart %s: %s", domain.ErrProviderFetch, symbol, resp.Status())
	}
	if e := body.Chart.Error; e != nil {
		return provider.Frame{}, fmt.Errorf("%w: chart %s: %s: %s", domain.ErrProviderFetch, symbol, e.Code, e.Description)
	}
	if len(body.Chart.Result) == 0 {
		return provider.Frame{}, nil
	}
	return resultToFrame(symbol, body.Chart.Result[0])
}

// resultToFrame builds a frame keyed (field, symbol) from one chart result.
func resultToFrame(symbol string, r chartResult) (provider.Frame, error) {
	if len(r.Timestamp) == 0 || len(r.Indicators.Quote) == 0 {
		return provider.Frame{}, nil
	}
	q := r.Indicators.Quote[0]

	f := provider.Frame{Index: make([]time.Time, len(r.Timestamp))}
	for i, ts := range r.Timestamp {
		f.Index[i] = domain.TradingDate(time.Unix(ts+r.Meta.GMTOffset, 0), time.UTC)
	}
	for _, col := range []struct {
		name   string
		values []null.Float
	}{
		{provider.FieldOpen, q.Open},
		{provider.FieldHigh, q.High},
		{provider.FieldLow, q.Low},
		{provider.FieldClose, q.Close},
		{provider.FieldVolume, q.Volume},
	} {
		if len(col.values) != len(f.Index) {
			return provider.Frame{}, fmt.Errorf("%w: chart %s: %s has %d values for %d rows",
				domain.ErrProviderFetch, symbol, col.name, len(col.values), len(f.Index))
		}
		f.Columns = append(f.Columns, provider.Column{
			Levels: []string{col.name, symbol},
			Values: col.values,
		})
	}
	return f, nil
}

// LastPrice returns the regular-market price from the chart metadata.
func (c *Client) LastPrice(ctx context.Context, symbol string) (null.Float, error) {
	var body chartResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{"range": "1d", "interval": "1d"}).
		SetResult(&body).
		Get("/v8/finance/chart/{symbol}")
	if err != nil {
		return null.Float{}, fmt.Errorf("%w: quote %s: %w", domain.ErrProviderFetch, symbol, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return null.Float{}, nil
	}
	if resp.IsError() {
		return null.Float{}, fmt.Errorf("%w: quote %s: %s", domain.ErrProviderFetch, symbol, resp.Status())
	}
	if len(body.Chart.Result) == 0 {
		return null.Float{}, nil
	}
	return body.Chart.Result[0].Meta.RegularMarketPrice, nil
}

// OptionExpirations lists the symbol's option expiration dates, ascending.
func (c *Client) OptionExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	var body optionsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetResult(&body).
		Get("/v7/finance/options/{symbol}")
	if err != nil {
		return nil, fmt.Errorf("%w: options %s: %w", domain.ErrProviderFetch, symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: options %s: %s", domain.ErrProviderFetch, symbol, resp.Status())
	}
	if len(body.OptionChain.Result) == 0 {
		return nil, nil
	}

	raw := body.OptionChain.Result[0].ExpirationDates
	out := make([]time.Time, 0, len(raw))
	for _, ts := range raw {
		out = append(out, domain.TradingDate(time.Unix(ts, 0), time.UTC))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}
