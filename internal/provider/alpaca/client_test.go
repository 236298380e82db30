package alpaca

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockvault/internal/domain"
	"stockvault/internal/provider"
)

type fakeMarketData struct {
	gotSymbols []string
	gotReq     marketdata.GetBarsRequest
	bars       map[string][]marketdata.Bar
	barsErr    error
	trade      *marketdata.Trade
	tradeErr   error
	chain      map[string]marketdata.OptionSnapshot
}

func (f *fakeMarketData) GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error) {
	f.gotSymbols = symbols
	f.gotReq = req
	return f.bars, f.barsErr
}

func (f *fakeMarketData) GetLatestTrade(string, marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	return f.trade, f.tradeErr
}

func (f *fakeMarketData) GetOptionChain(string, marketdata.GetOptionChainRequest) (map[string]marketdata.OptionSnapshot, error) {
	return f.chain, nil
}

func TestDownload(t *testing.T) {
	day1 := time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 3, 5, 0, 0, 0, time.UTC)
	md := &fakeMarketData{bars: map[string][]marketdata.Bar{
		"BRK.B": {
			{Timestamp: day2, Open: 2, High: 3, Low: 1, Close: 2.5, Volume: 200},
			{Timestamp: day1, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		},
	}}
	c := newClient(md, "sip")

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	frames, err := c.Download(context.Background(), []string{"BRK-B", "MSFT"}, start, end)
	require.NoError(t, err)

	assert.Equal(t, []string{"BRK.B", "MSFT"}, md.gotSymbols)
	assert.Equal(t, marketdata.OneDay, md.gotReq.TimeFrame)
	assert.Equal(t, marketdata.Raw, md.gotReq.Adjustment)
	assert.EqualValues(t, "sip", md.gotReq.Feed)

	require.Contains(t, frames, "BRK-B")
	f := frames["BRK-B"]
	require.Len(t, f.Index, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), f.Index[0])

	closeCol, ok := f.Column(provider.FieldClose)
	require.True(t, ok)
	assert.Equal(t, 1.5, closeCol.Values[0].Float64)
	vol, ok := f.Column(provider.FieldVolume)
	require.True(t, ok)
	assert.Equal(t, 200.0, vol.Values[1].Float64)

	assert.NotContains(t, frames, "MSFT")
}

func TestDownloadError(t *testing.T) {
	c := newClient(&fakeMarketData{barsErr: errors.New("503")}, "")
	_, err := c.Download(context.Background(), []string{"AAPL"}, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, domain.ErrProviderFetch)
}

func TestLastPrice(t *testing.T) {
	c := newClient(&fakeMarketData{trade: &marketdata.Trade{Price: 187.25}}, "")
	p, err := c.LastPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, p.Valid)
	assert.Equal(t, 187.25, p.Float64)

	c = newClient(&fakeMarketData{trade: &marketdata.Trade{}}, "")
	p, err = c.LastPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.False(t, p.Valid)

	c = newClient(&fakeMarketData{tradeErr: errors.New("timeout")}, "")
	_, err = c.LastPrice(context.Background(), "AAPL")
	assert.ErrorIs(t, err, domain.ErrProviderFetch)
}

func TestOptionExpirations(t *testing.T) {
	c := newClient(&fakeMarketData{chain: map[string]marketdata.OptionSnapshot{
		"AAPL240216C00150000": {},
		"AAPL240119P00140000": {},
		"AAPL240119C00150000": {},
		"garbage":             {},
	}}, "")

	exps, err := c.OptionExpirations(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC),
	}, exps)
}

func TestClientOptsTimeout(t *testing.T) {
	opts := clientOpts(Options{APIKey: "k", APISecret: "s", DataURL: "http://data.local", Timeout: 7 * time.Second})
	require.NotNil(t, opts.HTTPClient)
	assert.Equal(t, 7*time.Second, opts.HTTPClient.Timeout)
	assert.Equal(t, "http://data.local", opts.BaseURL)

	assert.Nil(t, clientOpts(Options{APIKey: "k", APISecret: "s"}).HTTPClient)
}

func TestParseOCCExpiry(t *testing.T) {
	got, err := ParseOCCExpiry("SPY251219C00600000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseOCCExpiry("SPY251219X00600000")
	assert.Error(t, err)
	_, err = ParseOCCExpiry("SPY")
	assert.Error(t, err)
}
