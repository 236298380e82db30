package us

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockvault/internal/domain"
)

var sampleTime = time.Date(2026, 2, 9, 15, 0, 0, 0, time.UTC)

func newTestSampler(s *memStore, p *fakeProvider) *LiveSampler {
	u := &ActiveUniverse{Source: s, Location: time.UTC, Now: func() time.Time { return sampleTime }}
	ls := NewLiveSampler(u, p, s)
	ls.SetClock(func() time.Time { return sampleTime })
	return ls
}

func TestSamplerNoActiveTickers(t *testing.T) {
	s := newMemStore()
	p := &fakeProvider{}

	report, err := newTestSampler(s, p).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Tickers)
	assert.Zero(t, report.Inserted)
	assert.Empty(t, p.priceCalls)
	assert.Empty(t, s.samples)
}

func TestSamplerRecordsRoundedPrices(t *testing.T) {
	s := newMemStore()
	s.active = instruments("AAPL", "MSFT")
	p := &fakeProvider{last: map[string]null.Float{
		"AAPL": null.FloatFrom(150.12345),
		"MSFT": null.FloatFrom(150.12345),
	}}

	report, err := newTestSampler(s, p).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Tickers)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, sampleTime, report.Started)

	assert.Equal(t, []domain.Sample{
		{Symbol: "AAPL", Timestamp: sampleTime, Price: 150.1235},
		{Symbol: "MSFT", Timestamp: sampleTime, Price: 150.1235},
	}, s.samples)
	assert.Equal(t, []time.Time{day("2026-02-09")}, s.asOf)
}

func TestSamplerSkipsMissingPrices(t *testing.T) {
	s := newMemStore()
	s.active = instruments("AAPL", "ERR", "NONE", "NAN", "ZERO", "brk.b")
	p := &fakeProvider{
		last: map[string]null.Float{
			"AAPL":  null.FloatFrom(10),
			"NAN":   null.FloatFrom(math.NaN()),
			"ZERO":  null.FloatFrom(0),
			"BRK-B": null.FloatFrom(400.5),
		},
		lastErr: map[string]error{"ERR": errBoom},
	}

	report, err := newTestSampler(s, p).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, report.Tickers)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 4, report.Skipped)
	assert.Equal(t, []string{"ERR"}, report.Failed)

	require.Len(t, s.samples, 2)
	assert.Equal(t, "AAPL", s.samples[0].Symbol)
	// Samples keep the stored symbol; the provider sees the normalized one.
	assert.Equal(t, "brk.b", s.samples[1].Symbol)
	assert.Contains(t, p.priceCalls, "BRK-B")
}

func TestSamplerStorageErrorAbortsCycle(t *testing.T) {
	s := newMemStore()
	s.active = instruments("AAPL", "MSFT")
	s.sampleErr = errBoom
	p := &fakeProvider{last: map[string]null.Float{
		"AAPL": null.FloatFrom(1),
		"MSFT": null.FloatFrom(2),
	}}

	_, err := newTestSampler(s, p).Run(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"AAPL"}, p.priceCalls)
}
