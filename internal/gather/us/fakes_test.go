package us

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/guregu/null/v6"

	"stockvault/internal/domain"
	"stockvault/internal/provider"
)

var errBoom = errors.New("boom")

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// barFrame builds a multi-level (field, symbol) frame with one row per
// date, every price equal to price.
func barFrame(symbol string, price float64, volume float64, dates ...time.Time) provider.Frame {
	f := provider.Frame{Index: dates}
	for _, field := range []string{provider.FieldOpen, provider.FieldHigh, provider.FieldLow, provider.FieldClose, provider.FieldVolume} {
		v := price
		if field == provider.FieldVolume {
			v = volume
		}
		vals := make([]null.Float, len(dates))
		for i := range vals {
			vals[i] = null.FloatFrom(v)
		}
		f.Columns = append(f.Columns, provider.Column{Levels: []string{field, symbol}, Values: vals})
	}
	return f
}

// fakeProvider answers Download with one bar two days into the requested
// window for every symbol in prices.
type fakeProvider struct {
	mu sync.Mutex

	prices      map[string]float64
	symbolErr   map[string]error
	batchErr    func(symbols []string) error
	download    func(symbols []string, start, end time.Time) (map[string]provider.Frame, error)
	last        map[string]null.Float
	lastErr     map[string]error
	expirations map[string][]time.Time
	expiryErr   map[string]error

	downloads  [][]string
	windows    []time.Time
	priceCalls []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Download(_ context.Context, symbols []string, start, end time.Time) (map[string]provider.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downloads = append(p.downloads, append([]string(nil), symbols...))
	p.windows = append(p.windows, start)

	if p.download != nil {
		return p.download(symbols, start, end)
	}
	if p.batchErr != nil {
		if err := p.batchErr(symbols); err != nil {
			return nil, err
		}
	}
	out := make(map[string]provider.Frame)
	for _, sym := range symbols {
		if err := p.symbolErr[sym]; err != nil {
			out[sym] = provider.Frame{Err: err}
			continue
		}
		if price, ok := p.prices[sym]; ok {
			out[sym] = barFrame(sym, price, 1000, start.AddDate(0, 0, 2))
		}
	}
	return out, nil
}

func (p *fakeProvider) LastPrice(_ context.Context, symbol string) (null.Float, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priceCalls = append(p.priceCalls, symbol)
	if err := p.lastErr[symbol]; err != nil {
		return null.Float{}, err
	}
	return p.last[symbol], nil
}

func (p *fakeProvider) OptionExpirations(_ context.Context, symbol string) ([]time.Time, error) {
	if err := p.expiryErr[symbol]; err != nil {
		return nil, err
	}
	return p.expirations[symbol], nil
}

func (p *fakeProvider) downloadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.downloads)
}

// memStore is an in-memory BarStore, SampleStore and InstrumentSource.
type memStore struct {
	mu sync.Mutex

	bars        map[string]domain.Bar
	insertCalls int
	insertErr   error

	samples   []domain.Sample
	sampleErr error

	active  []domain.Instrument
	tickers []string
	asOf    []time.Time
}

func newMemStore() *memStore {
	return &memStore{bars: make(map[string]domain.Bar)}
}

func (s *memStore) InsertBars(_ context.Context, bars []domain.Bar) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	n := 0
	for _, b := range bars {
		key := b.Symbol + "|" + b.Date.Format(domain.DateLayout)
		if _, dup := s.bars[key]; dup {
			continue
		}
		s.bars[key] = b
		n++
	}
	return n, nil
}

func (s *memStore) InsertSample(_ context.Context, sample domain.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sampleErr != nil {
		return s.sampleErr
	}
	s.samples = append(s.samples, sample)
	return nil
}

func (s *memStore) ActiveInstruments(_ context.Context, asOf time.Time) ([]domain.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asOf = append(s.asOf, asOf)
	return s.active, nil
}

func (s *memStore) TickerMaster(context.Context) ([]string, error) {
	return s.tickers, nil
}

// months returns the distinct months present in the stored bars, sorted.
func (s *memStore) months() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, b := range s.bars {
		seen[b.Date.Format("2006-01")] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// recordingArchive captures archived bars.
type recordingArchive struct {
	bars []domain.Bar
	err  error
}

func (a *recordingArchive) WriteBars(_ context.Context, bars []domain.Bar) error {
	a.bars = append(a.bars, bars...)
	return a.err
}

func symbols(instruments []domain.Instrument) []string {
	out := make([]string, len(instruments))
	for i, inst := range instruments {
		out[i] = inst.Symbol
	}
	return out
}

func instruments(syms ...string) []domain.Instrument {
	out := make([]domain.Instrument, len(syms))
	for i, s := range syms {
		out[i] = domain.Instrument{Symbol: s}
	}
	return out
}

func containsAny(symbols []string, targets ...string) bool {
	for _, s := range symbols {
		for _, t := range targets {
			if strings.EqualFold(s, t) {
				return true
			}
		}
	}
	return false
}
