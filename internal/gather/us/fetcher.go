package us

import (
	"context"
	"fmt"
	"log/slog"

	"stockvault/internal/domain"
	"stockvault/internal/gather"
	"stockvault/internal/metrics"
	"stockvault/internal/provider"
)

// DefaultBatchSize is the number of symbols per provider call.
const DefaultBatchSize = 50

// Outcome classifies one symbol's fetch.
type Outcome int

const (
	OutcomeOK     Outcome = iota // at least one bar
	OutcomeEmpty                 // provider answered with no rows
	OutcomeFailed                // provider or conversion error
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// SymbolResult is the fetch result for one symbol.
type SymbolResult struct {
	Symbol  string // provider-normalized
	Outcome Outcome
	Bars    []domain.Bar // ordered by date; set only for OutcomeOK
	Err     error        // set only for OutcomeFailed
}

// BatchResult collects the per-symbol results of one Fetch.
type BatchResult struct {
	Window        gather.DateRange
	Results       []SymbolResult
	Batches       int
	FailedBatches int
}

// Bars maps each successful symbol to its bars. Empty and failed symbols
// are absent.
func (r BatchResult) Bars() map[string][]domain.Bar {
	out := make(map[string][]domain.Bar, len(r.Results))
	for _, sr := range r.Results {
		if sr.Outcome == OutcomeOK {
			out[sr.Symbol] = sr.Bars
		}
	}
	return out
}

// AllBars returns every successful bar in result order.
func (r BatchResult) AllBars() []domain.Bar {
	var out []domain.Bar
	for _, sr := range r.Results {
		if sr.Outcome == OutcomeOK {
			out = append(out, sr.Bars...)
		}
	}
	return out
}

// Count returns the number of symbols with outcome o.
func (r BatchResult) Count(o Outcome) int {
	n := 0
	for _, sr := range r.Results {
		if sr.Outcome == o {
			n++
		}
	}
	return n
}

// Failed returns the symbols whose fetch failed.
func (r BatchResult) Failed() []SymbolResult {
	var out []SymbolResult
	for _, sr := range r.Results {
		if sr.Outcome == OutcomeFailed {
			out = append(out, sr)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// BatchFetcher
// ---------------------------------------------------------------------------

// BatchFetcher downloads daily bars for an instrument list in fixed-size
// batches, one provider call per batch, sequentially.
type BatchFetcher struct {
	provider  provider.Provider
	batchSize int
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewBatchFetcher creates a fetcher. A non-positive batchSize selects
// DefaultBatchSize.
func NewBatchFetcher(p provider.Provider, batchSize int) *BatchFetcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchFetcher{
		provider:  p,
		batchSize: batchSize,
		log:       slog.Default().With("gatherer", "batch-fetch", "provider", p.Name()),
	}
}

// SetMetrics attaches a metrics sink.
func (f *BatchFetcher) SetMetrics(m *metrics.Metrics) { f.metrics = m }

// Partition splits instruments into consecutive batches of at most size.
func Partition(instruments []domain.Instrument, size int) [][]domain.Instrument {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var batches [][]domain.Instrument
	for i := 0; i < len(instruments); i += size {
		batches = append(batches, instruments[i:min(i+size, len(instruments))])
	}
	return batches
}

// Fetch downloads bars in window for all instruments. Provider and
// conversion failures are recorded per symbol and never stop later batches;
// the returned error is non-nil only when ctx is cancelled, in which case
// the result holds the batches completed so far.
func (f *BatchFetcher) Fetch(ctx context.Context, instruments []domain.Instrument, window gather.DateRange) (BatchResult, error) {
	batches := Partition(instruments, f.batchSize)
	res := BatchResult{Window: window, Batches: len(batches)}

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		label := fmt.Sprintf("%d/%d", i+1, len(batches))

		symbols := make([]string, len(batch))
		for j, inst := range batch {
			symbols[j] = inst.ProviderSymbol()
		}

		frames, err := f.provider.Download(ctx, symbols, window.Start, window.End)
		f.metrics.ObserveBatch(err)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			f.log.Warn("batch fetch failed", "batch", label, "symbols", len(symbols), "err", err)
			res.FailedBatches++
			for _, sym := range symbols {
				res.Results = append(res.Results, SymbolResult{Symbol: sym, Outcome: OutcomeFailed, Err: err})
				f.metrics.ObserveSymbol(OutcomeFailed.String())
			}
			continue
		}

		var ok, empty, failed int
		for _, sym := range symbols {
			sr := f.convert(sym, frames, window)
			switch sr.Outcome {
			case OutcomeOK:
				ok++
			case OutcomeEmpty:
				empty++
			case OutcomeFailed:
				failed++
				f.log.Warn("symbol skipped", "symbol", sym, "err", sr.Err)
			}
			f.metrics.ObserveSymbol(sr.Outcome.String())
			res.Results = append(res.Results, sr)
		}

		f.log.Info("batch done",
			"batch", label,
			"window", window.String(),
			"ok", ok,
			"empty", empty,
			"failed", failed,
		)
	}
	return res, nil
}

// convert classifies one symbol's frame and turns it into bars inside
// window.
func (f *BatchFetcher) convert(symbol string, frames map[string]provider.Frame, window gather.DateRange) SymbolResult {
	frame, found := frames[symbol]
	if !found {
		return SymbolResult{Symbol: symbol, Outcome: OutcomeEmpty}
	}
	if frame.Err != nil {
		return SymbolResult{Symbol: symbol, Outcome: OutcomeFailed, Err: frame.Err}
	}
	if frame.Empty() {
		return SymbolResult{Symbol: symbol, Outcome: OutcomeEmpty}
	}

	bars, err := BarsFromFrame(symbol, frame)
	if err != nil {
		return SymbolResult{Symbol: symbol, Outcome: OutcomeFailed, Err: err}
	}

	inWindow := bars[:0]
	for _, b := range bars {
		if window.Contains(b.Date) {
			inWindow = append(inWindow, b)
		}
	}
	if len(inWindow) == 0 {
		return SymbolResult{Symbol: symbol, Outcome: OutcomeEmpty}
	}
	return SymbolResult{Symbol: symbol, Outcome: OutcomeOK, Bars: inWindow}
}
