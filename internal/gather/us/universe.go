package us

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"stockvault/internal/domain"
	"stockvault/internal/store"
)

// Universe resolves the instruments a job should process.
type Universe interface {
	Instruments(ctx context.Context) ([]domain.Instrument, error)
}

// Compile-time interface checks.
var (
	_ Universe = StaticUniverse(nil)
	_ Universe = (*CSVUniverse)(nil)
	_ Universe = (*TickerMasterUniverse)(nil)
	_ Universe = (*ActiveUniverse)(nil)
)

// ---------------------------------------------------------------------------
// Static and CSV universes
// ---------------------------------------------------------------------------

// StaticUniverse is a fixed symbol list.
type StaticUniverse []string

// Instruments returns the list as instruments, normalized and de-duplicated.
func (u StaticUniverse) Instruments(context.Context) ([]domain.Instrument, error) {
	return instrumentsFromSymbols(u), nil
}

// CSVUniverse reads symbols from the first column of a CSV file with a
// header row. The file is re-read on every call.
type CSVUniverse struct {
	Path string
}

// Instruments loads the CSV and returns its symbols.
func (u *CSVUniverse) Instruments(context.Context) ([]domain.Instrument, error) {
	symbols, err := LoadCSVSymbols(u.Path)
	if err != nil {
		return nil, err
	}
	return instrumentsFromSymbols(symbols), nil
}

// LoadCSVSymbols reads the first column from a CSV file and returns all
// non-blank symbols found. The file must have a header row.
func LoadCSVSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}

	if len(records) < 2 {
		return nil, nil
	}

	symbols := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) > 0 {
			if sym := strings.TrimSpace(row[0]); sym != "" {
				symbols = append(symbols, sym)
			}
		}
	}
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Database-backed universes
// ---------------------------------------------------------------------------

// TickerMasterUniverse is every symbol in the ticker master table.
type TickerMasterUniverse struct {
	Source store.InstrumentSource
}

// Instruments queries the ticker master.
func (u *TickerMasterUniverse) Instruments(ctx context.Context) ([]domain.Instrument, error) {
	symbols, err := u.Source.TickerMaster(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading ticker master: %w", err)
	}
	return instrumentsFromSymbols(symbols), nil
}

// ActiveUniverse is the set of instruments whose tracked expiry is today or
// later, with "today" taken in the market timezone. It is re-queried on
// every call and never cached.
type ActiveUniverse struct {
	Source   store.InstrumentSource
	Location *time.Location
	Now      func() time.Time // defaults to time.Now
}

// Instruments queries the active set.
func (u *ActiveUniverse) Instruments(ctx context.Context) ([]domain.Instrument, error) {
	now := time.Now
	if u.Now != nil {
		now = u.Now
	}
	today := domain.TradingDate(now(), u.Location)

	active, err := u.Source.ActiveInstruments(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("loading active instruments: %w", err)
	}
	return dedupInstruments(active), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func instrumentsFromSymbols(symbols []string) []domain.Instrument {
	out := make([]domain.Instrument, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, domain.Instrument{Symbol: s})
	}
	return dedupInstruments(out)
}

// dedupInstruments drops blanks and keeps the first instrument for each
// provider-normalized symbol, preserving order.
func dedupInstruments(in []domain.Instrument) []domain.Instrument {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, inst := range in {
		key := inst.ProviderSymbol()
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, inst)
	}
	return out
}
