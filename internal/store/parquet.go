package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/guregu/null/v6"
	"github.com/parquet-go/parquet-go"

	"stockvault/internal/domain"
)

var _ BarArchive = (*ParquetArchive)(nil)

// ParquetArchive mirrors daily bars into per-symbol, per-year Parquet files.
type ParquetArchive struct {
	DataDir string
	Market  domain.Market
}

// NewParquetArchive creates an archive rooted at dataDir for market.
func NewParquetArchive(dataDir string, market domain.Market) *ParquetArchive {
	return &ParquetArchive{DataDir: dataDir, Market: market}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bars. Null fields are stored as
// missing values.
type BarRecord struct {
	Symbol string   `parquet:"symbol"`
	Date   int64    `parquet:"date,timestamp(millisecond)"` // Unix ms, midnight UTC
	Open   *float64 `parquet:"open,optional"`
	High   *float64 `parquet:"high,optional"`
	Low    *float64 `parquet:"low,optional"`
	Close  *float64 `parquet:"close,optional"`
	Volume *int64   `parquet:"volume,optional"`
}

func toRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol: b.Symbol,
		Date:   b.Date.UnixMilli(),
		Open:   b.Open.Ptr(),
		High:   b.High.Ptr(),
		Low:    b.Low.Ptr(),
		Close:  b.Close.Ptr(),
		Volume: b.Volume.Ptr(),
	}
}

func fromRecord(r BarRecord) domain.Bar {
	return domain.Bar{
		Symbol: r.Symbol,
		Date:   time.UnixMilli(r.Date).UTC(),
		Open:   null.FloatFromPtr(r.Open),
		High:   null.FloatFromPtr(r.High),
		Low:    null.FloatFromPtr(r.Low),
		Close:  null.FloatFromPtr(r.Close),
		Volume: null.IntFromPtr(r.Volume),
	}
}

// ---------------------------------------------------------------------------
// BarArchive implementation
// ---------------------------------------------------------------------------

// WriteBars merges bars into the archive, one file per symbol and year:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
//
// A bar for a (symbol, date) already archived replaces the stored one.
func (a *ParquetArchive) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.Date.Year()}
		groups[k] = append(groups[k], toRecord(b))
	}

	for k, records := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := a.barPath(k.symbol, k.year)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars returns archived bars for symbol with dates in [start, end).
func (a *ParquetArchive) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[BarRecord](a.barPath(symbol, year))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, r := range records {
			b := fromRecord(r)
			if !b.Date.Before(start) && b.Date.Before(end) {
				bars = append(bars, b)
			}
		}
	}
	return bars, nil
}

// ListSymbols lists the symbols that have archived bars.
func (a *ParquetArchive) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(a.DataDir, string(a.Market), "daily"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// barPath returns the filesystem path for a symbol's bar file in year.
func (a *ParquetArchive) barPath(symbol string, year int) string {
	return filepath.Join(a.DataDir, string(a.Market), "daily",
		domain.NormalizeSymbol(symbol), strconv.Itoa(year)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

// writeParquetFile writes records through a temp file so a crash never
// leaves a truncated archive.
func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates by (symbol, date), preferring incoming
// records, and sorts by date.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		date   int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Date}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Date}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}
