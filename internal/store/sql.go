package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the pure-Go "sqlite" driver

	"stockvault/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*SQLStore)(nil)
var _ SampleStore = (*SQLStore)(nil)
var _ InstrumentSource = (*SQLStore)(nil)

// Driver names accepted by OpenSQL.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Tables names the tables SQLStore reads and writes. Names are interpolated
// into statements and must already be validated identifiers.
type Tables struct {
	Bars         string
	Samples      string
	Spreads      string
	TickerMaster string
}

// SQLStore implements BarStore, SampleStore and InstrumentSource over
// database/sql, against SQLite or PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
	tables Tables
}

// OpenSQL opens the database and verifies the connection.
func OpenSQL(ctx context.Context, driver, dsn string, tables Tables) (*SQLStore, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite"
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case DriverPostgres:
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", domain.ErrConfiguration, driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", domain.ErrStorage, driver, err)
	}
	if driver == DriverSQLite {
		// One writer at a time; avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connecting to %s: %w", domain.ErrStorage, driver, err)
	}
	return &SQLStore{db: db, driver: driver, tables: tables}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// bind returns the n-th (1-based) positional placeholder for the dialect.
func (s *SQLStore) bind(n int) string {
	if s.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) binds(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = s.bind(i + 1)
	}
	return strings.Join(parts, ", ")
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

// Migrate creates the tables when they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	tsType := "TIMESTAMP"
	if s.driver == DriverPostgres {
		tsType = "TIMESTAMPTZ"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol      TEXT NOT NULL,
			date        DATE NOT NULL,
			open_price  DOUBLE PRECISION,
			close_price DOUBLE PRECISION,
			high        DOUBLE PRECISION,
			low         DOUBLE PRECISION,
			volume      BIGINT,
			UNIQUE (symbol, date)
		)`, s.tables.Bars),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol    TEXT NOT NULL,
			timestamp %s NOT NULL,
			price     DOUBLE PRECISION NOT NULL
		)`, s.tables.Samples, tsType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol      TEXT NOT NULL,
			expiry_date DATE NOT NULL
		)`, s.tables.Spreads),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ticker_symbol TEXT NOT NULL,
			company_name  TEXT
		)`, s.tables.TickerMaster),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %w", domain.ErrStorage, err)
		}
	}
	return s.ensureBarIndex(ctx)
}

// ensureBarIndex adds the (symbol, date) unique index that InsertBars'
// conflict clause relies on. Tables created elsewhere may lack it.
func (s *SQLStore) ensureBarIndex(ctx context.Context) error {
	name := strings.ReplaceAll(s.tables.Bars, ".", "_") + "_symbol_date"
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (symbol, date)`, name, s.tables.Bars))
	if err == nil {
		return nil
	}

	var dup int
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM (SELECT symbol, date FROM %s GROUP BY symbol, date HAVING COUNT(*) > 1) d`,
		s.tables.Bars))
	if qerr := row.Scan(&dup); qerr == nil && dup > 0 {
		return fmt.Errorf("%w: %s has %d duplicated (symbol, date) pairs; remove them before running: %v",
			domain.ErrConfiguration, s.tables.Bars, dup, err)
	}
	return fmt.Errorf("%w: creating index %s: %w", domain.ErrStorage, name, err)
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// InsertBars writes all bars in a single transaction. Rows whose
// (symbol, date) already exists are skipped; the count excludes them.
func (s *SQLStore) InsertBars(ctx context.Context, bars []domain.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", domain.ErrStorage, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (symbol, date, open_price, close_price, high, low, volume)
		 VALUES (%s)
		 ON CONFLICT (symbol, date) DO NOTHING`,
		s.tables.Bars, s.binds(7)))
	if err != nil {
		return 0, fmt.Errorf("%w: prepare insert: %w", domain.ErrStorage, err)
	}
	defer stmt.Close()

	inserted := 0
	for _, b := range bars {
		res, err := stmt.ExecContext(ctx,
			b.Symbol, b.Date.Format(domain.DateLayout),
			b.Open, b.Close, b.High, b.Low, b.Volume)
		if err != nil {
			return 0, fmt.Errorf("%w: insert %s %s: %w", domain.ErrStorage, b.Symbol, b.Date.Format(domain.DateLayout), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: rows affected: %w", domain.ErrStorage, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", domain.ErrStorage, err)
	}
	return inserted, nil
}

// ReadBars returns the stored bars for symbol ordered by date.
func (s *SQLStore) ReadBars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT symbol, date, open_price, close_price, high, low, volume
		 FROM %s WHERE symbol = %s ORDER BY date`, s.tables.Bars, s.bind(1)), symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: query bars: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			b    domain.Bar
			date string
		)
		if err := rows.Scan(&b.Symbol, &date, &b.Open, &b.Close, &b.High, &b.Low, &b.Volume); err != nil {
			return nil, fmt.Errorf("%w: scan bar: %w", domain.ErrStorage, err)
		}
		if b.Date, err = parseDate(date); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ---------------------------------------------------------------------------
// SampleStore implementation
// ---------------------------------------------------------------------------

// InsertSample appends one sample row.
func (s *SQLStore) InsertSample(ctx context.Context, smp domain.Sample) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (symbol, timestamp, price) VALUES (%s)`,
		s.tables.Samples, s.binds(3)),
		smp.Symbol, smp.Timestamp.UTC(), smp.Price)
	if err != nil {
		return fmt.Errorf("%w: insert sample %s: %w", domain.ErrStorage, smp.Symbol, err)
	}
	return nil
}

// ReadSamples returns the stored samples for symbol in insertion order.
func (s *SQLStore) ReadSamples(ctx context.Context, symbol string) ([]domain.Sample, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT symbol, timestamp, price FROM %s WHERE symbol = %s ORDER BY timestamp`,
		s.tables.Samples, s.bind(1)), symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: query samples: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	var out []domain.Sample
	for rows.Next() {
		var smp domain.Sample
		if err := rows.Scan(&smp.Symbol, &smp.Timestamp, &smp.Price); err != nil {
			return nil, fmt.Errorf("%w: scan sample: %w", domain.ErrStorage, err)
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// InstrumentSource implementation
// ---------------------------------------------------------------------------

// ActiveInstruments returns each symbol of the spreads table with an expiry
// on or after asOf's date, paired with its nearest such expiry.
func (s *SQLStore) ActiveInstruments(ctx context.Context, asOf time.Time) ([]domain.Instrument, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT symbol, MIN(expiry_date) FROM %s
		 WHERE expiry_date >= %s
		 GROUP BY symbol ORDER BY symbol`, s.tables.Spreads, s.bind(1)),
		asOf.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("%w: query active instruments: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	var out []domain.Instrument
	for rows.Next() {
		var sym, exp string
		if err := rows.Scan(&sym, &exp); err != nil {
			return nil, fmt.Errorf("%w: scan instrument: %w", domain.ErrStorage, err)
		}
		expiry, err := parseDate(exp)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}
		out = append(out, domain.Instrument{Symbol: sym, Expiry: &expiry})
	}
	return out, rows.Err()
}

// TickerMaster returns the distinct, non-blank ticker symbols.
func (s *SQLStore) TickerMaster(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT DISTINCT ticker_symbol FROM %s ORDER BY ticker_symbol`, s.tables.TickerMaster))
	if err != nil {
		return nil, fmt.Errorf("%w: query ticker master: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym sql.NullString
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("%w: scan ticker: %w", domain.ErrStorage, err)
		}
		if v := strings.TrimSpace(sym.String); v != "" {
			out = append(out, v)
		}
	}
	return out, rows.Err()
}

// parseDate accepts both plain dates and the timestamp text some drivers
// return for DATE columns.
func parseDate(v string) (time.Time, error) {
	if len(v) < len(domain.DateLayout) {
		return time.Time{}, fmt.Errorf("parsing date %q: too short", v)
	}
	t, err := time.Parse(domain.DateLayout, v[:len(domain.DateLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", v, err)
	}
	return t, nil
}
