package us

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stockvault/internal/domain"
	"stockvault/internal/gather"
	"stockvault/internal/metrics"
)

var (
	_ gather.Gatherer = (*BackfillJob)(nil)
	_ gather.Gatherer = (*RangeLoader)(nil)
)

// BackfillResult describes one backfill or range-load invocation.
type BackfillResult struct {
	RunID    string
	Window   gather.DateRange
	Complete bool // the earliest bound has been reached; nothing was loaded
	Written  int  // rows inserted
	Fetched  int  // bars returned by the provider
	OK       int  // symbols with bars
	Empty    int  // symbols with no bars
	Failed   int  // symbols skipped on error
}

// ---------------------------------------------------------------------------
// BackfillJob
// ---------------------------------------------------------------------------

// BackfillJob walks history backward one calendar month per invocation,
// resuming from the checkpoint. The month is fetched in full and committed
// in one transaction before the checkpoint moves to the previous month.
type BackfillJob struct {
	checkpoint *CheckpointStore
	universe   Universe
	fetcher    *BatchFetcher
	writer     *HistoricalWriter
	earliest   time.Time
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// NewBackfillJob creates a job that stops once the checkpoint precedes
// earliest.
func NewBackfillJob(cp *CheckpointStore, u Universe, f *BatchFetcher, w *HistoricalWriter, earliest time.Time) *BackfillJob {
	return &BackfillJob{
		checkpoint: cp,
		universe:   u,
		fetcher:    f,
		writer:     w,
		earliest:   earliest,
		log:        slog.Default().With("gatherer", "us-backfill"),
	}
}

// Name returns the gatherer identifier.
func (j *BackfillJob) Name() string { return "us-backfill" }

// SetMetrics attaches a metrics sink.
func (j *BackfillJob) SetMetrics(m *metrics.Metrics) { j.metrics = m }

// Run loads one month.
func (j *BackfillJob) Run(ctx context.Context) error {
	_, err := j.RunOnce(ctx)
	return err
}

// RunOnce loads the month named by the checkpoint, or reports completion
// when that month precedes the earliest bound. On any error the checkpoint
// is left untouched.
func (j *BackfillJob) RunOnce(ctx context.Context) (BackfillResult, error) {
	res := BackfillResult{RunID: uuid.NewString()}
	log := j.log.With("run", res.RunID)

	month, err := j.checkpoint.Load()
	if err != nil {
		return res, err
	}
	res.Window = gather.MonthWindow(month)

	if month.Before(j.earliest) {
		res.Complete = true
		log.Info("historical load complete",
			"checkpoint", month.Format(domain.DateLayout),
			"earliest", j.earliest.Format(domain.DateLayout),
		)
		return res, nil
	}

	log.Info("loading month", "window", res.Window.String())
	if err := loadWindow(ctx, log, j.universe, j.fetcher, j.writer, &res); err != nil {
		j.metrics.ObserveCycle(j.Name(), err, time.Now())
		return res, err
	}

	if err := j.checkpoint.Advance(month); err != nil {
		j.metrics.ObserveCycle(j.Name(), err, time.Now())
		return res, fmt.Errorf("advancing checkpoint: %w", err)
	}
	j.metrics.ObserveCycle(j.Name(), nil, time.Now())

	log.Info("month committed",
		"window", res.Window.String(),
		"written", res.Written,
		"ok", res.OK,
		"empty", res.Empty,
		"failed", res.Failed,
	)
	return res, nil
}

// RunUntilComplete repeats RunOnce until the earliest bound is reached, an
// error occurs or ctx is cancelled.
func (j *BackfillJob) RunUntilComplete(ctx context.Context) error {
	for {
		res, err := j.RunOnce(ctx)
		if err != nil {
			return err
		}
		if res.Complete {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// loadWindow resolves the universe, fetches res.Window and appends the bars
// in one commit, filling in res. An empty universe, or a window where every
// batch failed at the provider, writes nothing and returns an error.
func loadWindow(ctx context.Context, log *slog.Logger, u Universe, f *BatchFetcher, w *HistoricalWriter, res *BackfillResult) error {
	instruments, err := u.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("resolving universe: %w", err)
	}
	if len(instruments) == 0 {
		return fmt.Errorf("%w: universe resolved no instruments for %s", domain.ErrConfiguration, res.Window)
	}
	log.Info("universe resolved", "instruments", len(instruments))

	batch, err := f.Fetch(ctx, instruments, res.Window)
	if err != nil {
		return err
	}
	res.OK = batch.Count(OutcomeOK)
	res.Empty = batch.Count(OutcomeEmpty)
	res.Failed = batch.Count(OutcomeFailed)

	if batch.Batches > 0 && batch.FailedBatches == batch.Batches {
		return fmt.Errorf("%w: all %d batches failed for %s", domain.ErrProviderFetch, batch.Batches, res.Window)
	}

	bars := batch.AllBars()
	res.Fetched = len(bars)

	written, err := w.Append(ctx, bars)
	if err != nil {
		return err
	}
	res.Written = written
	return nil
}

// ---------------------------------------------------------------------------
// RangeLoader
// ---------------------------------------------------------------------------

// RangeLoader loads an explicit date window for a universe without reading
// or writing the backfill checkpoint.
type RangeLoader struct {
	universe Universe
	fetcher  *BatchFetcher
	writer   *HistoricalWriter
	window   gather.DateRange
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewRangeLoader creates a loader for window.
func NewRangeLoader(u Universe, f *BatchFetcher, w *HistoricalWriter, window gather.DateRange) *RangeLoader {
	return &RangeLoader{
		universe: u,
		fetcher:  f,
		writer:   w,
		window:   window,
		log:      slog.Default().With("gatherer", "us-range-load"),
	}
}

// Name returns the gatherer identifier.
func (r *RangeLoader) Name() string { return "us-range-load" }

// SetMetrics attaches a metrics sink.
func (r *RangeLoader) SetMetrics(m *metrics.Metrics) { r.metrics = m }

// Run loads the configured window.
func (r *RangeLoader) Run(ctx context.Context) error {
	_, err := r.Load(ctx)
	return err
}

// Load fetches and appends the window, returning the counts.
func (r *RangeLoader) Load(ctx context.Context) (BackfillResult, error) {
	res := BackfillResult{RunID: uuid.NewString(), Window: r.window}
	if !r.window.Valid() {
		return res, fmt.Errorf("%w: empty range %s", domain.ErrConfiguration, r.window)
	}
	log := r.log.With("run", res.RunID)

	log.Info("loading range", "window", r.window.String())
	if err := loadWindow(ctx, log, r.universe, r.fetcher, r.writer, &res); err != nil {
		r.metrics.ObserveCycle(r.Name(), err, time.Now())
		return res, err
	}
	r.metrics.ObserveCycle(r.Name(), nil, time.Now())
	log.Info("range loaded",
		"written", res.Written,
		"ok", res.OK,
		"empty", res.Empty,
		"failed", res.Failed,
	)
	return res, nil
}
