// Package gather holds the contracts shared by the ingestion jobs.
package gather

import (
	"context"
	"time"

	"stockvault/internal/domain"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run executes the gatherer. Long-running gatherers block until ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange is a half-open date interval [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// MonthWindow returns the range covering t's calendar month: the first of
// the month to the first of the next month.
func MonthWindow(t time.Time) DateRange {
	start := domain.FirstOfMonth(t)
	return DateRange{Start: start, End: start.AddDate(0, 1, 0)}
}

// Contains reports whether t falls in [Start, End).
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Valid reports whether the range is non-empty.
func (r DateRange) Valid() bool {
	return r.Start.Before(r.End)
}

func (r DateRange) String() string {
	return "[" + r.Start.Format(domain.DateLayout) + ", " + r.End.Format(domain.DateLayout) + ")"
}
