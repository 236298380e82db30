package util

import (
	"fmt"
	"time"
)

// MarketWindow is the daily collection window for live sampling, expressed
// as wall-clock times in the market's timezone. Saturdays and Sundays are
// always closed; exchange holidays are not modelled.
type MarketWindow struct {
	loc   *time.Location
	open  time.Duration // offset from local midnight
	close time.Duration
}

// NewMarketWindow builds a window from "HH:MM" open and close times in loc.
func NewMarketWindow(loc *time.Location, open, close string) (*MarketWindow, error) {
	if loc == nil {
		return nil, fmt.Errorf("market window: nil location")
	}
	o, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("market window open: %w", err)
	}
	c, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("market window close: %w", err)
	}
	if o >= c {
		return nil, fmt.Errorf("market window: open %s is not before close %s", open, close)
	}
	return &MarketWindow{loc: loc, open: o, close: c}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Location returns the window's timezone.
func (w *MarketWindow) Location() *time.Location { return w.loc }

// IsOpen reports whether t falls on a weekday within [open, close], both
// ends inclusive, in the market timezone. Sub-second precision counts, so
// one nanosecond past close is closed.
func (w *MarketWindow) IsOpen(t time.Time) bool {
	local := t.In(w.loc)
	if isWeekend(local) {
		return false
	}
	tod := sinceMidnight(local)
	return tod >= w.open && tod <= w.close
}

// NextOpen returns the next window opening strictly after t, or t itself
// when the window is already open.
func (w *MarketWindow) NextOpen(t time.Time) time.Time {
	if w.IsOpen(t) {
		return t
	}
	local := t.In(w.loc)
	day := midnight(local)
	for i := 0; i < 8; i++ {
		candidate := at(day, w.open)
		if !isWeekend(day) && candidate.After(local) {
			return candidate
		}
		day = midnight(day.AddDate(0, 0, 1))
	}
	return local
}

// NextClose returns the close of the session that is open at t, or of the
// next session when t is outside the window.
func (w *MarketWindow) NextClose(t time.Time) time.Time {
	open := w.NextOpen(t)
	return at(open.In(w.loc), w.close)
}

// at returns the wall-clock time offset into t's calendar day.
func at(t time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(t.Year(), t.Month(), t.Day(), h, m, 0, 0, t.Location())
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// sinceMidnight uses wall-clock components so DST transitions don't shift
// the window.
func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
