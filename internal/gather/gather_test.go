package gather

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthWindow(t *testing.T) {
	tests := []struct {
		in         time.Time
		start, end time.Time
	}{
		{date(2026, 2, 1), date(2026, 2, 1), date(2026, 3, 1)},
		{date(2026, 2, 17), date(2026, 2, 1), date(2026, 3, 1)},
		{date(2025, 12, 31), date(2025, 12, 1), date(2026, 1, 1)},
	}
	for _, tc := range tests {
		w := MonthWindow(tc.in)
		if !w.Start.Equal(tc.start) || !w.End.Equal(tc.end) {
			t.Errorf("MonthWindow(%s) = %s, want [%s, %s)", tc.in.Format("2006-01-02"), w, tc.start, tc.end)
		}
	}
}

func TestDateRangeContains(t *testing.T) {
	r := DateRange{Start: date(2026, 2, 1), End: date(2026, 3, 1)}
	if !r.Contains(date(2026, 2, 1)) {
		t.Error("start should be included")
	}
	if !r.Contains(date(2026, 2, 28)) {
		t.Error("last day should be included")
	}
	if r.Contains(date(2026, 3, 1)) {
		t.Error("end should be excluded")
	}
	if r.Contains(date(2026, 1, 31)) {
		t.Error("day before start should be excluded")
	}
}

func TestDateRangeString(t *testing.T) {
	r := DateRange{Start: date(2026, 2, 1), End: date(2026, 3, 1)}
	if got, want := r.String(), "[2026-02-01, 2026-03-01)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if !r.Valid() {
		t.Error("range should be valid")
	}
	if (DateRange{Start: r.End, End: r.Start}).Valid() {
		t.Error("reversed range should be invalid")
	}
}
