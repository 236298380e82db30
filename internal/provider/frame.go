package provider

import (
	"strings"
	"time"

	"github.com/guregu/null/v6"
)

// Standard field names carried in level 0 of a column key.
const (
	FieldOpen   = "Open"
	FieldHigh   = "High"
	FieldLow    = "Low"
	FieldClose  = "Close"
	FieldVolume = "Volume"
)

// Frame is a date-indexed table of one symbol's daily values. Column keys
// may be multi-level (field, symbol) as returned by multi-ticker downloads.
type Frame struct {
	Index   []time.Time
	Columns []Column
	Err     error // per-symbol failure; Index and Columns are empty
}

// Column is one series of a Frame. Values align with Frame.Index.
type Column struct {
	Levels []string
	Values []null.Float
}

// Name returns the outermost level of the column key.
func (c Column) Name() string {
	if len(c.Levels) == 0 {
		return ""
	}
	return c.Levels[0]
}

// Empty reports whether the frame has no rows.
func (f Frame) Empty() bool { return len(f.Index) == 0 }

// Flatten returns a copy whose column keys are reduced to their outermost
// level. When two columns flatten to the same name the first one wins.
func (f Frame) Flatten() Frame {
	out := Frame{Index: f.Index, Err: f.Err}
	seen := make(map[string]struct{}, len(f.Columns))
	for _, c := range f.Columns {
		name := c.Name()
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Columns = append(out.Columns, Column{Levels: []string{name}, Values: c.Values})
	}
	return out
}

// Column returns the first column whose outermost level matches name,
// ignoring case.
func (f Frame) Column(name string) (Column, bool) {
	for _, c := range f.Columns {
		if strings.EqualFold(c.Name(), name) {
			return c, true
		}
	}
	return Column{}, false
}
