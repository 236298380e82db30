package alpaca

import (
	"fmt"
	"time"
	_ "time/tzdata"

	tradeapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// Calendar is the subset of the Alpaca trading client used to find
// finished sessions.
type Calendar interface {
	GetCalendar(req tradeapi.GetCalendarRequest) ([]tradeapi.CalendarDay, error)
}

// NewCalendar creates a trading-API client for calendar lookups.
func NewCalendar(apiKey, apiSecret, baseURL string) Calendar {
	return tradeapi.NewClient(tradeapi.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
}

// LatestFinishedTradingDay returns the most recent trading day whose session
// has ended as of now. Today only counts after 20:05 ET, once extended-hours
// bars have settled.
func LatestFinishedTradingDay(cal Calendar, now time.Time) (time.Time, error) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}

	now = now.In(et)
	days, err := cal.GetCalendar(tradeapi.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}
	if len(days) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	today := now.Format("2006-01-02")
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, et)

	for i := len(days) - 1; i >= 0; i-- {
		day, err := time.Parse("2006-01-02", days[i].Date)
		if err != nil {
			continue
		}
		if days[i].Date == today {
			if now.After(cutoff) {
				return day, nil
			}
			continue
		}
		if days[i].Date < today {
			return day, nil
		}
	}

	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
