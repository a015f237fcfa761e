package analytics

import (
	"math"
	"strconv"
	"strings"
	"time"

	"estatehub/server/internal/apperr"
)

const (
	DefaultDays = 30
	MaxDays     = 365
)

// ParseDays reads the days query value. Empty means DefaultDays.
func ParseDays(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultDays, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > MaxDays {
		return 0, apperr.BadRequest("days must be an integer between 1 and %d", MaxDays)
	}
	return days, nil
}

// Window is a range of whole UTC days ending with today, plus the
// range of equal length right before it.
type Window struct {
	Days     int
	From     time.Time
	To       time.Time
	PrevFrom time.Time
}

func NewWindow(now time.Time, days int) Window {
	now = now.UTC()
	tomorrow := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	from := tomorrow.AddDate(0, 0, -days)
	return Window{
		Days:     days,
		From:     from,
		To:       tomorrow,
		PrevFrom: from.AddDate(0, 0, -days),
	}
}

// Dates lists every day of the current window as YYYY-MM-DD.
func (w Window) Dates() []string {
	dates := make([]string, 0, w.Days)
	for d := w.From; d.Before(w.To); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates
}

const dateLayout = "2006-01-02"

// Trend is the percent change from previous to current, one decimal.
// With no previous value any growth counts as 100%.
func Trend(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return round1((current - previous) / previous * 100)
}

// Rate is part/total as a percentage with one decimal, 0 for an empty total.
func Rate(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return round1(part / total * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
