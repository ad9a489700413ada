package entity

import (
	"errors"
	"time"
)

// DateLayout is the calendar date format used on the wire and as the storage key component
const DateLayout = "2006-01-02"

// ExchangeRate represents the price of one unit of From expressed in To on a given day
type ExchangeRate struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Date time.Time `json:"date"`
	Rate float64   `json:"rate"`
}

// NewExchangeRate builds a rate for the calendar day containing date
func NewExchangeRate(from, to string, date time.Time, rate float64) *ExchangeRate {
	return &ExchangeRate{
		From: from,
		To:   to,
		Date: Day(date),
		Rate: rate,
	}
}

// Validate ensures the rate can be persisted
func (r *ExchangeRate) Validate() error {
	if len(r.From) != 3 || len(r.To) != 3 {
		return errors.New("currency codes must be 3 characters")
	}

	if r.Date.IsZero() {
		return errors.New("date is required")
	}

	if r.Rate <= 0 {
		return errors.New("rate must be a positive value")
	}

	return nil
}

// DateString returns the rate date formatted as YYYY-MM-DD
func (r *ExchangeRate) DateString() string {
	return r.Date.Format(DateLayout)
}

// Day truncates t to midnight UTC of its calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a strict YYYY-MM-DD date
func ParseDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, value)
}

// ExpandDates returns every calendar day from start to end, both inclusive.
// It returns nil when end is before start.
func ExpandDates(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}

	days := int(end.Sub(start).Hours()/24) + 1
	dates := make([]time.Time, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}

	return dates
}
