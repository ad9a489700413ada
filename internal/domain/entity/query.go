package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Field names as they appear in request parameters and validation errors
const (
	FieldFrom           = "from"
	FieldTo             = "to"
	FieldDate           = "date"
	FieldDatePeriodFrom = "datePeriodFrom"
	FieldDatePeriodTo   = "datePeriodTo"
)

// MaxPeriodDays caps the number of days a RangeQuery may span
const MaxPeriodDays = 3660

// ValidationError lists every field-level problem found in a query
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

// MarshalJSON renders the field map only
func (e *ValidationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Fields)
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// RateQuery asks for the rate of one currency pair on one day
type RateQuery struct {
	From string
	To   string
	Date string
}

// NewRateQuery builds a single-date query. An empty date defaults to the
// UTC calendar date of now.
func NewRateQuery(from, to, date string, now time.Time) RateQuery {
	if date == "" {
		date = now.UTC().Format(DateLayout)
	}

	return RateQuery{
		From: normalizeCode(from),
		To:   normalizeCode(to),
		Date: date,
	}
}

// RateLookup is a validated RateQuery
type RateLookup struct {
	From string
	To   string
	Date time.Time
}

// Validate checks the query shape and returns its typed form
func (q RateQuery) Validate() (RateLookup, error) {
	verr := &ValidationError{}
	validateCode(verr, FieldFrom, q.From)
	validateCode(verr, FieldTo, q.To)

	date, _ := validateDate(verr, FieldDate, q.Date)
	if err := verr.orNil(); err != nil {
		return RateLookup{}, err
	}

	return RateLookup{From: q.From, To: q.To, Date: date}, nil
}

// RangeQuery asks for the rates of one currency pair over an inclusive period
type RangeQuery struct {
	From     string
	To       string
	DateFrom string
	DateTo   string
}

// NewRangeQuery builds a period query
func NewRangeQuery(from, to, dateFrom, dateTo string) RangeQuery {
	return RangeQuery{
		From:     normalizeCode(from),
		To:       normalizeCode(to),
		DateFrom: dateFrom,
		DateTo:   dateTo,
	}
}

// Period is a validated RangeQuery
type Period struct {
	From  string
	To    string
	Start time.Time
	End   time.Time
}

// Dates expands the period into its ordered daily sequence
func (p Period) Dates() []time.Time {
	return ExpandDates(p.Start, p.End)
}

// Validate checks the query shape and returns its typed form
func (q RangeQuery) Validate() (Period, error) {
	verr := &ValidationError{}
	validateCode(verr, FieldFrom, q.From)
	validateCode(verr, FieldTo, q.To)

	start, startOK := validateDate(verr, FieldDatePeriodFrom, q.DateFrom)
	end, endOK := validateDate(verr, FieldDatePeriodTo, q.DateTo)
	if startOK && endOK {
		switch {
		case end.Before(start):
			verr.add(FieldDatePeriodTo, "The datePeriodTo must be a date after or equal to datePeriodFrom.")
		case end.Sub(start) >= MaxPeriodDays*24*time.Hour:
			verr.add(FieldDatePeriodTo, fmt.Sprintf("The period may not be longer than %d days.", MaxPeriodDays))
		}
	}

	if err := verr.orNil(); err != nil {
		return Period{}, err
	}

	return Period{From: q.From, To: q.To, Start: start, End: end}, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateCode(verr *ValidationError, field, value string) {
	if value == "" {
		verr.add(field, "The "+field+" field is required.")
		return
	}
	if len([]rune(value)) != 3 {
		verr.add(field, "The "+field+" must be 3 characters.")
	}
}

func validateDate(verr *ValidationError, field, value string) (time.Time, bool) {
	if value == "" {
		verr.add(field, "The "+field+" field is required.")
		return time.Time{}, false
	}

	date, err := ParseDate(value)
	if err != nil {
		verr.add(field, "The "+field+" does not match the format Y-m-d.")
		return time.Time{}, false
	}

	return date, true
}
