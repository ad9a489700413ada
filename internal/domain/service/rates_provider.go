package service

import (
	"context"
	"time"
)

// ProviderRate is a single rate as reported by an upstream provider
type ProviderRate struct {
	Date time.Time
	Rate float64
}

// ProviderError reports a transport failure or an error payload from the provider.
// Message is the provider's own message.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return e.Message
}

// RatesProvider defines the interface for fetching rates from an upstream API
type RatesProvider interface {
	// FetchRate retrieves the rate for a currency pair on a date. The returned
	// date is the one the provider reports, which may differ from the request.
	FetchRate(ctx context.Context, from, to string, date time.Time) (*ProviderRate, error)

	// FetchRange retrieves rates for every day the provider has within the period,
	// keyed by YYYY-MM-DD
	FetchRange(ctx context.Context, from, to string, start, end time.Time) (map[string]float64, error)
}
