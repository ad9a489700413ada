package handler

import (
	"github.com/damon-houk/exchange-rate-service/internal/domain/entity"
)

// RatePoint is one dated rate in a response body
type RatePoint struct {
	Date string  `json:"date"`
	Rate float64 `json:"rate"`
}

// RateResponse represents the response for the single-date endpoint
type RateResponse struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Rate RatePoint `json:"rate"`
}

// RateSeriesResponse represents the response for the date-range endpoint
type RateSeriesResponse struct {
	From string      `json:"from"`
	To   string      `json:"to"`
	Rate []RatePoint `json:"rate"`
}

// ErrorResponse represents an upstream or internal failure
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse lists invalid request fields
type ValidationErrorResponse struct {
	Errors map[string][]string `json:"errors"`
}

// NewRateResponse shapes a single stored rate
func NewRateResponse(rate *entity.ExchangeRate) RateResponse {
	return RateResponse{
		From: rate.From,
		To:   rate.To,
		Rate: RatePoint{Date: rate.DateString(), Rate: rate.Rate},
	}
}

// NewRateSeriesResponse shapes an ordered series of rates for one pair
func NewRateSeriesResponse(from, to string, rates []entity.ExchangeRate) RateSeriesResponse {
	points := make([]RatePoint, 0, len(rates))
	for i := range rates {
		points = append(points, RatePoint{Date: rates[i].DateString(), Rate: rates[i].Rate})
	}

	return RateSeriesResponse{
		From: from,
		To:   to,
		Rate: points,
	}
}
