// Package repository internal/domain/repository/exchange_rate_repository.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/domain/entity"
)

// InsertBatchSize caps how many rates a repository writes per batch
const InsertBatchSize = 100

var (
	// ErrRateNotFound is returned when no rate is stored for a pair and date
	ErrRateNotFound = errors.New("exchange rate not found")

	// ErrRangeIncomplete is returned when at least one requested date has no stored rate
	ErrRangeIncomplete = errors.New("exchange rate range incomplete")
)

// ExchangeRateRepository defines persistent storage for exchange rates keyed by (from, to, date).
// Stored rates are immutable: inserting an existing key keeps the stored value.
type ExchangeRateRepository interface {
	// FindRate finds the rate for a currency pair on a specific date
	FindRate(ctx context.Context, from, to string, date time.Time) (*entity.ExchangeRate, error)

	// FindRange returns one rate per date, in the order of dates, or ErrRangeIncomplete
	FindRange(ctx context.Context, from, to string, dates []time.Time) ([]entity.ExchangeRate, error)

	// InsertOne stores a rate and returns the rate now held for its key
	InsertOne(ctx context.Context, rate *entity.ExchangeRate) (*entity.ExchangeRate, error)

	// InsertMany stores rates in batches, ignoring keys that already exist
	InsertMany(ctx context.Context, rates []entity.ExchangeRate) error

	// Close releases the underlying storage
	Close() error
}

// Batches splits rates into consecutive chunks of at most size elements
func Batches(rates []entity.ExchangeRate, size int) [][]entity.ExchangeRate {
	if size <= 0 {
		size = InsertBatchSize
	}

	batches := make([][]entity.ExchangeRate, 0, (len(rates)+size-1)/size)
	for start := 0; start < len(rates); start += size {
		end := start + size
		if end > len(rates) {
			end = len(rates)
		}
		batches = append(batches, rates[start:end])
	}

	return batches
}
