package db

import (
	"context"
	"sync"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-service/internal/domain/repository"
)

// MemoryExchangeRateRepository is a thread-safe in-process exchange rate store.
// Contents are lost on restart.
type MemoryExchangeRateRepository struct {
	rates map[string]entity.ExchangeRate
	mutex sync.RWMutex
}

// NewMemoryExchangeRateRepository creates an empty in-memory repository
func NewMemoryExchangeRateRepository() *MemoryExchangeRateRepository {
	return &MemoryExchangeRateRepository{
		rates: make(map[string]entity.ExchangeRate),
	}
}

func memoryKey(from, to string, date time.Time) string {
	return string(rateKey(from, to, date))
}

// FindRate finds the rate for a currency pair on a specific date
func (m *MemoryExchangeRateRepository) FindRate(ctx context.Context, from, to string, date time.Time) (*entity.ExchangeRate, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rate, ok := m.rates[memoryKey(from, to, date)]
	if !ok {
		return nil, repository.ErrRateNotFound
	}

	return &rate, nil
}

// FindRange returns one stored rate per date or repository.ErrRangeIncomplete
func (m *MemoryExchangeRateRepository) FindRange(ctx context.Context, from, to string, dates []time.Time) ([]entity.ExchangeRate, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rates := make([]entity.ExchangeRate, 0, len(dates))
	for _, date := range dates {
		rate, ok := m.rates[memoryKey(from, to, date)]
		if !ok {
			return nil, repository.ErrRangeIncomplete
		}
		rates = append(rates, rate)
	}

	return rates, nil
}

// InsertOne stores rate unless its key already exists, and returns the stored rate
func (m *MemoryExchangeRateRepository) InsertOne(ctx context.Context, rate *entity.ExchangeRate) (*entity.ExchangeRate, error) {
	if err := rate.Validate(); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	stored := m.putIfAbsent(*rate)
	return &stored, nil
}

// InsertMany stores rates, skipping keys that already exist
func (m *MemoryExchangeRateRepository) InsertMany(ctx context.Context, rates []entity.ExchangeRate) error {
	for i := range rates {
		if err := rates[i].Validate(); err != nil {
			return err
		}
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, rate := range rates {
		m.putIfAbsent(rate)
	}

	return nil
}

// Size returns the number of stored rates
func (m *MemoryExchangeRateRepository) Size() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return len(m.rates)
}

// Close is a no-op
func (m *MemoryExchangeRateRepository) Close() error {
	return nil
}

// putIfAbsent must be called with the write lock held
func (m *MemoryExchangeRateRepository) putIfAbsent(rate entity.ExchangeRate) entity.ExchangeRate {
	key := memoryKey(rate.From, rate.To, rate.Date)
	if existing, ok := m.rates[key]; ok {
		return existing
	}

	rate.Date = entity.Day(rate.Date)
	m.rates[key] = rate
	return rate
}
