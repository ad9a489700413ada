// internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-service/internal/domain/service"
	"github.com/stretchr/testify/mock"
)

// MockExchangeRateRepository mocks the ExchangeRateRepository interface
type MockExchangeRateRepository struct {
	mock.Mock
}

func (m *MockExchangeRateRepository) FindRate(ctx context.Context, from, to string, date time.Time) (*entity.ExchangeRate, error) {
	args := m.Called(ctx, from, to, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ExchangeRate), args.Error(1)
}

func (m *MockExchangeRateRepository) FindRange(ctx context.Context, from, to string, dates []time.Time) ([]entity.ExchangeRate, error) {
	args := m.Called(ctx, from, to, dates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.ExchangeRate), args.Error(1)
}

func (m *MockExchangeRateRepository) InsertOne(ctx context.Context, rate *entity.ExchangeRate) (*entity.ExchangeRate, error) {
	args := m.Called(ctx, rate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ExchangeRate), args.Error(1)
}

func (m *MockExchangeRateRepository) InsertMany(ctx context.Context, rates []entity.ExchangeRate) error {
	args := m.Called(ctx, rates)
	return args.Error(0)
}

func (m *MockExchangeRateRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockRatesProvider mocks the RatesProvider interface
type MockRatesProvider struct {
	mock.Mock
}

func (m *MockRatesProvider) FetchRate(ctx context.Context, from, to string, date time.Time) (*service.ProviderRate, error) {
	args := m.Called(ctx, from, to, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ProviderRate), args.Error(1)
}

func (m *MockRatesProvider) FetchRange(ctx context.Context, from, to string, start, end time.Time) (map[string]float64, error) {
	args := m.Called(ctx, from, to, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}
