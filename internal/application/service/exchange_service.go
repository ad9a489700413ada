// Package service internal/application/service/exchange_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-service/internal/domain/repository"
	domainservice "github.com/damon-houk/exchange-rate-service/internal/domain/service"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/metrics"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/middleware"
	"golang.org/x/sync/singleflight"
)

// APIExchangeError reports upstream data that cannot be served: a rate for
// another date than requested, or no rates at all
type APIExchangeError struct {
	Message string
}

func (e *APIExchangeError) Error() string {
	return e.Message
}

const failedToGetRate = "Failed to get exchange rate"

// ExchangeService serves exchange rates from the store, backfilling misses from the provider
type ExchangeService struct {
	repo     repository.ExchangeRateRepository
	provider domainservice.RatesProvider
	logger   logger.Logger
	inflight singleflight.Group
}

// NewExchangeService creates a new exchange service
func NewExchangeService(repo repository.ExchangeRateRepository, provider domainservice.RatesProvider, log logger.Logger) *ExchangeService {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &ExchangeService{
		repo:     repo,
		provider: provider,
		logger:   log,
	}
}

// GetExchangeRate returns the rate for a single date, fetching and storing it on a store miss
func (s *ExchangeService) GetExchangeRate(ctx context.Context, query entity.RateQuery) (*entity.ExchangeRate, error) {
	requestID := middleware.GetRequestID(ctx)

	lookup, err := query.Validate()
	if err != nil {
		s.logger.Warn("Invalid exchange rate query", logger.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return nil, err
	}

	fields := logger.Fields{
		"request_id": requestID,
		"from":       lookup.From,
		"to":         lookup.To,
		"date":       lookup.Date.Format(entity.DateLayout),
	}

	rate, err := s.repo.FindRate(ctx, lookup.From, lookup.To, lookup.Date)
	switch {
	case err == nil:
		metrics.StoreLookupsTotal.WithLabelValues("single", "hit").Inc()
		s.logger.Debug("Exchange rate served from store", fields)
		return rate, nil
	case !errors.Is(err, repository.ErrRateNotFound):
		metrics.StoreLookupsTotal.WithLabelValues("single", "error").Inc()
		s.logger.Error("Failed to look up exchange rate", withError(fields, err))
		return nil, fmt.Errorf("failed to look up exchange rate: %w", err)
	}

	metrics.StoreLookupsTotal.WithLabelValues("single", "miss").Inc()
	s.logger.Info("Exchange rate not stored, fetching from provider", fields)

	key := fmt.Sprintf("rate:%s:%s:%s", lookup.From, lookup.To, lookup.Date.Format(entity.DateLayout))
	v, err, shared := s.inflight.Do(key, func() (interface{}, error) {
		return s.fetchRate(ctx, lookup, fields)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		s.logger.Debug("Shared in-flight exchange rate fetch", fields)
	}

	stored := *v.(*entity.ExchangeRate)
	return &stored, nil
}

func (s *ExchangeService) fetchRate(ctx context.Context, lookup entity.RateLookup, fields logger.Fields) (*entity.ExchangeRate, error) {
	fetched, err := s.provider.FetchRate(ctx, lookup.From, lookup.To, lookup.Date)
	if err != nil {
		s.logger.Error("Failed to fetch exchange rate", withError(fields, err))
		return nil, fmt.Errorf("failed to fetch exchange rate: %w", err)
	}

	// Providers answer non-business days with the closest earlier rate
	if !entity.Day(fetched.Date).Equal(lookup.Date) {
		s.logger.Warn("Provider returned a rate for another date", withFields(fields, logger.Fields{
			"provider_date": fetched.Date.Format(entity.DateLayout),
		}))
		return nil, &APIExchangeError{
			Message: fmt.Sprintf("Exchange rate not found for %s", lookup.Date.Format(entity.DateLayout)),
		}
	}

	if fetched.Rate <= 0 {
		s.logger.Warn("Provider returned a non-positive rate", withFields(fields, logger.Fields{"rate": fetched.Rate}))
		return nil, &APIExchangeError{Message: failedToGetRate}
	}

	stored, err := s.repo.InsertOne(ctx, entity.NewExchangeRate(lookup.From, lookup.To, lookup.Date, fetched.Rate))
	if err != nil {
		s.logger.Error("Failed to store exchange rate", withError(fields, err))
		return nil, fmt.Errorf("failed to store exchange rate: %w", err)
	}
	metrics.StoredRatesTotal.WithLabelValues("single").Inc()

	s.logger.Info("Exchange rate fetched and stored", withFields(fields, logger.Fields{"rate": stored.Rate}))

	return stored, nil
}

// GetExchangeRates returns one rate per day of the period, ordered by date. When any
// day is missing from the store the whole period is fetched from the provider once.
func (s *ExchangeService) GetExchangeRates(ctx context.Context, query entity.RangeQuery) ([]entity.ExchangeRate, error) {
	requestID := middleware.GetRequestID(ctx)

	period, err := query.Validate()
	if err != nil {
		s.logger.Warn("Invalid exchange rate period query", logger.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return nil, err
	}

	dates := period.Dates()
	fields := logger.Fields{
		"request_id": requestID,
		"from":       period.From,
		"to":         period.To,
		"start":      period.Start.Format(entity.DateLayout),
		"end":        period.End.Format(entity.DateLayout),
		"days":       len(dates),
	}

	rates, err := s.repo.FindRange(ctx, period.From, period.To, dates)
	switch {
	case err == nil:
		metrics.StoreLookupsTotal.WithLabelValues("range", "hit").Inc()
		s.logger.Debug("Exchange rates served from store", fields)
		return rates, nil
	case !errors.Is(err, repository.ErrRangeIncomplete):
		metrics.StoreLookupsTotal.WithLabelValues("range", "error").Inc()
		s.logger.Error("Failed to look up exchange rates", withError(fields, err))
		return nil, fmt.Errorf("failed to look up exchange rates: %w", err)
	}

	metrics.StoreLookupsTotal.WithLabelValues("range", "miss").Inc()
	s.logger.Info("Exchange rate period incomplete in store, fetching from provider", fields)

	key := fmt.Sprintf("range:%s:%s:%s:%s", period.From, period.To,
		period.Start.Format(entity.DateLayout), period.End.Format(entity.DateLayout))
	v, err, _ := s.inflight.Do(key, func() (interface{}, error) {
		return s.fetchRange(ctx, period, fields)
	})
	if err != nil {
		return nil, err
	}

	fetched := v.([]entity.ExchangeRate)
	result := make([]entity.ExchangeRate, len(fetched))
	copy(result, fetched)

	return result, nil
}

func (s *ExchangeService) fetchRange(ctx context.Context, period entity.Period, fields logger.Fields) ([]entity.ExchangeRate, error) {
	fetched, err := s.provider.FetchRange(ctx, period.From, period.To, period.Start, period.End)
	if err != nil {
		s.logger.Error("Failed to fetch exchange rates", withError(fields, err))
		return nil, fmt.Errorf("failed to fetch exchange rates: %w", err)
	}

	rates := make([]entity.ExchangeRate, 0, len(fetched))
	for value, rate := range fetched {
		date, err := entity.ParseDate(value)
		if err != nil || date.Before(period.Start) || date.After(period.End) || rate <= 0 {
			s.logger.Warn("Ignoring provider rate", withFields(fields, logger.Fields{
				"provider_date": value,
				"rate":          rate,
			}))
			continue
		}
		rates = append(rates, *entity.NewExchangeRate(period.From, period.To, date, rate))
	}

	if len(rates) == 0 {
		s.logger.Warn("Provider returned no exchange rates", fields)
		return nil, &APIExchangeError{Message: failedToGetRate}
	}

	sort.Slice(rates, func(i, j int) bool {
		return rates[i].Date.Before(rates[j].Date)
	})

	if err := s.repo.InsertMany(ctx, rates); err != nil {
		s.logger.Error("Failed to store exchange rates", withError(fields, err))
		return nil, fmt.Errorf("failed to store exchange rates: %w", err)
	}
	metrics.StoredRatesTotal.WithLabelValues("range").Add(float64(len(rates)))

	// Rows stored earlier win over the fetched values
	dates := make([]time.Time, len(rates))
	for i := range rates {
		dates[i] = rates[i].Date
	}
	stored, err := s.repo.FindRange(ctx, period.From, period.To, dates)
	if err != nil {
		s.logger.Error("Failed to read back stored exchange rates", withError(fields, err))
		return nil, fmt.Errorf("failed to read back stored exchange rates: %w", err)
	}

	s.logger.Info("Exchange rates fetched and stored", withFields(fields, logger.Fields{"fetched": len(rates)}))

	return stored, nil
}

// WarmUp fetches today's rate for each pair so the first requests of the day are store hits
func (s *ExchangeService) WarmUp(ctx context.Context, pairs [][2]string, now time.Time) error {
	var errs []error
	for _, pair := range pairs {
		query := entity.NewRateQuery(pair[0], pair[1], "", now)
		if _, err := s.GetExchangeRate(ctx, query); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", query.From, query.To, err))
		}
	}

	return errors.Join(errs...)
}

func withFields(fields logger.Fields, extra logger.Fields) logger.Fields {
	merged := make(logger.Fields, len(fields)+len(extra))
	for k, v := range fields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func withError(fields logger.Fields, err error) logger.Fields {
	return withFields(fields, logger.Fields{"error": err.Error()})
}
