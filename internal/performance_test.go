package internal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/application/service"
	"github.com/damon-houk/exchange-rate-service/internal/domain/entity"
	domainservice "github.com/damon-houk/exchange-rate-service/internal/domain/service"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/db"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider answers every request with a deterministic rate and a small delay
type stubProvider struct {
	calls int64
	delay time.Duration
}

func (p *stubProvider) rate(to string, date time.Time) float64 {
	return 0.5 + float64(len(to)+date.YearDay())/1000
}

func (p *stubProvider) FetchRate(ctx context.Context, from, to string, date time.Time) (*domainservice.ProviderRate, error) {
	atomic.AddInt64(&p.calls, 1)
	time.Sleep(p.delay)
	return &domainservice.ProviderRate{Date: date, Rate: p.rate(to, date)}, nil
}

func (p *stubProvider) FetchRange(ctx context.Context, from, to string, start, end time.Time) (map[string]float64, error) {
	atomic.AddInt64(&p.calls, 1)
	time.Sleep(p.delay)

	rates := make(map[string]float64)
	for _, day := range entity.ExpandDates(start, end) {
		rates[day.Format(entity.DateLayout)] = p.rate(to, day)
	}
	return rates, nil
}

func TestPerformance(t *testing.T) {
	// Skip in short mode or CI
	if testing.Short() {
		t.Skip("Skipping performance test in short mode")
	}

	badgerDB, err := db.OpenBadger(t.TempDir(), false)
	require.NoError(t, err)

	repo := db.NewBadgerExchangeRateRepository(badgerDB, logger.Nop())
	defer repo.Close()

	provider := &stubProvider{delay: 5 * time.Millisecond}
	exchangeService := service.NewExchangeService(repo, provider, logger.Nop())

	// Performance test configuration
	numRequests := 200
	concurrency := 10
	currencies := []string{"EUR", "GBP", "CAD", "JPY"}
	base := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

	queryFor := func(n int) entity.RateQuery {
		date := base.AddDate(0, 0, n%20).Format(entity.DateLayout)
		return entity.NewRateQuery("USD", currencies[n%len(currencies)], date, base)
	}

	run := func(t *testing.T, name string, work func(ctx context.Context, n int) error) {
		startTime := time.Now()

		var failures int64
		wg := sync.WaitGroup{}
		wg.Add(concurrency)

		perWorker := numRequests / concurrency
		for i := 0; i < concurrency; i++ {
			go func(workerID int) {
				defer wg.Done()

				ctx := context.Background()
				for j := 0; j < perWorker; j++ {
					if err := work(ctx, workerID*perWorker+j); err != nil {
						atomic.AddInt64(&failures, 1)
						t.Logf("Error in %s: %v", name, err)
					}
				}
			}(i)
		}

		wg.Wait()
		duration := time.Since(startTime)

		// Calculate throughput
		throughput := float64(numRequests) / duration.Seconds()
		t.Logf("%s: %d requests in %v (%.2f req/sec)", name, numRequests, duration, throughput)
		assert.Zero(t, atomic.LoadInt64(&failures))
	}

	// 200 requests over 80 distinct pair/date keys
	t.Run("Cold Lookups", func(t *testing.T) {
		run(t, "cold lookups", func(ctx context.Context, n int) error {
			_, err := exchangeService.GetExchangeRate(ctx, queryFor(n))
			return err
		})

		calls := atomic.LoadInt64(&provider.calls)
		t.Logf("Provider calls: %d", calls)
		assert.LessOrEqual(t, calls, int64(numRequests))
	})

	t.Run("Warm Lookups", func(t *testing.T) {
		before := atomic.LoadInt64(&provider.calls)

		run(t, "warm lookups", func(ctx context.Context, n int) error {
			_, err := exchangeService.GetExchangeRate(ctx, queryFor(n))
			return err
		})

		assert.Equal(t, before, atomic.LoadInt64(&provider.calls))
	})

	t.Run("Range Lookups", func(t *testing.T) {
		run(t, "range lookups", func(ctx context.Context, n int) error {
			start := base.AddDate(0, 1, n%10)
			rates, err := exchangeService.GetExchangeRates(ctx, entity.NewRangeQuery(
				"USD",
				currencies[n%len(currencies)],
				start.Format(entity.DateLayout),
				start.AddDate(0, 0, 6).Format(entity.DateLayout),
			))
			if err == nil && len(rates) != 7 {
				err = fmt.Errorf("expected 7 rates, got %d", len(rates))
			}
			return err
		})
	})
}
