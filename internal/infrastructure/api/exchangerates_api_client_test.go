// internal/infrastructure/api/exchangerates_api_client_test.go
package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/domain/service"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, accessKey string) *ExchangeRatesAPIClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewExchangeRatesAPIClient(ClientOptions{
		BaseURL:   server.URL + "/",
		AccessKey: accessKey,
	}, logger.Nop())
}

func TestFetchRate(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Successful request", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/2023-06-01", r.URL.Path)
			assert.Equal(t, "EUR", r.URL.Query().Get("symbols"))
			assert.Equal(t, "USD", r.URL.Query().Get("base"))
			assert.Equal(t, "secret", r.URL.Query().Get("access_key"))
			assert.Equal(t, "application/json", r.Header.Get("Accept"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"base":"USD","date":"2023-06-01","rates":{"EUR":0.91}}`))
		}, "secret")

		rate, err := client.FetchRate(ctx, "USD", "EUR", date)
		require.NoError(t, err)
		assert.Equal(t, date, rate.Date)
		assert.Equal(t, 0.91, rate.Rate)
	})

	t.Run("Provider substitutes an earlier date", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"base":"USD","date":"2022-12-30","rates":{"EUR":0.94}}`))
		}, "")

		rate, err := client.FetchRate(ctx, "USD", "EUR", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, "2022-12-30", rate.Date.Format("2006-01-02"))
	})

	t.Run("Error payload with failure status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.URL.Query().Get("access_key"))
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"Base 'XXX' is not supported."}`))
		}, "")

		rate, err := client.FetchRate(ctx, "XXX", "EUR", date)
		assert.Nil(t, rate)

		var providerErr *service.ProviderError
		require.True(t, errors.As(err, &providerErr))
		assert.Equal(t, "Base 'XXX' is not supported.", providerErr.Message)
		assert.Equal(t, http.StatusBadRequest, providerErr.StatusCode)
	})

	t.Run("Structured error payload with success status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false,"error":{"code":101,"type":"missing_access_key","info":"You have not supplied an API Access Key."}}`))
		}, "")

		failures := metrics.ProviderRequestsTotal.WithLabelValues("rate", "error")
		successes := metrics.ProviderRequestsTotal.WithLabelValues("rate", "success")
		failuresBefore, successesBefore := testutil.ToFloat64(failures), testutil.ToFloat64(successes)

		_, err := client.FetchRate(ctx, "USD", "EUR", date)

		var providerErr *service.ProviderError
		require.True(t, errors.As(err, &providerErr))
		assert.Equal(t, "You have not supplied an API Access Key.", providerErr.Message)
		assert.Equal(t, http.StatusOK, providerErr.StatusCode)

		assert.Equal(t, failuresBefore+1, testutil.ToFloat64(failures))
		assert.Equal(t, successesBefore, testutil.ToFloat64(successes))
	})

	t.Run("Failure status without payload", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, "")

		_, err := client.FetchRate(ctx, "USD", "EUR", date)

		var providerErr *service.ProviderError
		require.True(t, errors.As(err, &providerErr))
		assert.Equal(t, "provider returned status 502", providerErr.Message)
	})

	t.Run("Symbol missing from response", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"base":"USD","date":"2023-06-01","rates":{}}`))
		}, "")

		_, err := client.FetchRate(ctx, "USD", "EUR", date)

		var providerErr *service.ProviderError
		require.True(t, errors.As(err, &providerErr))
		assert.Contains(t, providerErr.Message, "EUR")
	})

	t.Run("Malformed body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}, "")

		_, err := client.FetchRate(ctx, "USD", "EUR", date)

		var providerErr *service.ProviderError
		require.True(t, errors.As(err, &providerErr))
		assert.Contains(t, providerErr.Message, "failed to decode provider response")
	})

	t.Run("Transport failure is not retried", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			hijacker, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hijacker.Hijack()
			require.NoError(t, err)
			conn.Close()
		}))
		defer server.Close()

		client := NewExchangeRatesAPIClient(ClientOptions{BaseURL: server.URL}, logger.Nop())
		_, err := client.FetchRate(ctx, "USD", "EUR", date)

		var providerErr *service.ProviderError
		require.True(t, errors.As(err, &providerErr))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestFetchRange(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC)

	t.Run("Successful request", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/history", r.URL.Path)
			assert.Equal(t, "2023-01-01", r.URL.Query().Get("start_at"))
			assert.Equal(t, "2023-01-04", r.URL.Query().Get("end_at"))
			assert.Equal(t, "EUR", r.URL.Query().Get("symbols"))
			assert.Equal(t, "USD", r.URL.Query().Get("base"))

			w.Write([]byte(`{
				"base": "USD",
				"start_at": "2023-01-01",
				"end_at": "2023-01-04",
				"rates": {
					"2023-01-02": {"EUR": 0.9370},
					"2023-01-03": {"EUR": 0.9484},
					"2023-01-04": {"GBP": 0.83}
				}
			}`))
		}, "")

		rates, err := client.FetchRange(ctx, "USD", "EUR", start, end)
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{
			"2023-01-02": 0.9370,
			"2023-01-03": 0.9484,
		}, rates)
	})

	t.Run("Empty history", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"base":"USD","rates":{}}`))
		}, "")

		rates, err := client.FetchRange(ctx, "USD", "EUR", start, end)
		require.NoError(t, err)
		assert.Empty(t, rates)
	})

	t.Run("Error payload", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"start_at must be before end_at"}`))
		}, "")

		_, err := client.FetchRange(ctx, "USD", "EUR", start, end)

		var providerErr *service.ProviderError
		require.True(t, errors.As(err, &providerErr))
		assert.Equal(t, "start_at must be before end_at", providerErr.Error())
	})
}
