package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/application/service"
	"github.com/damon-houk/exchange-rate-service/internal/domain/entity"
	domainservice "github.com/damon-houk/exchange-rate-service/internal/domain/service"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockExchangeService struct {
	mock.Mock
}

func (m *mockExchangeService) GetExchangeRate(ctx context.Context, query entity.RateQuery) (*entity.ExchangeRate, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ExchangeRate), args.Error(1)
}

func (m *mockExchangeService) GetExchangeRates(ctx context.Context, query entity.RangeQuery) ([]entity.ExchangeRate, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.ExchangeRate), args.Error(1)
}

func newTestHandler(svc ExchangeService) *ExchangeHandler {
	h := NewExchangeHandler(svc, logger.Nop())
	h.now = func() time.Time { return time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC) }
	return h
}

func serve(t *testing.T, h *ExchangeHandler, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	rec := httptest.NewRecorder()
	NewRouter(h, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestGetExchangeRateDefaultsDate(t *testing.T) {
	svc := new(mockExchangeService)
	h := newTestHandler(svc)

	rate := entity.NewExchangeRate("GBP", "JPY", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), 190.25)

	svc.On("GetExchangeRate", mock.Anything, entity.RateQuery{From: "GBP", To: "JPY", Date: "2024-03-15"}).
		Return(rate, nil)

	rec, body := serve(t, h, "/exchange-rate?from=gbp&to=jpy")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{
		"from": "GBP",
		"to":   "JPY",
		"rate": map[string]interface{}{"date": "2024-03-15", "rate": 190.25},
	}, body)
	svc.AssertExpectations(t)
}

func TestGetExchangeRateErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   map[string]interface{}
	}{
		{
			name:       "Validation error",
			err:        &entity.ValidationError{Fields: map[string][]string{"to": {"The to field is required."}}},
			wantStatus: http.StatusBadRequest,
			wantBody: map[string]interface{}{
				"errors": map[string]interface{}{"to": []interface{}{"The to field is required."}},
			},
		},
		{
			name:       "Exchange error",
			err:        &service.APIExchangeError{Message: "Exchange rate not found for 2024-03-15"},
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]interface{}{"error": "Exchange rate not found for 2024-03-15"},
		},
		{
			name:       "Wrapped provider error",
			err:        fmt.Errorf("failed to fetch exchange rate: %w", &domainservice.ProviderError{StatusCode: 400, Message: "invalid base"}),
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]interface{}{"error": "invalid base"},
		},
		{
			name:       "Store failure",
			err:        fmt.Errorf("failed to look up exchange rate: %w", errors.New("disk full")),
			wantStatus: http.StatusInternalServerError,
			wantBody:   map[string]interface{}{"error": "Internal server error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockExchangeService)
			svc.On("GetExchangeRate", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec, body := serve(t, newTestHandler(svc), "/exchange-rate?from=USD&to=EUR&date=2024-03-15")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestGetExchangeRatesPassesPeriod(t *testing.T) {
	svc := new(mockExchangeService)
	h := newTestHandler(svc)

	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	rates := []entity.ExchangeRate{
		{From: "USD", To: "CHF", Date: day(1), Rate: 0.84},
		{From: "USD", To: "CHF", Date: day(2), Rate: 0.85},
	}

	svc.On("GetExchangeRates", mock.Anything, entity.RangeQuery{
		From: "USD", To: "CHF", DateFrom: "2024-01-01", DateTo: "2024-01-02",
	}).Return(rates, nil)

	rec, body := serve(t, h, "/exchange-rates?from=USD&to=CHF&datePeriodFrom=2024-01-01&datePeriodTo=2024-01-02")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"date": "2024-01-01", "rate": 0.84},
		map[string]interface{}{"date": "2024-01-02", "rate": 0.85},
	}, body["rate"])
	svc.AssertExpectations(t)
}

func TestPanicRecovered(t *testing.T) {
	svc := new(mockExchangeService)
	svc.On("GetExchangeRates", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	})

	rec, body := serve(t, newTestHandler(svc), "/exchange-rates?from=USD&to=CHF&datePeriodFrom=2024-01-01&datePeriodTo=2024-01-02")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body["error"])
}

func TestUnknownRoute(t *testing.T) {
	rec, body := serve(t, newTestHandler(new(mockExchangeService)), "/convert")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", body["error"])
}
