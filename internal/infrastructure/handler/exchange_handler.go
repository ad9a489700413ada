// Package handler internal/infrastructure/handler/exchange_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/application/service"
	"github.com/damon-houk/exchange-rate-service/internal/domain/entity"
	domainservice "github.com/damon-houk/exchange-rate-service/internal/domain/service"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/middleware"
	"github.com/gorilla/mux"
)

// ExchangeService is the business logic the handler serves
type ExchangeService interface {
	GetExchangeRate(ctx context.Context, query entity.RateQuery) (*entity.ExchangeRate, error)
	GetExchangeRates(ctx context.Context, query entity.RangeQuery) ([]entity.ExchangeRate, error)
}

// ExchangeHandler handles HTTP requests for exchange rates
type ExchangeHandler struct {
	service ExchangeService
	logger  logger.Logger
	now     func() time.Time
}

// NewExchangeHandler creates a new exchange handler
func NewExchangeHandler(svc ExchangeService, log logger.Logger) *ExchangeHandler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &ExchangeHandler{
		service: svc,
		logger:  log,
		now:     time.Now,
	}
}

// GetExchangeRate handles GET /exchange-rate?from=&to=&date=
func (h *ExchangeHandler) GetExchangeRate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	params := r.URL.Query()

	query := entity.NewRateQuery(
		params.Get(entity.FieldFrom),
		params.Get(entity.FieldTo),
		params.Get(entity.FieldDate),
		h.now(),
	)

	h.logger.Info("Handling exchange rate request", logger.Fields{
		"request_id": requestID,
		"from":       query.From,
		"to":         query.To,
		"date":       query.Date,
	})

	rate, err := h.service.GetExchangeRate(r.Context(), query)
	if err != nil {
		h.sendError(w, requestID, err)
		return
	}

	h.sendJSON(w, requestID, http.StatusOK, NewRateResponse(rate))
}

// GetExchangeRates handles GET /exchange-rates?from=&to=&datePeriodFrom=&datePeriodTo=
func (h *ExchangeHandler) GetExchangeRates(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	params := r.URL.Query()

	query := entity.NewRangeQuery(
		params.Get(entity.FieldFrom),
		params.Get(entity.FieldTo),
		params.Get(entity.FieldDatePeriodFrom),
		params.Get(entity.FieldDatePeriodTo),
	)

	h.logger.Info("Handling exchange rates request", logger.Fields{
		"request_id": requestID,
		"from":       query.From,
		"to":         query.To,
		"start":      query.DateFrom,
		"end":        query.DateTo,
	})

	rates, err := h.service.GetExchangeRates(r.Context(), query)
	if err != nil {
		h.sendError(w, requestID, err)
		return
	}

	h.sendJSON(w, requestID, http.StatusOK, NewRateSeriesResponse(query.From, query.To, rates))
}

// Health handles GET /healthz
func (h *ExchangeHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, middleware.GetRequestID(r.Context()), http.StatusOK, map[string]string{"status": "ok"})
}

// RegisterRoutes registers the exchange handler routes
func (h *ExchangeHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/exchange-rate", h.GetExchangeRate).Methods(http.MethodGet).Name("exchange-rate")
	router.HandleFunc("/exchange-rates", h.GetExchangeRates).Methods(http.MethodGet).Name("exchange-rates")
	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet).Name("healthz")

	h.logger.Info("Exchange routes registered", logger.Fields{
		"routes": []string{
			"GET /exchange-rate",
			"GET /exchange-rates",
			"GET /healthz",
		},
	})
}

// sendError maps service errors onto status codes and bodies
func (h *ExchangeHandler) sendError(w http.ResponseWriter, requestID string, err error) {
	var (
		validationErr *entity.ValidationError
		apiErr        *service.APIExchangeError
		providerErr   *domainservice.ProviderError
	)

	switch {
	case errors.As(err, &validationErr):
		h.logger.Warn("Invalid request parameters", logger.Fields{
			"request_id": requestID,
			"errors":     validationErr.Fields,
		})
		h.sendJSON(w, requestID, http.StatusBadRequest, ValidationErrorResponse{Errors: validationErr.Fields})

	case errors.As(err, &apiErr):
		h.logger.Warn("Exchange rate unavailable", logger.Fields{
			"request_id": requestID,
			"error":      apiErr.Message,
		})
		h.sendJSON(w, requestID, http.StatusBadRequest, ErrorResponse{Error: apiErr.Message})

	case errors.As(err, &providerErr):
		h.logger.Warn("Rate provider error", logger.Fields{
			"request_id":      requestID,
			"provider_status": providerErr.StatusCode,
			"error":           providerErr.Message,
		})
		h.sendJSON(w, requestID, http.StatusBadRequest, ErrorResponse{Error: providerErr.Message})

	default:
		h.logger.Error("Unexpected error in exchange handler", logger.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		})
		h.sendJSON(w, requestID, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}

func (h *ExchangeHandler) sendJSON(w http.ResponseWriter, requestID string, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", logger.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		})
	}
}
