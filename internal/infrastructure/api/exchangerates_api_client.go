package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-service/internal/domain/service"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/metrics"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/middleware"
)

const (
	// DefaultBaseURL is the exchangeratesapi.io endpoint
	DefaultBaseURL = "https://api.exchangeratesapi.io"
	historyPath    = "/history"

	defaultTimeout  = 10 * time.Second
	maxResponseSize = 4 << 20
)

// ClientOptions configures an ExchangeRatesAPIClient
type ClientOptions struct {
	BaseURL    string        `mapstructure:"base_url"`
	AccessKey  string        `mapstructure:"access_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	HTTPClient *http.Client  `mapstructure:"-"`
}

// ExchangeRatesAPIClient implements service.RatesProvider against an
// exchangeratesapi.io compatible API
type ExchangeRatesAPIClient struct {
	baseURL    string
	accessKey  string
	httpClient *http.Client
	logger     logger.Logger
}

// NewExchangeRatesAPIClient creates a new provider client
func NewExchangeRatesAPIClient(opts ClientOptions, log logger.Logger) *ExchangeRatesAPIClient {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &ExchangeRatesAPIClient{
		baseURL:    baseURL,
		accessKey:  opts.AccessKey,
		httpClient: httpClient,
		logger:     log,
	}
}

// latestResponse is the body of GET /{date}
type latestResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// historyResponse is the body of GET /history
type historyResponse struct {
	Base    string                        `json:"base"`
	StartAt string                        `json:"start_at"`
	EndAt   string                        `json:"end_at"`
	Rates   map[string]map[string]float64 `json:"rates"`
}

// FetchRate retrieves the rate reported by the provider for from/to on date
func (c *ExchangeRatesAPIClient) FetchRate(ctx context.Context, from, to string, date time.Time) (*service.ProviderRate, error) {
	query := url.Values{}
	query.Set("symbols", to)
	query.Set("base", from)

	var resp latestResponse
	if err := c.get(ctx, "rate", "/"+date.Format(entity.DateLayout), query, &resp); err != nil {
		return nil, err
	}

	rate, ok := resp.Rates[to]
	if !ok {
		return nil, &service.ProviderError{
			StatusCode: http.StatusOK,
			Message:    fmt.Sprintf("rate for %s missing from provider response", to),
		}
	}

	rateDate, err := entity.ParseDate(resp.Date)
	if err != nil {
		return nil, &service.ProviderError{
			StatusCode: http.StatusOK,
			Message:    fmt.Sprintf("invalid date %q in provider response", resp.Date),
		}
	}

	return &service.ProviderRate{Date: rateDate, Rate: rate}, nil
}

// FetchRange retrieves every rate the provider has for from/to between start and end
func (c *ExchangeRatesAPIClient) FetchRange(ctx context.Context, from, to string, start, end time.Time) (map[string]float64, error) {
	query := url.Values{}
	query.Set("start_at", start.Format(entity.DateLayout))
	query.Set("end_at", end.Format(entity.DateLayout))
	query.Set("symbols", to)
	query.Set("base", from)

	var resp historyResponse
	if err := c.get(ctx, "history", historyPath, query, &resp); err != nil {
		return nil, err
	}

	result := make(map[string]float64, len(resp.Rates))
	for day, rates := range resp.Rates {
		if rate, ok := rates[to]; ok {
			result[day] = rate
		}
	}

	return result, nil
}

// get performs one GET request and decodes a successful body into out
func (c *ExchangeRatesAPIClient) get(ctx context.Context, endpoint, path string, query url.Values, out interface{}) (err error) {
	startedAt := time.Now()
	defer func() {
		metrics.ObserveProviderCall(endpoint, startedAt, err)
	}()

	requestID := middleware.GetRequestID(ctx)
	logURL := c.baseURL + path + "?" + query.Encode()

	if c.accessKey != "" {
		query.Set("access_key", c.accessKey)
	}
	reqURL := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Calling rate provider", logger.Fields{
		"request_id": requestID,
		"endpoint":   endpoint,
		"url":        logURL,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Rate provider request failed", logger.Fields{
			"request_id": requestID,
			"endpoint":   endpoint,
			"error":      err.Error(),
		})
		return &service.ProviderError{Message: err.Error()}
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Error closing response body", logger.Fields{
				"request_id": requestID,
				"error":      closeErr.Error(),
			})
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &service.ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read response body: %v", err)}
	}

	c.logger.Debug("Rate provider responded", logger.Fields{
		"request_id":  requestID,
		"endpoint":    endpoint,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(startedAt).Milliseconds(),
	})

	// Some providers report errors with a success status
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if providerErr := errorPayload(payload.Error, resp.StatusCode); providerErr != nil {
			return providerErr
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &service.ProviderError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("provider returned status %d", resp.StatusCode),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &service.ProviderError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to decode provider response: %v", err),
		}
	}

	return nil
}

// errorPayload extracts the provider's message from an "error" member, which is
// either a plain string or an object carrying info/message/type.
func errorPayload(raw json.RawMessage, status int) *service.ProviderError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var message string
	if err := json.Unmarshal(raw, &message); err != nil {
		var detailed struct {
			Code    interface{} `json:"code"`
			Type    string      `json:"type"`
			Info    string      `json:"info"`
			Message string      `json:"message"`
		}
		if err := json.Unmarshal(raw, &detailed); err != nil {
			message = string(raw)
		} else {
			switch {
			case detailed.Info != "":
				message = detailed.Info
			case detailed.Message != "":
				message = detailed.Message
			default:
				message = detailed.Type
			}
		}
	}

	if message == "" {
		message = "provider reported an error"
	}

	return &service.ProviderError{StatusCode: status, Message: message}
}
