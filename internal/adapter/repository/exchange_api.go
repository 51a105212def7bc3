package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"savings-rate-service/internal/domain/model"
	"savings-rate-service/internal/domain/ports"
	"savings-rate-service/pkg/logger"
)

const userAgent = "SavingsPlanner/1.0"

var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrInvalidResponse  = errors.New("invalid API response format")
)

// ExchangeAPI reads USD-based conversion rates from exchangerate-api.com (v6).
// It sets no timeout of its own; callers bound it through ctx.
type ExchangeAPI struct {
	baseURL    string
	apiKey     string
	pair       model.CurrencyPair
	httpClient *http.Client
	log        *logger.Logger
}

var _ ports.RateSource = (*ExchangeAPI)(nil)

type exchangerateAPIResponse struct {
	Result          string                     `json:"result"`
	BaseCode        string                     `json:"base_code"`
	ErrorType       string                     `json:"error-type,omitempty"`
	ConversionRates map[string]json.RawMessage `json:"conversion_rates"`
}

func NewExchangeAPI(baseURL, apiKey string, client *http.Client, log *logger.Logger) *ExchangeAPI {
	if client == nil {
		client = &http.Client{}
	}
	return &ExchangeAPI{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		pair:       model.TrackedPair,
		httpClient: client,
		log:        log,
	}
}

func (e *ExchangeAPI) endpoint() string {
	return fmt.Sprintf("%s/v6/%s/latest/%s", e.baseURL, url.PathEscape(e.apiKey), e.pair.BaseCurrency)
}

func (e *ExchangeAPI) FetchRate(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: API returned %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var apiResp exchangerateAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return 0, fmt.Errorf("%w: failed to decode response: %v", ErrInvalidResponse, err)
	}

	if apiResp.Result != "" && apiResp.Result != "success" {
		return 0, fmt.Errorf("%w: API reported %s (%s)", ErrInvalidResponse, apiResp.Result, apiResp.ErrorType)
	}

	return e.extractRate(apiResp.ConversionRates)
}

func (e *ExchangeAPI) extractRate(rates map[string]json.RawMessage) (float64, error) {
	target := e.pair.TargetCurrency.String()

	raw, exists := rates[target]
	if !exists {
		return 0, fmt.Errorf("%w: rate not found for currency: %s", ErrInvalidResponse, target)
	}

	var rate float64
	if err := json.Unmarshal(raw, &rate); err != nil {
		return 0, fmt.Errorf("%w: non-numeric rate for %s: %s", ErrInvalidResponse, target, raw)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("%w: non-positive rate for %s: %v", ErrInvalidResponse, target, rate)
	}

	e.log.Debug("Remote rate received", "pair", e.pair.String(), "rate", rate)
	return rate, nil
}
