package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const latestPath = "/latest"

// Options parameterise the exchange-rate API client.
type Options struct {
	BaseURL      string
	BaseCurrency string
	Timeout      time.Duration
	UserAgent    string
}

// Client fetches quotes from a JSON exchange-rate API.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a rate-source client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "rate_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// FetchRates retrieves the latest rates for the requested codes, quoted
// against the configured base currency.
func (c *Client) FetchRates(ctx context.Context, codes []string) (map[string]decimal.Decimal, error) {
	if c.baseURL == "" {
		return nil, errors.New("rate source base url not configured")
	}
	if len(codes) == 0 {
		return nil, errors.New("no currency codes requested")
	}

	base := c.opts.BaseCurrency
	if base == "" {
		base = "USD"
	}

	query := url.Values{}
	query.Set("base", base)
	query.Set("symbols", strings.Join(codes, ","))
	endpoint := c.baseURL + latestPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "ratewatcher/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payloadBytes)
	}

	var payload latestResponse
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, err
	}
	if len(payload.Rates) == 0 {
		return nil, errors.New("rate source returned no rates")
	}

	rates := make(map[string]decimal.Decimal, len(codes))
	for _, code := range codes {
		raw, present := payload.Rates[code]
		if !present {
			c.logger.Warn().Str("code", code).Msg("rate source omitted requested code")
			continue
		}
		rate, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, fmt.Errorf("parse rate for %s: %w", code, err)
		}
		if rate.Sign() <= 0 {
			return nil, fmt.Errorf("rate source returned non-positive rate for %s", code)
		}
		rates[code] = rate
	}
	if len(rates) == 0 {
		return nil, errors.New("rate source omitted every requested code")
	}

	return rates, nil
}

type latestResponse struct {
	Base  string                 `json:"base"`
	Rates map[string]json.Number `json:"rates"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("rate source error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("rate source error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("rate source error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("rate source error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("rate source error (%d)", status)
}

var _ RateSource = (*Client)(nil)
