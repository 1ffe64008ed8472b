package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
)

const defaultTimeout = 30 * time.Second

// HTTPClientConfig is the configuration for the HTTP data provider client.
type HTTPClientConfig struct {
	// BaseURL of the data API, e.g. "https://data.example.com/v1".
	BaseURL string
	// APIKey is sent as a bearer token when set.
	APIKey string
	Client *http.Client
	Logger log.Logger
}

func (c *HTTPClientConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: defaultTimeout}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "provider.HTTPClient"})
	return nil
}

// HTTPClient is a Provider over a JSON HTTP data API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  log.Logger
}

// NewHTTPClient creates a new HTTP data provider client.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}, nil
}

type symbolPayload struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
}

// Symbols returns the full listed-equity universe of the source.
func (c *HTTPClient) Symbols(ctx context.Context) ([]model.Symbol, error) {
	var payload []symbolPayload
	if err := c.get(ctx, "/symbols", nil, &payload); err != nil {
		return nil, fmt.Errorf("could not fetch symbols: %w", err)
	}

	symbols := make([]model.Symbol, 0, len(payload))
	for _, p := range payload {
		symbols = append(symbols, model.Symbol{Code: p.Code, Name: p.Name, Exchange: p.Exchange})
	}

	return symbols, nil
}

type barPayload struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// DailyBars returns the daily OHLCV bars of a symbol since the given date.
func (c *HTTPClient) DailyBars(ctx context.Context, code, since string) ([]model.PriceBar, error) {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}

	var payload []barPayload
	if err := c.get(ctx, "/daily/"+url.PathEscape(code), q, &payload); err != nil {
		return nil, fmt.Errorf("could not fetch daily bars for %s: %w", code, err)
	}

	bars := make([]model.PriceBar, 0, len(payload))
	for _, p := range payload {
		bars = append(bars, model.PriceBar{
			Code: code, Date: p.Date,
			Open: p.Open, High: p.High, Low: p.Low, Close: p.Close,
			Volume: p.Volume,
		})
	}

	return bars, nil
}

// Industry returns the industry classification of a symbol.
func (c *HTTPClient) Industry(ctx context.Context, code string) (string, error) {
	var payload struct {
		Industry string `json:"industry"`
	}
	if err := c.get(ctx, "/industry/"+url.PathEscape(code), nil, &payload); err != nil {
		return "", fmt.Errorf("could not fetch industry for %s: %w", code, err)
	}

	return payload.Industry, nil
}

// FinancialReport returns one periodic report of a symbol.
func (c *HTTPClient) FinancialReport(ctx context.Context, code, period string) (*model.FinancialReport, error) {
	q := url.Values{}
	q.Set("period", period)

	var payload struct {
		Revenue   float64 `json:"revenue"`
		NetIncome float64 `json:"net_income"`
		EPS       float64 `json:"eps"`
	}
	if err := c.get(ctx, "/reports/"+url.PathEscape(code), q, &payload); err != nil {
		return nil, fmt.Errorf("could not fetch report for %s: %w", code, err)
	}

	return &model.FinancialReport{
		Code: code, Period: period,
		Revenue: payload.Revenue, NetIncome: payload.NetIncome, EPS: payload.EPS,
	}, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}

	return nil
}
