// Package pricing is the HTTP client for the external pricing oracle.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

const (
	estimatePath = "/v1/pricing/estimate"
	offersPath   = "/v1/pricing/offers"
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Retries    int
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

// StatusError is a non-2xx answer from the oracle. It is never retried.
type StatusError struct {
	StatusCode int
	Body       string
	msg        string
}

func (e *StatusError) Error() string { return e.msg }

type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	retries int
	cache   *cache
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("pricing base url required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  client,
		timeout: timeout,
		retries: retries,
	}
	if cfg.CacheTTL > 0 {
		c.cache = newCache(cfg.CacheTTL)
	}
	return c, nil
}

type estimateRequest struct {
	PlanID     string             `json:"plan_id"`
	BatchID    string             `json:"batch_id"`
	ScenarioID string             `json:"scenario_id"`
	Request    models.PlanRequest `json:"request"`
	Providers  []models.Provider  `json:"providers"`
	Regions    []string           `json:"regions"`
	SKUs       []string           `json:"skus"`
}

type estimateResponse struct {
	PlanID  string                            `json:"plan_id"`
	Results []models.ProviderSimulationResult `json:"results"`
}

type offersResponse struct {
	Offers []models.ProviderSkuOffer `json:"offers"`
}

// Estimate prices one scenario. Returned results carry the caller's identifiers.
func (c *Client) Estimate(ctx context.Context, planID, batchID string, scenario models.SimulationScenario, request models.PlanRequest) ([]models.ProviderSimulationResult, error) {
	payload := estimateRequest{
		PlanID:     planID,
		BatchID:    batchID,
		ScenarioID: scenario.ScenarioID,
		Request:    request,
		Providers:  []models.Provider{scenario.Provider},
		Regions:    []string{scenario.Region},
		SKUs:       []string{scenario.SKU},
	}

	var key string
	if c.cache != nil {
		k, err := cacheKey(payload)
		if err != nil {
			return nil, err
		}
		key = k
		if cached, ok := c.cache.get(key); ok {
			return stamp(cached, planID, batchID, scenario.ScenarioID), nil
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("pricing marshal request: %w", err)
	}
	var resp estimateResponse
	err = c.do(ctx, http.MethodPost, estimatePath, body, &resp, func(status int, text string) string {
		return fmt.Sprintf("Pricing service error (%s/%s/%s): %d %s", scenario.Provider, scenario.Region, scenario.SKU, status, text)
	})
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.put(key, resp.Results)
	}
	return stamp(resp.Results, planID, batchID, scenario.ScenarioID), nil
}

// Offers lists the oracle's GPU catalog.
func (c *Client) Offers(ctx context.Context) ([]models.ProviderSkuOffer, error) {
	var resp offersResponse
	err := c.do(ctx, http.MethodGet, offersPath, nil, &resp, func(status int, text string) string {
		return fmt.Sprintf("Pricing service offers endpoint failed: %d %s", status, text)
	})
	if err != nil {
		return nil, err
	}
	if resp.Offers == nil {
		resp.Offers = []models.ProviderSkuOffer{}
	}
	return resp.Offers, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}, statusMsg func(int, string) string) error {
	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := c.attempt(ctx, method, path, body, out, statusMsg)
		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return err
		}
		lastErr = err
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}
	return fmt.Errorf("pricing %s %s failed: %w", method, path, lastErr)
}

func (c *Client) attempt(ctx context.Context, method, path string, body []byte, out interface{}, statusMsg func(int, string) string) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("pricing build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(text), msg: statusMsg(resp.StatusCode, string(text))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pricing decode response: %w", err)
	}
	return nil
}

func stamp(results []models.ProviderSimulationResult, planID, batchID, scenarioID string) []models.ProviderSimulationResult {
	out := make([]models.ProviderSimulationResult, len(results))
	for i, r := range results {
		r.PlanID = planID
		r.BatchID = batchID
		r.ScenarioID = scenarioID
		out[i] = r
	}
	return out
}
