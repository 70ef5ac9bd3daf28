package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cart-autofill/internal/types"
)

// HTTPClient fetches shopping lists and other JSON documents with rate limiting and retries
type HTTPClient struct {
	client  *http.Client
	config  *types.Config
	logger  types.Logger
	limiter *time.Ticker
}

// NewHTTPClient creates a new HTTP client with the given configuration
func NewHTTPClient(config *types.Config, logger types.Logger) *HTTPClient {
	client := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	delay := config.RequestDelay
	if delay <= 0 {
		delay = time.Millisecond
	}

	return &HTTPClient{
		client:  client,
		config:  config,
		logger:  logger,
		limiter: time.NewTicker(delay),
	}
}

// Get performs a GET request with rate limiting and retries.
// Client errors other than 429 are not retried.
func (h *HTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		select {
		case <-h.limiter.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		h.logger.Debugf("Fetching %s (attempt %d/%d)", url, attempt+1, h.config.MaxRetries+1)

		body, retry, err := h.fetch(ctx, url)
		if err == nil {
			h.logger.Debugf("Retrieved %d bytes from %s", len(body), url)
			return body, nil
		}
		lastErr = err
		h.logger.Warnf("Request failed (attempt %d): %v", attempt+1, err)
		if !retry {
			break
		}
	}

	return nil, fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// GetJSON fetches url and decodes the JSON body into v
func (h *HTTPClient) GetJSON(ctx context.Context, url string, v interface{}) error {
	body, err := h.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}

func (h *HTTPClient) fetch(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", h.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, false, nil
}

// Close cleans up resources
func (h *HTTPClient) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}
