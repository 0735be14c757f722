package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/ccass-tracker/internal/errors"
	"github.com/ccass-tracker/internal/types"
)

// maxBodyBytes caps how much of a response body is read
const maxBodyBytes = 16 << 20

// HTTPDoer is the subset of *http.Client used by the CCASS client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestPacer delays outbound requests to respect a shared budget
type RequestPacer interface {
	Wait(ctx context.Context) error
}

// DayFetcher retrieves the raw shareholding page for one stock and day
type DayFetcher interface {
	FetchDay(ctx context.Context, stockCode string, date types.DateKey) (*types.RawDayResponse, error)
}

// CCASSClient posts search forms to the CCASS shareholding page
type CCASSClient struct {
	url       string
	userAgent string
	client    HTTPDoer
	pacer     RequestPacer

	mu    sync.RWMutex
	stats ClientStats
}

// CCASSClientConfig holds configuration for the CCASS client
type CCASSClientConfig struct {
	URL       string
	Timeout   time.Duration
	UserAgent string

	// HTTPClient overrides the default client (tests)
	HTTPClient HTTPDoer

	// Pacer is optional; nil sends requests immediately
	Pacer RequestPacer
}

// ClientStats tracks request outcomes against the source
type ClientStats struct {
	TotalRequests  int64         `json:"totalRequests"`
	SuccessfulReqs int64         `json:"successfulRequests"`
	FailedReqs     int64         `json:"failedRequests"`
	AverageLatency time.Duration `json:"averageLatency"`
	LastSuccess    time.Time     `json:"lastSuccess"`
	LastFailure    time.Time     `json:"lastFailure"`
	LastStatusCode int           `json:"lastStatusCode"`
}

// NewCCASSClient creates a new CCASS client
func NewCCASSClient(cfg *CCASSClientConfig) (*CCASSClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("ccass url cannot be empty")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &CCASSClient{
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
		client:    httpClient,
		pacer:     cfg.Pacer,
	}, nil
}

// FetchDay performs one POST for the stock and day. It never retries:
// a non-2xx status or transport failure is returned as a fetch error
// carrying the response body.
func (c *CCASSClient) FetchDay(ctx context.Context, stockCode string, date types.DateKey) (*types.RawDayResponse, error) {
	day, err := date.Time()
	if err != nil {
		return nil, apperrors.NewValidationError("date", err.Error())
	}

	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			c.recordFailure(0)
			return nil, apperrors.NewFetchError(date, 0, "", fmt.Errorf("waiting for request budget: %w", err))
		}
	}

	form := BuildSearchPayload(stockCode, &day)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build ccass request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure(0)
		return nil, apperrors.NewFetchError(date, 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.recordFailure(resp.StatusCode)
		return nil, apperrors.NewFetchError(date, resp.StatusCode, "", fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordFailure(resp.StatusCode)
		return nil, apperrors.NewFetchError(date, resp.StatusCode, string(body), nil)
	}

	c.recordSuccess(resp.StatusCode, time.Since(start))

	return &types.RawDayResponse{
		Date:       date,
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

func (c *CCASSClient) recordSuccess(status int, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.TotalRequests++
	c.stats.SuccessfulReqs++
	c.stats.LastSuccess = time.Now()
	c.stats.LastStatusCode = status

	// Running average over successful requests
	n := time.Duration(c.stats.SuccessfulReqs)
	c.stats.AverageLatency = c.stats.AverageLatency + (latency-c.stats.AverageLatency)/n
}

func (c *CCASSClient) recordFailure(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.TotalRequests++
	c.stats.FailedReqs++
	c.stats.LastFailure = time.Now()
	c.stats.LastStatusCode = status
}

// GetStats returns a snapshot of request statistics
func (c *CCASSClient) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
