// Package simtom provides the client for the simtom synthetic transaction
// streaming API.
package simtom

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/flit-data/flitpipe/internal/backoff"
	"github.com/flit-data/flitpipe/internal/logger"
	"github.com/flit-data/flitpipe/internal/logger/tag"
)

const (
	defaultBaseURL        = "https://simtom-production.up.railway.app"
	defaultDataset        = "bnpl"
	defaultTimeout        = 30 * time.Second
	defaultMaxRetries     = 3
	defaultRetryInterval  = 1 * time.Second
	defaultRateLimitDelay = 100 * time.Millisecond

	maxDailyVolume = 50000
	minRequestYear = 2020

	retryMaxInterval = 5 * time.Second
)

// Record is one raw transaction document as returned by the API. All fields
// are schema-on-read; required fields are validated during transform.
type Record map[string]any

// Client calls the simtom streaming API with rate limiting and retries.
type Client struct {
	client         *resty.Client
	baseURL        string
	dataset        string
	maxRetries     int
	retryInterval  time.Duration
	rateLimitDelay time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithDataset selects the dataset path segment of the stream endpoint.
func WithDataset(dataset string) Option {
	return func(c *Client) {
		c.dataset = dataset
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.SetTimeout(timeout)
	}
}

// WithMaxRetries sets the maximum number of retry attempts for transient
// failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryInterval sets the initial backoff interval.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		c.retryInterval = d
	}
}

// WithRateLimitDelay sets the minimum delay between successive requests.
func WithRateLimitDelay(d time.Duration) Option {
	return func(c *Client) {
		c.rateLimitDelay = d
	}
}

// New creates a new simtom API client.
func New(opts ...Option) *Client {
	c := &Client{
		client: resty.New().
			SetTimeout(defaultTimeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "flitpipe/1.0"),
		baseURL:        defaultBaseURL,
		dataset:        defaultDataset,
		maxRetries:     defaultMaxRetries,
		retryInterval:  defaultRetryInterval,
		rateLimitDelay: defaultRateLimitDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// streamRequest is the request body of POST /stream/{dataset}.
type streamRequest struct {
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	BaseDailyVolume int    `json:"base_daily_volume,omitempty"`
	Seed            int64  `json:"seed,omitempty"`
	// Legacy fixed-volume fields, used when realistic volumes are disabled.
	TotalRecords  int `json:"total_records,omitempty"`
	RatePerSecond int `json:"rate_per_second,omitempty"`
}

// FetchRange fetches transaction records for an inclusive date range with
// realistic daily volume patterns. The volume is the average daily volume;
// actual per-day counts vary by weekday, season and holidays on the server
// side. The same seed always produces the same dataset.
func (c *Client) FetchRange(ctx context.Context, start, end time.Time, volume int, seed int64) ([]Record, error) {
	if err := validateDateRange(start, end); err != nil {
		return nil, err
	}
	if volume <= 0 || volume > maxDailyVolume {
		return nil, validationErrorf("base daily volume must be between 1 and %d, got %d", maxDailyVolume, volume)
	}

	req := streamRequest{
		StartDate:       start.Format("2006-01-02"),
		EndDate:         end.Format("2006-01-02"),
		BaseDailyVolume: volume,
		Seed:            seed,
	}
	return c.stream(ctx, req)
}

// FetchDay fetches a single day's realistic batch.
func (c *Client) FetchDay(ctx context.Context, date time.Time, volume int, seed int64) ([]Record, error) {
	return c.FetchRange(ctx, date, date, volume, seed)
}

// TestConnection issues a minimal request to verify the API is reachable.
func (c *Client) TestConnection(ctx context.Context) bool {
	probe := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records, err := c.FetchRange(ctx, probe, probe, 1, 1)
	if err != nil {
		logger.Warn(ctx, "API connection test failed", tag.Error(err))
		return false
	}
	return len(records) > 0
}

func (c *Client) stream(ctx context.Context, req streamRequest) ([]Record, error) {
	if err := c.enforceRateLimit(ctx); err != nil {
		return nil, err
	}

	url := c.baseURL + "/stream/" + c.dataset
	logger.Info(ctx, "Requesting transaction data",
		tag.URL(url),
		tag.String("start", req.StartDate),
		tag.String("end", req.EndDate))

	var body []byte
	err := backoff.Retry(ctx, func(ctx context.Context) error {
		resp, err := c.client.R().SetContext(ctx).SetBody(req).Post(url)
		if err != nil {
			return err
		}
		if err := classifyResponse(resp); err != nil {
			return err
		}
		body = resp.Body()
		return nil
	}, c.retryPolicy(), isRetriableError)
	if err != nil {
		return nil, &APIError{Message: "API request failed", Err: err}
	}

	records := parseStreamBody(ctx, body)
	if len(records) == 0 {
		return nil, &APIError{Message: "no valid records received from API"}
	}

	logger.Info(ctx, "Retrieved transaction records", tag.Records(len(records)))
	return records, nil
}

func (c *Client) retryPolicy() backoff.RetryPolicy {
	base := backoff.NewExponentialBackoffPolicy(c.retryInterval)
	base.MaxInterval = retryMaxInterval
	base.MaxRetries = c.maxRetries
	return backoff.WithJitter(base, backoff.FullJitter)
}

// enforceRateLimit blocks until at least rateLimitDelay has passed since the
// previous request. This is a minimum inter-request delay, not a token
// bucket.
func (c *Client) enforceRateLimit(ctx context.Context) error {
	c.mu.Lock()
	wait := c.rateLimitDelay - time.Since(c.lastRequest)
	c.lastRequest = time.Now().Add(max(wait, 0))
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseStreamBody parses either an SSE-framed body ("data: {...}" per line)
// or a plain JSON array/object. Unparseable SSE lines are skipped with a
// warning; the caller treats an empty result as an error.
func parseStreamBody(ctx context.Context, body []byte) []Record {
	text := strings.TrimSpace(string(body))

	if strings.Contains(text, "data: ") {
		var records []Record
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var record Record
			if err := json.Unmarshal([]byte(line[len("data: "):]), &record); err != nil {
				logger.Warn(ctx, "Skipping invalid JSON line", tag.Error(err))
				continue
			}
			records = append(records, record)
		}
		return records
	}

	var records []Record
	if err := json.Unmarshal([]byte(text), &records); err == nil {
		return records
	}
	var record Record
	if err := json.Unmarshal([]byte(text), &record); err == nil {
		return []Record{record}
	}
	return nil
}

func validateDateRange(start, end time.Time) error {
	if end.Before(start) {
		return validationErrorf("end date %s cannot be before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	if start.Year() < minRequestYear || end.Year() > time.Now().Year()+1 {
		return validationErrorf("date range %s..%s appears unrealistic",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return nil
}
