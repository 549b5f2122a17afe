package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
)

const (
	// CloudflareAPI is the Cloudflare v4 API base URL.
	CloudflareAPI = "https://api.cloudflare.com/client/v4"

	// BulkLimit is the largest number of records a single bulk write accepts.
	BulkLimit = 10000

	// publishRate is requests per second against the bulk endpoint.
	publishRate = 4.0
)

var ErrPublishRejected = errors.New("cloudflare rejected bulk write")

// APIError is a non-success answer from the bulk endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudflare bulk write: status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return ErrPublishRejected }

// Publisher writes datasets to a Workers KV namespace through the bulk API.
// It does not retry; a failed batch fails the publish.
type Publisher struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	baseURL     string
	accountID   string
	namespaceID string
	token       string
	batchSize   int
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) PublisherOption {
	return func(p *Publisher) { p.httpClient = hc }
}

// WithBaseURL points the publisher at another API root (for testing).
func WithBaseURL(url string) PublisherOption {
	return func(p *Publisher) { p.baseURL = url }
}

// WithBatchSize caps records per request. Values above BulkLimit are clamped.
func WithBatchSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 && n <= BulkLimit {
			p.batchSize = n
		}
	}
}

// NewPublisher returns a publisher for one account namespace.
func NewPublisher(accountID, namespaceID, token string, opts ...PublisherOption) (*Publisher, error) {
	if accountID == "" || namespaceID == "" {
		return nil, fmt.Errorf("cloudflare account id and namespace id are required")
	}
	if token == "" {
		return nil, fmt.Errorf("cloudflare api token is required")
	}
	p := &Publisher{
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		limiter:     rate.NewLimiter(rate.Limit(publishRate), 1),
		baseURL:     CloudflareAPI,
		accountID:   accountID,
		namespaceID: namespaceID,
		token:       token,
		batchSize:   BulkLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Publisher) endpoint() string {
	return fmt.Sprintf("%s/accounts/%s/storage/kv/namespaces/%s/bulk", p.baseURL, p.accountID, p.namespaceID)
}

// Publish sends entries in batches and returns how many were written.
func (p *Publisher) Publish(ctx context.Context, entries []api.Entry) (int, error) {
	records := ingest.EncodeRecords(entries)
	written := 0
	for start := 0; start < len(records); start += p.batchSize {
		end := min(start+p.batchSize, len(records))
		if err := p.put(ctx, records[start:end]); err != nil {
			return written, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		written = end
	}
	return written, nil
}

type bulkResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (p *Publisher) put(ctx context.Context, records []api.Record) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var result bulkResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !result.Success {
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}
