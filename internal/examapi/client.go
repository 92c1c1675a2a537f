package examapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/terra-clan/exam-engine/internal/models"
)

// ErrTestNotFound is returned when the upstream exam API has no test with the
// requested id
var ErrTestNotFound = errors.New("test not found")

// Client is the boundary to the upstream exam API: test retrieval at session
// start and submission at session end. The auth token is opaque to the engine
// and passed through as a bearer credential.
type Client interface {
	FetchTest(ctx context.Context, testID int) (*models.Test, error)
	SubmitTest(ctx context.Context, payload models.SubmissionPayload) (*models.SubmissionRecord, error)
}

// HTTPClient implements Client over HTTP
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures the client
type Option func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = timeout
	}
}

// NewHTTPClient creates an exam API client
func NewHTTPClient(baseURL, token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchTest retrieves the test definition with its nested questions.
// Consumed once at session start.
func (c *HTTPClient) FetchTest(ctx context.Context, testID int) (*models.Test, error) {
	resp, status, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/tests/%d", testID), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrTestNotFound
	}
	if status >= 400 {
		return nil, fmt.Errorf("exam API returned HTTP %d: %s", status, string(resp))
	}

	var test models.Test
	if err := json.Unmarshal(resp, &test); err != nil {
		return nil, fmt.Errorf("failed to unmarshal test: %w", err)
	}

	return &test, nil
}

// SubmitTest posts the final answer bundle and returns the server-assigned
// submission record
func (c *HTTPClient) SubmitTest(ctx context.Context, payload models.SubmissionPayload) (*models.SubmissionRecord, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	resp, status, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/tests/%d/submit", payload.TestID), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("exam API returned HTTP %d: %s", status, string(resp))
	}

	var record models.SubmissionRecord
	if err := json.Unmarshal(resp, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission record: %w", err)
	}

	return &record, nil
}

// doRequest performs an HTTP request against the exam API
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, int, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}
