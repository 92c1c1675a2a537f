package runner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/terra-clan/exam-engine/internal/models"
)

// ErrRunInFlight is returned when a run is requested for a question that
// already has one outstanding. Callers surface it by disabling the action,
// not as a hard failure.
var ErrRunInFlight = errors.New("a run is already in flight for this question")

// Client dispatches code to the external execution sandbox. The sandbox is an
// untrusted, best-effort boundary: transport and protocol failures are folded
// into an ExecutionResult with Success=false instead of an error.
type Client interface {
	Run(ctx context.Context, questionID int, ws *models.Workspace, atts models.AttachmentSet) (*models.ExecutionResult, error)
}

// runRequest is the wire contract expected by the sandbox
type runRequest struct {
	Language    string            `json:"language"`
	Entrypoint  string            `json:"entrypoint"`
	Files       map[string]string `json:"files"`
	Attachments map[string]string `json:"attachments,omitempty"`
}

// runResponse is the wire contract returned by the sandbox
type runResponse struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// HTTPClient implements Client against the sandbox's HTTP endpoint
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client

	mu       sync.Mutex
	inflight map[int]bool
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

// NewHTTPClient creates a sandbox client
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		inflight: make(map[int]bool),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run executes the workspace's files remotely. Exactly one outstanding run per
// question id is permitted; a second request fails fast with ErrRunInFlight.
func (c *HTTPClient) Run(ctx context.Context, questionID int, ws *models.Workspace, atts models.AttachmentSet) (*models.ExecutionResult, error) {
	c.mu.Lock()
	if c.inflight[questionID] {
		c.mu.Unlock()
		return nil, ErrRunInFlight
	}
	c.inflight[questionID] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, questionID)
		c.mu.Unlock()
	}()

	req := runRequest{
		Language:    ws.Language,
		Entrypoint:  ws.ActiveFile,
		Files:       ws.Files,
		Attachments: EncodeAttachments(atts),
	}

	res := c.post(ctx, req)

	slog.Info("run completed",
		"question_id", questionID,
		"language", ws.Language,
		"success", res.Success,
	)

	return res, nil
}

// post performs the sandbox call and degrades every failure mode to a
// storable result
func (c *HTTPClient) post(ctx context.Context, req runRequest) *models.ExecutionResult {
	body, err := json.Marshal(req)
	if err != nil {
		return failedResult(fmt.Errorf("failed to marshal run request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return failedResult(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return failedResult(fmt.Errorf("sandbox request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failedResult(fmt.Errorf("failed to read sandbox response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return failedResult(fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, string(respBody)))
	}

	var out runResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return failedResult(fmt.Errorf("failed to decode sandbox response: %w", err))
	}

	return &models.ExecutionResult{
		Output:  out.Output,
		Error:   out.Error,
		Success: out.Success,
	}
}

func failedResult(err error) *models.ExecutionResult {
	return &models.ExecutionResult{
		Success: false,
		Error:   err.Error(),
	}
}

// EncodeAttachments converts raw attachment bytes to the base64 form the
// sandbox expects. Returns nil for an empty set so the field is omitted.
func EncodeAttachments(atts models.AttachmentSet) map[string]string {
	if len(atts) == 0 {
		return nil
	}
	out := make(map[string]string, len(atts))
	for name, data := range atts {
		out[name] = base64.StdEncoding.EncodeToString(data)
	}
	return out
}

// DecodeAttachment converts a base64 transport payload back to raw bytes
func DecodeAttachment(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	return data, nil
}
