package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/terra-clan/exam-engine/internal/models"
)

// Client is a Go SDK for the exam-engine API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new exam-engine client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SessionDetail is a session view together with its test definition
type SessionDetail struct {
	Session models.SessionView `json:"session"`
	Test    models.Test        `json:"test"`
}

// CreateSession starts a new exam session for the given test
func (c *Client) CreateSession(ctx context.Context, testID int) (*models.SessionView, error) {
	body, err := json.Marshal(models.CreateSessionRequest{TestID: testID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var view models.SessionView
	if err := c.call(ctx, "POST", "/api/v1/sessions", bytes.NewReader(body), &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// GetSession retrieves a session and its test definition
func (c *Client) GetSession(ctx context.Context, id string) (*SessionDetail, error) {
	var detail SessionDetail
	if err := c.call(ctx, "GET", fmt.Sprintf("/api/v1/sessions/%s", id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// DeleteSession tears a session down
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.call(ctx, "DELETE", fmt.Sprintf("/api/v1/sessions/%s", id), nil, nil)
}

// NextQuestion advances the session to the following question
func (c *Client) NextQuestion(ctx context.Context, id string) (*models.SessionView, error) {
	var view models.SessionView
	if err := c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/next", id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// PreviousQuestion moves the session back to the preceding question
func (c *Client) PreviousQuestion(ctx context.Context, id string) (*models.SessionView, error) {
	var view models.SessionView
	if err := c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/previous", id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// RecordAnswer sets the answer for a multiple choice question
func (c *Client) RecordAnswer(ctx context.Context, id string, questionID int, answer string) error {
	body, err := json.Marshal(map[string]string{"answer": answer})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.call(ctx, "PUT", fmt.Sprintf("/api/v1/sessions/%s/answers/%d", id, questionID), bytes.NewReader(body), nil)
}

// GetWorkspace retrieves the workspace for a coding question
func (c *Client) GetWorkspace(ctx context.Context, id string, questionID int) (*models.Workspace, error) {
	var ws models.Workspace
	if err := c.call(ctx, "GET", fmt.Sprintf("/api/v1/sessions/%s/questions/%d/workspace", id, questionID), nil, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// AddFile creates a new empty file in a question's workspace and makes it active
func (c *Client) AddFile(ctx context.Context, id string, questionID int, name string) (*models.Workspace, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var ws models.Workspace
	if err := c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/questions/%d/workspace/files", id, questionID), bytes.NewReader(body), &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// DeleteFile removes a file from a question's workspace
func (c *Client) DeleteFile(ctx context.Context, id string, questionID int, name string) (*models.Workspace, error) {
	var ws models.Workspace
	if err := c.call(ctx, "DELETE", fmt.Sprintf("/api/v1/sessions/%s/questions/%d/workspace/files/%s", id, questionID, name), nil, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// RenameFile renames a file in a question's workspace
func (c *Client) RenameFile(ctx context.Context, id string, questionID int, name, newName string) (*models.Workspace, error) {
	body, err := json.Marshal(map[string]string{"new_name": newName})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var ws models.Workspace
	if err := c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/questions/%d/workspace/files/%s/rename", id, questionID, name), bytes.NewReader(body), &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// UpdateFileContent replaces a file's content
func (c *Client) UpdateFileContent(ctx context.Context, id string, questionID int, name, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.call(ctx, "PUT", fmt.Sprintf("/api/v1/sessions/%s/questions/%d/workspace/files/%s/content", id, questionID, name), bytes.NewReader(body), nil)
}

// SetActiveFile changes which file is active in a question's workspace
func (c *Client) SetActiveFile(ctx context.Context, id string, questionID int, name string) error {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.call(ctx, "PUT", fmt.Sprintf("/api/v1/sessions/%s/questions/%d/workspace/active-file", id, questionID), bytes.NewReader(body), nil)
}

// SetLanguage changes a workspace's language
func (c *Client) SetLanguage(ctx context.Context, id string, questionID int, language string) error {
	body, err := json.Marshal(map[string]string{"language": language})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.call(ctx, "PUT", fmt.Sprintf("/api/v1/sessions/%s/questions/%d/workspace/language", id, questionID), bytes.NewReader(body), nil)
}

// Run dispatches a question's workspace to the sandbox and returns the result
func (c *Client) Run(ctx context.Context, id string, questionID int) (*models.ExecutionResult, error) {
	var res models.ExecutionResult
	if err := c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/questions/%d/run", id, questionID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LastRunResult retrieves the most recent execution result for a question
func (c *Client) LastRunResult(ctx context.Context, id string, questionID int) (*models.ExecutionResult, error) {
	var res models.ExecutionResult
	if err := c.call(ctx, "GET", fmt.Sprintf("/api/v1/sessions/%s/questions/%d/result", id, questionID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Submit finalizes the session and forwards answers to the exam platform
func (c *Client) Submit(ctx context.Context, id string) (*models.SessionView, error) {
	var view models.SessionView
	if err := c.call(ctx, "POST", fmt.Sprintf("/api/v1/sessions/%s/submit", id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ListLanguages retrieves the supported language catalog
func (c *Client) ListLanguages(ctx context.Context) ([]*models.Language, error) {
	var data struct {
		Languages []*models.Language `json:"languages"`
		Total     int                `json:"total"`
	}
	if err := c.call(ctx, "GET", "/api/v1/languages", nil, &data); err != nil {
		return nil, err
	}
	return data.Languages, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, "GET", "/health", nil)
	return err
}

// call performs a request and unwraps the API envelope into out, which may
// be nil when the caller only cares about success
func (c *Client) call(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		if result.Error != nil {
			return fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
		}
		return fmt.Errorf("API error: request failed")
	}

	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}

	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
			return nil, fmt.Errorf("API error (%d): %s - %s", resp.StatusCode, errResp.Error.Code, errResp.Error.Message)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
