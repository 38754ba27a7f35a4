// Package client implements a plain REST A2A client (spec.md §6), keeping
// the teacher's Config/DefaultConfig shape but replacing its
// JSON-RPC envelope with direct calls against this system's REST routes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/synapse-a2a/synapse/types"
)

// A2AClient is the interface a caller uses to talk to a synapse-agentd
// instance, local or remote.
type A2AClient interface {
	GetAgentCard(ctx context.Context) (*types.AgentCard, error)
	GetStatus(ctx context.Context) (*StatusResult, error)

	CreateTask(ctx context.Context, msg types.Message, metadata map[string]any) (*types.Task, error)
	SendTask(ctx context.Context, msg types.Message, metadata map[string]any) (*types.Task, error)
	SendTaskPriority(ctx context.Context, msg types.Message, metadata map[string]any, priority int) (*types.Task, error)
	GetTask(ctx context.Context, idOrPrefix string) (*types.Task, error)
	CancelTask(ctx context.Context, idOrPrefix string) (*types.Task, error)
	ListTasks(ctx context.Context, state string) ([]types.Task, int, error)

	SetTimeout(timeout time.Duration)
	SetHTTPClient(httpClient *http.Client)
	GetBaseURL() string
}

var _ A2AClient = (*Client)(nil)

// StatusResult mirrors server.StatusResponse without importing the server
// package (which would create an import cycle).
type StatusResult struct {
	Status  string `json:"status"`
	Context string `json:"context"`
}

// Config holds construction options for a Client.
type Config struct {
	BaseURL    string
	UDSPath    string // when set, dial this Unix socket instead of TCP
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
	Headers    map[string]string
	Logger     *zap.Logger
}

// DefaultConfig returns sane defaults for a Client talking to baseURL.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:   baseURL,
		Timeout:   30 * time.Second,
		UserAgent: "synapse-a2a-client/1.0",
		Headers:   make(map[string]string),
		Logger:    zap.NewNop(),
	}
}

// Client is the default A2AClient implementation.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
	headers    map[string]string
	logger     *zap.Logger
}

// New builds a Client from cfg.
func New(cfg *Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
		if cfg.UDSPath != "" {
			httpClient.Transport = &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", cfg.UDSPath)
				},
			}
		}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		userAgent:  cfg.UserAgent,
		headers:    cfg.Headers,
		logger:     cfg.Logger,
	}
}

// SetTimeout updates the client's request timeout.
func (c *Client) SetTimeout(timeout time.Duration) { c.httpClient.Timeout = timeout }

// SetHTTPClient replaces the underlying *http.Client.
func (c *Client) SetHTTPClient(httpClient *http.Client) { c.httpClient = httpClient }

// GetBaseURL returns the configured base URL.
func (c *Client) GetBaseURL() string { return c.baseURL }

type createTaskBody struct {
	Message  types.Message  `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type taskListResult struct {
	Tasks []types.Task `json:"tasks"`
	Total int          `json:"total"`
}

// GetAgentCard fetches GET /.well-known/agent.json.
func (c *Client) GetAgentCard(ctx context.Context) (*types.AgentCard, error) {
	var card types.AgentCard
	if err := c.do(ctx, http.MethodGet, "/.well-known/agent.json", nil, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// GetStatus fetches GET /status.
func (c *Client) GetStatus(ctx context.Context) (*StatusResult, error) {
	var status StatusResult
	if err := c.do(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CreateTask calls POST /tasks/create.
func (c *Client) CreateTask(ctx context.Context, msg types.Message, metadata map[string]any) (*types.Task, error) {
	return c.postTask(ctx, "/tasks/create", msg, metadata)
}

// SendTask calls POST /tasks/send.
func (c *Client) SendTask(ctx context.Context, msg types.Message, metadata map[string]any) (*types.Task, error) {
	return c.postTask(ctx, "/tasks/send", msg, metadata)
}

// SendTaskPriority calls POST /tasks/send-priority?priority=N.
func (c *Client) SendTaskPriority(ctx context.Context, msg types.Message, metadata map[string]any, priority int) (*types.Task, error) {
	return c.postTask(ctx, fmt.Sprintf("/tasks/send-priority?priority=%d", priority), msg, metadata)
}

func (c *Client) postTask(ctx context.Context, path string, msg types.Message, metadata map[string]any) (*types.Task, error) {
	var task types.Task
	body := createTaskBody{Message: msg, Metadata: metadata}
	if err := c.do(ctx, http.MethodPost, path, body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask calls GET /tasks/{idOrPrefix}.
func (c *Client) GetTask(ctx context.Context, idOrPrefix string) (*types.Task, error) {
	var task types.Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+idOrPrefix, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask calls POST /tasks/{idOrPrefix}/cancel.
func (c *Client) CancelTask(ctx context.Context, idOrPrefix string) (*types.Task, error) {
	var task types.Task
	if err := c.do(ctx, http.MethodPost, "/tasks/"+idOrPrefix+"/cancel", nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks calls GET /tasks?state=.
func (c *Client) ListTasks(ctx context.Context, state string) ([]types.Task, int, error) {
	path := "/tasks"
	if state != "" {
		path += "?state=" + state
	}
	var result taskListResult
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, 0, err
	}
	return result.Tasks, result.Total, nil
}

// APIError reports a non-2xx REST response (spec.md §7).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("synapse api error: status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody any) error {
	var reader io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-Synapse-Api-Key", c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if respBody == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, respBody); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
