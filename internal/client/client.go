package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"maestro/internal/api"
)

// defaultTimeout bounds one HTTP call. It sits slightly above the
// control plane's 30 s command timeout so the server, not the client,
// decides when a lifecycle operation has timed out.
const defaultTimeout = 35 * time.Second

const apiPrefix = "/api/v1"

// Config carries the client settings.
type Config struct {
	// BaseURL is the API node's address, e.g. http://127.0.0.1:8090.
	BaseURL string

	// Timeout bounds each HTTP call. Zero means the default.
	Timeout time.Duration

	// HTTPClient overrides the underlying client when set; the Timeout
	// field is ignored then.
	HTTPClient *http.Client
}

// Client is a typed HTTP client for the control plane API, used by the
// reconciler and the CLI commands.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given API base URL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
	}, nil
}

// Health checks the API node's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
}

// CreateInstance declares a new instance.
func (c *Client) CreateInstance(ctx context.Context, req api.CreateInstanceRequest) (*api.Instance, error) {
	out := &api.Instance{}
	if err := c.doJSON(ctx, http.MethodPost, "/instances", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListInstances returns all instances.
func (c *Client) ListInstances(ctx context.Context) ([]*api.Instance, error) {
	var out []*api.Instance
	if err := c.do(ctx, http.MethodGet, "/instances", "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetInstance returns one instance's metadata.
func (c *Client) GetInstance(ctx context.Context, id string) (*api.Instance, error) {
	out := &api.Instance{}
	if err := c.do(ctx, http.MethodGet, instancePath(id), "", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteInstance tears the instance down and removes its metadata.
func (c *Client) DeleteInstance(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, instancePath(id), "", nil, nil)
}

// StartInstance starts the managed server and returns the resulting
// runtime info. A non-nil override is sent in place of the stored
// declared configuration. The call blocks until the worker replies or
// the server-side timeout elapses.
func (c *Client) StartInstance(ctx context.Context, id string, override *api.DeclaredConfiguration) (*api.RuntimeInfo, error) {
	out := &api.RuntimeInfo{}
	if override != nil {
		if err := c.doJSON(ctx, http.MethodPost, instancePath(id)+"/start", override, out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if err := c.do(ctx, http.MethodPost, instancePath(id)+"/start", "", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// StopInstance stops the managed server.
func (c *Client) StopInstance(ctx context.Context, id string) (*api.RuntimeInfo, error) {
	out := &api.RuntimeInfo{}
	if err := c.do(ctx, http.MethodPost, instancePath(id)+"/stop", "", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RestartInstance restarts the managed server with its stored declared
// configuration.
func (c *Client) RestartInstance(ctx context.Context, id string) (*api.RuntimeInfo, error) {
	out := &api.RuntimeInfo{}
	if err := c.do(ctx, http.MethodPost, instancePath(id)+"/restart", "", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConfiguration returns the declared configuration.
func (c *Client) GetConfiguration(ctx context.Context, id string) (*api.DeclaredConfiguration, error) {
	out := &api.DeclaredConfiguration{}
	if err := c.do(ctx, http.MethodGet, instancePath(id)+"/configuration", "", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PatchConfiguration applies an RFC 6902 patch document and returns the
// updated configuration.
func (c *Client) PatchConfiguration(ctx context.Context, id string, patch []byte) (*api.DeclaredConfiguration, error) {
	out := &api.DeclaredConfiguration{}
	if err := c.do(ctx, http.MethodPatch, instancePath(id)+"/configuration", "application/json-patch+json", patch, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRuntime returns the last observed runtime info.
func (c *Client) GetRuntime(ctx context.Context, id string) (*api.RuntimeInfo, error) {
	out := &api.RuntimeInfo{}
	if err := c.do(ctx, http.MethodGet, instancePath(id)+"/runtime", "", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PostStatusUpdate pushes an externally observed status.
func (c *Client) PostStatusUpdate(ctx context.Context, update api.StatusUpdate) error {
	return c.doJSON(ctx, http.MethodPost, "/status-updates", update, nil)
}

// GetRecentChanges queries the status ring for records at or after
// since, optionally filtered by resulting status.
func (c *Client) GetRecentChanges(ctx context.Context, since time.Time, statusFilter api.InstanceStatus) ([]api.StatusChangeRecord, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", since.Format(time.RFC3339Nano))
	}
	if statusFilter != "" {
		query.Set("status", string(statusFilter))
	}
	path := "/status-changes"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out []api.StatusChangeRecord
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func instancePath(id string) string {
	return "/instances/" + url.PathEscape(id)
}

// doJSON marshals the payload and performs the call.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, method, path, "application/json", body, out)
}

// do performs one HTTP call and decodes the response into out when
// non-nil. Error responses are decoded back into the api error kinds.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

// errorBody mirrors the server's JSON error shape.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// decodeError turns an error response back into the matching api error
// kind, keyed by status code.
func decodeError(resp *http.Response, path string) error {
	message := resp.Status
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		message = body.Error
		if body.Detail != "" {
			message += ": " + body.Detail
		}
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return &api.NotFoundError{Message: message}
	case http.StatusBadRequest:
		return &api.ValidationError{Reason: message}
	case http.StatusConflict:
		return &api.ConflictError{Reason: message}
	case http.StatusGatewayTimeout:
		return &api.TimeoutError{Message: message}
	case http.StatusBadGateway:
		return api.NewTransportError("http", path, fmt.Errorf("%s", message))
	default:
		return fmt.Errorf("%s: %s", resp.Status, message)
	}
}
