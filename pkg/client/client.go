// Package client is the official Go SDK for WallCue.
//
// # Quick start
//
//	c := client.New("http://localhost:8080")
//
//	// Queue a message
//	msg, err := c.Add(ctx, "ORDER 42 READY", client.WithTableNumber("42"))
//
//	// Push it to the wall
//	msg, err = c.Dispatch(ctx, msg.ID)
//
//	// Take it down
//	err = c.Cancel(ctx, msg.ID)
//
// # Error handling
//
// All methods return an *APIError when the server responds with a non-2xx
// status code. Check errors.As(err, &client.APIError{}) to inspect the HTTP
// status and server message.
//
// # Connection reuse
//
// Client is safe for concurrent use. It shares a single http.Client internally
// so connections are reused across goroutines.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rcalder/wallcue/internal/types"
)

// Message mirrors the server's message representation.
type Message = types.Message

// Settings mirrors the server's OSC configuration.
type Settings = types.OSCSettings

// ─── Error type ───────────────────────────────────────────────────────────────

// APIError is returned when the WallCue server responds with a non-2xx status.
type APIError struct {
	StatusCode int    // HTTP status code
	Message    string // "error" field from the JSON response body
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wallcue: server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404 from the server.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// IsUnavailable reports whether the error is a 503, meaning the device has
// no connection to the video engine.
func IsUnavailable(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusServiceUnavailable
}

// ─── Client options ───────────────────────────────────────────────────────────

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent in every request as the X-Api-Key header.
// Required when the server has auth.enabled = true.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default http.Client.
// Use this to configure TLS, proxies, or request tracing.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
// The default is 30 seconds.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// ─── Client ───────────────────────────────────────────────────────────────────

// Client is the WallCue API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a new Client that connects to the WallCue device at baseURL.
//
//	c := client.New("http://localhost:8080")
//	c := client.New("http://wall.example.com", client.WithAPIKey("secret"))
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ─── Add options ──────────────────────────────────────────────────────────────

// AddOption configures a single Add call.
type AddOption func(*addPayload)

// WithTableNumber labels the message with a table number.
func WithTableNumber(n string) AddOption {
	return func(p *addPayload) {
		p.LabelType = string(types.LabelTableNumber)
		p.Identifier = n
	}
}

// WithCustomerName labels the message with a customer name.
func WithCustomerName(name string) AddOption {
	return func(p *addPayload) {
		p.LabelType = string(types.LabelCustomerName)
		p.Identifier = name
	}
}

// WithCustomLabel attaches a free-form label to the message.
func WithCustomLabel(label string) AddOption {
	return func(p *addPayload) {
		p.LabelType = string(types.LabelCustom)
		p.CustomLabel = label
	}
}

// ─── Messages ─────────────────────────────────────────────────────────────────

// Add queues a message. The server upper-cases the text and assigns the ID.
func (c *Client) Add(ctx context.Context, text string, opts ...AddOption) (*Message, error) {
	payload := addPayload{Text: text}
	for _, o := range opts {
		o(&payload)
	}
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/messages", payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// List returns every message in queue order.
func (c *Client) List(ctx context.Context) ([]*Message, error) {
	var resp struct {
		Messages []*Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Get fetches one message by ID.
func (c *Client) Get(ctx context.Context, id string) (*Message, error) {
	var msg Message
	if err := c.do(ctx, http.MethodGet, "/messages/"+id, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Dispatch pushes a queued message to the wall and returns its new state.
func (c *Client) Dispatch(ctx context.Context, id string) (*Message, error) {
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/messages/"+id+"/dispatch", nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Edit updates a message's fields. Nil fields in req are left unchanged on
// the server.
func (c *Client) Edit(ctx context.Context, id string, req EditRequest) (*Message, error) {
	var msg Message
	if err := c.do(ctx, http.MethodPatch, "/messages/"+id, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Cancel withdraws a message. A queued message is removed; a message
// currently on the wall is taken down and re-queued.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+id, nil, nil)
}

// Clear empties the queue and blanks the wall.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/clear", nil, nil)
}

// ─── Auto-cycle ───────────────────────────────────────────────────────────────

// StartAutoCycle begins rotating queued messages onto the wall every
// interval. A zero interval uses the server default.
func (c *Client) StartAutoCycle(ctx context.Context, interval time.Duration) error {
	var body any
	if interval > 0 {
		body = map[string]string{"interval": interval.String()}
	}
	return c.do(ctx, http.MethodPost, "/autocycle/start", body, nil)
}

// StopAutoCycle halts the rotation, leaving the current message up.
func (c *Client) StopAutoCycle(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/autocycle/stop", nil, nil)
}

// ─── Settings and sync ────────────────────────────────────────────────────────

// Settings fetches the device's OSC configuration, including the derived
// clear clip.
func (c *Client) Settings(ctx context.Context) (*Settings, error) {
	var s Settings
	if err := c.do(ctx, http.MethodGet, "/settings", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSettings replaces the device's OSC configuration. The clear clip is
// always derived server-side; any submitted value is ignored.
func (c *Client) UpdateSettings(ctx context.Context, s Settings) (*Settings, error) {
	var out Settings
	if err := c.do(ctx, http.MethodPut, "/settings", s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ForceSync broadcasts a full queue snapshot to peer devices.
func (c *Client) ForceSync(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/sync", nil, nil)
}

// Health returns the device's health summary.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var h HealthInfo
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ─── Wire types ───────────────────────────────────────────────────────────────

type addPayload struct {
	Text        string `json:"text"`
	Identifier  string `json:"identifier,omitempty"`
	LabelType   string `json:"label_type,omitempty"`
	CustomLabel string `json:"custom_label,omitempty"`
}

// EditRequest carries partial updates for Edit. Nil fields are unchanged.
type EditRequest struct {
	Text        *string `json:"text,omitempty"`
	Identifier  *string `json:"identifier,omitempty"`
	LabelType   *string `json:"label_type,omitempty"`
	CustomLabel *string `json:"custom_label,omitempty"`
}

// HealthInfo is the device health summary.
type HealthInfo struct {
	Status        string   `json:"status"`
	DeviceID      string   `json:"device_id"`
	Queued        int      `json:"queued"`
	WallConnected bool     `json:"wall_connected"`
	Peers         []string `json:"peers"`
	Uptime        string   `json:"uptime"`
	UptimeMs      int64    `json:"uptime_ms"`
	Version       string   `json:"version"`
}

// ─── HTTP transport ───────────────────────────────────────────────────────────

// do performs a single HTTP request.
// body is encoded as JSON when non-nil, resp is decoded from JSON when non-nil.
// A 204 No Content response is treated as success with no body.
func (c *Client) do(ctx context.Context, method, path string, body, resp any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("wallcue: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("wallcue: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("wallcue: request %s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	// Success without body
	if httpResp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("wallcue: read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = http.StatusText(httpResp.StatusCode)
		}
		return &APIError{StatusCode: httpResp.StatusCode, Message: msg}
	}

	if resp != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, resp); err != nil {
			return fmt.Errorf("wallcue: decode response: %w", err)
		}
	}
	return nil
}
