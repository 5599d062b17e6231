// Package httpclient is a Go SDK for talking to one meshkv node's admin
// HTTP surface (internal/httpapi). Grounded on the teacher's
// internal/client.Client: one client, one node, plain net/http, no
// distributed logic — the node it talks to does its own gossip.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"meshkv/internal/meshnode"
)

// Client talks to exactly one node's admin HTTP surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client pointed at baseURL (e.g. "http://localhost:9090"),
// with requests bounded by timeout (0 picks a sane default — in a
// distributed system, never call the network without one).
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetResponse is the decoded shape of GET /kv/:key.
type GetResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// PutResponse is the decoded shape of PUT /kv/:key.
type PutResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ErrNotFound is returned by Get when the server answers 404.
var ErrNotFound = fmt.Errorf("key not found")

// Put stores key=value on the node.
func (c *Client) Put(ctx context.Context, key string, value any) (*PutResponse, error) {
	body, err := json.Marshal(map[string]any{"value": value})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/kv/%s", c.baseURL, key), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("PUT request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result PutResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Get retrieves the value for key, or ErrNotFound if the node has no live
// register for it.
func (c *Client) Get(ctx context.Context, key string) (*GetResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/kv/%s", c.baseURL, key), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result GetResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Delete tombstones key on the node.
func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/kv/%s", c.baseURL, key), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("DELETE request failed: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

// AllData retrieves every live key/value pair known to the node.
func (c *Client) AllData(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/kv", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result map[string]any
	return result, json.NewDecoder(resp.Body).Decode(&result)
}

// Status retrieves the node's status() snapshot.
func (c *Client) Status(ctx context.Context) (*meshnode.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result meshnode.Status
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// checkStatus converts HTTP error responses into Go errors.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
