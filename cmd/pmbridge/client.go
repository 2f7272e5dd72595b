package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// APIClient provides HTTP client functionality to communicate with the
// pmbridge daemon.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a new API client.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://localhost:8080/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type okResp struct {
	OK bool `json:"ok"`
}

func decodeError(resp *http.Response) error {
	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		return err
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}

// List returns short child name -> status for the daemon's group.
func (c *APIClient) List() (map[string]string, error) {
	resp, err := c.client.Get(c.baseURL + "/list")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns the status list for one child.
func (c *APIClient) Status(name string, force bool) ([]string, error) {
	u := c.baseURL + "/status?name=" + url.QueryEscape(name)
	if force {
		u += "&force=true"
	}
	resp, err := c.client.Get(u)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out struct {
		Name   string   `json:"name"`
		Status []string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Status, nil
}

// Create registers and starts a child.
func (c *APIClient) Create(name string, command []string) (bool, error) {
	body, err := json.Marshal(map[string]any{"name": name, "command": command})
	if err != nil {
		return false, err
	}
	resp, err := c.client.Post(c.baseURL+"/create", "application/json", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, decodeError(resp)
	}
	var out okResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.OK, nil
}

func (c *APIClient) post(op, name string) (bool, error) {
	u := c.baseURL + "/" + op + "?name=" + url.QueryEscape(name)
	resp, err := c.client.Post(u, "application/json", nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, decodeError(resp)
	}
	var out okResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.OK, nil
}

// Start starts a registered child.
func (c *APIClient) Start(name string) (bool, error) { return c.post("start", name) }

// Stop stops a child.
func (c *APIClient) Stop(name string) (bool, error) { return c.post("stop", name) }

// Remove deletes a child from pm2 and the group.
func (c *APIClient) Remove(name string) (bool, error) { return c.post("remove", name) }

// Children returns partial views of every child.
func (c *APIClient) Children(q url.Values) ([]map[string]any, error) {
	u := c.baseURL + "/children"
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	resp, err := c.client.Get(u)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
