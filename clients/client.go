package clients

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

	"github.com/jrsteele09/go-tenant-session/internal/errors"
)

// Client talks to one backend service through its Pipeline.
type Client struct {
	name       string
	base       *url.URL
	httpClient *http.Client
}

// NewClient validates binding.BaseURL and sends every request through transport.
func NewClient(binding Binding, transport http.RoundTripper, timeout time.Duration) (*Client, error) {
	base, err := parseBaseURL(binding.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("[Client New] service %q: %w", binding.Name, err)
	}
	return &Client{
		name: binding.Name,
		base: base,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	base, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidBaseURL, "%q: %v", raw, err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, errors.Wrapf(errors.ErrInvalidBaseURL, "%q", raw)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	base.RawPath = ""
	return base, nil
}

func (c *Client) Name() string {
	return c.name
}

// BaseURL always ends in "/".
func (c *Client) BaseURL() string {
	return c.base.String()
}

// URL resolves path against the base URL. A leading "/" is dropped so the
// service prefix of the base URL is kept.
func (c *Client) URL(path string) (string, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("[Client URL] %q: %w", path, err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

// NewRequest builds a request for path on this service.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target, err := c.URL(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return req, nil
}

// Do sends req. Responses outside 2xx are closed and returned as *StatusError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDrainBytes))
		return nil, newStatusError(c.name, req, resp, body)
	}
	return resp, nil
}

// GetJSON decodes the response of GET path into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.sendJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPut, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.sendJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// decodeJSON reads the whole body once. A nil target or an empty body is not an error.
func decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if target == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
