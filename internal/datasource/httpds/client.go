// Package httpds fetches remote file tables over HTTP(S). Each request is a
// single attempt; a transport error or non-2xx status fails the load.
package httpds

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Config configures the HTTP client.
type Config struct {
	// Timeout is the whole-request timeout applied at the http.Client level.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// BaseHeaders are added to every request; per-request headers win.
	BaseHeaders http.Header

	// Transport is an optional custom RoundTripper. When nil, a default
	// *http.Transport is constructed from the TLS settings.
	Transport http.RoundTripper
}

// Client wraps an http.Client.
type Client struct {
	httpClient  *http.Client
	baseHeaders http.Header
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpds: GET %s: status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// NewClient constructs a Client from Config, applying defaults for zero values.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicitly configurable
			},
		}
	}
	hdr := http.Header{}
	for k, vs := range cfg.BaseHeaders {
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout, Transport: transport},
		baseHeaders: hdr,
	}
}

// Get issues one GET and returns the body of a 2xx response. The caller must
// close it.
func (c *Client) Get(ctx context.Context, url string, headers http.Header) (io.ReadCloser, error) {
	if url == "" {
		return nil, fmt.Errorf("httpds: url must not be empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpds: build request: %w", err)
	}
	for k, vs := range c.baseHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpds: GET %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// Source is a remote file exposed as a datasource.Source.
type Source struct {
	client *Client
	url    string
}

// NewSource binds url to client. A nil client uses NewClient(Config{}).
func NewSource(client *Client, url string) *Source {
	if client == nil {
		client = NewClient(Config{})
	}
	return &Source{client: client, url: url}
}

// Open fetches the URL.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	return s.client.Get(ctx, s.url, nil)
}

func (s *Source) String() string { return s.url }
