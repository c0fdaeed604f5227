// Package fetcher issues single conditional feed retrievals.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/JakeFAU/reader-engine/internal/reader"
)

// maxBodyBytes caps how much of a feed body is read into memory.
const maxBodyBytes = 10 << 20

// Config controls the HTTP client used for feed retrieval.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Client fetches feed documents with HTTP conditional-request caching.
// Transient errors are not retried within a call; the next scheduled run
// is the retry, which keeps worker slot hold time bounded.
type Client struct {
	http      *http.Client
	userAgent string
}

// New builds a Client with a tuned transport.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
	}
}

// Fetch performs one conditional GET. Stored validators are sent as
// If-None-Match / If-Modified-Since; a 304 comes back as a response with
// an empty body, not an error. Any HTTP status is returned as a value;
// only transport-level failures produce an error.
func (c *Client) Fetch(ctx context.Context, req reader.FetchRequest) (reader.FetchResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return reader.FetchResponse{}, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if req.ETag != "" {
		httpReq.Header.Set("If-None-Match", req.ETag)
	}
	if req.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", req.LastModified)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return reader.FetchResponse{}, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	out := reader.FetchResponse{
		URL:          req.URL,
		StatusCode:   resp.StatusCode,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	if resp.StatusCode != http.StatusNotModified {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return reader.FetchResponse{}, fmt.Errorf("read body from %s: %w", req.URL, err)
		}
		out.Body = body
	}
	out.Duration = time.Since(start)
	return out, nil
}
