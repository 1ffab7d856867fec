// Package transport performs the raw HTTP exchanges behind the Syncano client.
//
// It knows nothing about Syncano: it sends a method, URL, headers and body,
// and returns the status code and a size-limited body. Authentication, error
// decoding and retries live in the syncano package.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxResponseBodySize caps how much of a response body is read.
const MaxResponseBodySize = 8 << 20 // 8MB

// ErrBodyTooLarge is returned when a response body exceeds MaxResponseBodySize.
var ErrBodyTooLarge = errors.New("response body too large")

// connection pooling limits; long-polls hold a connection each, so the
// per-host limit bounds the number of concurrently polled channels per host
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 32
	defaultMaxConnsPerHost     = 64
	defaultIdleConnTimeout     = 90 * time.Second
)

// Request describes a single HTTP exchange.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte

	// Timeout bounds the whole exchange. Zero means no client-side timeout.
	Timeout time.Duration
}

// Response holds the result of an HTTP request made by [Client].
type Response struct {
	// Body contains the HTTP response body, limited to MaxResponseBodySize.
	Body []byte

	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the exchange.
	// nil indicates a response was received (though status may indicate an error).
	Error error

	// TimedOut is true when Error was caused by the request's own Timeout
	// rather than by the caller's context.
	TimedOut bool
}

// Client is a pooled HTTP client used for all Syncano calls.
//
// Client uses per-request timeouts via context rather than a global timeout,
// because long-poll requests legitimately stay open much longer than CRUD calls.
type Client struct {
	httpClient *http.Client
	owned      bool
}

// NewClient creates a [Client] with its own pooled transport.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		owned: true,
	}
}

// WrapClient uses an existing *http.Client. Close will not touch its
// transport, since the caller owns it.
func WrapClient(hc *http.Client) *Client {
	return &Client{httpClient: hc}
}

// Do performs an HTTP request and returns a structured [Response].
//
// Do always returns a Response; errors are captured in the Error field
// rather than returned separately. If method is empty, GET is used.
func (c *Client) Do(ctx context.Context, r Request) Response {
	parent := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency:  time.Since(start),
			Error:    fmt.Errorf("request failed: %w", err),
			TimedOut: ctx.Err() != nil && parent.Err() == nil,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodySize+1))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
			TimedOut:   ctx.Err() != nil && parent.Err() == nil,
		}
	}
	if len(data) > MaxResponseBodySize {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, MaxResponseBodySize),
		}
	}

	return Response{
		Body:       data,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil receiver. After Close, the client
// remains usable but new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil || !c.owned {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
