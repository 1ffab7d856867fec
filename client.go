package syncano

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/syncano/syncano-go/internal/backoff"
	"github.com/syncano/syncano-go/internal/transport"
)

const (
	DefaultBaseURL        = "https://api.syncano.io"
	defaultRequestTimeout = 60 * time.Second
	defaultUserAgent      = "syncano-go/1.1"
)

// Requester performs one authenticated API call and returns the raw JSON
// response body.
//
// path is relative to the API base URL and may carry a query string. payload
// is marshalled to JSON unless it is nil, a []byte or a json.RawMessage.
// Non-2xx responses are returned as *HTTPError; failures without a response
// as *TransportError. Implementations must be safe for concurrent use.
//
// [Client] is the production implementation. Poll sessions depend only on
// this interface.
type Requester interface {
	Request(ctx context.Context, method, path string, payload any) ([]byte, error)
}

// Client is a connection to the Syncano API.
//
// Client is created with [New] and is safe for concurrent use. It is the
// entry point for query sets ([Client.Channels], [Client.Instances], ...)
// and for channel polling ([Client.Poll]).
//
//	client, err := syncano.New(syncano.WithAPIKey(os.Getenv("SYNCANO_API_KEY")))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
type Client struct {
	baseURL        string
	headers        map[string]string
	requestTimeout time.Duration
	limiter        *rate.Limiter
	http           *transport.Client
	logger         *slog.Logger
	pollBackoff    backoff.Policy
}

var _ Requester = (*Client)(nil)

// New creates a [Client] with the given options.
//
// At least one of [WithAPIKey] or [WithUserKey] is required. Other options
// have sensible defaults:
//   - Base URL: https://api.syncano.io
//   - Request timeout: 60 seconds
//   - Rate limit: none
//   - Poll backoff: 500ms doubling up to 30s, no jitter
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		baseURL:        DefaultBaseURL,
		requestTimeout: defaultRequestTimeout,
		userAgent:      defaultUserAgent,
		rateLimit:      rate.Inf,
		pollBackoff:    backoff.Default(),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.apiKey == "" && cfg.userKey == "" {
		return nil, errors.New("an api key or user key is required")
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	headers := map[string]string{
		"Accept":     "application/json",
		"User-Agent": cfg.userAgent,
	}
	if cfg.apiKey != "" {
		headers["X-API-KEY"] = cfg.apiKey
	}
	if cfg.userKey != "" {
		headers["X-USER-KEY"] = cfg.userKey
	}

	httpClient := transport.NewClient()
	if cfg.httpClient != nil {
		httpClient = transport.WrapClient(cfg.httpClient)
	}

	return &Client{
		baseURL:        strings.TrimSuffix(cfg.baseURL, "/"),
		headers:        headers,
		requestTimeout: cfg.requestTimeout,
		limiter:        rate.NewLimiter(cfg.rateLimit, cfg.rateBurst),
		http:           httpClient,
		logger:         logger,
		pollBackoff:    cfg.pollBackoff,
	}, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Close releases idle connections. The client remains usable afterwards.
func (c *Client) Close() {
	c.http.Close()
}

// Request implements [Requester].
func (c *Client) Request(ctx context.Context, method, path string, payload any) ([]byte, error) {
	callID := uuid.NewString()

	if err := c.throttle(ctx); err != nil {
		return nil, &TransportError{
			CallID: callID,
			Method: method,
			Path:   path,
			Cause:  fmt.Errorf("rate limiter: %w", err),
		}
	}

	body, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("syncano: %s %s: encoding payload: %w", method, path, err)
	}

	headers := make(map[string]string, len(c.headers)+2)
	for k, v := range c.headers {
		headers[k] = v
	}
	headers["X-Request-Id"] = callID
	if body != nil {
		headers["Content-Type"] = "application/json"
	}

	resp := c.http.Do(ctx, transport.Request{
		Method:  method,
		URL:     c.resolveURL(path),
		Headers: headers,
		Body:    body,
		Timeout: c.requestTimeout,
	})

	logAttrs := []any{
		"call_id", callID,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency_ms", resp.Latency.Milliseconds(),
	}

	if resp.Error != nil {
		c.logger.Debug("request failed", append(logAttrs, "error", resp.Error.Error())...)
		if errors.Is(resp.Error, transport.ErrBodyTooLarge) {
			return nil, fmt.Errorf("syncano: %s %s: %w [call %s]", method, path, resp.Error, callID)
		}
		return nil, &TransportError{
			CallID:   callID,
			Method:   method,
			Path:     path,
			TimedOut: resp.TimedOut,
			Cause:    resp.Error,
		}
	}

	c.logger.Debug("request completed", logAttrs...)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(callID, method, path, resp.StatusCode, resp.Body)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	return resp.Body, nil
}

// throttle blocks until the rate limiter admits a request or ctx ends. Unlike
// rate.Limiter.Wait it does not fail at once when ctx has a deadline before
// the next token.
func (c *Client) throttle(ctx context.Context) error {
	r := c.limiter.Reserve()
	if !r.OK() {
		return errors.New("request exceeds limiter burst")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// resolveURL joins path to the base URL. Absolute URLs (as found in
// pagination links) are used as-is.
func (c *Client) resolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(p)
	}
}
