package syncano

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/syncano/syncano-go/internal/transport"
)

// capturedRequest is what the test server saw.
type capturedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    string
}

func captureServer(t *testing.T, status int, body string) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var seen []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, capturedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Headers: r.Header.Clone(),
			Body:    string(raw),
		})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), seen...)
	}
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithAPIKey("secret"), WithBaseURL(baseURL), WithLogger(testLogger())}, opts...)
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestClient_RequestSendsHeadersAndBody(t *testing.T) {
	server, seen := captureServer(t, http.StatusOK, `{"ok":true}`)
	c := newTestClient(t, server.URL, WithUserKey("user"), WithUserAgent("test-agent"))

	body, err := c.Request(context.Background(), http.MethodPost, "/v1.1/instances/?page_size=1", map[string]any{"name": "demo"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}

	reqs := seen()
	if len(reqs) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(reqs))
	}
	r := reqs[0]
	if r.Method != http.MethodPost || r.Path != "/v1.1/instances/" || r.Query != "page_size=1" {
		t.Errorf("request = %s %s?%s", r.Method, r.Path, r.Query)
	}
	wantHeaders := map[string]string{
		"X-Api-Key":    "secret",
		"X-User-Key":   "user",
		"User-Agent":   "test-agent",
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	for k, v := range wantHeaders {
		if got := r.Headers.Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
	if r.Headers.Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header missing")
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(r.Body), &sent); err != nil || sent["name"] != "demo" {
		t.Errorf("body = %s, want JSON with name=demo", r.Body)
	}
}

func TestClient_RequestWithoutPayloadHasNoContentType(t *testing.T) {
	server, seen := captureServer(t, http.StatusOK, `{}`)
	c := newTestClient(t, server.URL)

	if _, err := c.Request(context.Background(), http.MethodGet, "v1.1/instances/", nil); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	r := seen()[0]
	if r.Path != "/v1.1/instances/" {
		t.Errorf("path = %q, want leading slash added", r.Path)
	}
	if ct := r.Headers.Get("Content-Type"); ct != "" {
		t.Errorf("Content-Type = %q, want empty", ct)
	}
	if r.Headers.Get("X-User-Key") != "" {
		t.Error("X-User-Key should not be sent without a user key")
	}
}

func TestClient_RawPayloadPassedThrough(t *testing.T) {
	server, seen := captureServer(t, http.StatusOK, `{}`)
	c := newTestClient(t, server.URL)

	raw := json.RawMessage(`{"raw":1}`)
	if _, err := c.Request(context.Background(), http.MethodPost, "/x/", raw); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if got := seen()[0].Body; got != `{"raw":1}` {
		t.Errorf("body = %s", got)
	}
}

func TestClient_HTTPError(t *testing.T) {
	server, _ := captureServer(t, http.StatusNotFound, `{"detail":"Not found."}`)
	c := newTestClient(t, server.URL)

	_, err := c.Request(context.Background(), http.MethodGet, "/v1.1/instances/nope/", nil)
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("error = %T %v, want *HTTPError", err, err)
	}
	if he.StatusCode != http.StatusNotFound || he.Detail != "Not found." {
		t.Errorf("HTTPError = %d %q", he.StatusCode, he.Detail)
	}
	if he.CallID == "" {
		t.Error("CallID should be set")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("404 should match ErrNotFound")
	}
	if IsTransient(err) {
		t.Error("404 should not be transient")
	}
	if !strings.Contains(err.Error(), "HTTP 404: Not found.") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestClient_NoContent(t *testing.T) {
	server, _ := captureServer(t, http.StatusNoContent, ``)
	c := newTestClient(t, server.URL)

	body, err := c.Request(context.Background(), http.MethodDelete, "/x/", nil)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if body != nil {
		t.Errorf("body = %q, want nil", body)
	}
}

func TestClient_TransportErrorOnTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, WithRequestTimeout(20*time.Millisecond))

	_, err := c.Request(context.Background(), http.MethodGet, "/slow/", nil)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T %v, want *TransportError", err, err)
	}
	if !te.TimedOut {
		t.Error("TimedOut = false, want true")
	}
	if !IsTransient(err) {
		t.Error("timeouts should be transient")
	}
}

func TestClient_RateLimit(t *testing.T) {
	server, seen := captureServer(t, http.StatusOK, `{}`)
	c := newTestClient(t, server.URL, WithRateLimit(20, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Request(context.Background(), http.MethodGet, "/x/", nil); err != nil {
			t.Fatalf("Request() error = %v", err)
		}
	}
	// burst 1 at 20/s: the second and third requests wait ~50ms each
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 requests took %v, want rate limiting", elapsed)
	}
	if len(seen()) != 3 {
		t.Errorf("server saw %d requests, want 3", len(seen()))
	}
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	server, _ := captureServer(t, http.StatusOK, `{}`)
	c := newTestClient(t, server.URL, WithRateLimit(0.001, 1))

	if _, err := c.Request(context.Background(), http.MethodGet, "/x/", nil); err != nil {
		t.Fatalf("first Request() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Request(ctx, http.MethodGet, "/x/", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Request() error = %v, want deadline exceeded", err)
	}
	if !IsTransient(err) {
		t.Errorf("rate limiter wait error %v should be transient", err)
	}
}

// TestClient_RateLimitDoesNotFailPollSession checks that a session whose
// context has a deadline before the limiter's next token waits for the
// deadline and stops cleanly, without reporting an error.
func TestClient_RateLimitDoesNotFailPollSession(t *testing.T) {
	server, seen := captureServer(t, http.StatusOK, `{"objects": []}`)
	c := newTestClient(t, server.URL, WithRateLimit(0.2, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	s := c.Poll("demo-app", "chat", WithSessionLogger(testLogger()))
	var errs atomic.Int32
	s.OnError(func(error) { errs.Add(1) })

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop at the context deadline")
	}

	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	if n := errs.Load(); n != 0 {
		t.Errorf("error listener called %d times, want 0", n)
	}
	if n := len(seen()); n != 1 {
		t.Errorf("server saw %d requests, want 1", n)
	}
}

func TestClient_AbsoluteURLUsedAsIs(t *testing.T) {
	server, seen := captureServer(t, http.StatusOK, `{}`)
	c := newTestClient(t, "https://api.invalid")

	if _, err := c.Request(context.Background(), http.MethodGet, server.URL+"/next/?page=2", nil); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if r := seen()[0]; r.Path != "/next/" || r.Query != "page=2" {
		t.Errorf("request = %s?%s", r.Path, r.Query)
	}
}

func TestClient_WithHTTPClient(t *testing.T) {
	server, seen := captureServer(t, http.StatusOK, `{}`)
	c := newTestClient(t, server.URL, WithHTTPClient(server.Client()))

	if _, err := c.Request(context.Background(), http.MethodGet, "/x/", nil); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if len(seen()) != 1 {
		t.Errorf("server saw %d requests, want 1", len(seen()))
	}
}

func TestClient_PollInheritsBackoffAndLogger(t *testing.T) {
	c, err := New(
		WithAPIKey("secret"),
		WithLogger(testLogger()),
		WithPollBackoff(time.Second, 5*time.Second),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	s := c.Poll("demo-app", "chat")
	if s.Channel() != "chat" {
		t.Errorf("Channel() = %q", s.Channel())
	}
	if got := s.backoff.Next(); got != time.Second {
		t.Errorf("first retry delay = %v, want 1s", got)
	}
	if s.path != "/v1.1/instances/demo-app/channels/chat/poll/" {
		t.Errorf("path = %q", s.path)
	}
}

func TestClient_OversizedBodyIsFatal(t *testing.T) {
	server, _ := captureServer(t, http.StatusOK, strings.Repeat(" ", transport.MaxResponseBodySize+1))
	c := newTestClient(t, server.URL)

	_, err := c.Request(context.Background(), http.MethodGet, "/x/", nil)
	if !errors.Is(err, transport.ErrBodyTooLarge) {
		t.Fatalf("Request() error = %v, want ErrBodyTooLarge", err)
	}
	if IsTransient(err) {
		t.Error("an oversized body should not be retried")
	}
}
