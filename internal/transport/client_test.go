package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"testing"
	"time"
)

// TestClient_ConnectionReuse verifies that the HTTP client reuses connections
// when making sequential requests to the same host.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient()

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5

	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		resp := client.Do(ctx, Request{URL: server.URL, Timeout: 5 * time.Second})
		if resp.Error != nil {
			t.Fatalf("request %d failed: %v", i, resp.Error)
		}
	}

	expectedMinReuse := numRequests - 2 // allow some tolerance
	if reusedCount < expectedMinReuse {
		t.Errorf("expected at least %d reused connections, got %d out of %d requests",
			expectedMinReuse, reusedCount, numRequests)
	}
}

// TestClient_SendsMethodHeadersAndBody verifies the request is forwarded
// exactly as described.
func TestClient_SendsMethodHeadersAndBody(t *testing.T) {
	var gotMethod, gotHeader, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-API-KEY")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	resp := NewClient().Do(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     server.URL,
		Headers: map[string]string{"X-API-KEY": "secret"},
		Body:    []byte(`{"name":"x"}`),
	})
	if resp.Error != nil {
		t.Fatalf("Do() error = %v", resp.Error)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if gotMethod != http.MethodPost || gotHeader != "secret" || gotBody != `{"name":"x"}` {
		t.Errorf("server saw method=%q header=%q body=%q", gotMethod, gotHeader, gotBody)
	}
}

// TestClient_TimeoutIsFlagged verifies that hitting the request timeout is
// reported as TimedOut, while caller cancellation is not.
func TestClient_TimeoutIsFlagged(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient()

	resp := client.Do(context.Background(), Request{URL: server.URL, Timeout: 50 * time.Millisecond})
	if resp.Error == nil {
		t.Fatal("expected timeout error")
	}
	if !resp.TimedOut {
		t.Error("expected TimedOut = true for request timeout")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	resp = client.Do(ctx, Request{URL: server.URL, Timeout: 5 * time.Second})
	if resp.Error == nil {
		t.Fatal("expected cancellation error")
	}
	if resp.TimedOut {
		t.Error("expected TimedOut = false for caller cancellation")
	}
}

// TestClient_Close verifies that Close() is safe to call and idempotent.
func TestClient_Close(t *testing.T) {
	client := NewClient()

	client.Close()
	client.Close()
	client.Close()
}

// TestClient_Close_NilClient verifies that Close() handles nil receiver safely.
func TestClient_Close_NilClient(t *testing.T) {
	var client *Client

	client.Close()
}

// TestClient_Close_ActuallyClosesConnections verifies that Close closes idle
// connections, but the client remains usable for new requests.
func TestClient_Close_ActuallyClosesConnections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient()

	for i := 0; i < 5; i++ {
		resp := client.Do(context.Background(), Request{URL: server.URL, Timeout: time.Second})
		if resp.Error != nil {
			t.Fatalf("request %d failed: %v", i, resp.Error)
		}
	}

	client.Close()

	resp := client.Do(context.Background(), Request{URL: server.URL, Timeout: time.Second})
	if resp.Error != nil {
		t.Errorf("request after Close failed: %v", resp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

// TestClient_WrapClientLeavesTransportAlone verifies that Close on a wrapped
// client does not panic and the wrapped client keeps working.
func TestClient_WrapClientLeavesTransportAlone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := WrapClient(server.Client())
	client.Close()

	resp := client.Do(context.Background(), Request{URL: server.URL})
	if resp.Error != nil {
		t.Fatalf("Do() error = %v", resp.Error)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("StatusCode = %d, want 204", resp.StatusCode)
	}
}

// TestClient_OversizedBodyIsAnError verifies that a body over
// MaxResponseBodySize is reported instead of being silently truncated.
func TestClient_OversizedBodyIsAnError(t *testing.T) {
	for _, tt := range []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"at limit", MaxResponseBodySize, false},
		{"over limit", MaxResponseBodySize + 1, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(make([]byte, tt.size))
			}))
			defer server.Close()

			resp := NewClient().Do(context.Background(), Request{URL: server.URL})
			if tt.wantErr {
				if !errors.Is(resp.Error, ErrBodyTooLarge) {
					t.Fatalf("Error = %v, want ErrBodyTooLarge", resp.Error)
				}
				if resp.StatusCode != http.StatusOK || resp.Body != nil {
					t.Errorf("got status %d and %d body bytes, want 200 and no body", resp.StatusCode, len(resp.Body))
				}
				return
			}
			if resp.Error != nil {
				t.Fatalf("Error = %v", resp.Error)
			}
			if len(resp.Body) != tt.size {
				t.Errorf("body length = %d, want %d", len(resp.Body), tt.size)
			}
		})
	}
}
