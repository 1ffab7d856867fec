package config

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	syncano "github.com/syncano/syncano-go"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildClientOptions(t *testing.T) {
	cfg, err := Parse([]byte(`
base_url: http://localhost:9000/
api_key: secret
user_key: user
request_timeout: 5s
rate_limit:
  per_second: 10
  burst: 2
backoff:
  base: 100ms
  jitter: 0.1
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	logger := discardLogger()
	c, err := syncano.New(BuildClientOptions(cfg, logger)...)
	if err != nil {
		t.Fatalf("syncano.New() error = %v", err)
	}
	defer c.Close()

	if c.BaseURL() != "http://localhost:9000" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
	if c.Logger() != logger {
		t.Error("Logger() should be the configured logger")
	}
}

func TestBuildClientOptions_Minimal(t *testing.T) {
	cfg := &Config{APIKey: "secret"}

	opts := BuildClientOptions(cfg, nil)
	if len(opts) != 1 {
		t.Errorf("len(opts) = %d, want only the api key", len(opts))
	}
	c, err := syncano.New(opts...)
	if err != nil {
		t.Fatalf("syncano.New() error = %v", err)
	}
	defer c.Close()
	if c.BaseURL() != syncano.DefaultBaseURL {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
}

func TestBuildClientOptions_BackoffMaxDefaultsAboveBase(t *testing.T) {
	cfg := &Config{
		APIKey:  "secret",
		Backoff: &BackoffConfig{Base: Duration(time.Minute)},
	}
	if _, err := syncano.New(BuildClientOptions(cfg, nil)...); err != nil {
		t.Errorf("syncano.New() error = %v, want max raised to base", err)
	}
}

func TestBuildPollOptions(t *testing.T) {
	queries := make(chan url.Values, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case queries <- r.URL.Query():
		default:
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c, err := syncano.New(syncano.WithAPIKey("k"), syncano.WithBaseURL(server.URL), syncano.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("syncano.New() error = %v", err)
	}
	defer c.Close()

	start := int64(120)
	ch := ChannelConfig{Name: "rooms", Room: "lobby", StartAfter: &start}
	session := c.Poll("demo-app", ch.Name, BuildPollOptions(ch)...)

	if lastID, ok := session.LastID(); !ok || lastID != 120 {
		t.Errorf("LastID() = %d, %v, want 120, true", lastID, ok)
	}

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	var q url.Values
	select {
	case q = <-queries:
	case <-time.After(2 * time.Second):
		t.Fatal("no poll request received")
	}
	session.Stop()
	if err := session.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if q.Get("room") != "lobby" || q.Get("last_id") != "120" {
		t.Errorf("poll query = %v, want room=lobby and last_id=120", q)
	}
}

func TestBuildPollOptions_Empty(t *testing.T) {
	if opts := BuildPollOptions(ChannelConfig{Name: "chat"}); len(opts) != 0 {
		t.Errorf("len(opts) = %d, want 0", len(opts))
	}
}
