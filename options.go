package syncano

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/syncano/syncano-go/internal/backoff"
)

// clientConfig holds mutable state during Client construction.
type clientConfig struct {
	baseURL        string
	apiKey         string
	userKey        string
	userAgent      string
	requestTimeout time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
	rateLimit      rate.Limit
	rateBurst      int
	pollBackoff    backoff.Policy
}

// Option is a function that configures a [Client] during construction.
//
// Options return an error if validation fails; [New] reports the first one.
type Option func(*clientConfig) error

// WithAPIKey sets the account or instance API key sent as X-API-KEY.
func WithAPIKey(key string) Option {
	return func(cfg *clientConfig) error {
		if key == "" {
			return errors.New("api key cannot be empty")
		}
		cfg.apiKey = key
		return nil
	}
}

// WithUserKey sets the user key sent as X-USER-KEY, used together with an
// instance API key for user-scoped calls.
func WithUserKey(key string) Option {
	return func(cfg *clientConfig) error {
		if key == "" {
			return errors.New("user key cannot be empty")
		}
		cfg.userKey = key
		return nil
	}
}

// WithBaseURL points the client at a different API host. Defaults to
// https://api.syncano.io.
//
// Returns an error if the URL has no http or https scheme.
func WithBaseURL(rawURL string) Option {
	return func(cfg *clientConfig) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return errors.New("invalid base URL: " + err.Error())
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("base URL must have an http:// or https:// scheme")
		}
		cfg.baseURL = rawURL
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithHTTPClient makes the client send requests through hc instead of its
// own pooled transport. Useful for tests and custom proxies.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *clientConfig) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = hc
		return nil
	}
}

// WithRequestTimeout bounds every request, long-polls included. The default
// is 60 seconds, which outlasts the server's long-poll window.
//
// Zero disables the client-side timeout. A poll against a server that never
// answers will then block its session until Start's context is cancelled.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		if d < 0 {
			return errors.New("request timeout cannot be negative")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithRateLimit limits outgoing requests to perSecond with the given burst.
// By default requests are not limited.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(cfg *clientConfig) error {
		if perSecond <= 0 {
			return errors.New("rate limit must be positive")
		}
		if burst < 1 {
			return errors.New("rate limit burst must be at least 1")
		}
		cfg.rateLimit = rate.Limit(perSecond)
		cfg.rateBurst = burst
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cfg *clientConfig) error {
		cfg.userAgent = ua
		return nil
	}
}

// WithPollBackoff sets the default retry backoff for poll sessions created by
// this client: exponential from base, doubling, capped at max.
func WithPollBackoff(base, max time.Duration) Option {
	return func(cfg *clientConfig) error {
		p := cfg.pollBackoff
		p.Base, p.Max = base, max
		if err := p.Validate(); err != nil {
			return err
		}
		cfg.pollBackoff = p
		return nil
	}
}

// WithPollJitter spreads poll retry delays by up to ±fraction of the delay.
func WithPollJitter(fraction float64) Option {
	return func(cfg *clientConfig) error {
		p := cfg.pollBackoff
		p.Jitter = fraction
		if err := p.Validate(); err != nil {
			return err
		}
		cfg.pollBackoff = p
		return nil
	}
}
