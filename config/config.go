// Package config loads the YAML configuration of the syncano command.
//
// The SDK itself is configured with functional options; this package is the
// file-based front end used by cmd/syncano. Example:
//
//	base_url: https://api.syncano.io
//	api_key: ${SYNCANO_API_KEY}
//	instance: demo-app
//	request_timeout: 60s
//
//	rate_limit:
//	  per_second: 5
//	  burst: 10
//
//	backoff:
//	  base: 500ms
//	  max: 30s
//	  jitter: 0.2
//
//	channels:
//	  - name: chat
//	  - name: rooms
//	    room: lobby
//	    start_after: 120
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL        = "https://api.syncano.io"
	defaultRequestTimeout = 60 * time.Second
	minInstanceNameLength = 5
)

// Config is the root of a configuration file.
type Config struct {
	// BaseURL is the API host. Defaults to https://api.syncano.io.
	BaseURL string `yaml:"base_url"`

	// APIKey and UserKey authenticate requests. At least one is required.
	// Both support ${VAR} substitution.
	APIKey  string `yaml:"api_key"`
	UserKey string `yaml:"user_key"`

	// Instance is the default instance of the configured channels.
	Instance string `yaml:"instance"`

	// RequestTimeout bounds each HTTP request, including poll requests.
	// "0s" disables it. Defaults to 60s.
	RequestTimeout *Duration `yaml:"request_timeout"`

	RateLimit *RateLimitConfig `yaml:"rate_limit"`
	Backoff   *BackoffConfig   `yaml:"backoff"`

	Channels []ChannelConfig `yaml:"channels"`
}

// RateLimitConfig throttles outgoing requests.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// BackoffConfig is the retry policy of poll sessions.
type BackoffConfig struct {
	Base   Duration `yaml:"base"`
	Max    Duration `yaml:"max"`
	Jitter float64  `yaml:"jitter"`
}

// ChannelConfig is one channel to poll.
type ChannelConfig struct {
	Name string `yaml:"name"`

	// Instance overrides the top-level instance for this channel.
	Instance string `yaml:"instance"`

	// Room restricts separate_rooms channels to one room.
	Room string `yaml:"room"`

	// StartAfter resumes polling after this event id. Without it only
	// events published after the session starts are received.
	StartAfter *int64 `yaml:"start_after"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
// Group 1 is the name, group 2 the ":-default" suffix, group 3 the default.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
// An unset variable without a default is an error.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		m := envVarPattern.FindStringSubmatch(match)
		name, hasDefault, def := m[1], m[2] != "", m[3]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return def
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, expands environment variables in
// the string fields and validates the result. BaseURL and RequestTimeout
// get their defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestTimeout == nil {
		d := Duration(defaultRequestTimeout)
		cfg.RequestTimeout = &d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expand() error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"base_url", &c.BaseURL},
		{"api_key", &c.APIKey},
		{"user_key", &c.UserKey},
		{"instance", &c.Instance},
	}
	for _, f := range fields {
		expanded, err := expandEnvVars(*f.ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ptr = expanded
	}

	for i := range c.Channels {
		ch := &c.Channels[i]
		for _, f := range []struct {
			name string
			ptr  *string
		}{
			{"name", &ch.Name},
			{"instance", &ch.Instance},
			{"room", &ch.Room},
		} {
			expanded, err := expandEnvVars(*f.ptr)
			if err != nil {
				return fmt.Errorf("channels[%d].%s: %w", i, f.name, err)
			}
			*f.ptr = expanded
		}
	}
	return nil
}

// Validate checks the configuration. Errors name the offending field.
func (c *Config) Validate() error {
	if c.APIKey == "" && c.UserKey == "" {
		return fmt.Errorf("api_key or user_key is required")
	}

	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base_url: scheme must be http or https, got %q", parsed.Scheme)
	}

	if c.Instance != "" && len(c.Instance) < minInstanceNameLength {
		return fmt.Errorf("instance: must be at least %d characters, got %q", minInstanceNameLength, c.Instance)
	}

	if c.RequestTimeout != nil && c.RequestTimeout.Duration() < 0 {
		return fmt.Errorf("request_timeout: cannot be negative, got %s", c.RequestTimeout.Duration())
	}

	if rl := c.RateLimit; rl != nil {
		if rl.PerSecond <= 0 {
			return fmt.Errorf("rate_limit.per_second: must be positive, got %v", rl.PerSecond)
		}
		if rl.Burst < 1 {
			return fmt.Errorf("rate_limit.burst: must be at least 1, got %d", rl.Burst)
		}
	}

	if b := c.Backoff; b != nil {
		if b.Base.Duration() <= 0 {
			return fmt.Errorf("backoff.base: must be positive, got %s", b.Base.Duration())
		}
		if b.Max != 0 && b.Max.Duration() < b.Base.Duration() {
			return fmt.Errorf("backoff.max: must not be less than base (%s), got %s", b.Base.Duration(), b.Max.Duration())
		}
		if b.Jitter < 0 || b.Jitter >= 1 {
			return fmt.Errorf("backoff.jitter: must be in [0, 1), got %v", b.Jitter)
		}
	}

	seen := make(map[string]int, len(c.Channels))
	for i, ch := range c.Channels {
		if strings.TrimSpace(ch.Name) == "" {
			return fmt.Errorf("channels[%d]: name is required", i)
		}
		instance := c.InstanceOf(ch)
		if instance == "" {
			return fmt.Errorf("channels[%d] (%s): instance is required when no top-level instance is set", i, ch.Name)
		}
		if len(instance) < minInstanceNameLength {
			return fmt.Errorf("channels[%d] (%s): instance must be at least %d characters", i, ch.Name, minInstanceNameLength)
		}
		if ch.StartAfter != nil && *ch.StartAfter < 0 {
			return fmt.Errorf("channels[%d] (%s): start_after cannot be negative", i, ch.Name)
		}

		key := instance + "/" + ch.Name + "/" + ch.Room
		if j, dup := seen[key]; dup {
			return fmt.Errorf("channels[%d] (%s): duplicates channels[%d]", i, ch.Name, j)
		}
		seen[key] = i
	}
	return nil
}

// InstanceOf returns the instance of ch, falling back to the top-level one.
func (c *Config) InstanceOf(ch ChannelConfig) string {
	if ch.Instance != "" {
		return ch.Instance
	}
	return c.Instance
}

// Channel returns the configured channel called name.
func (c *Config) Channel(name string) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}
