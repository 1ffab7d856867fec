package syncano

import (
	"log/slog"
	"math/rand"

	"github.com/syncano/syncano-go/internal/backoff"
)

// BackoffPolicy describes the retry delays of a poll session after transient
// failures: Base doubling (or multiplied by Factor) up to Max, spread by
// ±Jitter×delay when Jitter is non-zero.
type BackoffPolicy = backoff.Policy

// Default poll backoff bounds.
const (
	DefaultBackoffBase = backoff.DefaultBase
	DefaultBackoffMax  = backoff.DefaultMax
)

// pollConfig holds mutable state during PollSession construction.
type pollConfig struct {
	room       string
	startAfter *int64
	policy     backoff.Policy
	rnd        *rand.Rand
	logger     *slog.Logger
}

// PollOption configures a [PollSession] during construction.
type PollOption func(*pollConfig)

// defaultPollConfig inherits the backoff policy and logger of c, or the
// package defaults when c is nil.
func defaultPollConfig(c *Client) *pollConfig {
	cfg := &pollConfig{
		policy: backoff.Default(),
		logger: slog.Default(),
	}
	if c != nil {
		cfg.policy = c.pollBackoff
		cfg.logger = c.logger
	}
	return cfg
}

// InRoom restricts the session to events published to room. Only
// meaningful for channels of type separate_rooms.
func InRoom(room string) PollOption {
	return func(cfg *pollConfig) {
		cfg.room = room
	}
}

// StartAfter positions the cursor after lastID instead of at the latest
// event. Use it to resume from a previous session's [PollSession.LastID].
//
//	next := channel.Poll(syncano.StartAfter(prev.LastID()))
func StartAfter(lastID int64) PollOption {
	return func(cfg *pollConfig) {
		id := lastID
		cfg.startAfter = &id
	}
}

// WithBackoff overrides the client's retry policy for this session.
// Invalid policies are ignored in favour of the client default.
func WithBackoff(p BackoffPolicy) PollOption {
	return func(cfg *pollConfig) {
		if p.Validate() == nil {
			cfg.policy = p
		}
	}
}

// WithJitterSource makes jittered retry delays reproducible.
func WithJitterSource(rnd *rand.Rand) PollOption {
	return func(cfg *pollConfig) {
		cfg.rnd = rnd
	}
}

// WithSessionLogger sets the session's logger. Defaults to the client's.
func WithSessionLogger(logger *slog.Logger) PollOption {
	return func(cfg *pollConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}
