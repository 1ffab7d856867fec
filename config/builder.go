package config

import (
	"log/slog"

	syncano "github.com/syncano/syncano-go"
)

// BuildClientOptions converts the connection settings of cfg into client
// options. logger may be nil.
func BuildClientOptions(cfg *Config, logger *slog.Logger) []syncano.Option {
	var opts []syncano.Option

	if cfg.APIKey != "" {
		opts = append(opts, syncano.WithAPIKey(cfg.APIKey))
	}
	if cfg.UserKey != "" {
		opts = append(opts, syncano.WithUserKey(cfg.UserKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, syncano.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeout != nil {
		opts = append(opts, syncano.WithRequestTimeout(cfg.RequestTimeout.Duration()))
	}
	if rl := cfg.RateLimit; rl != nil {
		opts = append(opts, syncano.WithRateLimit(rl.PerSecond, rl.Burst))
	}
	if b := cfg.Backoff; b != nil {
		maxDelay := b.Max.Duration()
		if maxDelay == 0 {
			maxDelay = max(b.Base.Duration(), syncano.DefaultBackoffMax)
		}
		opts = append(opts,
			syncano.WithPollBackoff(b.Base.Duration(), maxDelay),
			syncano.WithPollJitter(b.Jitter),
		)
	}
	if logger != nil {
		opts = append(opts, syncano.WithLogger(logger))
	}

	return opts
}

// BuildPollOptions converts one channel entry into poll session options.
func BuildPollOptions(ch ChannelConfig) []syncano.PollOption {
	var opts []syncano.PollOption

	if ch.Room != "" {
		opts = append(opts, syncano.InRoom(ch.Room))
	}
	if ch.StartAfter != nil {
		opts = append(opts, syncano.StartAfter(*ch.StartAfter))
	}

	return opts
}
