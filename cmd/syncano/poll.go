package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	syncano "github.com/syncano/syncano-go"
	"github.com/syncano/syncano-go/config"
)

// shutdownTimeout bounds how long stopped sessions may take to finish their
// in-flight poll before they are aborted.
const shutdownTimeout = 10 * time.Second

func newPollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Stream channel events as JSON lines",
		Long: `Long-poll the configured channels and print every event as one JSON
line on stdout.

All channels are polled concurrently. Transient failures are retried with
the configured backoff; a fatal error on any channel stops all of them.
The command runs until interrupted (Ctrl+C) or it receives SIGTERM.

Example:
  syncano poll -c syncano.yaml
  syncano poll -c syncano.yaml --channel chat --channel news`,
		RunE: runPoll,
	}

	cmd.Flags().StringSlice("channel", nil, "poll only these configured channels (repeatable)")
	cmd.Flags().Int("limit", 0, "stop after this many events (0 means no limit)")
	return cmd
}

// polledEvent is one output line of the poll command.
type polledEvent struct {
	Instance string `json:"instance"`
	Channel  string `json:"channel"`
	syncano.ChannelEvent
}

// eventWriter serializes JSON lines from concurrent sessions.
type eventWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *eventWriter) write(ev polledEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(ev)
}

func runPoll(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(cmd.ErrOrStderr(), verbose)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	names, _ := cmd.Flags().GetStringSlice("channel")
	channels, err := selectChannels(cfg, names)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	client, err := syncano.New(config.BuildClientOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	// cancelled on SIGINT/SIGTERM or when the event limit is reached
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, done := context.WithCancel(ctx)
	defer done()

	logger.Info("polling channels", "channels", len(channels), "base_url", client.BaseURL())
	return pollChannels(ctx, done, client, cfg, channels, limit, cmd.OutOrStdout(), logger)
}

// selectChannels returns the configured channels named in names, or all of
// them when names is empty.
func selectChannels(cfg *config.Config, names []string) ([]config.ChannelConfig, error) {
	if len(names) == 0 {
		if len(cfg.Channels) == 0 {
			return nil, fmt.Errorf("no channels configured")
		}
		return cfg.Channels, nil
	}

	selected := make([]config.ChannelConfig, 0, len(names))
	for _, name := range names {
		ch, ok := cfg.Channel(name)
		if !ok {
			return nil, fmt.Errorf("channel %q is not in the config", name)
		}
		selected = append(selected, ch)
	}
	return selected, nil
}

// pollChannels runs one session per channel until ctx ends or a session
// fails. Sessions get a context of their own so that shutdown stops them
// cooperatively and only aborts them after shutdownTimeout.
func pollChannels(
	ctx context.Context,
	done context.CancelFunc,
	client *syncano.Client,
	cfg *config.Config,
	channels []config.ChannelConfig,
	limit int,
	out io.Writer,
	logger *slog.Logger,
) error {
	sessionCtx, abort := context.WithCancel(context.Background())
	defer abort()

	w := &eventWriter{enc: json.NewEncoder(out)}
	var seen atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range channels {
		ch := ch
		instance := cfg.InstanceOf(ch)
		session := client.Poll(instance, ch.Name, config.BuildPollOptions(ch)...)

		emit := func(ev syncano.ChannelEvent) {
			if err := w.write(polledEvent{Instance: instance, Channel: ch.Name, ChannelEvent: ev}); err != nil {
				logger.Error("failed to write event", "channel", ch.Name, "error", err)
			}
			if limit > 0 && seen.Add(1) >= int64(limit) {
				done()
			}
		}
		for _, name := range []syncano.EventName{syncano.EventMessage, syncano.EventCreate, syncano.EventUpdate, syncano.EventDelete} {
			if err := session.On(name, emit); err != nil {
				return stopAll(done, g, err)
			}
		}
		session.OnError(func(err error) {
			logger.Error("poll session failed", "instance", instance, "channel", ch.Name, "error", err)
		})

		if err := session.Start(sessionCtx); err != nil {
			return stopAll(done, g, fmt.Errorf("starting %s/%s: %w", instance, ch.Name, err))
		}

		g.Go(func() error {
			select {
			case <-session.Done():
				if err := session.Err(); err != nil {
					return fmt.Errorf("channel %s/%s: %w", instance, ch.Name, err)
				}
				return nil
			case <-gctx.Done():
			}

			session.Stop()
			select {
			case <-session.Done():
			case <-time.After(shutdownTimeout):
				logger.Warn("shutdown timed out",
					"channel", ch.Name,
					"timeout", shutdownTimeout.String(),
					"action", "aborting in-flight poll",
				)
				abort()
				<-session.Done()
			}
			lastID, _ := session.LastID()
			logger.Info("poll session stopped", "channel", ch.Name, "last_id", lastID)
			return nil
		})
	}

	return g.Wait()
}

// stopAll stops the sessions already running and returns err.
func stopAll(done context.CancelFunc, g *errgroup.Group, err error) error {
	done()
	_ = g.Wait()
	return err
}
