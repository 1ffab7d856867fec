package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	syncano "github.com/syncano/syncano-go"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start mock API (see mock_server.go)
	addr, err := StartMockSyncano(ctx, "127.0.0.1:0", logger)
	if err != nil {
		logger.Error("failed to start mock API", "error", err)
		os.Exit(1)
	}

	client, err := syncano.New(
		syncano.WithAPIKey(demoAPIKey),
		syncano.WithBaseURL("http://"+addr.String()),
		syncano.WithLogger(logger),
		syncano.WithPollBackoff(200*time.Millisecond, 5*time.Second),
	)
	if err != nil {
		logger.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	chat, err := client.Channels(demoInstance).Get(ctx, syncano.Params{"name": "chat"})
	if err != nil {
		logger.Error("failed to get channel", "error", err)
		os.Exit(1)
	}

	session := chat.Poll()
	_ = session.On(syncano.EventMessage, func(ev syncano.ChannelEvent) {
		fmt.Printf("  #%d  %v\n", ev.ID, ev.Payload["text"])
	})
	session.OnStart(func() { fmt.Println("  polling chat, press Ctrl+C to stop") })
	session.OnStop(func() { fmt.Println("  stopped") })

	fmt.Println()
	fmt.Println("  Syncano channel polling demo")
	fmt.Printf("  mock API on http://%s\n", addr)
	fmt.Println()

	if err := session.Start(context.Background()); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	// say something ourselves once the session is listening
	go func() {
		time.Sleep(500 * time.Millisecond)
		if _, err := chat.Publish(ctx, map[string]any{"text": "hi from the demo"}, ""); err != nil {
			logger.Warn("publish failed", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		// finishes the in-flight poll, at most one poll window
		session.Stop()
		_ = session.Wait()
	case <-session.Done():
		if err := session.Err(); err != nil {
			logger.Error("session failed", "error", err)
			os.Exit(1)
		}
	}
}
