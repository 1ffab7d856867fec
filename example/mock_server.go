package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/syncano/syncano-go/internal/fakeapi"
	"github.com/syncano/syncano-go/internal/store"
)

const (
	demoAPIKey   = "demo-key"
	demoInstance = "demo-app"
)

var demoMessages = []string{"hello", "anyone here?", "deploy finished", "coffee?", "brb"}

// StartMockSyncano serves a fake Syncano API on addr until ctx is done. It
// has one instance with a "chat" channel that receives a message every one
// to three seconds.
func StartMockSyncano(ctx context.Context, addr string, logger *slog.Logger) (net.Addr, error) {
	fake := fakeapi.New(
		fakeapi.WithAPIKey(demoAPIKey),
		fakeapi.WithPollWindow(10*time.Second),
		fakeapi.WithLogger(logger),
	)
	fake.AddInstance(demoInstance)
	if err := fake.AddChannel(demoInstance, "chat", "default"); err != nil {
		return nil, fmt.Errorf("seeding chat channel: %w", err)
	}

	bound, err := fake.Start(ctx, addr)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(1000+rand.Intn(2000)) * time.Millisecond):
			}
			ev := fake.Emit(demoInstance, "chat", store.Event{
				Action:  "custom",
				Payload: map[string]any{"text": demoMessages[rand.Intn(len(demoMessages))]},
			})
			logger.Debug("mock message published", "id", ev.ID)
		}
	}()

	return bound, nil
}
