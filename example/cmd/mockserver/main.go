// Standalone mock Syncano API for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/syncano poll -c example/syncano.yaml
//	go run ./cmd/syncano publish -c example/syncano.yaml --channel rooms --room lobby '{"text":"hi"}'
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/syncano/syncano-go/internal/fakeapi"
	"github.com/syncano/syncano-go/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fake := fakeapi.New(fakeapi.WithAPIKey("demo-key"), fakeapi.WithLogger(logger))
	fake.AddInstance("demo-app")
	for name, typ := range map[string]string{"chat": "default", "rooms": "separate_rooms"} {
		if err := fake.AddChannel("demo-app", name, typ); err != nil {
			logger.Error("failed to seed channel", "channel", name, "error", err)
			os.Exit(1)
		}
	}

	addr, err := fake.Start(ctx, ":9999")
	if err != nil {
		logger.Error("failed to start mock API", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Mock Syncano API on %s (api key demo-key)\n", addr)
	fmt.Println("Instance demo-app has channels chat and rooms; chat gets a message every few seconds")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fake.Emit("demo-app", "chat", store.Event{
				Action:  "custom",
				Payload: map[string]any{"temperature": 18 + rand.Intn(8)},
			})
		}
	}
}
