package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	syncano "github.com/syncano/syncano-go"
	"github.com/syncano/syncano-go/config"
)

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish PAYLOAD",
		Short: "Publish a message to a channel",
		Long: `Publish a custom message to a channel. PAYLOAD is a JSON object.

The created event is printed as JSON.

Example:
  syncano publish -c syncano.yaml --channel chat '{"text":"hello"}'
  syncano publish -c syncano.yaml --channel rooms --room lobby '{"text":"hi"}'`,
		Args: cobra.ExactArgs(1),
		RunE: runPublish,
	}

	cmd.Flags().String("channel", "", "channel name (required)")
	cmd.Flags().String("room", "", "room of a separate_rooms channel")
	cmd.Flags().String("instance", "", "instance name (defaults to the config's)")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func runPublish(cmd *cobra.Command, args []string) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(args[0]), &payload); err != nil {
		return fmt.Errorf("payload must be a JSON object: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(cmd.ErrOrStderr(), verbose)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	name, _ := cmd.Flags().GetString("channel")
	room, _ := cmd.Flags().GetString("room")
	instance, _ := cmd.Flags().GetString("instance")
	if instance == "" {
		// unconfigured channels fall back to the top-level instance
		ch, _ := cfg.Channel(name)
		instance = cfg.InstanceOf(ch)
	}
	if instance == "" {
		return fmt.Errorf("no instance: set --instance or instance in the config")
	}

	client, err := syncano.New(config.BuildClientOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	ch, err := client.Channels(instance).Get(cmd.Context(), syncano.Params{"name": name})
	if err != nil {
		return fmt.Errorf("failed to get channel %s/%s: %w", instance, name, err)
	}
	ev, err := ch.Publish(cmd.Context(), payload, room)
	if err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(ev)
}
