package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	syncano "github.com/syncano/syncano-go"
	"github.com/syncano/syncano-go/config"
)

func newChannelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List the channels of an instance",
		Long: `List every channel of the configured instance with its type,
permissions and age.

Example:
  syncano channels -c syncano.yaml
  syncano channels -c syncano.yaml --instance other-app`,
		Args: cobra.NoArgs,
		RunE: runChannels,
	}

	cmd.Flags().String("instance", "", "instance name (defaults to the config's)")
	cmd.Flags().Int("page-size", 50, "channels fetched per request")
	return cmd
}

func runChannels(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(cmd.ErrOrStderr(), verbose)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	instance, _ := cmd.Flags().GetString("instance")
	if instance == "" {
		instance = cfg.Instance
	}
	if instance == "" {
		return fmt.Errorf("no instance: set --instance or instance in the config")
	}
	pageSize, _ := cmd.Flags().GetInt("page-size")

	client, err := syncano.New(config.BuildClientOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	channels, err := client.Channels(instance).All(cmd.Context(), nil, syncano.PageSize(pageSize))
	if err != nil {
		return fmt.Errorf("failed to list channels: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tGROUP\tOTHER\tCREATED")
	for _, ch := range channels {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ch.Name, ch.Type, ch.GroupPermissions, ch.OtherPermissions, age(ch.CreatedAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s channels in %s\n", humanize.Comma(int64(len(channels))), instance)
	return nil
}

// age renders an API timestamp relative to now, or as-is if it does not
// parse.
func age(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}
