// Package main is the entry point for the syncano CLI.
//
// Usage:
//
//	syncano poll -c syncano.yaml                 # stream channel events as JSON lines
//	syncano publish -c syncano.yaml --channel X '{"text":"hi"}'
//	syncano channels -c syncano.yaml             # list channels of the instance
//	syncano validate -c syncano.yaml             # check a config file
//	syncano version
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/syncano/syncano-go/config"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigFile = "syncano.yaml"

// newRootCmd builds the command tree. A fresh tree per invocation keeps flag
// state from leaking between runs in tests.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "syncano",
		Short: "Command line client for Syncano channels",
		Long: `syncano talks to the Syncano API using a YAML config file.

It long-polls channels and prints their events, publishes messages and
lists the channels of an instance.

Example config:
  api_key: ${SYNCANO_API_KEY}
  instance: demo-app
  channels:
    - name: chat

A .env file in the working directory is loaded before the config is read.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return loadEnvFile(envFile)
		},
	}

	root.PersistentFlags().StringP("config", "c", defaultConfigFile, "path to config file")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the config, if present")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newPollCmd(),
		newPublishCmd(),
		newChannelsCmd(),
		newValidateCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of this syncano binary.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "syncano %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// loadEnvFile loads path into the environment. Variables already set win.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// newLogger creates a JSON logger on w for CLI use.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the file named by the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
