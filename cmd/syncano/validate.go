package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate a syncano configuration file without contacting the API.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  syncano validate -c syncano.yaml`,
		Args: cobra.NoArgs,
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	auth := "api key"
	switch {
	case cfg.APIKey != "" && cfg.UserKey != "":
		auth = "api key + user key"
	case cfg.APIKey == "":
		auth = "user key"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Base URL:  %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  Auth:      %s\n", auth)
	fmt.Fprintf(out, "  Instance:  %s\n", valueOr(cfg.Instance, "(none)"))
	fmt.Fprintf(out, "  Timeout:   %s\n", cfg.RequestTimeout.Duration())
	if b := cfg.Backoff; b != nil {
		fmt.Fprintf(out, "  Backoff:   %s..%s ±%.0f%%\n", b.Base.Duration(), b.Max.Duration(), b.Jitter*100)
	}
	fmt.Fprintf(out, "  Channels:  %d\n", len(cfg.Channels))
	for _, ch := range cfg.Channels {
		fmt.Fprintf(out, "    - %s/%s", cfg.InstanceOf(ch), ch.Name)
		if ch.Room != "" {
			fmt.Fprintf(out, " room=%s", ch.Room)
		}
		if ch.StartAfter != nil {
			fmt.Fprintf(out, " start_after=%d", *ch.StartAfter)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
