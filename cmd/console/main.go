// Package main is the entry point for the operator console.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/operator-console/internal/backend"
	"github.com/capitalize-ai/operator-console/internal/config"
	"github.com/capitalize-ai/operator-console/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "console",
	Short:         "Operator console sync core",
	Long:          "Keeps an operator's conversations, message history and live events in sync with the messaging backend,\nand serves them to the console UI over a local HTTP API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads and validates configuration, builds the logger, and resolves
// the operator id from the access token when it is not configured.
func setup() (*config.Config, *logger.Logger, error) {
	cfg := config.Load()

	if cfg.OperatorID == "" && cfg.OperatorToken != "" {
		id, err := backend.OperatorFromToken(cfg.OperatorToken)
		if err != nil {
			return nil, nil, err
		}
		cfg.OperatorID = id
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.Build(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobal(log)
	return cfg, log, nil
}

func newBackend(cfg *config.Config, log *logger.Logger) *backend.Client {
	return backend.New(backend.Config{
		BaseURL: cfg.BackendURL,
		Token:   cfg.OperatorToken,
		Timeout: cfg.BackendTimeout,
	}, log)
}
