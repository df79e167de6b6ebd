// Command pathctl seeds the relationship graph and runs path rankings from the shell.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/config"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pathctl",
		Short:         "Seed the relationship graph and rank connection paths",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDatagenCmd(), newIngestCmd(), newQueryCmd())
	return root
}

// loadEnv reads configuration and builds a logger on stderr so stdout stays parseable.
func loadEnv(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging).With("component", cmd.Name())
	return cfg, logger, nil
}
