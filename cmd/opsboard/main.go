package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opsboard/opsboard/internal/app"
)

// exitCodeError carries a non-zero exit status out of a command.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	if err == nil {
		return
	}
	var exit exitCodeError
	if errors.As(err, &exit) {
		stop()
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, err)
	stop()
	os.Exit(1)
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "opsboard",
		Short:         "Area-scoped operations board",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newJobsCommand())
	cmd.AddCommand(newIntegrityCommand())
	return cmd
}

// bootstrap loads configuration and builds the process logger.
func bootstrap() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, app.NewLogger(cfg), nil
}
