package main

import (
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/opsboard/opsboard/cmd/opsboard/cli"
	"github.com/opsboard/opsboard/internal/areas"
	"github.com/opsboard/opsboard/internal/platform/db"
	"github.com/opsboard/opsboard/jobs"
	"github.com/opsboard/opsboard/migrations"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			if err := migrations.Up(cmd.Context(), cfg.PGDSN, logger); err != nil {
				logger.Error("migrate", slog.Any("error", err))
				return err
			}
			return nil
		},
	}
}

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	trigger := &cobra.Command{
		Use:       "run <task>",
		Short:     "Enqueue a job immediately",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskAreasIntegrity, jobs.TaskAreasWarm},
		RunE: func(cmd *cobra.Command, args []string) error {
			jobsCLI, err := openJobsCLI()
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			info, err := jobsCLI.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobsCLI, err := openJobsCLI()
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			for _, queue := range []string{jobs.QueueDefault, jobs.QueueMaintenance} {
				s, err := jobsCLI.InspectQueue(queue)
				if err != nil {
					return fmt.Errorf("inspect %s: %w", queue, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
					s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
			}
			return nil
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}

func openJobsCLI() (*cli.JobsCLI, error) {
	cfg, _, err := bootstrap()
	if err != nil {
		return nil, err
	}
	return cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}), nil
}

func newIntegrityCommand() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "integrity",
		Short: "Check the area tree for broken path invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			pool, err := db.New(cmd.Context(), cfg.PGDSN, db.Options{MaxConns: 2})
			if err != nil {
				logger.Error("connect postgres", slog.Any("error", err))
				return err
			}
			defer pool.Close()

			service := areas.NewService(areas.NewRepository(pool), nil, nil, logger)
			code := cli.IntegrityCommand(cmd.Context(), service, cli.IntegrityOptions{
				JSONOutput: jsonOutput,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			})
			if code != 0 {
				return exitCodeError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the report as JSON")
	return cmd
}
