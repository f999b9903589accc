package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/cleaniit/internal/health"
)

var errPreflightFailed = errors.New("preflight checks failed")

func newCheckCmd(d deps, f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the database is reachable and the kill command is executable",
		Long: `Run the preflight checks without touching any session:

  database      connect with the CLEANIIT_* settings and ping
  kill_command  the first word of CLEANIIT_KILL_COMMAND resolves to an executable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), d, *f)
		},
	}
}

func runCheck(ctx context.Context, d deps, f rootFlags) error {
	cfg, err := d.loadConfig()
	if err != nil {
		return err
	}
	logger, err := setupLogger(cfg, f.logLevel, f.debug, d.stderr)
	if err != nil {
		return err
	}

	checker := health.NewChecker(cfg.ConnectTimeout, logger)
	checker.Register("database", func(ctx context.Context) error {
		src, err := d.connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		src.Close()
		return nil
	})
	checker.Register("kill_command", health.ExecutableCheck(cfg.KillCommand[0]))

	results := checker.RunAll(ctx)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(d.stdout, "%-14s %-5s %v\n", r.Name, r.Status, r.Err)
			continue
		}
		fmt.Fprintf(d.stdout, "%-14s %-5s %s\n", r.Name, r.Status, r.Duration.Round(time.Millisecond))
	}
	if !health.AllOK(results) {
		return errPreflightFailed
	}
	return nil
}
