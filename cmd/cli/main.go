package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/app"
	"github.com/hamed0406/tablealert/internal/config"
	"github.com/hamed0406/tablealert/internal/domain"
	"github.com/hamed0406/tablealert/internal/logging"
	"github.com/hamed0406/tablealert/internal/probe"
	"github.com/hamed0406/tablealert/internal/repo"
	"github.com/hamed0406/tablealert/internal/repo/postgres"
	"github.com/hamed0406/tablealert/internal/resolver"
	"github.com/hamed0406/tablealert/internal/scheduler"
)

// maxDrainPasses bounds "outbox drain" when records keep failing to be marked.
const maxDrainPasses = 100

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "tablealert",
		Short:         "Operate the table alert service from the shell",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "also write logs to stderr")

	withApp := func(run func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) (err error) {
			cfg := config.FromEnv()
			logger, err := logging.NewLogger(cfg.LogDir, verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := app.Build(cmd.Context(), cfg, logger.With(zap.String("cmd", cmd.Name())))
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.Close(context.Background())) }()
			return run(cmd.Context(), cmd, a, args)
		}
	}

	root.AddCommand(resolveCmd(withApp), creditsCmd(withApp), outboxCmd(withApp), probeCmd(withApp), migrateCmd())
	return root
}

type appRunner func(run func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error

func resolveCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve EMAIL",
		Short: "Resolve the alert status for an email the way the alert-submitted page does",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			d := a.Resolver.Resolve(ctx, resolver.Input{QueryEmail: args[0]})
			return printJSON(cmd, map[string]any{
				"action":    d.Action,
				"status":    d.Status,
				"email":     d.Email,
				"attempts":  d.Attempts,
				"handoffId": d.HandoffID,
			})
		}),
	}
}

func creditsCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "credits EMAIL",
		Short: "Show the credit balance of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			email := domain.NormalizeEmail(args[0])
			if email == "" {
				return errors.New("email is empty")
			}
			n, err := a.Credits.Credits(ctx, email)
			if errors.Is(err, repo.ErrNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no profile\n", email)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", email, n)
			return nil
		}),
	}
}

func outboxCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and work off queued side effects",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "drain",
		Short: "Run every due side effect now and exit",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			w := a.Worker
			if w == nil {
				w = scheduler.NewOutboxWorker(a.Logger, a.Queue, a.Steps, a.Ops, scheduler.OutboxConfig{
					MaxAttempts: a.Config.OutboxMaxAttempts,
				})
			}
			total, err := drain(ctx, w)
			fmt.Fprintf(cmd.OutOrStdout(), "done=%d retried=%d failed=%d\n", total.Done, total.Retried, total.Failed)
			return err
		}),
	})
	return cmd
}

type passRunner interface {
	RunOnce(ctx context.Context) (scheduler.PassStats, error)
}

// drain repeats passes until one finishes or fails nothing. Retried records
// are scheduled in the future, so they do not keep the loop alive.
func drain(ctx context.Context, w passRunner) (scheduler.PassStats, error) {
	var total scheduler.PassStats
	for i := 0; i < maxDrainPasses; i++ {
		st, err := w.RunOnce(ctx)
		total.Done += st.Done
		total.Retried += st.Retried
		total.Failed += st.Failed
		if err != nil {
			return total, err
		}
		if st.Done+st.Failed == 0 {
			break
		}
	}
	return total, nil
}

func probeCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check every configured dependency once",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			results := a.Watcher.RunOnce(ctx)
			for _, r := range results {
				mark := "ok  "
				if !r.Success {
					mark = "FAIL"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-12s %7.1fms %s\n", mark, r.Name, r.LatencyMS, r.Message)
			}
			if !probe.Healthy(results) {
				return errors.New("one or more dependencies are down")
			}
			return nil
		}),
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations to DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
