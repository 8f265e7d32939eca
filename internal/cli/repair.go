package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"labcore/internal/core"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type repairFlags struct {
	dryRun      bool
	minAge      time.Duration
	schedule    string
	metricsAddr string
}

func newRepairCommand(opts *RootOptions) *cobra.Command {
	var f repairFlags
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Replay the link journal and heal asymmetric references",
		Long: `Replay reciprocal writes left by interrupted operations, then heal every
warn level violation: a missing reciprocal is added when the referenced
document exists, otherwise the dangling reference is removed.

With --schedule (or repair.schedule in the config) repair keeps running on
a cron schedule such as "@hourly" or "*/15 * * * *" until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				repairOpts := core.RepairOptions{DryRun: f.dryRun, MinAge: a.cfg.Repair.MinAge}
				if cmd.Flags().Changed("min-age") {
					repairOpts.MinAge = f.minAge
				}
				schedule := a.cfg.Repair.Schedule
				if cmd.Flags().Changed("schedule") {
					schedule = f.schedule
				}
				if schedule == "" {
					return runRepairOnce(ctx, cmd, opts, a, repairOpts)
				}
				return runRepairScheduled(ctx, cmd, a, schedule, f.metricsAddr, repairOpts)
			})
		},
	}
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "report what would change without writing")
	cmd.Flags().DurationVar(&f.minAge, "min-age", time.Minute, "skip journal records younger than this")
	cmd.Flags().StringVar(&f.schedule, "schedule", "", "cron schedule; empty runs once")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve metrics on this address while scheduled")
	return cmd
}

func runRepairOnce(ctx context.Context, cmd *cobra.Command, opts *RootOptions, a *app, repairOpts core.RepairOptions) error {
	report, err := a.svc.Reconcile(ctx, repairOpts)
	if err != nil {
		return err
	}
	err = newPrinter(opts, cmd.OutOrStdout()).value(report, func(w io.Writer) {
		fmt.Fprintf(w, "journal records: %d replayed, %d skipped\n", report.Journal, report.Skipped)
		fmt.Fprintf(w, "findings: %d, actions: %d, failed: %d\n", len(report.Findings), len(report.Actions), report.FailedCount)
		for _, act := range report.Actions {
			state := "applied"
			if !act.Applied {
				state = "planned"
			}
			if act.Error != "" {
				state = "failed: " + act.Error
			}
			fmt.Fprintf(w, "  %s %s/%s %s -> %s (%s)\n", act.Action, act.Kind, act.HolderID, act.Relation, act.TargetID, state)
		}
		if len(report.Remaining) > 0 {
			fmt.Fprintln(w, "remaining:")
			printViolations(w, report.Remaining)
		}
	})
	if err != nil {
		return err
	}
	if report.FailedCount > 0 || len(report.Remaining) > 0 {
		return NewExitError(ExitFailure, "repair left unresolved violations")
	}
	return nil
}

func runRepairScheduled(ctx context.Context, cmd *cobra.Command, a *app, schedule, metricsAddr string, repairOpts core.RepairOptions) error {
	rs, err := core.NewRepairScheduler(a.svc, schedule, repairOpts, a.cfg.Repair.Timeout)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid schedule", err)
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		if a.metrics == nil {
			return NewExitError(ExitCommandError, "--metrics-addr needs metrics.exporter expvar or prometheus")
		}
		ln, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			return WrapExitError(ExitCommandError, "listen for metrics", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics)
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.logger.Info("serving metrics", "addr", ln.Addr().String())
	}

	rs.Start()
	fmt.Fprintf(cmd.ErrOrStderr(), "repair scheduled %q, next run %s\n", schedule, rs.Next().Format(time.RFC3339))
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Repair.Timeout)
	defer cancel()
	return rs.Stop(stopCtx)
}
