package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"goalsync/internal/bootstrap"
	"goalsync/internal/bootstrap/config"
	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/errs"
	"goalsync/internal/usecase/livesync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile stored events with the live feed",
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tick and watchdog loops until interrupted",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *livesync.Service) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		if err := requireSchema(ctx, app); err != nil {
			return err
		}

		once, _ := cmd.Flags().GetBool("once")
		applyOverrides := func(options livesync.Options) livesync.Options {
			if cmd.Flags().Changed("tick-interval") {
				options.TickInterval, _ = cmd.Flags().GetDuration("tick-interval")
			}
			if cmd.Flags().Changed("watchdog-interval") {
				options.WatchdogInterval, _ = cmd.Flags().GetDuration("watchdog-interval")
			}
			return options
		}
		svc.UpdateOptions(applyOverrides(bootstrap.LiveSyncOptions(app.Config)))

		if once {
			tick, tickErr := svc.RunTick(ctx)
			sweep, sweepErr := svc.RunSweep(ctx)
			if err := printTick(cmd.OutOrStdout(), tick); err != nil {
				return err
			}
			if err := printSweep(cmd.OutOrStdout(), sweep); err != nil {
				return err
			}
			if tickErr != nil {
				return errs.Wrap(tickErr, "run tick")
			}
			return errs.Wrap(sweepErr, "run sweep")
		}

		if err := config.Watch(ctx, cfgFile, func(cfg config.Config) {
			logLevel.Set(logging.ParseLevel(cfg.Log.Level))
			svc.UpdateOptions(applyOverrides(bootstrap.LiveSyncOptions(cfg)))
		}); err != nil {
			logging.Warn(ctx, "config hot reload disabled", slog.Any("err", errs.Loggable(err)))
		}

		return svc.Run(ctx)
	}),
}

var syncTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one reconciliation tick",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *livesync.Service) error {
		if err := requireSchema(cmd.Context(), app); err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		result, err := svc.RunTick(cmd.Context())
		if writeErr := writeOutput(cmd.OutOrStdout(), output, result, func(w io.Writer) error {
			return printTick(w, result)
		}); writeErr != nil {
			return writeErr
		}
		return errs.Wrap(err, "run tick")
	}),
}

var syncSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one watchdog sweep over stale events",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *livesync.Service) error {
		if err := requireSchema(cmd.Context(), app); err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		result, err := svc.RunSweep(cmd.Context())
		if writeErr := writeOutput(cmd.OutOrStdout(), output, result, func(w io.Writer) error {
			return printSweep(w, result)
		}); writeErr != nil {
			return writeErr
		}
		return errs.Wrap(err, "run sweep")
	}),
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last tick and sweep summaries",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *livesync.Service) error {
		output, _ := cmd.Flags().GetString("output")
		report, err := svc.Status(cmd.Context())
		if err != nil {
			return errs.Wrap(err, "read sync status")
		}
		version, err := app.SchemaVersion(cmd.Context())
		if err != nil {
			return errs.Wrap(err, "read schema version")
		}

		return writeOutput(cmd.OutOrStdout(), output, report, func(w io.Writer) error {
			if _, err := fmt.Fprintf(w, "schema version: %s\n", firstNonEmpty(version, "not initialized")); err != nil {
				return err
			}
			if report.LastTick == nil {
				_, err := fmt.Fprintln(w, "last tick: none")
				if err != nil {
					return err
				}
			} else if err := printTick(w, *report.LastTick); err != nil {
				return err
			}
			if report.LastSweep == nil {
				_, err := fmt.Fprintln(w, "last sweep: none")
				return err
			}
			return printSweep(w, *report.LastSweep)
		})
	}),
}

func requireSchema(ctx context.Context, app *bootstrap.App) error {
	version, err := app.SchemaVersion(ctx)
	if err != nil {
		return errs.Wrap(err, "read schema version")
	}
	if version == "" {
		return errors.New("database schema not initialized, run init-db first")
	}
	return nil
}

func printTick(w io.Writer, result livesync.TickResult) error {
	_, err := fmt.Fprintf(w, "tick %s at %s: fetched=%d deferred=%d skipped_retired=%d flagged=%d timed_out=%v %s%s\n",
		result.TickID,
		result.StartedAt.Format(time.RFC3339),
		result.Fetched,
		result.Deferred,
		result.Skipped,
		result.Flagged,
		result.TimedOut,
		outcomeLine(result.Outcomes),
		errorSuffix(result.Error),
	)
	return errs.Wrap(err, "write tick summary")
}

func printSweep(w io.Writer, result livesync.SweepResult) error {
	_, err := fmt.Fprintf(w, "sweep %s at %s: candidates=%d readmission_requests=%d %s%s\n",
		result.SweepID,
		result.StartedAt.Format(time.RFC3339),
		result.Candidates,
		result.Readmit,
		outcomeLine(result.Outcomes),
		errorSuffix(result.Error),
	)
	return errs.Wrap(err, "write sweep summary")
}

func outcomeLine(outcomes map[livesync.Outcome]int) string {
	keys := make([]string, 0, len(outcomes))
	for outcome := range outcomes {
		keys = append(keys, string(outcome))
	}
	sort.Strings(keys)
	line := ""
	for _, key := range keys {
		line += fmt.Sprintf("%s=%d ", key, outcomes[livesync.Outcome(key)])
	}
	return line
}

func errorSuffix(message string) string {
	if message == "" {
		return ""
	}
	return "error=" + message
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncRunCmd, syncTickCmd, syncSweepCmd, syncStatusCmd)

	syncRunCmd.Flags().Bool("once", false, "Run a single tick and sweep, then exit")
	syncRunCmd.Flags().Duration("tick-interval", time.Minute, "Override sync.tick_interval")
	syncRunCmd.Flags().Duration("watchdog-interval", 5*time.Minute, "Override watchdog.interval")
	for _, command := range []*cobra.Command{syncTickCmd, syncSweepCmd, syncStatusCmd} {
		command.Flags().StringP("output", "o", "text", "Output format: text|json|yaml")
	}
}
