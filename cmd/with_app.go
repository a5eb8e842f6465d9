package cmd

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"goalsync/internal/bootstrap"
	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/errs"
	"goalsync/internal/usecase/livesync"
)

func withApp(run func(cmd *cobra.Command, app *bootstrap.App, svc *livesync.Service) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := logging.WithAttrs(
			cmd.Context(),
			slog.String("command", cmd.CommandPath()),
			slog.String("config_file", cfgFile),
		)

		var app *bootstrap.App
		var svc *livesync.Service
		fxApp := fx.New(
			bootstrap.Module,
			fx.NopLogger,
			fx.Provide(func() context.Context { return ctx }),
			fx.Provide(
				fx.Annotate(
					func() string { return cfgFile },
					fx.ResultTags(`name:"configFile"`),
				),
			),
			fx.Populate(&app, &svc),
		)

		startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
		defer cancelStart()
		if err := fxApp.Start(startCtx); err != nil {
			logging.Error(ctx, "bootstrap application failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "start fx application")
		}

		defer func() {
			stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelStop()
			if err := fxApp.Stop(stopCtx); err != nil {
				logging.Error(ctx, "fx application stop failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		applyLogConfig(cmd, app)

		if err := run(cmd, app, svc); err != nil {
			return errs.Wrap(err, "run command")
		}
		return nil
	}
}

// applyLogConfig switches the command logger to the configured level and
// format.
func applyLogConfig(cmd *cobra.Command, app *bootstrap.App) {
	logLevel.Set(logging.ParseLevel(app.Config.Log.Level))
	if strings.EqualFold(strings.TrimSpace(app.Config.Log.Format), "json") {
		logger := logging.NewLogger(cmd.ErrOrStderr(), logLevel, "json")
		cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
	}
}
