/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/errs"
)

var cfgFile string

// logLevel is shared by every logger the CLI builds so config reloads can
// change verbosity in place.
var logLevel = new(slog.LevelVar)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "goalsync",
	Short:        "Live match event reconciliation",
	Long:         "Keeps stored football events in line with a live provider feed: derived minutes, lifecycle confirmation and a stale-event watchdog.",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	logLevel.Set(slog.LevelInfo)
	logger := logging.NewLogger(rootCmd.ErrOrStderr(), logLevel, "text")
	ctx = logging.WithLogger(ctx, logger)
	ctx = logging.WithAttrs(ctx, slog.String("app", "goalsync"))

	rootCmd.SetContext(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error(ctx, "command execution failed", slog.Any("err", errs.Loggable(err)))
		return errs.Wrap(err, "execute root command")
	}

	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.yaml", "Config file path")
}
