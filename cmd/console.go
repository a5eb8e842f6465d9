package cmd

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"goalsync/internal/bootstrap"
	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/errs"
	"goalsync/internal/usecase/liveconsole"
	"goalsync/internal/usecase/livesync"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Terminal console commands",
}

var consoleLiveCmd = &cobra.Command{
	Use:   "live",
	Short: "Start the live events board",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *livesync.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		limit, _ := cmd.Flags().GetInt("limit")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")

		model := liveconsole.NewBoardModel(ctx, svc, liveconsole.BoardOptions{
			Limit:           limit,
			RefreshInterval: refreshInterval,
		})

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run live console")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.AddCommand(consoleLiveCmd)
	consoleLiveCmd.Flags().Int("limit", 50, "Maximum number of live events shown")
	consoleLiveCmd.Flags().Duration("refresh-interval", 5*time.Second, "Auto refresh interval")
}
