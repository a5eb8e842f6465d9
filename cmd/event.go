package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"goalsync/internal/bootstrap"
	"goalsync/internal/domain/match"
	"goalsync/internal/errs"
	"goalsync/internal/usecase/livesync"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Read stored match events",
}

var eventShowCmd = &cobra.Command{
	Use:   "show <event-id>",
	Short: "Show one event and its lifecycle log",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *livesync.Service) error {
		output, _ := cmd.Flags().GetString("output")
		limit, _ := cmd.Flags().GetInt("transitions")

		detail, err := svc.GetEvent(cmd.Context(), cmd.Flags().Arg(0), limit)
		if err != nil {
			return errs.Wrap(err, "show event")
		}
		return writeOutput(cmd.OutOrStdout(), output, detail, func(w io.Writer) error {
			return printEventDetail(w, detail)
		})
	}),
}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored events",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *livesync.Service) error {
		output, _ := cmd.Flags().GetString("output")
		rawStates, _ := cmd.Flags().GetStringSlice("state")
		includeRetired, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		states := make([]match.State, 0, len(rawStates))
		for _, raw := range rawStates {
			state, err := match.ParseState(raw)
			if err != nil {
				return err
			}
			states = append(states, state)
		}

		records, err := svc.ListEvents(cmd.Context(), livesync.ListInput{
			States:         states,
			IncludeRetired: includeRetired,
			Limit:          limit,
		})
		if err != nil {
			return errs.Wrap(err, "list events")
		}
		return writeOutput(cmd.OutOrStdout(), output, records, func(w io.Writer) error {
			return printEventTable(w, records)
		})
	}),
}

func printEventDetail(w io.Writer, detail livesync.EventDetail) error {
	record := detail.Record
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"id", record.ID},
		{"state", fmt.Sprintf("%s (code %d)", record.State, record.ProviderStatusCode)},
		{"minute", minuteText(record)},
		{"score", fmt.Sprintf("%d-%d (ht %d-%d, ot %d-%d, pen %d-%d)",
			record.Score.Home.Regular, record.Score.Away.Regular,
			record.Score.Home.HalfTime, record.Score.Away.HalfTime,
			record.Score.Home.Overtime, record.Score.Away.Overtime,
			record.Score.Home.Penalties, record.Score.Away.Penalties)},
		{"scheduled", epochText(&record.ScheduledStartTime)},
		{"first half", epochText(record.FirstPeriodStartTime)},
		{"second half", epochText(record.SecondPeriodStartTime)},
		{"terminal seen", epochText(record.TerminalObservedAt)},
		{"confirmed", epochText(record.ConfirmedFinishedAt)},
		{"readmission", epochText(record.ReadmissionRequestedAt)},
		{"provider update", epochText(record.LastProviderUpdateTime)},
		{"reconciled", epochText(record.LastReconciledAt)},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return errs.Wrap(err, "write event detail")
		}
	}
	if err := tw.Flush(); err != nil {
		return errs.Wrap(err, "flush event detail")
	}

	if _, err := fmt.Fprintln(w, "\ntransitions:"); err != nil {
		return errs.Wrap(err, "write transitions")
	}
	if len(detail.Transitions) == 0 {
		_, err := fmt.Fprintln(w, "  none")
		return errs.Wrap(err, "write transitions")
	}
	for _, transition := range detail.Transitions {
		if _, err := fmt.Fprintf(w, "  %s  %s -> %s  %s (%s)\n",
			epochText(&transition.ObservedAt), transition.From, transition.To, transition.Kind, transition.Source); err != nil {
			return errs.Wrap(err, "write transitions")
		}
	}
	return nil
}

func printEventTable(w io.Writer, records []match.EventRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tSTATE\tMINUTE\tSCORE\tRECONCILED"); err != nil {
		return errs.Wrap(err, "write event table")
	}
	for _, record := range records {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%d-%d\t%s\n",
			record.ID, record.State, minuteText(record),
			record.Score.Home.Regular, record.Score.Away.Regular,
			epochText(record.LastReconciledAt)); err != nil {
			return errs.Wrap(err, "write event table")
		}
	}
	return errs.Wrap(tw.Flush(), "flush event table")
}

func minuteText(record match.EventRecord) string {
	if record.ElapsedMinuteText != nil && strings.TrimSpace(*record.ElapsedMinuteText) != "" {
		return *record.ElapsedMinuteText
	}
	if record.ElapsedMinute != nil {
		return fmt.Sprintf("%d'", *record.ElapsedMinute)
	}
	return "-"
}

func epochText(value *int64) string {
	if value == nil || *value <= 0 {
		return "-"
	}
	return time.Unix(*value, 0).UTC().Format(time.RFC3339)
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(eventShowCmd, eventListCmd)

	eventShowCmd.Flags().StringP("output", "o", "text", "Output format: text|json|yaml")
	eventShowCmd.Flags().Int("transitions", 20, "Number of recent transitions to show")

	eventListCmd.Flags().StringP("output", "o", "text", "Output format: text|json|yaml")
	eventListCmd.Flags().StringSlice("state", nil, "Filter by state (repeatable)")
	eventListCmd.Flags().Bool("all", false, "Include confirmed finished events")
	eventListCmd.Flags().Int("limit", 100, "Maximum number of events")
}
