package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conorfennell/blunderfix/internal/trainer"
)

// UsersCmd returns the users command.
func UsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users with their card counts",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			users, err := a.svc.EnsureCardsAndGetUsers(cmd.Context(), a.cfg.Filter.Severity())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users yet. Import some games first.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USER\tGAMES\tPOSITIONS\tMATCHING\tDUE")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", u.Username, u.Games, u.Positions, u.Blunders, dueLabel(u.DueTotal))
			}
			return tw.Flush()
		}),
	}
}

// StatsCmd returns the stats command.
func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <username>",
		Short: "Show a user's card counts",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			s, err := a.svc.Stats(cmd.Context(), args[0], a.cfg.Filter.Severity())
			if err != nil {
				return err
			}
			printStats(cmd, s)
			return nil
		}),
	}
}

func printStats(cmd *cobra.Command, s trainer.Stats) {
	bold := color.New(color.Bold)
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", bold.Sprint(s.Username))
	fmt.Fprintf(cmd.OutOrStdout(), "  games:      %d\n", s.Games)
	fmt.Fprintf(cmd.OutOrStdout(), "  positions:  %d\n", s.Positions)
	fmt.Fprintf(cmd.OutOrStdout(), "  matching:   %d\n", s.Blunders)
	fmt.Fprintf(cmd.OutOrStdout(), "  due:        %s\n", dueLabel(s.DueTotal))
	fmt.Fprintf(cmd.OutOrStdout(), "    wrong:    %d\n", s.WrongDue)
	fmt.Fprintf(cmd.OutOrStdout(), "    review:   %d\n", s.ReviewDue)
	fmt.Fprintf(cmd.OutOrStdout(), "    new:      %d\n", s.NewDue)
}

func dueLabel(n int) string {
	if n == 0 {
		return color.New(color.FgGreen).Sprint("0")
	}
	return color.New(color.FgYellow).Sprintf("%d", n)
}

// SessionCmd returns the session command.
func SessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session <username>",
		Short: "Show statistics for the current review session",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			breakMinutes := a.cfg.Review.SessionBreakMinutes
			if cmd.Flags().Changed("break") {
				breakMinutes, _ = cmd.Flags().GetInt("break")
			}
			s, err := a.svc.SessionStats(args[0], breakMinutes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reviewed %s, %s correct, %s wrong\n",
				plural(s.Reviewed, "card"),
				color.New(color.FgGreen).Sprint(s.Correct),
				color.New(color.FgRed).Sprint(s.Wrong))
			fmt.Fprintf(cmd.OutOrStdout(), "Streak %d (best %d)\n", s.Streak, s.BestStreak)
			return nil
		}),
	}
	cmd.Flags().Int("break", trainer.DefaultBreakMinutes, "minutes without reviews that end a session")
	return cmd
}

// DaysCmd returns the days command.
func DaysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "days <username>",
		Short: "Show review history per day",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			window := a.cfg.Review.DayWindowDays
			if cmd.Flags().Changed("days") {
				window, _ = cmd.Flags().GetInt("days")
			}
			d, err := a.svc.DayStats(args[0], window)
			if err != nil {
				return err
			}
			sum := d.Summary
			fmt.Fprintf(cmd.OutOrStdout(), "%s reviews: again %d, hard %d, good %d, easy %d\n",
				color.New(color.Bold).Sprint(sum.TotalReviews), sum.Again, sum.Hard, sum.Good, sum.Easy)
			fmt.Fprintf(cmd.OutOrStdout(), "Retention %.1f%%, average interval %.2f days\n", sum.RetentionPct, sum.AvgIntervalDays)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DAY\tREVIEWS\tCORRECT\tRETENTION")
			for _, b := range d.ByDay {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f%%\n", b.Day, b.Reviews, b.Correct, b.RetentionPct)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, label := range trainer.IntervalBuckets {
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %d\n", label, d.IntervalBuckets[label])
			}
			return nil
		}),
	}
	cmd.Flags().Int("days", trainer.DefaultWindowDays, "number of days to list")
	return cmd
}
