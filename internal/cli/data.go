package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conorfennell/blunderfix/internal/trainer"
)

// ExportCmd returns the export command.
func ExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write all data to a JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			tmp, err := os.CreateTemp(filepath.Dir(args[0]), ".blunderfix-export-*")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())
			if err := a.svc.Export(tmp); err != nil {
				tmp.Close()
				return err
			}
			if err := tmp.Close(); err != nil {
				return err
			}
			if err := os.Rename(tmp.Name(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", args[0])
			return nil
		}),
	}
}

// RestoreCmd returns the restore command.
func RestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Replace all data with a JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			res, err := a.svc.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s, %s, %s, %s\n", color.New(color.FgGreen).Sprint("Restored"),
				plural(res.Games, "game"), plural(res.Positions, "position"), plural(res.Cards, "card"), plural(res.Reviews, "review"))
			return nil
		}),
	}
}

// ResetCmd returns the reset command.
func ResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <username>",
		Short: "Delete a user's analysis so the games can be analysed again",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			res, err := a.svc.ResetAnalysis(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s, deleted %s\n", plural(res.GamesReset, "game"), plural(res.PositionsDeleted, "position"))
			return nil
		}),
	}
}

// ClearCmd returns the clear command.
func ClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete one user's data or everything",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			user, _ := cmd.Flags().GetString("user")
			all, _ := cmd.Flags().GetBool("all")

			var (
				res trainer.ClearResult
				err error
			)
			if all {
				res, err = a.svc.ClearAll(cmd.Context())
			} else {
				res, err = a.svc.ClearUser(cmd.Context(), user)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s, %s, %s, %s\n", color.New(color.FgRed).Sprint("Deleted"),
				plural(res.Games, "game"), plural(res.Positions, "position"), plural(res.Cards, "card"), plural(res.Reviews, "review"))
			return nil
		}),
	}
	cmd.Flags().String("user", "", "delete this user's games and everything derived from them")
	cmd.Flags().Bool("all", false, "delete everything")
	cmd.MarkFlagsMutuallyExclusive("user", "all")
	cmd.MarkFlagsOneRequired("user", "all")
	return cmd
}
