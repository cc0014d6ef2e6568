package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conorfennell/blunderfix/internal/domain"
	"github.com/conorfennell/blunderfix/internal/importer"
	"github.com/conorfennell/blunderfix/internal/sync"
)

// ImportCmd returns the import command, which fetches recent games from an
// online archive.
func ImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "import <lichess|chesscom> <username>",
		Short:     "Import recent games from Lichess or Chess.com",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(domain.SourceLichess), string(domain.SourceChessCom)},
		RunE:      withApp(runImport),
	}
	cmd.Flags().Int("max", 0, "maximum number of games to fetch (default from config)")
	return cmd
}

func runImport(cmd *cobra.Command, args []string, a *app) error {
	maxGames, _ := cmd.Flags().GetInt("max")
	imports := a.importer()
	id, err := imports.Start(importer.StartRequest{
		Source:   domain.Source(args[0]),
		Username: args[1],
		MaxGames: maxGames,
	})
	if err != nil {
		return err
	}

	stop := context.AfterFunc(cmd.Context(), func() { imports.Cancel(id) })
	defer stop()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	last := ""
	for {
		p, err := imports.Progress(id)
		if err != nil {
			return err
		}
		if p.Message != last {
			fmt.Fprintln(cmd.ErrOrStderr(), p.Message)
			last = p.Message
		}
		if p.Terminal() {
			imports.Wait()
			return reportJob(cmd, p)
		}
		<-ticker.C
	}
}

func reportJob(cmd *cobra.Command, p importer.Progress) error {
	switch p.State {
	case importer.JobDone:
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s for %s, %d already known\n",
			color.New(color.FgGreen).Sprint("Imported"), plural(p.Imported, "game"), p.Username, p.Skipped)
		return nil
	case importer.JobCancelled:
		fmt.Fprintf(cmd.OutOrStdout(), "%s after %s\n", color.New(color.FgYellow).Sprint("Cancelled"), plural(p.Imported, "game"))
		return nil
	}
	if p.Error != nil {
		return fmt.Errorf("import failed: %s", *p.Error)
	}
	return fmt.Errorf("import failed")
}

// ImportPGNCmd returns the import-pgn command.
func ImportPGNCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-pgn <file>",
		Short: "Import the games of a PGN file",
		Long: `Import the games of a PGN file. Without --user the games are filed under
a profile named after the file, and the most frequent player in the file is
taken to be you.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			user, _ := cmd.Flags().GetString("user")
			res, err := a.importer().ImportFile(cmd.Context(), args[0], user)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d of %d games for %s (%d skipped)\n",
				color.New(color.FgGreen).Sprint("Imported"), res.Imported, res.Total, res.Username, res.Skipped)
			return nil
		}),
	}
	cmd.Flags().String("user", "", "file the games under this username")
	return cmd
}

// SyncCmd returns the sync command.
func SyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import every PGN file of the configured sources",
		Long: `Import every *.pgn file found in the configured sources. A source is a
local directory or a git URL; git sources are cloned or pulled first.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			if list, _ := cmd.Flags().GetBool("list"); list {
				return listSources(cmd, a)
			}
			syncer := sync.New(a.importer(), a.db, a.cfg.Sync, a.logger)
			reports, err := syncer.Run(cmd.Context(), a.cfg.Sync.Sources)
			for _, r := range reports {
				if r.Err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %v\n", color.New(color.FgRed).Sprint("FAILED"), r.Path, r.Err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s, %d new games, %d skipped\n",
					color.New(color.FgGreen).Sprint("OK    "), r.Path, plural(r.Files, "file"), r.Imported, r.Skipped)
			}
			return err
		}),
	}
	cmd.Flags().Bool("list", false, "list previously synced sources instead of syncing")
	return cmd
}

func listSources(cmd *cobra.Command, a *app) error {
	sources, err := a.db.Sources(cmd.Context())
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sources synced yet.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tUSER\tLAST SCANNED")
	for _, s := range sources {
		scanned := color.New(color.FgYellow).Sprint("never")
		if s.LastScanned.Valid {
			scanned = domain.FormatTime(s.LastScanned.Time)
		}
		user := s.Username
		if user == "" {
			user = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.Path, user, scanned)
	}
	return tw.Flush()
}
