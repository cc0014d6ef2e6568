// Package cli implements the blunderfix command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conorfennell/blunderfix/internal/config"
	"github.com/conorfennell/blunderfix/internal/importer"
	"github.com/conorfennell/blunderfix/internal/storage"
	"github.com/conorfennell/blunderfix/internal/trainer"
)

// app is the wiring shared by every command: configuration, the database
// and the service loaded from it.
type app struct {
	cfg    *config.Config
	db     *storage.DB
	svc    *trainer.Service
	logger *slog.Logger
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Database opened successfully", "path", cfg.DB.Path)

	svc, err := trainer.New(cmd.Context(), db, trainer.Options{Logger: logger})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{cfg: cfg, db: db, svc: svc, logger: logger}, nil
}

// importer returns an import manager configured from the app's settings.
func (a *app) importer() *importer.Manager {
	return importer.NewManager(a.svc, importer.Config{
		LichessBaseURL:   a.cfg.Import.LichessBaseURL,
		ChessComBaseURL:  a.cfg.Import.ChessComBaseURL,
		LichessMaxGames:  a.cfg.Import.LichessMaxGames,
		ChessComMaxGames: a.cfg.Import.ChessComMaxGames,
		UserAgent:        a.cfg.Import.UserAgent,
		Timeout:          a.cfg.Import.HTTPTimeout,
	}, a.logger)
}

// Close flushes pending changes and closes the database.
func (a *app) Close() error {
	flushErr := a.svc.Flush(context.Background())
	return errors.Join(flushErr, a.db.Close())
}

// withApp adapts a command body that needs the app.
func withApp(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return run(cmd, args, a)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "blunderfix",
		Short:   "Drill your own chess mistakes with spaced repetition",
		Version: version,
		Long: `blunderfix imports your games, stores the engine analysis of the
positions where you went wrong and schedules them as flashcards.`,
		SilenceUsage: true,
	}
	config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(UsersCmd())
	rootCmd.AddCommand(StatsCmd())
	rootCmd.AddCommand(SessionCmd())
	rootCmd.AddCommand(DaysCmd())
	rootCmd.AddCommand(ImportCmd())
	rootCmd.AddCommand(ImportPGNCmd())
	rootCmd.AddCommand(SyncCmd())
	rootCmd.AddCommand(ExportCmd())
	rootCmd.AddCommand(RestoreCmd())
	rootCmd.AddCommand(ResetCmd())
	rootCmd.AddCommand(ClearCmd())
	return rootCmd
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
