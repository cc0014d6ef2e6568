// Package sync imports every PGN file found in the configured sources.
package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/blunderfix/internal/config"
	"github.com/conorfennell/blunderfix/internal/gitsource"
	"github.com/conorfennell/blunderfix/internal/importer"
)

// Importer stores the games of one PGN text.
type Importer interface {
	ImportPGNFor(ctx context.Context, username, text string) (importer.PGNResult, error)
}

// Tracker records which sources exist and when they were last scanned.
type Tracker interface {
	UpsertSource(ctx context.Context, path, username string) (int64, error)
	MarkScanned(ctx context.Context, sourceID int64, at time.Time) error
}

// Report describes the outcome for a single source.
type Report struct {
	Path     string
	Username string
	Files    int
	Imported int
	Skipped  int
	Err      error
}

type Syncer struct {
	importer    Importer
	tracker     Tracker
	reposDir    string
	parallelism int
	logger      *slog.Logger
}

// New returns a Syncer. tracker may be nil.
func New(imp Importer, tracker Tracker, cfg config.SyncConfig, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	parallelism := cfg.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	return &Syncer{
		importer:    imp,
		tracker:     tracker,
		reposDir:    cfg.ReposDir,
		parallelism: parallelism,
		logger:      logger,
	}
}

// Run syncs all sources, at most parallelism at a time. A failing source is
// reported and logged without stopping the others. The returned error is
// only set when ctx ends before every source was handled.
func (s *Syncer) Run(ctx context.Context, sources []config.SourceConfig) ([]Report, error) {
	s.logger.Info("Starting sync process for all sources...", "sources", len(sources))
	if len(sources) == 0 {
		s.logger.Info("No sources configured")
		return nil, nil
	}

	reports := make([]Report, len(sources))
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				reports[i] = Report{Path: src.Path, Username: src.Username, Err: err}
				return nil
			}
			reports[i] = s.syncSource(ctx, src)
			if err := reports[i].Err; err != nil {
				s.logger.Error("Error syncing source", "path", src.Path, "error", err)
			}
			return nil
		})
	}
	g.Wait()

	s.logger.Info("Sync process complete.")
	return reports, ctx.Err()
}

func (s *Syncer) syncSource(ctx context.Context, src config.SourceConfig) Report {
	report := Report{Path: src.Path, Username: src.Username}

	var sourceID int64
	if s.tracker != nil {
		id, err := s.tracker.UpsertSource(ctx, src.Path, src.Username)
		if err != nil {
			report.Err = fmt.Errorf("failed to record source: %w", err)
			return report
		}
		sourceID = id
	}

	dir := src.Path
	if gitsource.IsRemote(src.Path) {
		local, err := gitsource.LocalPath(s.reposDir, src.Path)
		if err != nil {
			report.Err = err
			return report
		}
		if err := gitsource.Sync(ctx, s.logger, src.Path, local); err != nil {
			report.Err = err
			return report
		}
		dir = local
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".pgn") {
			return nil
		}
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		report.Files++
		res, err := s.importer.ImportPGNFor(ctx, src.Username, string(text))
		if err != nil {
			s.logger.Warn("Skipping PGN file", "path", path, "error", err)
			return nil
		}
		report.Imported += res.Imported
		report.Skipped += res.Skipped
		return nil
	})
	if err != nil {
		report.Err = fmt.Errorf("error walking directory %s: %w", dir, err)
		return report
	}

	if s.tracker != nil {
		if err := s.tracker.MarkScanned(ctx, sourceID, time.Now().UTC()); err != nil {
			s.logger.Warn("Failed to update last scanned for source", "source_id", sourceID, "error", err)
		}
	}
	s.logger.Info("Source synced",
		"path", src.Path,
		"files", report.Files,
		"imported", report.Imported,
		"skipped", report.Skipped)
	return report
}
