package importer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/conorfennell/blunderfix/internal/domain"
	"github.com/conorfennell/blunderfix/internal/pgn"
	"github.com/conorfennell/blunderfix/internal/trainer"
)

// PGNResult summarises a PGN file import.
type PGNResult struct {
	Username string `json:"username"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Total    int    `json:"total"`
}

// ImportPGN imports an uploaded PGN file. The games are filed under a
// profile named after the file; the colour played is taken from the player
// appearing most often in the file.
func (m *Manager) ImportPGN(ctx context.Context, filename, text string) (PGNResult, error) {
	games, err := splitGames(text)
	if err != nil {
		return PGNResult{}, err
	}
	return m.importNamed(ctx, filename, games)
}

// ImportPGNFor imports PGN text for a known username. When username is empty
// the most frequent player in the text is used.
func (m *Manager) ImportPGNFor(ctx context.Context, username, text string) (PGNResult, error) {
	games, err := splitGames(text)
	if err != nil {
		return PGNResult{}, err
	}
	return m.importFor(ctx, username, games)
}

// ImportFile reads the PGN file at path. With a username it behaves like
// ImportPGNFor, otherwise like ImportPGN with the file's base name.
func (m *Manager) ImportFile(ctx context.Context, path, username string) (PGNResult, error) {
	games, err := pgn.ParseFile(path)
	if err != nil {
		return PGNResult{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if username != "" {
		return m.importFor(ctx, username, games)
	}
	return m.importNamed(ctx, filepath.Base(path), games)
}

func splitGames(text string) ([]string, error) {
	games, err := pgn.SplitGames(text)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read PGN: %w", domain.ErrInvalidInput, err)
	}
	return games, nil
}

func (m *Manager) importNamed(ctx context.Context, filename string, games []string) (PGNResult, error) {
	return m.importGames(ctx, pgn.ProfileFromFilename(filename), pgn.PrimaryPlayer(games), games)
}

func (m *Manager) importFor(ctx context.Context, username string, games []string) (PGNResult, error) {
	player := domain.NormalizeUsername(username)
	if player == "" {
		player = pgn.PrimaryPlayer(games)
	}
	profile := player
	if profile == "" {
		profile = pgn.DefaultProfile
	}
	return m.importGames(ctx, profile, player, games)
}

func (m *Manager) importGames(ctx context.Context, profile, player string, games []string) (PGNResult, error) {
	if len(games) == 0 {
		return PGNResult{}, fmt.Errorf("%w: no games found in PGN", domain.ErrInvalidInput)
	}
	res := PGNResult{Username: domain.NormalizeUsername(profile), Total: len(games)}
	for _, g := range games {
		headers := pgn.Headers(g)
		color := pgn.PlayedColor(headers, player)
		hash := pgn.Hash(g)
		_, inserted, err := m.store.InsertGame(trainer.NewGame{
			Source:       domain.SourcePGN,
			SourceGameID: pgn.SourceGameID(hash),
			PGNHash:      hash,
			Username:     profile,
			PlayedColor:  color,
			Result:       pgn.Result(headers, color),
			PGN:          g,
		})
		if err != nil {
			return res, err
		}
		if inserted {
			res.Imported++
		} else {
			res.Skipped++
		}
	}
	if err := m.store.Flush(ctx); err != nil {
		return res, err
	}
	m.logger.Info("PGN imported", "username", res.Username, "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}
