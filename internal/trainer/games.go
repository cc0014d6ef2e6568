package trainer

import (
	"context"

	"github.com/conorfennell/blunderfix/internal/domain"
	"github.com/conorfennell/blunderfix/internal/storage"
)

// ClearResult counts what a clear removed.
type ClearResult struct {
	Username string `json:"username,omitempty"`
	storage.Deleted
}

// InsertGame stores a newly imported game unless the user already has one
// from the same origin. It reports whether the game was inserted. The state
// is not flushed; callers importing in bulk call Flush when done.
func (s *Service) InsertGame(req NewGame) (domain.Game, bool, error) {
	req.Username = domain.NormalizeUsername(req.Username)
	if err := validateRequest(req); err != nil {
		return domain.Game{}, false, err
	}
	g := domain.Game{
		Source:       req.Source,
		SourceGameID: req.SourceGameID,
		PGNHash:      req.PGNHash,
		Username:     req.Username,
		PlayedColor:  req.PlayedColor,
		Result:       req.Result,
		PGN:          req.PGN,
	}
	if g.PlayedColor == "" {
		g.PlayedColor = "white"
	}
	if g.Result == "" {
		g.Result = "unknown"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.HasGame(g) {
		return domain.Game{}, false, nil
	}
	g.CreatedAt = s.now()
	g = s.state.AddGame(g)
	s.dirty = true
	return g, true, nil
}

// ClearUser deletes every game of the user together with everything that
// depends on those games.
func (s *Service) ClearUser(ctx context.Context, username string) (ClearResult, error) {
	u, err := normalizeUser(username)
	if err != nil {
		return ClearResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	del := s.state.DeleteGames(func(g domain.Game) bool { return g.Username == u })
	s.logger.Info("User cleared",
		"username", u,
		"games_deleted", del.Games,
		"positions_deleted", del.Positions,
		"cards_deleted", del.Cards,
		"reviews_deleted", del.Reviews)
	return ClearResult{Username: u, Deleted: del}, s.commitLocked(ctx)
}

// ClearAll deletes everything and restarts every id sequence.
func (s *Service) ClearAll(ctx context.Context) (ClearResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	del := s.state.Clear()
	s.logger.Info("All data cleared",
		"games_deleted", del.Games,
		"positions_deleted", del.Positions,
		"cards_deleted", del.Cards,
		"reviews_deleted", del.Reviews)
	return ClearResult{Deleted: del}, s.commitLocked(ctx)
}
