package trainer

import (
	"context"
	"fmt"

	"github.com/conorfennell/blunderfix/internal/domain"
	"github.com/conorfennell/blunderfix/internal/severity"
	"github.com/conorfennell/blunderfix/internal/storage"
)

// StoreResult summarises a stored analysis.
type StoreResult struct {
	Positions int `json:"positions"`
	Blunders  int `json:"blunders"`
}

// PendingGame is a game still waiting for analysis.
type PendingGame struct {
	ID          int64  `json:"id"`
	PlayedColor string `json:"played_color"`
	PGN         string `json:"pgn"`
}

// PendingGames lists unanalysed games.
type PendingGames struct {
	Games      []PendingGame `json:"games"`
	TotalGames int           `json:"total_games"`
}

// ResetResult summarises a reset of a user's analysis.
type ResetResult struct {
	GamesReset       int `json:"games_reset"`
	PositionsDeleted int `json:"positions_deleted"`
}

// DefaultPendingLimit caps UnanalyzedGames when no limit is given.
const DefaultPendingLimit = 200

// StoreAnalyzedPositions replaces every prior analysis of the game with req's
// positions. Existing positions are deleted with their lines, practical
// responses, cards and reviews before anything is inserted.
func (s *Service) StoreAnalyzedPositions(ctx context.Context, req StoreRequest) (StoreResult, error) {
	if err := validateRequest(req); err != nil {
		return StoreResult{}, err
	}
	items := make([]storage.Analysis, 0, len(req.Positions))
	blunders := 0
	for _, in := range req.Positions {
		item := toAnalysis(in)
		if item.Position.Judgement == domain.JudgementBlunder {
			blunders++
		}
		items = append(items, item)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Game(req.GameID); !ok {
		return StoreResult{}, fmt.Errorf("game %d: %w", req.GameID, domain.ErrNotFound)
	}
	del := s.state.ReplaceAnalysis(req.GameID, items, s.now())
	s.logger.Info("Analysis stored",
		"game_id", req.GameID,
		"positions", len(items),
		"blunders", blunders,
		"positions_replaced", del.Positions,
		"cards_deleted", del.Cards)

	return StoreResult{Positions: len(items), Blunders: blunders}, s.commitLocked(ctx)
}

// toAnalysis converts analyzer input, classifying the move when the
// analyzer sent no judgement and deriving the loss when it sent none.
func toAnalysis(in AnalyzedPosition) storage.Analysis {
	p := domain.Position{
		Ply:        in.Ply,
		FEN:        in.FEN,
		SideToMove: in.SideToMove,
		PlayedUCI:  in.PlayedUCI,
		PlayedSAN:  in.PlayedSAN,
	}
	if in.BestCp != nil {
		p.BestCp = *in.BestCp
	}
	if in.PlayedCp != nil {
		p.PlayedCp = *in.PlayedCp
	}
	if in.LossCp != nil {
		p.LossCp = *in.LossCp
	} else {
		p.LossCp = p.BestCp - p.PlayedCp
	}

	evaluated := in.BestCp != nil && in.PlayedCp != nil
	var computed domain.Judgement
	var delta float64
	if evaluated {
		computed, delta = severity.ClassifyCp(p.BestCp, p.PlayedCp)
	}
	switch {
	case in.Judgement != nil:
		p.Judgement = domain.ParseJudgement(*in.Judgement)
	case in.WinProbDelta != nil:
		p.Judgement = severity.FromDelta(*in.WinProbDelta)
	default:
		p.Judgement = computed
	}
	if in.WinProbDelta != nil {
		p.WinProbDelta = *in.WinProbDelta
	} else {
		p.WinProbDelta = delta
	}

	item := storage.Analysis{Position: p}
	for _, l := range in.CandidateLines {
		item.Lines = append(item.Lines, domain.CandidateLine{
			Rank:         l.Rank,
			Cp:           l.Cp,
			FirstMoveUCI: l.FirstMoveUCI,
			UCILine:      l.UCILine,
			SANLine:      l.SANLine,
			Acceptable:   l.Acceptable,
		})
	}
	if r := in.PracticalResponse; r != nil {
		item.Practical = &domain.PracticalResponse{
			OpponentMoveUCI: r.OpponentMoveUCI,
			OpponentMoveSAN: r.OpponentMoveSAN,
			CpAfter:         r.CpAfter,
		}
	}
	return item
}

// UnanalyzedGames returns up to limit of the user's games that have not been
// analysed yet, in id order.
func (s *Service) UnanalyzedGames(username string, limit int) (PendingGames, error) {
	u, err := normalizeUser(username)
	if err != nil {
		return PendingGames{}, err
	}
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := PendingGames{Games: []PendingGame{}}
	for _, g := range s.state.Games {
		if len(out.Games) >= limit {
			break
		}
		if g.Username != u || g.Analyzed {
			continue
		}
		out.Games = append(out.Games, PendingGame{ID: g.ID, PlayedColor: g.PlayedColor, PGN: g.PGN})
	}
	out.TotalGames = len(out.Games)
	return out, nil
}

// ResetAnalysis deletes every position of the user's games, with their
// dependents, and marks the games unanalysed again.
func (s *Service) ResetAnalysis(ctx context.Context, username string) (ResetResult, error) {
	u, err := normalizeUser(username)
	if err != nil {
		return ResetResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	games := s.state.GamesOf(u)
	del := s.state.DeletePositions(func(p domain.Position) bool { return games[p.GameID] })
	for i := range s.state.Games {
		if games[s.state.Games[i].ID] {
			s.state.Games[i].Analyzed = false
		}
	}
	s.logger.Info("Analysis reset", "username", u, "games", len(games), "positions_deleted", del.Positions)
	return ResetResult{GamesReset: len(games), PositionsDeleted: del.Positions}, s.commitLocked(ctx)
}
