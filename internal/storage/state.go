package storage

import (
	"slices"
	"sort"
	"time"

	"github.com/conorfennell/blunderfix/internal/domain"
)

// CurrentVersion is the record layout written by this build.
// Version 1 stored a boolean is_blunder per position instead of a judgement.
const CurrentVersion = 2

// State is the complete in-memory representation of every entity.
// It is not safe for concurrent use; callers serialise access.
type State struct {
	Version   int
	NextIDs   NextIDs
	Games     []domain.Game
	Positions []domain.Position
	Lines     []domain.CandidateLine
	Practical []domain.PracticalResponse
	Cards     []domain.Card
	Reviews   []domain.Review
}

// NewState returns an empty state with every id sequence starting at 1.
func NewState() *State {
	return &State{Version: CurrentVersion, NextIDs: newNextIDs()}
}

// Deleted counts removed entities per kind.
type Deleted struct {
	Games     int `json:"games_deleted"`
	Positions int `json:"positions_deleted"`
	Lines     int `json:"lines_deleted"`
	Practical int `json:"practical_deleted"`
	Cards     int `json:"cards_deleted"`
	Reviews   int `json:"reviews_deleted"`
}

// Analysis is one position to store together with its dependents. Ids and
// foreign keys are assigned by ReplaceAnalysis.
type Analysis struct {
	Position  domain.Position
	Lines     []domain.CandidateLine
	Practical *domain.PracticalResponse
}

// Game returns the game with id.
func (s *State) Game(id int64) (*domain.Game, bool) {
	for i := range s.Games {
		if s.Games[i].ID == id {
			return &s.Games[i], true
		}
	}
	return nil, false
}

// Position returns the position with id.
func (s *State) Position(id int64) (*domain.Position, bool) {
	for i := range s.Positions {
		if s.Positions[i].ID == id {
			return &s.Positions[i], true
		}
	}
	return nil, false
}

// Card returns the card with id.
func (s *State) Card(id int64) (*domain.Card, bool) {
	for i := range s.Cards {
		if s.Cards[i].ID == id {
			return &s.Cards[i], true
		}
	}
	return nil, false
}

// Users returns every distinct owner of a game, sorted.
func (s *State) Users() []string {
	seen := make(map[string]bool)
	var users []string
	for _, g := range s.Games {
		u := domain.NormalizeUsername(g.Username)
		if !seen[u] {
			seen[u] = true
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users
}

// GamesOf returns the ids of the user's games.
func (s *State) GamesOf(username string) map[int64]bool {
	u := domain.NormalizeUsername(username)
	ids := make(map[int64]bool)
	for _, g := range s.Games {
		if domain.NormalizeUsername(g.Username) == u {
			ids[g.ID] = true
		}
	}
	return ids
}

// PositionsOf returns the positions belonging to the given games, in storage order.
func (s *State) PositionsOf(gameIDs map[int64]bool) []domain.Position {
	var out []domain.Position
	for _, p := range s.Positions {
		if gameIDs[p.GameID] {
			out = append(out, p)
		}
	}
	return out
}

// LinesFor returns the candidate lines of a position ordered by rank.
func (s *State) LinesFor(positionID int64) []domain.CandidateLine {
	var out []domain.CandidateLine
	for _, l := range s.Lines {
		if l.PositionID == positionID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// PracticalFor returns the practical response of a position, if any.
func (s *State) PracticalFor(positionID int64) *domain.PracticalResponse {
	for i := range s.Practical {
		if s.Practical[i].PositionID == positionID {
			r := s.Practical[i]
			return &r
		}
	}
	return nil
}

// HasGame reports whether a game with the same origin is already stored for the user.
// PGN games match by content hash or identical text, and by external id only
// when the stored game has no hash.
func (s *State) HasGame(g domain.Game) bool {
	u := domain.NormalizeUsername(g.Username)
	for _, x := range s.Games {
		if x.Source != g.Source || domain.NormalizeUsername(x.Username) != u {
			continue
		}
		if g.Source != domain.SourcePGN {
			if x.SourceGameID == g.SourceGameID {
				return true
			}
			continue
		}
		switch {
		case x.PGNHash != "" && x.PGNHash == g.PGNHash:
			return true
		case x.PGN != "" && x.PGN == g.PGN:
			return true
		case x.PGNHash == "" && x.SourceGameID == g.SourceGameID:
			return true
		}
	}
	return false
}

// AddGame stores g under a fresh id and returns it.
func (s *State) AddGame(g domain.Game) domain.Game {
	g.ID = s.NextID(KindGame)
	g.Username = domain.NormalizeUsername(g.Username)
	s.Games = append(s.Games, g)
	return g
}

// EnsureCard creates a card for the position unless one already exists.
func (s *State) EnsureCard(positionID int64, now time.Time, existing map[int64]bool) (domain.Card, bool) {
	if existing[positionID] {
		return domain.Card{}, false
	}
	c := domain.NewCard(s.NextID(KindCard), positionID, now)
	s.Cards = append(s.Cards, c)
	existing[positionID] = true
	return c, true
}

// CardPositions returns the set of positions that already have a card.
func (s *State) CardPositions() map[int64]bool {
	out := make(map[int64]bool, len(s.Cards))
	for _, c := range s.Cards {
		out[c.PositionID] = true
	}
	return out
}

// AddReview appends r under a fresh id.
func (s *State) AddReview(r domain.Review) domain.Review {
	r.ID = s.NextID(KindReview)
	s.Reviews = append(s.Reviews, r)
	return r
}

// ReplaceAnalysis deletes every position of the game (and their dependents)
// before inserting items, then marks the game analysed.
func (s *State) ReplaceAnalysis(gameID int64, items []Analysis, now time.Time) Deleted {
	del := s.DeletePositions(func(p domain.Position) bool { return p.GameID == gameID })

	for _, it := range items {
		p := it.Position
		p.ID = s.NextID(KindPosition)
		p.GameID = gameID
		p.CreatedAt = now
		s.Positions = append(s.Positions, p)

		for _, l := range it.Lines {
			l.ID = s.NextID(KindLine)
			l.PositionID = p.ID
			s.Lines = append(s.Lines, l)
		}
		if it.Practical != nil {
			r := *it.Practical
			r.ID = s.NextID(KindPractical)
			r.PositionID = p.ID
			s.Practical = append(s.Practical, r)
		}
	}
	if g, ok := s.Game(gameID); ok {
		g.Analyzed = true
	}
	return del
}

// DeletePositions removes matching positions with their lines, practical
// responses, cards and the reviews of those cards.
func (s *State) DeletePositions(match func(domain.Position) bool) Deleted {
	var del Deleted
	posIDs := make(map[int64]bool)
	s.Positions = slices.DeleteFunc(s.Positions, func(p domain.Position) bool {
		if match(p) {
			posIDs[p.ID] = true
			return true
		}
		return false
	})
	del.Positions = len(posIDs)
	if len(posIDs) == 0 {
		return del
	}

	cardIDs := make(map[int64]bool)
	before := len(s.Lines)
	s.Lines = slices.DeleteFunc(s.Lines, func(l domain.CandidateLine) bool { return posIDs[l.PositionID] })
	del.Lines = before - len(s.Lines)

	before = len(s.Practical)
	s.Practical = slices.DeleteFunc(s.Practical, func(r domain.PracticalResponse) bool { return posIDs[r.PositionID] })
	del.Practical = before - len(s.Practical)

	s.Cards = slices.DeleteFunc(s.Cards, func(c domain.Card) bool {
		if posIDs[c.PositionID] {
			cardIDs[c.ID] = true
			return true
		}
		return false
	})
	del.Cards = len(cardIDs)

	before = len(s.Reviews)
	s.Reviews = slices.DeleteFunc(s.Reviews, func(r domain.Review) bool { return cardIDs[r.CardID] })
	del.Reviews = before - len(s.Reviews)
	return del
}

// DeleteGames removes matching games and everything reachable from them.
func (s *State) DeleteGames(match func(domain.Game) bool) Deleted {
	gameIDs := make(map[int64]bool)
	s.Games = slices.DeleteFunc(s.Games, func(g domain.Game) bool {
		if match(g) {
			gameIDs[g.ID] = true
			return true
		}
		return false
	})
	del := s.DeletePositions(func(p domain.Position) bool { return gameIDs[p.GameID] })
	del.Games = len(gameIDs)
	return del
}

// Clear removes everything and restarts every id sequence.
func (s *State) Clear() Deleted {
	del := Deleted{
		Games:     len(s.Games),
		Positions: len(s.Positions),
		Lines:     len(s.Lines),
		Practical: len(s.Practical),
		Cards:     len(s.Cards),
		Reviews:   len(s.Reviews),
	}
	*s = *NewState()
	return del
}
