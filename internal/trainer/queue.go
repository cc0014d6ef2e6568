package trainer

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/conorfennell/blunderfix/internal/domain"
	"github.com/conorfennell/blunderfix/internal/pgn"
)

// LineView is a candidate line as shown to the player.
type LineView struct {
	Rank         int    `json:"rank"`
	Cp           int    `json:"cp"`
	FirstMoveUCI string `json:"first_move_uci"`
	UCILine      string `json:"uci_line"`
	SANLine      string `json:"san_line"`
	Acceptable   bool   `json:"is_acceptable"`
}

// PracticalView is the opponent's actual reply.
type PracticalView struct {
	OpponentMoveUCI string `json:"opponent_move_uci"`
	OpponentMoveSAN string `json:"opponent_move_san"`
	CpAfter         *int   `json:"cp_after"`
}

// CardView joins a due card with its position and game.
type CardView struct {
	CardID            int64            `json:"card_id"`
	Ply               int              `json:"ply"`
	FEN               string           `json:"fen"`
	SideToMove        string           `json:"side_to_move"`
	PlayedUCI         string           `json:"played_uci"`
	PlayedSAN         string           `json:"played_san"`
	BestCp            int              `json:"best_cp"`
	PlayedCp          int              `json:"played_cp"`
	LossCp            int              `json:"loss_cp"`
	Judgement         domain.Judgement `json:"judgement"`
	WinProbDelta      float64          `json:"winning_chance_delta"`
	Source            domain.Source    `json:"source"`
	SourceGameID      string           `json:"source_game_id"`
	SourceURL         string           `json:"source_url"`
	State             domain.CardState `json:"state"`
	Step              int              `json:"step"`
	DueAt             string           `json:"due_at"`
	Stability         float64          `json:"stability"`
	Difficulty        float64          `json:"difficulty"`
	Reps              int              `json:"reps"`
	Lapses            int              `json:"lapses"`
	AllLines          []LineView       `json:"all_lines"`
	AcceptableLines   []LineView       `json:"acceptable_lines"`
	PracticalResponse *PracticalView   `json:"practical_response"`
}

// Preview maps each rating ("1" to "4") to the due time it would produce.
type Preview struct {
	CardID      int64                    `json:"card_id"`
	DueByRating map[domain.Rating]string `json:"due_by_rating"`
}

// GradeResult is the card's memory state after grading.
type GradeResult struct {
	CardID     int64            `json:"card_id"`
	NextDueAt  string           `json:"next_due_at"`
	State      domain.CardState `json:"state"`
	Step       int              `json:"step"`
	Stability  float64          `json:"stability"`
	Difficulty float64          `json:"difficulty"`
	Reps       int              `json:"reps"`
	Lapses     int              `json:"lapses"`
}

type dueCard struct {
	card     domain.Card
	position domain.Position
}

func normalizeUser(username string) (string, error) {
	u := domain.NormalizeUsername(username)
	if u == "" {
		return "", fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	return u, nil
}

// EnsureCards creates a card for every position of the user's games that
// matches filter and has none yet. It returns the number of cards created.
func (s *Service) EnsureCards(ctx context.Context, username string, filter domain.SeverityFilter) (int, error) {
	u, err := normalizeUser(username)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.ensureCardsLocked(u, filter)
	if created == 0 {
		return 0, nil
	}
	return created, s.commitLocked(ctx)
}

func (s *Service) ensureCardsLocked(username string, filter domain.SeverityFilter) int {
	existing := s.state.CardPositions()
	now := s.now()
	created := 0
	for _, p := range s.state.PositionsOf(s.state.GamesOf(username)) {
		if !filter.Matches(p) {
			continue
		}
		if _, ok := s.state.EnsureCard(p.ID, now, existing); ok {
			created++
		}
	}
	if created > 0 {
		s.logger.Info("Cards created", "username", username, "count", created)
	}
	return created
}

// dueCardsLocked returns the user's cards whose position matches filter
// and whose due time has passed at now.
func (s *Service) dueCardsLocked(username string, filter domain.SeverityFilter, now time.Time) []dueCard {
	positions := make(map[int64]domain.Position)
	for _, p := range s.state.PositionsOf(s.state.GamesOf(username)) {
		if filter.Matches(p) {
			positions[p.ID] = p
		}
	}
	var out []dueCard
	for _, c := range s.state.Cards {
		p, ok := positions[c.PositionID]
		if !ok || !c.IsDue(now) {
			continue
		}
		out = append(out, dueCard{card: c, position: p})
	}
	return out
}

// NextDueCard materialises missing cards and returns the highest-priority
// due card: previously seen cards before new ones, then the earliest due.
// It returns nil when nothing is due.
func (s *Service) NextDueCard(ctx context.Context, username string, filter domain.SeverityFilter) (*CardView, error) {
	u, err := normalizeUser(username)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var flushErr error
	if s.ensureCardsLocked(u, filter) > 0 {
		flushErr = s.commitLocked(ctx)
	}

	due := s.dueCardsLocked(u, filter, s.now())
	if len(due) == 0 {
		return nil, flushErr
	}
	slices.SortStableFunc(due, func(a, b dueCard) int {
		if a.card.Seen() != b.card.Seen() {
			if a.card.Seen() {
				return -1
			}
			return 1
		}
		return a.card.DueAt.Compare(b.card.DueAt)
	})
	view := s.cardViewLocked(due[0])
	return &view, flushErr
}

func (s *Service) cardViewLocked(d dueCard) CardView {
	c, p := d.card, d.position
	view := CardView{
		CardID:          c.ID,
		Ply:             p.Ply,
		FEN:             p.FEN,
		SideToMove:      p.SideToMove,
		PlayedUCI:       p.PlayedUCI,
		PlayedSAN:       p.PlayedSAN,
		BestCp:          p.BestCp,
		PlayedCp:        p.PlayedCp,
		LossCp:          p.LossCp,
		Judgement:       p.Judgement,
		WinProbDelta:    p.WinProbDelta,
		State:           c.State,
		Step:            c.Step,
		DueAt:           domain.FormatTime(c.DueAt),
		Stability:       c.Stability,
		Difficulty:      c.Difficulty,
		Reps:            c.Reps,
		Lapses:          c.Lapses,
		AllLines:        []LineView{},
		AcceptableLines: []LineView{},
	}
	if g, ok := s.state.Game(p.GameID); ok {
		view.Source = g.Source
		view.SourceGameID = g.SourceGameID
		headers := pgn.Headers(g.PGN)
		view.SourceURL = strings.TrimSpace(headers["Site"])
		if view.SourceURL == "" {
			view.SourceURL = strings.TrimSpace(headers["Link"])
		}
	}
	for _, l := range s.state.LinesFor(p.ID) {
		lv := LineView{
			Rank:         l.Rank,
			Cp:           l.Cp,
			FirstMoveUCI: l.FirstMoveUCI,
			UCILine:      l.UCILine,
			SANLine:      l.SANLine,
			Acceptable:   l.Acceptable,
		}
		view.AllLines = append(view.AllLines, lv)
		if lv.Acceptable {
			view.AcceptableLines = append(view.AcceptableLines, lv)
		}
	}
	if r := s.state.PracticalFor(p.ID); r != nil {
		view.PracticalResponse = &PracticalView{
			OpponentMoveUCI: r.OpponentMoveUCI,
			OpponentMoveSAN: r.OpponentMoveSAN,
			CpAfter:         r.CpAfter,
		}
	}
	return view
}

// PreviewDueDates reports the due time every rating would produce for the
// card without changing it.
func (s *Service) PreviewDueDates(cardID int64) (Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Card(cardID)
	if !ok {
		return Preview{}, fmt.Errorf("card %d: %w", cardID, domain.ErrNotFound)
	}
	out := Preview{CardID: cardID, DueByRating: make(map[domain.Rating]string, len(domain.Ratings))}
	for r, due := range s.params.Preview(*c, s.now()) {
		out.DueByRating[r] = domain.FormatTime(due)
	}
	return out, nil
}

// GradeCard applies a rating to a card and appends the review. If only the
// flush fails, the result is still returned together with an error wrapping
// domain.ErrPersistence.
func (s *Service) GradeCard(ctx context.Context, req GradeRequest) (GradeResult, error) {
	if err := validateRequest(req); err != nil {
		return GradeResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Card(req.CardID)
	if !ok {
		return GradeResult{}, fmt.Errorf("card %d: %w", req.CardID, domain.ErrNotFound)
	}
	rating := domain.Rating(req.Rating)
	res, err := s.params.Next(*c, rating, s.now())
	if err != nil {
		return GradeResult{}, err
	}
	*c = res.Card
	s.state.AddReview(domain.Review{
		CardID:      c.ID,
		Rating:      rating,
		ReviewedAt:  res.ReviewedAt,
		NextDueAt:   c.DueAt,
		ElapsedDays: res.ElapsedDays,
	})
	s.logger.Info("Card graded", "card_id", c.ID, "rating", req.Rating, "state", c.State, "due_at", domain.FormatTime(c.DueAt))

	out := GradeResult{
		CardID:     c.ID,
		NextDueAt:  domain.FormatTime(c.DueAt),
		State:      c.State,
		Step:       c.Step,
		Stability:  c.Stability,
		Difficulty: c.Difficulty,
		Reps:       c.Reps,
		Lapses:     c.Lapses,
	}
	return out, s.commitLocked(ctx)
}
