package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/conorfennell/blunderfix/internal/domain"
)

// Snapshot is the self-describing JSON form of a complete State.
type Snapshot struct {
	Version       int               `json:"version"`
	ExportedAt    string            `json:"exported_at,omitempty"`
	NextIDs       *NextIDs          `json:"next_ids,omitempty"`
	LegacyNextIDs *NextIDs          `json:"nextIds,omitempty"`
	Games         []gameRecord      `json:"games"`
	Positions     []positionRecord  `json:"positions"`
	Lines         []lineRecord      `json:"candidate_lines"`
	Practical     []practicalRecord `json:"practical_responses"`
	Cards         []cardRecord      `json:"cards"`
	Reviews       []reviewRecord    `json:"reviews"`
}

// flexBool decodes JSON booleans as well as the 0/1 integers older exports used.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*b = true
	case "false", "0", "null", `""`:
		*b = false
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid boolean %s", data)
		}
		*b = n != 0
	}
	return nil
}

type gameRecord struct {
	ID           int64    `json:"id"`
	Source       string   `json:"source"`
	SourceGameID string   `json:"source_game_id"`
	PGNHash      string   `json:"pgn_hash,omitempty"`
	Username     string   `json:"username"`
	PlayedColor  string   `json:"played_color"`
	Result       string   `json:"result"`
	PGN          string   `json:"pgn"`
	Analyzed     flexBool `json:"analyzed"`
	CreatedAt    string   `json:"created_at"`
}

type positionRecord struct {
	ID           int64     `json:"id"`
	GameID       int64     `json:"game_id"`
	Ply          int       `json:"ply"`
	FEN          string    `json:"fen"`
	SideToMove   string    `json:"side_to_move"`
	PlayedUCI    string    `json:"played_uci"`
	PlayedSAN    string    `json:"played_san"`
	BestCp       int       `json:"best_cp"`
	PlayedCp     int       `json:"played_cp"`
	LossCp       int       `json:"loss_cp"`
	Judgement    *string   `json:"judgement"`
	WinProbDelta *float64  `json:"winning_chance_delta"`
	IsBlunder    *flexBool `json:"is_blunder,omitempty"`
	CreatedAt    string    `json:"created_at"`
}

type lineRecord struct {
	ID           int64    `json:"id"`
	PositionID   int64    `json:"position_id"`
	Rank         int      `json:"pv_rank"`
	Cp           int      `json:"cp"`
	FirstMoveUCI string   `json:"first_move_uci"`
	UCILine      string   `json:"uci_line"`
	SANLine      string   `json:"san_line"`
	Acceptable   flexBool `json:"is_acceptable"`
}

type practicalRecord struct {
	ID              int64  `json:"id"`
	PositionID      int64  `json:"position_id"`
	OpponentMoveUCI string `json:"opponent_move_uci"`
	OpponentMoveSAN string `json:"opponent_move_san"`
	CpAfter         *int   `json:"cp_after"`
}

type cardRecord struct {
	ID           int64   `json:"id"`
	PositionID   int64   `json:"position_id"`
	State        string  `json:"state"`
	Step         int     `json:"step"`
	DueAt        string  `json:"due_at"`
	Stability    float64 `json:"stability"`
	Difficulty   float64 `json:"difficulty"`
	Reps         int     `json:"reps"`
	Lapses       int     `json:"lapses"`
	LastReviewAt *string `json:"last_review_at"`
}

type reviewRecord struct {
	ID          int64   `json:"id"`
	CardID      int64   `json:"card_id"`
	Rating      int     `json:"rating"`
	ReviewedAt  string  `json:"reviewed_at"`
	NextDueAt   string  `json:"next_due_at"`
	ElapsedDays float64 `json:"elapsed_days"`
}

// WriteSnapshot encodes s as a snapshot stamped with now.
func WriteSnapshot(w io.Writer, s *State, now time.Time) error {
	ids := s.NextIDs
	snap := Snapshot{
		Version:    CurrentVersion,
		ExportedAt: domain.FormatTime(now),
		NextIDs:    &ids,
		Games:      make([]gameRecord, 0, len(s.Games)),
		Positions:  make([]positionRecord, 0, len(s.Positions)),
		Lines:      make([]lineRecord, 0, len(s.Lines)),
		Practical:  make([]practicalRecord, 0, len(s.Practical)),
		Cards:      make([]cardRecord, 0, len(s.Cards)),
		Reviews:    make([]reviewRecord, 0, len(s.Reviews)),
	}
	for _, g := range s.Games {
		snap.Games = append(snap.Games, gameRecord{
			ID:           g.ID,
			Source:       string(g.Source),
			SourceGameID: g.SourceGameID,
			PGNHash:      g.PGNHash,
			Username:     g.Username,
			PlayedColor:  g.PlayedColor,
			Result:       g.Result,
			PGN:          g.PGN,
			Analyzed:     flexBool(g.Analyzed),
			CreatedAt:    domain.FormatTime(g.CreatedAt),
		})
	}
	for _, p := range s.Positions {
		judgement := string(p.Judgement)
		delta := p.WinProbDelta
		snap.Positions = append(snap.Positions, positionRecord{
			ID:           p.ID,
			GameID:       p.GameID,
			Ply:          p.Ply,
			FEN:          p.FEN,
			SideToMove:   p.SideToMove,
			PlayedUCI:    p.PlayedUCI,
			PlayedSAN:    p.PlayedSAN,
			BestCp:       p.BestCp,
			PlayedCp:     p.PlayedCp,
			LossCp:       p.LossCp,
			Judgement:    &judgement,
			WinProbDelta: &delta,
			CreatedAt:    domain.FormatTime(p.CreatedAt),
		})
	}
	for _, l := range s.Lines {
		snap.Lines = append(snap.Lines, lineRecord{
			ID:           l.ID,
			PositionID:   l.PositionID,
			Rank:         l.Rank,
			Cp:           l.Cp,
			FirstMoveUCI: l.FirstMoveUCI,
			UCILine:      l.UCILine,
			SANLine:      l.SANLine,
			Acceptable:   flexBool(l.Acceptable),
		})
	}
	for _, r := range s.Practical {
		snap.Practical = append(snap.Practical, practicalRecord{
			ID:              r.ID,
			PositionID:      r.PositionID,
			OpponentMoveUCI: r.OpponentMoveUCI,
			OpponentMoveSAN: r.OpponentMoveSAN,
			CpAfter:         r.CpAfter,
		})
	}
	for _, c := range s.Cards {
		rec := cardRecord{
			ID:         c.ID,
			PositionID: c.PositionID,
			State:      string(c.State),
			Step:       c.Step,
			DueAt:      domain.FormatTime(c.DueAt),
			Stability:  c.Stability,
			Difficulty: c.Difficulty,
			Reps:       c.Reps,
			Lapses:     c.Lapses,
		}
		if c.LastReviewAt != nil {
			ts := domain.FormatTime(*c.LastReviewAt)
			rec.LastReviewAt = &ts
		}
		snap.Cards = append(snap.Cards, rec)
	}
	for _, r := range s.Reviews {
		snap.Reviews = append(snap.Reviews, reviewRecord{
			ID:          r.ID,
			CardID:      r.CardID,
			Rating:      int(r.Rating),
			ReviewedAt:  domain.FormatTime(r.ReviewedAt),
			NextDueAt:   domain.FormatTime(r.NextDueAt),
			ElapsedDays: r.ElapsedDays,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(snap)
}

// ReadSnapshot decodes a snapshot, migrates legacy records and verifies
// referential integrity. The returned state is ready to replace the live one.
func ReadSnapshot(r io.Reader) (*State, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	for _, key := range []string{"games", "positions"} {
		raw := bytes.TrimSpace(shape[key])
		if len(raw) == 0 || raw[0] != '[' {
			return nil, fmt.Errorf("snapshot %q must be an array: %w", key, ErrIntegrity)
		}
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return snap.toState()
}

func (snap *Snapshot) toState() (*State, error) {
	s := NewState()
	legacy := snap.Version < CurrentVersion

	for _, g := range snap.Games {
		created, err := domain.ParseTime(g.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("game %d: %w", g.ID, err)
		}
		s.Games = append(s.Games, domain.Game{
			ID:           g.ID,
			Source:       domain.Source(g.Source),
			SourceGameID: g.SourceGameID,
			PGNHash:      g.PGNHash,
			Username:     domain.NormalizeUsername(g.Username),
			PlayedColor:  g.PlayedColor,
			Result:       g.Result,
			PGN:          g.PGN,
			Analyzed:     bool(g.Analyzed),
			CreatedAt:    created,
		})
	}
	for _, rec := range snap.Positions {
		created, err := domain.ParseTime(rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", rec.ID, err)
		}
		p := domain.Position{
			ID:         rec.ID,
			GameID:     rec.GameID,
			Ply:        rec.Ply,
			FEN:        rec.FEN,
			SideToMove: rec.SideToMove,
			PlayedUCI:  rec.PlayedUCI,
			PlayedSAN:  rec.PlayedSAN,
			BestCp:     rec.BestCp,
			PlayedCp:   rec.PlayedCp,
			LossCp:     rec.LossCp,
			CreatedAt:  created,
		}
		f := positionFields{Judgement: rec.Judgement, WinProbDelta: rec.WinProbDelta}
		if rec.IsBlunder != nil {
			b := bool(*rec.IsBlunder)
			f.IsBlunder = &b
		}
		migratePosition(&p, f, legacy || rec.IsBlunder != nil)
		s.Positions = append(s.Positions, p)
	}
	for _, l := range snap.Lines {
		s.Lines = append(s.Lines, domain.CandidateLine{
			ID:           l.ID,
			PositionID:   l.PositionID,
			Rank:         l.Rank,
			Cp:           l.Cp,
			FirstMoveUCI: l.FirstMoveUCI,
			UCILine:      l.UCILine,
			SANLine:      l.SANLine,
			Acceptable:   bool(l.Acceptable),
		})
	}
	for _, r := range snap.Practical {
		s.Practical = append(s.Practical, domain.PracticalResponse{
			ID:              r.ID,
			PositionID:      r.PositionID,
			OpponentMoveUCI: r.OpponentMoveUCI,
			OpponentMoveSAN: r.OpponentMoveSAN,
			CpAfter:         r.CpAfter,
		})
	}
	for _, c := range snap.Cards {
		due, err := domain.ParseTime(c.DueAt)
		if err != nil {
			return nil, fmt.Errorf("card %d: %w", c.ID, err)
		}
		card := domain.Card{
			ID:         c.ID,
			PositionID: c.PositionID,
			State:      domain.ParseCardState(c.State),
			Step:       c.Step,
			DueAt:      due,
			Stability:  c.Stability,
			Difficulty: c.Difficulty,
			Reps:       c.Reps,
			Lapses:     c.Lapses,
		}
		if c.LastReviewAt != nil && *c.LastReviewAt != "" {
			last, err := domain.ParseTime(*c.LastReviewAt)
			if err != nil {
				return nil, fmt.Errorf("card %d: %w", c.ID, err)
			}
			card.LastReviewAt = &last
		}
		s.Cards = append(s.Cards, card)
	}
	for _, r := range snap.Reviews {
		reviewed, err := domain.ParseTime(r.ReviewedAt)
		if err != nil {
			return nil, fmt.Errorf("review %d: %w", r.ID, err)
		}
		next, err := domain.ParseTime(r.NextDueAt)
		if err != nil {
			return nil, fmt.Errorf("review %d: %w", r.ID, err)
		}
		s.Reviews = append(s.Reviews, domain.Review{
			ID:          r.ID,
			CardID:      r.CardID,
			Rating:      domain.Rating(r.Rating),
			ReviewedAt:  reviewed,
			NextDueAt:   next,
			ElapsedDays: r.ElapsedDays,
		})
	}

	switch {
	case snap.NextIDs != nil:
		s.NextIDs = *snap.NextIDs
	case snap.LegacyNextIDs != nil:
		s.NextIDs = *snap.LegacyNextIDs
	}
	s.repairNextIDs()

	if err := s.Check(); err != nil {
		return nil, err
	}
	return s, nil
}
