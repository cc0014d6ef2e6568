package trainer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/blunderfix/internal/domain"
)

var validate = validator.New()

// validateRequest runs struct validation and reports failures as ErrInvalidInput.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
}

// NewGame is an imported game row handed to InsertGame.
type NewGame struct {
	Source       domain.Source `json:"source" validate:"required,oneof=lichess chesscom pgn"`
	SourceGameID string        `json:"source_game_id" validate:"required"`
	PGNHash      string        `json:"pgn_hash"`
	Username     string        `json:"username" validate:"required"`
	PlayedColor  string        `json:"played_color" validate:"omitempty,oneof=white black"`
	Result       string        `json:"result" validate:"omitempty,oneof=win loss draw unknown"`
	PGN          string        `json:"pgn"`
}

// StoreRequest carries one game's complete analysis.
type StoreRequest struct {
	GameID    int64              `json:"game_id" validate:"required,min=1"`
	Positions []AnalyzedPosition `json:"positions" validate:"dive"`
}

// AnalyzedPosition is one position as delivered by the external analyzer.
// Judgement, delta and loss are derived from the evaluations when absent.
type AnalyzedPosition struct {
	Ply               int              `json:"ply" validate:"min=0"`
	FEN               string           `json:"fen" validate:"required"`
	SideToMove        string           `json:"side_to_move" validate:"oneof=white black"`
	PlayedUCI         string           `json:"played_uci"`
	PlayedSAN         string           `json:"played_san"`
	BestCp            *int             `json:"best_cp"`
	PlayedCp          *int             `json:"played_cp"`
	LossCp            *int             `json:"loss_cp"`
	Judgement         *string          `json:"judgement"`
	WinProbDelta      *float64         `json:"winning_chance_delta"`
	CandidateLines    []CandidateInput `json:"candidate_lines" validate:"dive"`
	PracticalResponse *PracticalInput  `json:"practical_response"`
}

// CandidateInput is one engine line of an AnalyzedPosition.
type CandidateInput struct {
	Rank         int    `json:"pv_rank" validate:"min=1"`
	Cp           int    `json:"cp"`
	FirstMoveUCI string `json:"first_move_uci"`
	UCILine      string `json:"uci_line"`
	SANLine      string `json:"san_line"`
	Acceptable   bool   `json:"is_acceptable"`
}

// PracticalInput is the opponent's actual reply to an AnalyzedPosition.
type PracticalInput struct {
	OpponentMoveUCI string `json:"opponent_move_uci" validate:"required"`
	OpponentMoveSAN string `json:"opponent_move_san"`
	CpAfter         *int   `json:"cp_after"`
}

// GradeRequest grades one card.
type GradeRequest struct {
	CardID int64 `json:"card_id" validate:"required,min=1"`
	Rating int   `json:"rating" validate:"required,min=1,max=4"`
}

// UserRequest names the user an operation applies to.
type UserRequest struct {
	Username string `json:"username" validate:"required"`
}
