package domain

import (
	"strings"
	"time"
)

// Judgement is the severity assigned to a played move.
// The zero value means the move was not a mistake.
type Judgement string

const (
	JudgementNone       Judgement = ""
	JudgementInaccuracy Judgement = "inaccuracy"
	JudgementMistake    Judgement = "mistake"
	JudgementBlunder    Judgement = "blunder"
)

// ParseJudgement accepts a label in any case and returns JudgementNone for
// anything it does not recognise.
func ParseJudgement(s string) Judgement {
	switch Judgement(strings.ToLower(strings.TrimSpace(s))) {
	case JudgementInaccuracy:
		return JudgementInaccuracy
	case JudgementMistake:
		return JudgementMistake
	case JudgementBlunder:
		return JudgementBlunder
	}
	return JudgementNone
}

// Position is one analysed move of a game, from the mover's perspective.
type Position struct {
	ID           int64
	GameID       int64
	Ply          int
	FEN          string
	SideToMove   string
	PlayedUCI    string
	PlayedSAN    string
	BestCp       int
	PlayedCp     int
	LossCp       int
	Judgement    Judgement
	WinProbDelta float64
	CreatedAt    time.Time
}

// CandidateLine is one engine line for a position. Rank 1 is the principal variation.
type CandidateLine struct {
	ID           int64
	PositionID   int64
	Rank         int
	Cp           int
	FirstMoveUCI string
	UCILine      string
	SANLine      string
	Acceptable   bool
}

// PracticalResponse is the reply the opponent actually played after the position's move.
type PracticalResponse struct {
	ID              int64
	PositionID      int64
	OpponentMoveUCI string
	OpponentMoveSAN string
	CpAfter         *int
}
