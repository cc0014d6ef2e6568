package domain

import (
	"strings"
	"time"
)

// CardState is the scheduling phase of a card. Cards cycle between the
// phases indefinitely; there is no terminal state.
type CardState string

const (
	StateLearning   CardState = "learning"
	StateReview     CardState = "review"
	StateRelearning CardState = "relearning"
)

// ParseCardState maps unknown values to learning.
func ParseCardState(s string) CardState {
	switch CardState(strings.ToLower(strings.TrimSpace(s))) {
	case StateReview:
		return StateReview
	case StateRelearning:
		return StateRelearning
	}
	return StateLearning
}

// Rating is the user's grade for a review.
// 1: Again (Incorrect)
// 2: Hard
// 3: Good
// 4: Easy
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

// Ratings lists every valid rating in ascending order.
var Ratings = []Rating{Again, Hard, Good, Easy}

// Valid reports whether r is in [1, 4].
func (r Rating) Valid() bool { return r >= Again && r <= Easy }

// Correct reports whether the rating counts as a successful recall.
func (r Rating) Correct() bool { return r > Again }

// Default memory state for freshly materialised cards.
const (
	DefaultStability  = 0.4
	DefaultDifficulty = 5.0
)

// Card is the spaced-repetition record for one analysed position.
type Card struct {
	ID           int64
	PositionID   int64
	State        CardState
	Step         int
	DueAt        time.Time
	Stability    float64
	Difficulty   float64
	Reps         int
	Lapses       int
	LastReviewAt *time.Time
}

// NewCard returns a card in its initial state, due immediately.
func NewCard(id, positionID int64, now time.Time) Card {
	return Card{
		ID:         id,
		PositionID: positionID,
		State:      StateLearning,
		DueAt:      now,
		Stability:  DefaultStability,
		Difficulty: DefaultDifficulty,
	}
}

// Seen reports whether the card has been graded at least once.
func (c Card) Seen() bool { return c.Reps > 0 }

// IsDue reports whether the card's due time has passed at now.
func (c Card) IsDue(now time.Time) bool { return !c.DueAt.After(now) }

// Review records a single grading event for a card.
type Review struct {
	ID          int64
	CardID      int64
	Rating      Rating
	ReviewedAt  time.Time
	NextDueAt   time.Time
	ElapsedDays float64
}
