package fsrs

import (
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/blunderfix/internal/domain"
)

// Params holds the constants of the scheduling model.
type Params struct {
	RelearnDelay  time.Duration // due offset after Again
	MinStability  float64       // floor applied to stability before scaling
	MaxDifficulty float64
	MinDifficulty float64

	// First-review outcomes, indexed by rating.
	First map[domain.Rating]FirstStep

	// Later reviews: stability multiplier and difficulty change per rating.
	Growth     map[domain.Rating]float64
	Difficulty map[domain.Rating]float64
}

// FirstStep describes the result of grading a card that has never been reviewed.
type FirstStep struct {
	State     domain.CardState
	Step      int
	Stability float64
	Due       time.Duration
}

const day = 24 * time.Hour

// DefaultParams returns the scheduling constants used for every stored card.
func DefaultParams() *Params {
	return &Params{
		RelearnDelay:  10 * time.Minute,
		MinStability:  0.2,
		MaxDifficulty: 10,
		MinDifficulty: 1,
		First: map[domain.Rating]FirstStep{
			domain.Again: {State: domain.StateLearning, Step: 1, Stability: 0.2, Due: 10 * time.Minute},
			domain.Hard:  {State: domain.StateLearning, Step: 2, Stability: 1.0, Due: day},
			domain.Good:  {State: domain.StateReview, Step: 0, Stability: 3.0, Due: 3 * day},
			domain.Easy:  {State: domain.StateReview, Step: 0, Stability: 7.0, Due: 7 * day},
		},
		Growth: map[domain.Rating]float64{
			domain.Again: 0.5,
			domain.Hard:  1.2,
			domain.Good:  2.0,
			domain.Easy:  3.2,
		},
		Difficulty: map[domain.Rating]float64{
			domain.Again: 0.5,
			domain.Hard:  0.1,
			domain.Good:  -0.05,
			domain.Easy:  -0.15,
		},
	}
}

// Result is the outcome of grading a card at a point in time.
type Result struct {
	Card        domain.Card // the card after grading
	ReviewedAt  time.Time
	ElapsedDays float64 // days since the previous review, 0 for the first one
}

// Next computes the card's next memory state for rating at now without
// modifying the card.
func (p *Params) Next(card domain.Card, rating domain.Rating, now time.Time) (Result, error) {
	if !rating.Valid() {
		return Result{}, fmt.Errorf("rating %d must be in [1, 4]: %w", rating, domain.ErrInvalidInput)
	}
	now = now.UTC().Truncate(time.Second)

	stability := card.Stability
	if stability == 0 {
		stability = domain.DefaultStability
	}
	difficulty := card.Difficulty
	if difficulty == 0 {
		difficulty = domain.DefaultDifficulty
	}

	out := card
	out.Difficulty = difficulty
	if card.Reps == 0 {
		first := p.First[rating]
		out.State = first.State
		out.Step = first.Step
		out.Stability = first.Stability
		out.DueAt = now.Add(first.Due)
	} else {
		base := math.Max(p.MinStability, stability)
		out.Step = 0
		out.Stability = base * p.Growth[rating]
		out.Difficulty = p.adjustDifficulty(difficulty, p.Difficulty[rating])
		if rating == domain.Again {
			out.State = domain.StateRelearning
			out.Stability = math.Max(p.MinStability, out.Stability)
			out.DueAt = now.Add(p.RelearnDelay)
			out.Lapses++
		} else {
			out.State = domain.StateReview
			out.DueAt = AddDays(now, out.Stability)
		}
	}
	out.Reps++
	reviewed := now
	out.LastReviewAt = &reviewed

	return Result{
		Card:        out,
		ReviewedAt:  now,
		ElapsedDays: elapsedDays(card.LastReviewAt, now),
	}, nil
}

// Preview returns the due time each rating would produce, leaving card untouched.
func (p *Params) Preview(card domain.Card, now time.Time) map[domain.Rating]time.Time {
	out := make(map[domain.Rating]time.Time, len(domain.Ratings))
	for _, r := range domain.Ratings {
		res, _ := p.Next(card, r, now)
		out[r] = res.Card.DueAt
	}
	return out
}

func (p *Params) adjustDifficulty(d, delta float64) float64 {
	if delta > 0 {
		return math.Min(p.MaxDifficulty, d+delta)
	}
	return math.Max(p.MinDifficulty, d+delta)
}

// AddDays offsets t by a fractional number of days, rounded to whole
// seconds and never negative.
func AddDays(t time.Time, days float64) time.Time {
	secs := math.Max(0, math.Round(days*86400))
	return t.Add(time.Duration(secs) * time.Second)
}

func elapsedDays(last *time.Time, now time.Time) float64 {
	if last == nil {
		return 0
	}
	return math.Max(0, now.Sub(*last).Hours()/24)
}
