package fsrs

import (
	"math"
	"testing"
	"time"

	"github.com/conorfennell/blunderfix/internal/domain"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func TestNextFirstReview(t *testing.T) {
	params := DefaultParams()
	card := domain.NewCard(1, 1, testNow)

	testCases := []struct {
		rating    domain.Rating
		state     domain.CardState
		step      int
		stability float64
		due       time.Duration
	}{
		{domain.Again, domain.StateLearning, 1, 0.2, 10 * time.Minute},
		{domain.Hard, domain.StateLearning, 2, 1.0, 24 * time.Hour},
		{domain.Good, domain.StateReview, 0, 3.0, 3 * 24 * time.Hour},
		{domain.Easy, domain.StateReview, 0, 7.0, 7 * 24 * time.Hour},
	}

	for _, tc := range testCases {
		t.Run(string(tc.state), func(t *testing.T) {
			res, err := params.Next(card, tc.rating, testNow)
			if err != nil {
				t.Fatalf("Next() returned an unexpected error: %v", err)
			}
			got := res.Card
			if got.State != tc.state {
				t.Errorf("Expected state %s, but got %s", tc.state, got.State)
			}
			if got.Step != tc.step {
				t.Errorf("Expected step %d, but got %d", tc.step, got.Step)
			}
			if got.Stability != tc.stability {
				t.Errorf("Expected stability %.2f, but got %.2f", tc.stability, got.Stability)
			}
			if offset := got.DueAt.Sub(testNow); offset != tc.due {
				t.Errorf("Expected due offset %v, but got %v", tc.due, offset)
			}
			if got.Reps != 1 {
				t.Errorf("Expected reps to be 1, but got %d", got.Reps)
			}
			if got.Difficulty != domain.DefaultDifficulty {
				t.Errorf("Expected difficulty to stay %.1f, but got %.2f", domain.DefaultDifficulty, got.Difficulty)
			}
			if got.LastReviewAt == nil || !got.LastReviewAt.Equal(testNow) {
				t.Errorf("Expected last review to be %v, but got %v", testNow, got.LastReviewAt)
			}
			if res.ElapsedDays != 0 {
				t.Errorf("Expected no elapsed days on first review, got %f", res.ElapsedDays)
			}
		})
	}
}

func TestNextLaterReviews(t *testing.T) {
	params := DefaultParams()
	last := testNow.Add(-48 * time.Hour)

	for _, stability := range []float64{0.05, 0.4, 3, 12.5} {
		card := domain.Card{
			ID:           7,
			State:        domain.StateReview,
			DueAt:        testNow,
			Stability:    stability,
			Difficulty:   5,
			Reps:         3,
			Lapses:       1,
			LastReviewAt: &last,
		}
		base := math.Max(0.2, stability)

		t.Run("Good", func(t *testing.T) {
			res, err := params.Next(card, domain.Good, testNow)
			if err != nil {
				t.Fatalf("Next() returned an unexpected error: %v", err)
			}
			if res.Card.Stability != base*2.0 {
				t.Errorf("Expected stability %v, but got %v", base*2.0, res.Card.Stability)
			}
			if !res.Card.DueAt.Equal(AddDays(testNow, base*2.0)) {
				t.Errorf("Expected due %v, but got %v", AddDays(testNow, base*2.0), res.Card.DueAt)
			}
			if math.Abs(res.Card.Difficulty-4.95) > 1e-9 {
				t.Errorf("Expected difficulty to decrease to 4.95, got %v", res.Card.Difficulty)
			}
			if res.Card.State != domain.StateReview || res.Card.Reps != 4 || res.Card.Lapses != 1 {
				t.Errorf("Unexpected card after Good: %+v", res.Card)
			}
			if math.Abs(res.ElapsedDays-2) > 1e-9 {
				t.Errorf("Expected 2 elapsed days, got %f", res.ElapsedDays)
			}
		})

		t.Run("Again", func(t *testing.T) {
			res, _ := params.Next(card, domain.Again, testNow)
			if res.Card.State != domain.StateRelearning {
				t.Errorf("Expected relearning, got %s", res.Card.State)
			}
			if res.Card.Stability != math.Max(0.2, base*0.5) {
				t.Errorf("Expected stability %v, got %v", math.Max(0.2, base*0.5), res.Card.Stability)
			}
			if res.Card.DueAt.Sub(testNow) != 10*time.Minute {
				t.Errorf("Expected a 10 minute relearn delay, got %v", res.Card.DueAt.Sub(testNow))
			}
			if res.Card.Lapses != 2 {
				t.Errorf("Expected lapses to increase to 2, got %d", res.Card.Lapses)
			}
			if res.Card.Difficulty != 5.5 {
				t.Errorf("Expected difficulty 5.5, got %v", res.Card.Difficulty)
			}
		})

		t.Run("Hard", func(t *testing.T) {
			res, _ := params.Next(card, domain.Hard, testNow)
			if res.Card.Stability != base*1.2 || res.Card.State != domain.StateReview {
				t.Errorf("Unexpected card after Hard: %+v", res.Card)
			}
			if math.Abs(res.Card.Difficulty-5.1) > 1e-9 {
				t.Errorf("Expected difficulty 5.1, got %v", res.Card.Difficulty)
			}
		})

		t.Run("Easy", func(t *testing.T) {
			res, _ := params.Next(card, domain.Easy, testNow)
			if res.Card.Stability != base*3.2 {
				t.Errorf("Expected stability %v, got %v", base*3.2, res.Card.Stability)
			}
			if !res.Card.DueAt.Equal(AddDays(testNow, base*3.2)) {
				t.Errorf("Unexpected due time %v", res.Card.DueAt)
			}
		})
	}
}

func TestDifficultyBounds(t *testing.T) {
	params := DefaultParams()
	hard := domain.Card{Reps: 1, Stability: 1, Difficulty: 9.8, DueAt: testNow}
	res, _ := params.Next(hard, domain.Again, testNow)
	if res.Card.Difficulty != 10 {
		t.Errorf("Expected difficulty to be capped at 10, got %v", res.Card.Difficulty)
	}

	easy := domain.Card{Reps: 1, Stability: 1, Difficulty: 1.05, DueAt: testNow}
	res, _ = params.Next(easy, domain.Easy, testNow)
	if res.Card.Difficulty != 1 {
		t.Errorf("Expected difficulty to be floored at 1, got %v", res.Card.Difficulty)
	}
}

func TestNextDoesNotMutate(t *testing.T) {
	params := DefaultParams()
	card := domain.NewCard(1, 2, testNow)
	before := card

	preview := params.Preview(card, testNow)
	if len(preview) != 4 {
		t.Fatalf("Expected 4 previews, got %d", len(preview))
	}
	if card != before {
		t.Errorf("Expected Preview to leave the card untouched")
	}
	if !preview[domain.Easy].Equal(testNow.Add(7 * 24 * time.Hour)) {
		t.Errorf("Unexpected Easy preview %v", preview[domain.Easy])
	}
	if !preview[domain.Again].Before(preview[domain.Hard]) {
		t.Errorf("Expected Again to be due before Hard")
	}
}

func TestNextRejectsInvalidRating(t *testing.T) {
	params := DefaultParams()
	for _, r := range []domain.Rating{0, 5, -1} {
		if _, err := params.Next(domain.Card{}, r, testNow); err == nil {
			t.Errorf("Expected an error for rating %d", r)
		}
	}
}

func TestAddDays(t *testing.T) {
	if got := AddDays(testNow, 10.0/1440); got.Sub(testNow) != 10*time.Minute {
		t.Errorf("Expected 10 minutes, got %v", got.Sub(testNow))
	}
	if got := AddDays(testNow, -3); !got.Equal(testNow) {
		t.Errorf("Expected negative offsets to clamp to zero, got %v", got)
	}
	// 0.4 days * 1.2 = 41472 seconds exactly.
	if got := AddDays(testNow, 0.48); got.Sub(testNow) != 41472*time.Second {
		t.Errorf("Expected 41472s, got %v", got.Sub(testNow))
	}
}
