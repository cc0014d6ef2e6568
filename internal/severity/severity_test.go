package severity

import (
	"math"
	"testing"

	"github.com/conorfennell/blunderfix/internal/domain"
)

func TestWinProbability(t *testing.T) {
	if got := WinProbability(0); got != 0 {
		t.Errorf("Expected 0cp to map to 0, but got %f", got)
	}
	if got := WinProbability(100000); got > 1 || got < 0.999 {
		t.Errorf("Expected a mate score to map to ~1, but got %f", got)
	}
	if got := WinProbability(-100000); got < -1 || got > -0.999 {
		t.Errorf("Expected a losing mate score to map to ~-1, but got %f", got)
	}
	// Symmetric around zero.
	if a, b := WinProbability(250), WinProbability(-250); math.Abs(a+b) > 1e-12 {
		t.Errorf("Expected symmetric values, got %f and %f", a, b)
	}
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		bestCp   float64
		playedCp float64
		expected domain.Judgement
	}{
		{"Equal to losing a rook", 0, -400, domain.JudgementBlunder},
		{"Small slip", 0, -50, domain.JudgementNone},
		{"Same move", 35, 35, domain.JudgementNone},
		{"Mistake band", 0, -140, domain.JudgementMistake},
		{"Inaccuracy band", 0, -80, domain.JudgementInaccuracy},
		{"Winning to losing", 300, -300, domain.JudgementBlunder},
		{"Improvement is never a mistake", -100, 50, domain.JudgementNone},
		{"Missing best", math.NaN(), -400, domain.JudgementNone},
		{"Missing played", 0, math.Inf(-1), domain.JudgementNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, delta := Classify(tc.bestCp, tc.playedCp)
			if got != tc.expected {
				t.Errorf("Expected %q, but got %q (delta %.4f)", tc.expected, got, delta)
			}
		})
	}
}

func TestClassifyDelta(t *testing.T) {
	j, delta := ClassifyCp(0, -400)
	if delta < BlunderDelta {
		t.Fatalf("Expected delta >= %.2f, but got %.4f", BlunderDelta, delta)
	}
	if j != domain.JudgementBlunder {
		t.Errorf("Expected blunder, got %q", j)
	}
	expected := WinProbability(0) - WinProbability(-400)
	if delta != expected {
		t.Errorf("Expected delta %v, got %v", expected, delta)
	}

	_, delta = Classify(math.NaN(), 0)
	if delta != 0 {
		t.Errorf("Expected zero delta for missing input, got %f", delta)
	}
}

func TestFromDeltaBoundaries(t *testing.T) {
	testCases := []struct {
		delta    float64
		expected domain.Judgement
	}{
		{0.30, domain.JudgementBlunder},
		{0.2999, domain.JudgementMistake},
		{0.20, domain.JudgementMistake},
		{0.1999, domain.JudgementInaccuracy},
		{0.10, domain.JudgementInaccuracy},
		{0.0999, domain.JudgementNone},
		{-0.5, domain.JudgementNone},
	}
	for _, tc := range testCases {
		if got := FromDelta(tc.delta); got != tc.expected {
			t.Errorf("FromDelta(%v): expected %q, got %q", tc.delta, tc.expected, got)
		}
	}
}
