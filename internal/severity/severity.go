// Package severity classifies played moves by how much winning chance they gave away.
package severity

import (
	"math"

	"github.com/conorfennell/blunderfix/internal/domain"
)

// winProbMultiplier is the logistic slope used to map centipawns to winning chances.
// Stored judgements depend on this exact value.
const winProbMultiplier = 0.00368208

// Thresholds on the winning-chance delta.
const (
	BlunderDelta    = 0.30
	MistakeDelta    = 0.20
	InaccuracyDelta = 0.10
)

// WinProbability maps a centipawn evaluation to a winning-chance proxy in [-1, 1].
func WinProbability(cp float64) float64 {
	out := 2/(1+math.Exp(-winProbMultiplier*cp)) - 1
	if out < -1 {
		return -1
	}
	if out > 1 {
		return 1
	}
	return out
}

// FromDelta returns the judgement for a winning-chance delta.
func FromDelta(delta float64) domain.Judgement {
	switch {
	case delta >= BlunderDelta:
		return domain.JudgementBlunder
	case delta >= MistakeDelta:
		return domain.JudgementMistake
	case delta >= InaccuracyDelta:
		return domain.JudgementInaccuracy
	}
	return domain.JudgementNone
}

// Classify compares the best line's evaluation with the evaluation after the
// played move, both from the mover's perspective. Non-finite input yields no
// judgement and a zero delta.
func Classify(bestCp, playedCp float64) (domain.Judgement, float64) {
	if !finite(bestCp) || !finite(playedCp) {
		return domain.JudgementNone, 0
	}
	delta := WinProbability(bestCp) - WinProbability(playedCp)
	return FromDelta(delta), delta
}

// ClassifyCp is Classify for integer centipawn scores.
func ClassifyCp(bestCp, playedCp int) (domain.Judgement, float64) {
	return Classify(float64(bestCp), float64(playedCp))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
