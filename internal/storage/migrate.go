package storage

import (
	"math"

	"github.com/conorfennell/blunderfix/internal/domain"
	"github.com/conorfennell/blunderfix/internal/severity"
)

// positionFields carries the judgement-related fields of a stored position
// as they were written. Any of them may be absent in older records.
type positionFields struct {
	Judgement    *string
	WinProbDelta *float64
	IsBlunder    *bool // version 1 only
}

// migratePosition sets p's judgement and delta from a stored record.
// Current records are taken as written. Legacy records are backfilled from
// an explicit label, then the blunder flag, then the stored delta and
// finally the evaluations themselves, using the classifier's thresholds.
func migratePosition(p *domain.Position, f positionFields, legacy bool) {
	hasDelta := f.WinProbDelta != nil && !math.IsNaN(*f.WinProbDelta) && !math.IsInf(*f.WinProbDelta, 0)
	if hasDelta {
		p.WinProbDelta = *f.WinProbDelta
	}
	label := domain.JudgementNone
	if f.Judgement != nil {
		label = domain.ParseJudgement(*f.Judgement)
	}
	if !legacy && f.Judgement != nil {
		p.Judgement = label
		return
	}

	switch {
	case label != domain.JudgementNone:
		p.Judgement = label
	case f.IsBlunder != nil && *f.IsBlunder:
		p.Judgement = domain.JudgementBlunder
	case hasDelta:
		p.Judgement = severity.FromDelta(p.WinProbDelta)
	default:
		p.Judgement, p.WinProbDelta = severity.ClassifyCp(p.BestCp, p.PlayedCp)
	}
}
