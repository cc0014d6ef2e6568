package domain

// SeverityFilter selects which positions generate and surface cards.
type SeverityFilter struct {
	Inaccuracy  bool `json:"inaccuracy"`
	Mistake     bool `json:"mistake"`
	Blunder     bool `json:"blunder"`
	ExcludeLost bool `json:"exclude_lost"`
}

// LostThresholdCp is the best evaluation at or below which a position is
// considered already lost.
const LostThresholdCp = -200

// DefaultFilter shows blunders only.
func DefaultFilter() SeverityFilter {
	return SeverityFilter{Blunder: true}
}

// Matches reports whether p passes the filter.
func (f SeverityFilter) Matches(p Position) bool {
	if p.Judgement == JudgementNone {
		return false
	}
	if f.ExcludeLost && p.BestCp <= LostThresholdCp {
		return false
	}
	switch p.Judgement {
	case JudgementBlunder:
		return f.Blunder
	case JudgementMistake:
		return f.Mistake
	case JudgementInaccuracy:
		return f.Inaccuracy
	}
	return false
}
