package domain

import (
	"testing"
	"time"
)

func TestSeverityFilterMatches(t *testing.T) {
	blunder := Position{Judgement: JudgementBlunder, BestCp: 50}
	lostBlunder := Position{Judgement: JudgementBlunder, BestCp: -200}
	mistake := Position{Judgement: JudgementMistake, BestCp: 0}
	inaccuracy := Position{Judgement: JudgementInaccuracy, BestCp: 0}
	none := Position{Judgement: JudgementNone}

	all := SeverityFilter{Inaccuracy: true, Mistake: true, Blunder: true}
	tests := []struct {
		name   string
		filter SeverityFilter
		pos    Position
		want   bool
	}{
		{"default shows blunders", DefaultFilter(), blunder, true},
		{"default hides mistakes", DefaultFilter(), mistake, false},
		{"mistakes only", SeverityFilter{Mistake: true}, mistake, true},
		{"inaccuracies only", SeverityFilter{Inaccuracy: true}, inaccuracy, true},
		{"none never matches", all, none, false},
		{"lost position kept without exclusion", all, lostBlunder, true},
		{"lost position excluded at threshold", SeverityFilter{Blunder: true, ExcludeLost: true}, lostBlunder, false},
		{"winning position kept with exclusion", SeverityFilter{Blunder: true, ExcludeLost: true}, blunder, true},
		{"empty filter", SeverityFilter{}, blunder, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.pos); got != tt.want {
				t.Errorf("Expected %v, but got %v", tt.want, got)
			}
		})
	}
}

func TestNormalizeUsername(t *testing.T) {
	if got := NormalizeUsername("  MagnusC "); got != "magnusc" {
		t.Errorf("Expected magnusc, but got %q", got)
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 3, 14, 12, 30, 5, 0, time.UTC)
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2025-03-14 12:30:05", false},
		{"2025-03-14T12:30:05Z", false},
		{"2025-03-14T14:30:05+02:00", false},
		{"2025-03-14 12:30:05.750Z", false},
		{"yesterday", true},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTime(%q): expected error=%v, but got %v", tt.in, tt.wantErr, err)
			continue
		}
		if !tt.wantErr && !got.Equal(want) {
			t.Errorf("ParseTime(%q): expected %v, but got %v", tt.in, want, got)
		}
	}
	if got := FormatTime(want.In(time.FixedZone("X", 3600))); got != "2025-03-14 12:30:05" {
		t.Errorf("Expected UTC formatting, but got %q", got)
	}
}
