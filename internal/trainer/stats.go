package trainer

import (
	"cmp"
	"context"
	"math"
	"slices"
	"time"

	"github.com/conorfennell/blunderfix/internal/domain"
)

// Stats are a user's counts under a severity filter.
// LearnDue always equals WrongDue; both names are reported.
type Stats struct {
	Username  string `json:"username"`
	Games     int    `json:"games"`
	Positions int    `json:"positions"`
	Blunders  int    `json:"blunders"`
	DueTotal  int    `json:"due_cards"`
	WrongDue  int    `json:"wrong_due_cards"`
	LearnDue  int    `json:"learn_due_cards"`
	ReviewDue int    `json:"review_due_cards"`
	NewDue    int    `json:"new_due_cards"`
}

// SessionStats describe the latest run of reviews without a long break.
type SessionStats struct {
	Reviewed   int `json:"reviewed"`
	Attempts   int `json:"attempts"`
	Correct    int `json:"correct"`
	Wrong      int `json:"wrong"`
	Streak     int `json:"streak"`
	BestStreak int `json:"bestStreak"`
}

// DaySummary totals every review of the user.
type DaySummary struct {
	TotalReviews    int     `json:"total_reviews"`
	Again           int     `json:"again"`
	Hard            int     `json:"hard"`
	Good            int     `json:"good"`
	Easy            int     `json:"easy"`
	RetentionPct    float64 `json:"retention_pct"`
	AvgIntervalDays float64 `json:"avg_interval_days"`
}

// DayBucket counts the reviews of one UTC calendar day.
type DayBucket struct {
	Day          string  `json:"day"`
	Reviews      int     `json:"reviews"`
	Correct      int     `json:"correct"`
	RetentionPct float64 `json:"retention_pct"`
}

// DayStats is the day-bucketed review history.
type DayStats struct {
	Summary         DaySummary     `json:"summary"`
	ByDay           []DayBucket    `json:"by_day"`
	IntervalBuckets map[string]int `json:"interval_buckets"`
}

// Defaults for the review history windows.
const (
	DefaultBreakMinutes = 60
	DefaultWindowDays   = 60
)

// IntervalBuckets lists the histogram labels in ascending order.
var IntervalBuckets = []string{"<1d", "1-3d", "4-7d", "8-30d", "31d+"}

// EnsureCardsAndGetUsers materialises missing cards for every user and
// returns each user's stats, sorted by username.
func (s *Service) EnsureCardsAndGetUsers(ctx context.Context, filter domain.SeverityFilter) ([]Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.state.Users()
	created := 0
	for _, u := range users {
		created += s.ensureCardsLocked(u, filter)
	}
	var err error
	if created > 0 {
		err = s.commitLocked(ctx)
	}
	out := make([]Stats, 0, len(users))
	for _, u := range users {
		out = append(out, s.statsLocked(u, filter))
	}
	return out, err
}

// Stats materialises missing cards for the user and returns the user's counts.
func (s *Service) Stats(ctx context.Context, username string, filter domain.SeverityFilter) (Stats, error) {
	u, err := normalizeUser(username)
	if err != nil {
		return Stats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensureCardsLocked(u, filter) > 0 {
		err = s.commitLocked(ctx)
	}
	return s.statsLocked(u, filter), err
}

func (s *Service) statsLocked(username string, filter domain.SeverityFilter) Stats {
	games := s.state.GamesOf(username)
	positions := s.state.PositionsOf(games)
	st := Stats{Username: username, Games: len(games), Positions: len(positions)}

	matching := make(map[int64]bool)
	for _, p := range positions {
		if filter.Matches(p) {
			matching[p.ID] = true
			st.Blunders++
		}
	}
	now := s.now()
	for _, c := range s.state.Cards {
		if !matching[c.PositionID] || !c.IsDue(now) {
			continue
		}
		switch {
		case !c.Seen():
			st.NewDue++
		case c.State == domain.StateReview:
			st.ReviewDue++
		default:
			st.WrongDue++
		}
	}
	st.LearnDue = st.WrongDue
	st.DueTotal = st.NewDue + st.WrongDue + st.ReviewDue
	return st
}

// reviewsOfLocked returns the reviews of every card reachable from the user's games.
func (s *Service) reviewsOfLocked(username string) []domain.Review {
	positions := make(map[int64]bool)
	for _, p := range s.state.PositionsOf(s.state.GamesOf(username)) {
		positions[p.ID] = true
	}
	cards := make(map[int64]bool)
	for _, c := range s.state.Cards {
		if positions[c.PositionID] {
			cards[c.ID] = true
		}
	}
	var out []domain.Review
	for _, r := range s.state.Reviews {
		if cards[r.CardID] {
			out = append(out, r)
		}
	}
	return out
}

// SessionStats groups the user's most recent reviews into one session:
// walking back from the latest review, each older review joins while the gap
// to the one after it is at most breakMinutes. Values below one minute are
// raised to one.
func (s *Service) SessionStats(username string, breakMinutes int) (SessionStats, error) {
	u, err := normalizeUser(username)
	if err != nil {
		return SessionStats{}, err
	}
	gap := time.Duration(max(1, breakMinutes)) * time.Minute

	s.mu.Lock()
	reviews := s.reviewsOfLocked(u)
	s.mu.Unlock()

	if len(reviews) == 0 {
		return SessionStats{}, nil
	}
	slices.SortStableFunc(reviews, func(a, b domain.Review) int {
		return b.ReviewedAt.Compare(a.ReviewedAt)
	})
	n := 1
	for ; n < len(reviews); n++ {
		if reviews[n-1].ReviewedAt.Sub(reviews[n].ReviewedAt) > gap {
			break
		}
	}
	session := reviews[:n]
	slices.Reverse(session)

	var st SessionStats
	for _, r := range session {
		if r.Rating.Correct() {
			st.Correct++
			st.Streak++
			st.BestStreak = max(st.BestStreak, st.Streak)
		} else {
			st.Wrong++
			st.Streak = 0
		}
	}
	st.Reviewed = len(session)
	st.Attempts = len(session)
	return st, nil
}

// DayStats summarises all of the user's reviews and buckets those from the
// last windowDays days by UTC calendar day. Non-positive windows use
// DefaultWindowDays.
func (s *Service) DayStats(username string, windowDays int) (DayStats, error) {
	u, err := normalizeUser(username)
	if err != nil {
		return DayStats{}, err
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	s.mu.Lock()
	reviews := s.reviewsOfLocked(u)
	now := s.now()
	s.mu.Unlock()

	out := DayStats{ByDay: []DayBucket{}, IntervalBuckets: make(map[string]int, len(IntervalBuckets))}
	for _, b := range IntervalBuckets {
		out.IntervalBuckets[b] = 0
	}

	since := now.Add(-time.Duration(windowDays) * 24 * time.Hour)
	days := make(map[string]*DayBucket)
	var intervalSum float64
	correct := 0
	for _, r := range reviews {
		switch r.Rating {
		case domain.Again:
			out.Summary.Again++
		case domain.Hard:
			out.Summary.Hard++
		case domain.Good:
			out.Summary.Good++
		case domain.Easy:
			out.Summary.Easy++
		}
		if r.Rating.Correct() {
			correct++
		}
		interval := math.Max(0, r.NextDueAt.Sub(r.ReviewedAt).Hours()/24)
		intervalSum += interval
		out.IntervalBuckets[intervalBucket(interval)]++

		if r.ReviewedAt.Before(since) {
			continue
		}
		day := r.ReviewedAt.UTC().Format(time.DateOnly)
		b, ok := days[day]
		if !ok {
			b = &DayBucket{Day: day}
			days[day] = b
		}
		b.Reviews++
		if r.Rating.Correct() {
			b.Correct++
		}
	}

	out.Summary.TotalReviews = len(reviews)
	if len(reviews) > 0 {
		out.Summary.RetentionPct = percent(correct, len(reviews))
		out.Summary.AvgIntervalDays = math.Round(intervalSum/float64(len(reviews))*100) / 100
	}
	for _, b := range days {
		b.RetentionPct = percent(b.Correct, b.Reviews)
		out.ByDay = append(out.ByDay, *b)
	}
	slices.SortFunc(out.ByDay, func(a, b DayBucket) int { return cmp.Compare(a.Day, b.Day) })
	return out, nil
}

func intervalBucket(days float64) string {
	switch {
	case days < 1:
		return "<1d"
	case days < 4:
		return "1-3d"
	case days < 8:
		return "4-7d"
	case days < 31:
		return "8-30d"
	}
	return "31d+"
}

// percent returns part/total as a percentage rounded to one decimal.
func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(total)) / 10
}
