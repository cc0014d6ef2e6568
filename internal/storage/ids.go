package storage

// Kind names an entity kind with its own id sequence.
type Kind string

const (
	KindGame      Kind = "game"
	KindPosition  Kind = "position"
	KindLine      Kind = "line"
	KindPractical Kind = "practical"
	KindCard      Kind = "card"
	KindReview    Kind = "review"
)

// NextIDs holds the next identifier to issue for every kind.
type NextIDs struct {
	Game      int64 `json:"game"`
	Position  int64 `json:"position"`
	Line      int64 `json:"line"`
	Practical int64 `json:"practical"`
	Card      int64 `json:"card"`
	Review    int64 `json:"review"`
}

func newNextIDs() NextIDs {
	return NextIDs{Game: 1, Position: 1, Line: 1, Practical: 1, Card: 1, Review: 1}
}

func (n *NextIDs) counter(k Kind) *int64 {
	switch k {
	case KindGame:
		return &n.Game
	case KindPosition:
		return &n.Position
	case KindLine:
		return &n.Line
	case KindPractical:
		return &n.Practical
	case KindCard:
		return &n.Card
	case KindReview:
		return &n.Review
	}
	panic("storage: unknown id kind " + string(k))
}

// NextID issues the next identifier for k. Identifiers increase
// monotonically and are never reused until the state is cleared.
func (s *State) NextID(k Kind) int64 {
	c := s.NextIDs.counter(k)
	if *c < 1 {
		*c = 1
	}
	id := *c
	*c = id + 1
	return id
}

// repairNextIDs raises every sequence above the largest id in use.
func (s *State) repairNextIDs() {
	bump := func(k Kind, id int64) {
		if c := s.NextIDs.counter(k); *c <= id {
			*c = id + 1
		}
	}
	for _, g := range s.Games {
		bump(KindGame, g.ID)
	}
	for _, p := range s.Positions {
		bump(KindPosition, p.ID)
	}
	for _, l := range s.Lines {
		bump(KindLine, l.ID)
	}
	for _, r := range s.Practical {
		bump(KindPractical, r.ID)
	}
	for _, c := range s.Cards {
		bump(KindCard, c.ID)
	}
	for _, r := range s.Reviews {
		bump(KindReview, r.ID)
	}
}
