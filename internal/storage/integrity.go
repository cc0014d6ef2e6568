package storage

import (
	"errors"
	"fmt"
)

// ErrIntegrity is returned when a state contains dangling or duplicate references.
var ErrIntegrity = errors.New("referential integrity violated")

// Check verifies that ids are unique per kind and that every reference
// points at an existing parent.
func (s *State) Check() error {
	games := make(map[int64]bool, len(s.Games))
	for _, g := range s.Games {
		if games[g.ID] {
			return fmt.Errorf("duplicate game id %d: %w", g.ID, ErrIntegrity)
		}
		games[g.ID] = true
	}

	positions := make(map[int64]bool, len(s.Positions))
	for _, p := range s.Positions {
		if positions[p.ID] {
			return fmt.Errorf("duplicate position id %d: %w", p.ID, ErrIntegrity)
		}
		if !games[p.GameID] {
			return fmt.Errorf("position %d references missing game %d: %w", p.ID, p.GameID, ErrIntegrity)
		}
		positions[p.ID] = true
	}

	for _, l := range s.Lines {
		if !positions[l.PositionID] {
			return fmt.Errorf("candidate line %d references missing position %d: %w", l.ID, l.PositionID, ErrIntegrity)
		}
	}

	practical := make(map[int64]bool)
	for _, r := range s.Practical {
		if !positions[r.PositionID] {
			return fmt.Errorf("practical response %d references missing position %d: %w", r.ID, r.PositionID, ErrIntegrity)
		}
		if practical[r.PositionID] {
			return fmt.Errorf("position %d has more than one practical response: %w", r.PositionID, ErrIntegrity)
		}
		practical[r.PositionID] = true
	}

	cards := make(map[int64]bool, len(s.Cards))
	carded := make(map[int64]bool, len(s.Cards))
	for _, c := range s.Cards {
		if cards[c.ID] {
			return fmt.Errorf("duplicate card id %d: %w", c.ID, ErrIntegrity)
		}
		if !positions[c.PositionID] {
			return fmt.Errorf("card %d references missing position %d: %w", c.ID, c.PositionID, ErrIntegrity)
		}
		if carded[c.PositionID] {
			return fmt.Errorf("position %d has more than one card: %w", c.PositionID, ErrIntegrity)
		}
		cards[c.ID] = true
		carded[c.PositionID] = true
	}

	for _, r := range s.Reviews {
		if !cards[r.CardID] {
			return fmt.Errorf("review %d references missing card %d: %w", r.ID, r.CardID, ErrIntegrity)
		}
	}
	return nil
}
