package trainer

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/conorfennell/blunderfix/internal/domain"
	"github.com/conorfennell/blunderfix/internal/storage"
)

// ImportResult counts the entities of an imported snapshot.
type ImportResult struct {
	Games     int `json:"games"`
	Positions int `json:"positions"`
	Cards     int `json:"cards"`
	Reviews   int `json:"reviews"`
}

// Export writes the complete state as a snapshot. The snapshot is encoded
// under the lock and written to w after it is released.
func (s *Service) Export(w io.Writer) error {
	var buf bytes.Buffer
	s.mu.Lock()
	err := storage.WriteSnapshot(&buf, s.state, s.now())
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Import replaces the complete state with a snapshot. A snapshot that cannot
// be decoded or fails the integrity check leaves the state untouched and is
// reported as domain.ErrInvalidInput.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	next, err := storage.ReadSnapshot(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = next
	res := ImportResult{
		Games:     len(next.Games),
		Positions: len(next.Positions),
		Cards:     len(next.Cards),
		Reviews:   len(next.Reviews),
	}
	s.logger.Info("Snapshot imported",
		"games", res.Games,
		"positions", res.Positions,
		"cards", res.Cards,
		"reviews", res.Reviews)
	return res, s.commitLocked(ctx)
}
