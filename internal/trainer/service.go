// Package trainer is the review engine: it owns the loaded state, turns
// analysed positions into cards, schedules reviews and derives statistics.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/blunderfix/internal/domain"
	"github.com/conorfennell/blunderfix/internal/fsrs"
	"github.com/conorfennell/blunderfix/internal/storage"
)

// Options configures a Service. Zero values select the defaults.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
	Params *fsrs.Params
}

// Service is the single owner of the in-memory state. It is constructed
// once per process and is safe for concurrent use; every operation runs
// under one lock so mutations never interleave.
type Service struct {
	mu      sync.Mutex
	state   *storage.State
	dirty   bool
	backend storage.Backend
	params  *fsrs.Params
	clock   func() time.Time
	logger  *slog.Logger
}

// New loads the state from backend and returns a ready service.
func New(ctx context.Context, backend storage.Backend, opts Options) (*Service, error) {
	state, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	s := &Service{
		state:   state,
		backend: backend,
		params:  opts.Params,
		clock:   opts.Now,
		logger:  opts.Logger,
	}
	if s.params == nil {
		s.params = fsrs.DefaultParams()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger.Info("State loaded",
		"games", len(state.Games),
		"positions", len(state.Positions),
		"cards", len(state.Cards),
		"reviews", len(state.Reviews))
	return s, nil
}

// now returns the current time in UTC at second resolution.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Second)
}

// Flush persists the state if anything changed since the last successful flush.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// flushLocked saves the state. On failure the in-memory state is kept and
// stays dirty, so a later Flush retries.
func (s *Service) flushLocked(ctx context.Context) error {
	if !s.dirty {
		return nil
	}
	if err := s.backend.Save(ctx, s.state); err != nil {
		s.logger.Error("Failed to flush state", "error", err)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	s.dirty = false
	return nil
}

// commitLocked marks the state changed and flushes it.
func (s *Service) commitLocked(ctx context.Context) error {
	s.dirty = true
	return s.flushLocked(ctx)
}
