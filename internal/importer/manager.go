// Package importer fetches games from online archives and PGN files and
// hands them to the game store. Online imports run as background jobs whose
// progress can be polled.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/conorfennell/blunderfix/internal/domain"
	"github.com/conorfennell/blunderfix/internal/pgn"
	"github.com/conorfennell/blunderfix/internal/trainer"
)

// GameStore receives imported games.
type GameStore interface {
	InsertGame(req trainer.NewGame) (domain.Game, bool, error)
	Flush(ctx context.Context) error
}

// Config holds the archive endpoints and limits.
type Config struct {
	LichessBaseURL   string
	ChessComBaseURL  string
	LichessMaxGames  int
	ChessComMaxGames int
	UserAgent        string
	Timeout          time.Duration
}

// DefaultConfig returns the public endpoints with the default limits.
func DefaultConfig() Config {
	return Config{
		LichessBaseURL:   "https://lichess.org",
		ChessComBaseURL:  "https://api.chess.com",
		LichessMaxGames:  100,
		ChessComMaxGames: 200,
		UserAgent:        "blunderfix",
		Timeout:          60 * time.Second,
	}
}

// StartRequest asks for a background import of a user's recent games.
type StartRequest struct {
	Source   domain.Source `json:"source" validate:"required,oneof=lichess chesscom"`
	Username string        `json:"username" validate:"required"`
	MaxGames int           `json:"max_games" validate:"min=0"`
}

// Manager runs import jobs. Jobs are kept until Clear is called.
type Manager struct {
	store    GameStore
	client   *http.Client
	cfg      Config
	logger   *slog.Logger
	validate *validator.Validate

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewManager returns a manager importing into store. Zero config fields take
// their defaults and a nil logger uses slog.Default.
func NewManager(store GameStore, cfg Config, logger *slog.Logger) *Manager {
	def := DefaultConfig()
	if cfg.LichessBaseURL == "" {
		cfg.LichessBaseURL = def.LichessBaseURL
	}
	if cfg.ChessComBaseURL == "" {
		cfg.ChessComBaseURL = def.ChessComBaseURL
	}
	if cfg.LichessMaxGames <= 0 {
		cfg.LichessMaxGames = def.LichessMaxGames
	}
	if cfg.ChessComMaxGames <= 0 {
		cfg.ChessComMaxGames = def.ChessComMaxGames
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	cfg.LichessBaseURL = strings.TrimRight(cfg.LichessBaseURL, "/")
	cfg.ChessComBaseURL = strings.TrimRight(cfg.ChessComBaseURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
		jobs:     make(map[string]*job),
	}
}

// Start launches an import job and returns its id immediately.
func (m *Manager) Start(req StartRequest) (string, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := m.validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	maxGames := req.MaxGames
	if maxGames <= 0 {
		maxGames = m.cfg.LichessMaxGames
		if req.Source == domain.SourceChessCom {
			maxGames = m.cfg.ChessComMaxGames
		}
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	ctx, cancel := context.WithCancel(context.Background())
	j := newJob(Progress{
		JobID:    id,
		State:    JobRunning,
		Source:   req.Source,
		Username: req.Username,
		Phase:    "starting",
		Message:  "Starting import...",
	}, cancel)

	m.mu.Lock()
	m.jobs[id] = j
	m.mu.Unlock()

	m.logger.Info("Import started", "job_id", id, "source", req.Source, "username", req.Username, "max_games", maxGames)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(j.done)
		defer cancel()
		m.run(ctx, j, req.Source, req.Username, maxGames)
	}()
	return id, nil
}

func (m *Manager) run(ctx context.Context, j *job, source domain.Source, username string, maxGames int) {
	var (
		games []rawGame
		err   error
	)
	switch source {
	case domain.SourceLichess:
		games, err = m.fetchLichess(ctx, j, username, maxGames)
	case domain.SourceChessCom:
		games, err = m.fetchChessCom(ctx, j, username, maxGames)
	}
	if err == nil {
		err = m.insertAll(ctx, j, source, username, games)
	}

	// Games inserted before a failure are kept, so flush in every outcome.
	if ferr := m.store.Flush(context.Background()); ferr != nil && err == nil {
		err = ferr
	}

	p := j.snapshot()
	switch {
	case err == nil:
		j.update(func(p *Progress) {
			p.State = JobDone
			p.Phase = "done"
			p.Message = fmt.Sprintf("Imported %d new games (%d skipped)", p.Imported, p.Skipped)
		})
		m.logger.Info("Import finished", "job_id", p.JobID, "imported", p.Imported, "skipped", p.Skipped)
	case errors.Is(err, context.Canceled):
		j.update(func(p *Progress) {
			p.State = JobCancelled
			p.Phase = "cancelled"
			p.Message = fmt.Sprintf("Cancelled after importing %d games", p.Imported)
		})
		m.logger.Info("Import cancelled", "job_id", p.JobID, "imported", p.Imported)
	default:
		msg := err.Error()
		j.update(func(p *Progress) {
			p.State = JobError
			p.Phase = "error"
			p.Message = msg
			p.Error = &msg
		})
		m.logger.Error("Import failed", "job_id", p.JobID, "error", err)
	}
}

func (m *Manager) insertAll(ctx context.Context, j *job, source domain.Source, username string, games []rawGame) error {
	j.update(func(p *Progress) {
		p.Phase = "importing"
		p.Total = len(games)
	})
	for _, g := range games {
		if err := ctx.Err(); err != nil {
			return err
		}
		color := pgn.PlayedColor(pgn.Headers(g.PGN), username)
		_, inserted, err := m.store.InsertGame(trainer.NewGame{
			Source:       source,
			SourceGameID: g.ID,
			Username:     username,
			PlayedColor:  color,
			Result:       pgn.Result(pgn.Headers(g.PGN), color),
			PGN:          g.PGN,
		})
		if err != nil {
			return err
		}
		j.update(func(p *Progress) {
			p.Done++
			if inserted {
				p.Imported++
			} else {
				p.Skipped++
			}
			p.Message = fmt.Sprintf("Importing games... %d/%d", p.Done, p.Total)
		})
	}
	return nil
}

// Progress returns the latest snapshot of a job.
func (m *Manager) Progress(id string) (Progress, error) {
	j, err := m.lookup(id)
	if err != nil {
		return Progress{}, err
	}
	return j.snapshot(), nil
}

// Cancel stops a running job. Cancelling a finished job has no effect.
func (m *Manager) Cancel(id string) error {
	j, err := m.lookup(id)
	if err != nil {
		return err
	}
	j.cancel()
	return nil
}

// Clear cancels and forgets every job. It returns once the cancelled jobs
// have stopped writing games, or when ctx is done.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	jobs := m.jobs
	m.jobs = make(map[string]*job)
	m.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
	for _, j := range jobs {
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) lookup(id string) (*job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: import job %q", domain.ErrNotFound, id)
	}
	return j, nil
}
