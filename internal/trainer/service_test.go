package trainer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/conorfennell/blunderfix/internal/domain"
	"github.com/conorfennell/blunderfix/internal/storage"
)

var testStart = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

// memBackend keeps the state in memory and can be told to fail saves.
type memBackend struct {
	state *storage.State
	saves int
	fail  error
}

func (m *memBackend) Load(context.Context) (*storage.State, error) {
	if m.state == nil {
		return storage.NewState(), nil
	}
	return m.state, nil
}

func (m *memBackend) Save(_ context.Context, s *storage.State) error {
	if m.fail != nil {
		return m.fail
	}
	m.state = s
	m.saves++
	return nil
}

func (m *memBackend) Close() error { return nil }

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*Service, *memBackend, *testClock) {
	t.Helper()
	backend := &memBackend{}
	clock := &testClock{now: testStart}
	svc, err := New(context.Background(), backend, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    clock.Now,
	})
	if err != nil {
		t.Fatalf("New() returned an unexpected error: %v", err)
	}
	return svc, backend, clock
}

func intp(v int) *int         { return &v }
func strp(v string) *string   { return &v }
func f64p(v float64) *float64 { return &v }

// addGame inserts a lichess game for username and returns its id.
func addGame(t *testing.T, svc *Service, username, id string) int64 {
	t.Helper()
	g, ok, err := svc.InsertGame(NewGame{
		Source:       domain.SourceLichess,
		SourceGameID: id,
		Username:     username,
		PlayedColor:  "white",
		PGN:          "[Site \"https://lichess.org/" + id + "\"]\n\n1. e4 e5 *",
	})
	if err != nil || !ok {
		t.Fatalf("InsertGame() failed: inserted=%v err=%v", ok, err)
	}
	return g.ID
}

func position(ply, best, played int) AnalyzedPosition {
	return AnalyzedPosition{
		Ply:        ply,
		FEN:        "fen-" + string(rune('a'+ply%26)),
		SideToMove: "white",
		PlayedUCI:  "e2e4",
		PlayedSAN:  "e4",
		BestCp:     intp(best),
		PlayedCp:   intp(played),
	}
}

// seedUser stores one game for username with a blunder, a mistake and an
// inaccuracy, and returns the game id.
func seedUser(t *testing.T, svc *Service, username, gameID string) int64 {
	t.Helper()
	id := addGame(t, svc, username, gameID)
	blunder := position(10, 20, -400)
	blunder.CandidateLines = []CandidateInput{
		{Rank: 2, Cp: 5, FirstMoveUCI: "d2d4", SANLine: "d4", Acceptable: true},
		{Rank: 1, Cp: 20, FirstMoveUCI: "g1f3", SANLine: "Nf3", Acceptable: true},
		{Rank: 3, Cp: -90, FirstMoveUCI: "a2a3", SANLine: "a3"},
	}
	blunder.PracticalResponse = &PracticalInput{OpponentMoveUCI: "d8h4", OpponentMoveSAN: "Qh4", CpAfter: intp(-380)}
	_, err := svc.StoreAnalyzedPositions(context.Background(), StoreRequest{
		GameID:    id,
		Positions: []AnalyzedPosition{blunder, position(12, 0, -140), position(14, 0, -80)},
	})
	if err != nil {
		t.Fatalf("StoreAnalyzedPositions() returned an unexpected error: %v", err)
	}
	return id
}

func TestNewLoadsOnce(t *testing.T) {
	backend := &memBackend{state: storage.NewState()}
	backend.state.AddGame(domain.Game{Source: domain.SourcePGN, SourceGameID: "pgn-1", Username: "alice", CreatedAt: testStart})

	svc, err := New(context.Background(), backend, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("New() returned an unexpected error: %v", err)
	}
	if got := svc.state.Users(); len(got) != 1 || got[0] != "alice" {
		t.Errorf("Expected the loaded state to be used, got users %v", got)
	}
	if backend.saves != 0 {
		t.Errorf("Expected no save on load, got %d", backend.saves)
	}
}

func TestFlushFailureKeepsState(t *testing.T) {
	svc, backend, _ := newTestService(t)
	gameID := seedUser(t, svc, "alice", "g1")
	backend.fail = errors.New("disk full")

	res, err := svc.ResetAnalysis(context.Background(), "alice")
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("Expected ErrPersistence, got %v", err)
	}
	if res.PositionsDeleted != 3 {
		t.Errorf("Expected the result to be reported, got %+v", res)
	}
	if g, _ := svc.state.Game(gameID); g.Analyzed {
		t.Errorf("Expected the in-memory mutation to stay applied")
	}

	saves := backend.saves
	backend.fail = nil
	if err := svc.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() returned an unexpected error: %v", err)
	}
	if backend.saves != saves+1 {
		t.Errorf("Expected the retried flush to save")
	}
	if err := svc.Flush(context.Background()); err != nil || backend.saves != saves+1 {
		t.Errorf("Expected a clean flush to be a no-op (err: %v)", err)
	}
}

func TestInsertGame(t *testing.T) {
	svc, backend, _ := newTestService(t)

	g, ok, err := svc.InsertGame(NewGame{Source: domain.SourceLichess, SourceGameID: "x1", Username: "  Alice "})
	if err != nil || !ok {
		t.Fatalf("Expected the game to be inserted, got ok=%v err=%v", ok, err)
	}
	if g.Username != "alice" || g.PlayedColor != "white" || g.Result != "unknown" || !g.CreatedAt.Equal(testStart) {
		t.Errorf("Expected normalized defaults, got %+v", g)
	}
	if _, ok, _ := svc.InsertGame(NewGame{Source: domain.SourceLichess, SourceGameID: "x1", Username: "ALICE"}); ok {
		t.Errorf("Expected a duplicate to be skipped")
	}
	if backend.saves != 0 {
		t.Errorf("Expected InsertGame not to flush, got %d saves", backend.saves)
	}

	invalid := []NewGame{
		{Source: domain.SourceLichess, SourceGameID: "x2"},
		{Source: domain.SourceLichess, Username: "alice"},
		{Source: "fics", SourceGameID: "x3", Username: "alice"},
		{Source: domain.SourcePGN, SourceGameID: "x4", Username: "alice", PlayedColor: "green"},
	}
	for _, req := range invalid {
		if _, _, err := svc.InsertGame(req); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput for %+v, got %v", req, err)
		}
	}
	if n := len(svc.state.Games); n != 1 {
		t.Errorf("Expected 1 game stored, got %d", n)
	}
}
