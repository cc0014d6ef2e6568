package trainer

import (
	"context"
	"errors"
	"testing"

	"github.com/conorfennell/blunderfix/internal/domain"
)

func TestStoreAnalyzedPositionsReplaces(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	gameID := seedUser(t, svc, "alice", "g1")
	other := seedUser(t, svc, "alice", "g2")

	view, err := svc.NextDueCard(ctx, "alice", domain.DefaultFilter())
	if err != nil || view == nil {
		t.Fatalf("Expected a due card, got %v (err: %v)", view, err)
	}
	if _, err := svc.GradeCard(ctx, GradeRequest{CardID: view.CardID, Rating: 3}); err != nil {
		t.Fatalf("GradeCard() returned an unexpected error: %v", err)
	}

	res, err := svc.StoreAnalyzedPositions(ctx, StoreRequest{
		GameID:    gameID,
		Positions: []AnalyzedPosition{position(20, 0, -400)},
	})
	if err != nil {
		t.Fatalf("StoreAnalyzedPositions() returned an unexpected error: %v", err)
	}
	if res.Positions != 1 || res.Blunders != 1 {
		t.Errorf("Expected 1 position and 1 blunder, got %+v", res)
	}

	positions := svc.state.PositionsOf(map[int64]bool{gameID: true})
	if len(positions) != 1 || positions[0].Ply != 20 {
		t.Errorf("Expected only the new position for the game, got %+v", positions)
	}
	if n := len(svc.state.PositionsOf(map[int64]bool{other: true})); n != 3 {
		t.Errorf("Expected the other game to keep 3 positions, got %d", n)
	}
	if err := svc.state.Check(); err != nil {
		t.Errorf("Expected no dangling references, got %v", err)
	}
	for _, c := range svc.state.Cards {
		if c.ID == view.CardID {
			t.Errorf("Expected the old card to be deleted")
		}
	}
	for _, r := range svc.state.Reviews {
		if r.CardID == view.CardID {
			t.Errorf("Expected the old card's reviews to be deleted")
		}
	}
}

func TestStoreAnalyzedPositionsClassifies(t *testing.T) {
	svc, _, _ := newTestService(t)
	gameID := addGame(t, svc, "alice", "g1")

	labelled := position(1, 0, 0)
	labelled.Judgement = strp("Mistake")
	labelled.WinProbDelta = f64p(0.21)
	labelled.LossCp = intp(7)
	byDelta := AnalyzedPosition{Ply: 2, FEN: "x", SideToMove: "black", WinProbDelta: f64p(0.35)}
	unevaluated := AnalyzedPosition{Ply: 3, FEN: "y", SideToMove: "black"}

	res, err := svc.StoreAnalyzedPositions(context.Background(), StoreRequest{
		GameID:    gameID,
		Positions: []AnalyzedPosition{labelled, position(4, 0, -50), position(5, 0, -400), byDelta, unevaluated},
	})
	if err != nil {
		t.Fatalf("StoreAnalyzedPositions() returned an unexpected error: %v", err)
	}
	if res.Blunders != 2 {
		t.Errorf("Expected 2 blunders, got %d", res.Blunders)
	}

	testCases := []struct {
		judgement domain.Judgement
		loss      int
	}{
		{domain.JudgementMistake, 7},
		{domain.JudgementNone, 50},
		{domain.JudgementBlunder, 400},
		{domain.JudgementBlunder, 0},
		{domain.JudgementNone, 0},
	}
	positions := svc.state.PositionsOf(map[int64]bool{gameID: true})
	if len(positions) != len(testCases) {
		t.Fatalf("Expected %d positions, got %d", len(testCases), len(positions))
	}
	for i, tc := range testCases {
		p := positions[i]
		if p.Judgement != tc.judgement || p.LossCp != tc.loss {
			t.Errorf("Position %d: expected %q/%d, got %q/%d", p.Ply, tc.judgement, tc.loss, p.Judgement, p.LossCp)
		}
	}
	if positions[0].WinProbDelta != 0.21 {
		t.Errorf("Expected the supplied delta to be kept, got %f", positions[0].WinProbDelta)
	}
	if positions[2].WinProbDelta < 0.3 {
		t.Errorf("Expected a computed blunder delta, got %f", positions[2].WinProbDelta)
	}
	if g, _ := svc.state.Game(gameID); !g.Analyzed {
		t.Errorf("Expected the game to be marked analyzed")
	}
}

func TestStoreAnalyzedPositionsRejects(t *testing.T) {
	svc, _, _ := newTestService(t)
	gameID := seedUser(t, svc, "alice", "g1")
	ctx := context.Background()

	badSide := position(1, 0, -400)
	badSide.SideToMove = "red"
	badLine := position(2, 0, -400)
	badLine.CandidateLines = []CandidateInput{{Rank: 0}}

	testCases := []struct {
		name string
		req  StoreRequest
		want error
	}{
		{"unknown game", StoreRequest{GameID: 999, Positions: []AnalyzedPosition{position(1, 0, -400)}}, domain.ErrNotFound},
		{"missing game id", StoreRequest{}, domain.ErrInvalidInput},
		{"bad side to move", StoreRequest{GameID: gameID, Positions: []AnalyzedPosition{position(3, 0, 0), badSide}}, domain.ErrInvalidInput},
		{"bad candidate rank", StoreRequest{GameID: gameID, Positions: []AnalyzedPosition{badLine}}, domain.ErrInvalidInput},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.StoreAnalyzedPositions(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
			if n := len(svc.state.PositionsOf(map[int64]bool{gameID: true})); n != 3 {
				t.Errorf("Expected the stored analysis to be untouched, got %d positions", n)
			}
		})
	}
}

func TestUnanalyzedGames(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedUser(t, svc, "alice", "g1")
	pending := []int64{addGame(t, svc, "alice", "g2"), addGame(t, svc, "alice", "g3")}
	addGame(t, svc, "bob", "g4")

	out, err := svc.UnanalyzedGames("Alice", 0)
	if err != nil {
		t.Fatalf("UnanalyzedGames() returned an unexpected error: %v", err)
	}
	if out.TotalGames != 2 || out.Games[0].ID != pending[0] || out.Games[1].ID != pending[1] {
		t.Errorf("Expected games %v, got %+v", pending, out)
	}
	if out.Games[0].PlayedColor != "white" || out.Games[0].PGN == "" {
		t.Errorf("Expected colour and PGN, got %+v", out.Games[0])
	}

	out, _ = svc.UnanalyzedGames("alice", 1)
	if out.TotalGames != 1 {
		t.Errorf("Expected the limit to apply, got %d", out.TotalGames)
	}
}

func TestResetAnalysis(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, svc, "alice", "g1")
	seedUser(t, svc, "alice", "g2")
	bob := seedUser(t, svc, "bob", "g3")
	all := domain.SeverityFilter{Inaccuracy: true, Mistake: true, Blunder: true}
	if _, err := svc.EnsureCardsAndGetUsers(ctx, all); err != nil {
		t.Fatalf("EnsureCardsAndGetUsers() returned an unexpected error: %v", err)
	}

	res, err := svc.ResetAnalysis(ctx, "alice")
	if err != nil {
		t.Fatalf("ResetAnalysis() returned an unexpected error: %v", err)
	}
	if res.GamesReset != 2 || res.PositionsDeleted != 6 {
		t.Errorf("Expected 2 games and 6 positions, got %+v", res)
	}
	pending, _ := svc.UnanalyzedGames("alice", 0)
	if pending.TotalGames != 2 {
		t.Errorf("Expected alice's games to be pending again, got %d", pending.TotalGames)
	}
	if n := len(svc.state.Cards); n != 3 {
		t.Errorf("Expected only bob's 3 cards to remain, got %d", n)
	}
	if g, _ := svc.state.Game(bob); !g.Analyzed {
		t.Errorf("Expected bob's game to stay analyzed")
	}
}
