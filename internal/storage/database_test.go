package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/conorfennell/blunderfix/internal/domain"
)

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDBSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, filepath.Join(t.TempDir(), "blunderfix.db"))

	empty, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on a fresh database returned an unexpected error: %v", err)
	}
	if len(empty.Games) != 0 || empty.NextIDs.Game != 1 {
		t.Errorf("Expected an empty state, got %+v", empty)
	}

	s := seedState(t)
	if err := db.Save(ctx, s); err != nil {
		t.Fatalf("Save() returned an unexpected error: %v", err)
	}
	got, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}

	if !reflect.DeepEqual(got.Games, s.Games) {
		t.Errorf("Games differ:\n got %+v\nwant %+v", got.Games, s.Games)
	}
	if !reflect.DeepEqual(got.Positions, s.Positions) {
		t.Errorf("Positions differ:\n got %+v\nwant %+v", got.Positions, s.Positions)
	}
	if !reflect.DeepEqual(got.Practical, s.Practical) {
		t.Errorf("Practical responses differ:\n got %+v\nwant %+v", got.Practical, s.Practical)
	}
	if !reflect.DeepEqual(got.Reviews, s.Reviews) {
		t.Errorf("Reviews differ:\n got %+v\nwant %+v", got.Reviews, s.Reviews)
	}
	if got.NextIDs != s.NextIDs {
		t.Errorf("Expected id sequences %+v, but got %+v", s.NextIDs, got.NextIDs)
	}

	// A second save replaces rather than appends.
	s.DeleteGames(func(g domain.Game) bool { return g.Username == "bob" })
	if err := db.Save(ctx, s); err != nil {
		t.Fatalf("Save() returned an unexpected error: %v", err)
	}
	got, err = db.Load(ctx)
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}
	if len(got.Games) != 1 || len(got.Positions) != 2 {
		t.Errorf("Expected 1 game and 2 positions after the second save, got %d and %d", len(got.Games), len(got.Positions))
	}
}

func TestOpenUpgradesLegacyDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open raw database: %v", err)
	}
	stmts := []string{
		`CREATE TABLE games (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			source_game_id TEXT NOT NULL,
			username TEXT NOT NULL,
			played_color TEXT NOT NULL,
			result TEXT,
			pgn TEXT NOT NULL,
			analyzed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(source, username, source_game_id)
		)`,
		`CREATE TABLE positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			ply INTEGER NOT NULL,
			fen TEXT NOT NULL,
			side_to_move TEXT NOT NULL,
			played_uci TEXT NOT NULL,
			played_san TEXT NOT NULL,
			best_cp INTEGER NOT NULL,
			played_cp INTEGER NOT NULL,
			loss_cp INTEGER NOT NULL,
			is_blunder INTEGER NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE cards (id INTEGER PRIMARY KEY, position_id INTEGER NOT NULL UNIQUE, state TEXT NOT NULL,
			due_at TEXT NOT NULL, stability REAL NOT NULL, difficulty REAL NOT NULL, reps INTEGER NOT NULL DEFAULT 0,
			lapses INTEGER NOT NULL DEFAULT 0, last_review_at TEXT)`,
		`INSERT INTO games VALUES (1, 'lichess', 'g1', 'alice', 'white', 'loss', '', 1, '2024-01-01 10:00:00')`,
		`INSERT INTO games VALUES (2, 'lichess', 'g2', 'alice', 'black', NULL, '', 0, '2024-01-01 11:00:00')`,
		`INSERT INTO positions VALUES (1, 1, 10, 'a', 'white', 'e2e4', 'e4', 0, 0, 0, 1, '2024-01-01 10:00:00')`,
		`INSERT INTO positions VALUES (2, 1, 12, 'b', 'white', 'a2a3', 'a3', 0, -140, 140, 0, '2024-01-01 10:00:00')`,
		`INSERT INTO positions VALUES (3, 1, 14, 'c', 'white', 'h2h3', 'h3', 0, -20, 20, 0, '2024-01-01 10:00:00')`,
		`INSERT INTO cards VALUES (1, 1, 'review', '2024-01-05 10:00:00', 3, 5, 1, 0, '2024-01-02 10:00:00')`,
	}
	for _, stmt := range stmts {
		if _, err := raw.Exec(stmt); err != nil {
			t.Fatalf("failed to build legacy database: %v", err)
		}
	}
	raw.Close()

	db := openTestDB(t, path)
	for _, col := range []struct{ table, column string }{
		{"positions", "judgement"},
		{"positions", "win_prob_delta"},
		{"cards", "step"},
		{"games", "pgn_hash"},
	} {
		ok, err := db.hasColumn(col.table, col.column)
		if err != nil || !ok {
			t.Errorf("Expected column %s.%s after upgrade (err: %v)", col.table, col.column, err)
		}
	}

	s, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}
	want := []domain.Judgement{domain.JudgementBlunder, domain.JudgementMistake, domain.JudgementNone}
	for i, p := range s.Positions {
		if p.Judgement != want[i] {
			t.Errorf("Position %d: expected %q, but got %q", p.ID, want[i], p.Judgement)
		}
	}
	if s.NextIDs.Position != 4 || s.NextIDs.Card != 2 {
		t.Errorf("Expected sequences derived from existing rows, got %+v", s.NextIDs)
	}
	if s.Cards[0].LastReviewAt == nil || s.Cards[0].Step != 0 {
		t.Errorf("Expected the legacy card to load with step 0 and a last review, got %+v", s.Cards[0])
	}

	// Saving with the legacy flag column still present must succeed.
	if err := db.Save(ctx, s); err != nil {
		t.Fatalf("Save() on an upgraded database returned an unexpected error: %v", err)
	}
	again, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}
	if again.Positions[1].Judgement != domain.JudgementMistake {
		t.Errorf("Expected the migrated judgement to persist, got %q", again.Positions[1].Judgement)
	}
	if again.Games[1].Result != "unknown" {
		t.Errorf("Expected a NULL result to load as unknown, but got %q", again.Games[1].Result)
	}

	// New positions written after the upgrade keep the legacy flag filled.
	again.ReplaceAnalysis(2, []Analysis{{Position: domain.Position{Ply: 3, FEN: "d", SideToMove: "black",
		PlayedUCI: "g8f6", PlayedSAN: "Nf6", PlayedCp: -400, LossCp: 400, Judgement: domain.JudgementBlunder}}}, testNow)
	if err := db.Save(ctx, again); err != nil {
		t.Fatalf("Save() after adding a position returned an unexpected error: %v", err)
	}
	var blunders int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM positions WHERE is_blunder = 1").Scan(&blunders); err != nil {
		t.Fatalf("failed to count legacy flags: %v", err)
	}
	if blunders != 2 {
		t.Errorf("Expected 2 positions flagged as blunders, but got %d", blunders)
	}
}

func TestSourcesTracking(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, ":memory:")

	id, err := db.UpsertSource(ctx, "/tmp/games", "Alice")
	if err != nil {
		t.Fatalf("UpsertSource() returned an unexpected error: %v", err)
	}
	again, err := db.UpsertSource(ctx, "/tmp/games", "alice")
	if err != nil || again != id {
		t.Fatalf("Expected the same source id %d, got %d (err: %v)", id, again, err)
	}
	if err := db.MarkScanned(ctx, id, testNow); err != nil {
		t.Fatalf("MarkScanned() returned an unexpected error: %v", err)
	}

	sources, err := db.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources() returned an unexpected error: %v", err)
	}
	if len(sources) != 1 || sources[0].Username != "alice" || !sources[0].LastScanned.Valid {
		t.Errorf("Expected one scanned source for alice, got %+v", sources)
	}
}
