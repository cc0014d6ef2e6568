package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/conorfennell/blunderfix/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// Backend persists complete states. Save must be atomic: after a failed
// Save the previously saved state is still the one Load returns.
type Backend interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
	Close() error
}

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
	// legacyFlag is set when positions still carries the NOT NULL is_blunder
	// column of the first release. Save keeps it filled from the judgement.
	legacyFlag bool
}

var _ Backend = (*DB)(nil)

// Open creates a new database connection and ensures the schema is up to date.
// Databases written by older releases are upgraded in place.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases and pragmas stable.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.upgrade(); err != nil {
		conn.Close()
		return nil, err
	}
	if db.legacyFlag, err = db.hasColumn("positions", "is_blunder"); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) upgrade() error {
	for _, u := range upgrades {
		ok, err := db.hasColumn(u.table, u.column)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := db.conn.Exec(u.ddl); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", u.table, u.column, err)
		}
	}
	return nil
}

func (db *DB) hasColumn(table, column string) (bool, error) {
	rows, err := db.conn.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Load reads the complete state. Positions written before judgements were
// recorded are classified on the way in.
func (db *DB) Load(ctx context.Context) (*State, error) {
	s := NewState()
	if err := db.loadGames(ctx, s); err != nil {
		return nil, err
	}
	if err := db.loadPositions(ctx, s); err != nil {
		return nil, err
	}
	if err := db.loadLines(ctx, s); err != nil {
		return nil, err
	}
	if err := db.loadPractical(ctx, s); err != nil {
		return nil, err
	}
	if err := db.loadCards(ctx, s); err != nil {
		return nil, err
	}
	if err := db.loadReviews(ctx, s); err != nil {
		return nil, err
	}
	if err := db.loadMeta(ctx, s); err != nil {
		return nil, err
	}
	s.repairNextIDs()
	if err := s.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

func (db *DB) loadGames(ctx context.Context, s *State) error {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, source, source_game_id, pgn_hash, username, played_color, result, pgn, analyzed, created_at
		FROM games ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to load games: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g domain.Game
		var source, created string
		var result sql.NullString
		if err := rows.Scan(&g.ID, &source, &g.SourceGameID, &g.PGNHash, &g.Username,
			&g.PlayedColor, &result, &g.PGN, &g.Analyzed, &created); err != nil {
			return fmt.Errorf("failed to scan game row: %w", err)
		}
		g.Source = domain.Source(source)
		g.Result = "unknown"
		if result.Valid && result.String != "" {
			g.Result = result.String
		}
		g.Username = domain.NormalizeUsername(g.Username)
		if g.CreatedAt, err = domain.ParseTime(created); err != nil {
			return fmt.Errorf("game %d: %w", g.ID, err)
		}
		s.Games = append(s.Games, g)
	}
	return rows.Err()
}

func (db *DB) loadPositions(ctx context.Context, s *State) error {
	blunderCol := "NULL"
	if db.legacyFlag {
		blunderCol = "is_blunder"
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, game_id, ply, fen, side_to_move, played_uci, played_san,
		       best_cp, played_cp, loss_cp, judgement, win_prob_delta, `+blunderCol+`, created_at
		FROM positions ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to load positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p         domain.Position
			judgement sql.NullString
			delta     sql.NullFloat64
			isBlunder sql.NullInt64
			created   string
		)
		if err := rows.Scan(&p.ID, &p.GameID, &p.Ply, &p.FEN, &p.SideToMove, &p.PlayedUCI, &p.PlayedSAN,
			&p.BestCp, &p.PlayedCp, &p.LossCp, &judgement, &delta, &isBlunder, &created); err != nil {
			return fmt.Errorf("failed to scan position row: %w", err)
		}
		if p.CreatedAt, err = domain.ParseTime(created); err != nil {
			return fmt.Errorf("position %d: %w", p.ID, err)
		}

		var f positionFields
		if judgement.Valid {
			f.Judgement = &judgement.String
		}
		if delta.Valid {
			f.WinProbDelta = &delta.Float64
		}
		if isBlunder.Valid {
			b := isBlunder.Int64 != 0
			f.IsBlunder = &b
		}
		migratePosition(&p, f, !judgement.Valid)
		s.Positions = append(s.Positions, p)
	}
	return rows.Err()
}

func (db *DB) loadLines(ctx context.Context, s *State) error {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, position_id, pv_rank, cp, first_move_uci, uci_line, san_line, is_acceptable
		FROM candidate_lines ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to load candidate lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.CandidateLine
		if err := rows.Scan(&l.ID, &l.PositionID, &l.Rank, &l.Cp, &l.FirstMoveUCI,
			&l.UCILine, &l.SANLine, &l.Acceptable); err != nil {
			return fmt.Errorf("failed to scan candidate line row: %w", err)
		}
		s.Lines = append(s.Lines, l)
	}
	return rows.Err()
}

func (db *DB) loadPractical(ctx context.Context, s *State) error {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, position_id, opponent_move_uci, opponent_move_san, cp_after
		FROM practical_responses ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to load practical responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.PracticalResponse
		var cp sql.NullInt64
		if err := rows.Scan(&r.ID, &r.PositionID, &r.OpponentMoveUCI, &r.OpponentMoveSAN, &cp); err != nil {
			return fmt.Errorf("failed to scan practical response row: %w", err)
		}
		if cp.Valid {
			v := int(cp.Int64)
			r.CpAfter = &v
		}
		s.Practical = append(s.Practical, r)
	}
	return rows.Err()
}

func (db *DB) loadCards(ctx context.Context, s *State) error {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, position_id, state, step, due_at, stability, difficulty, reps, lapses, last_review_at
		FROM cards ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to load cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c     domain.Card
			state string
			due   string
			last  sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.PositionID, &state, &c.Step, &due, &c.Stability,
			&c.Difficulty, &c.Reps, &c.Lapses, &last); err != nil {
			return fmt.Errorf("failed to scan card row: %w", err)
		}
		c.State = domain.ParseCardState(state)
		if c.DueAt, err = domain.ParseTime(due); err != nil {
			return fmt.Errorf("card %d: %w", c.ID, err)
		}
		if last.Valid && last.String != "" {
			t, err := domain.ParseTime(last.String)
			if err != nil {
				return fmt.Errorf("card %d: %w", c.ID, err)
			}
			c.LastReviewAt = &t
		}
		s.Cards = append(s.Cards, c)
	}
	return rows.Err()
}

func (db *DB) loadReviews(ctx context.Context, s *State) error {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, card_id, rating, reviewed_at, next_due_at, elapsed_days
		FROM reviews ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to load reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.Review
		var reviewed, next string
		if err := rows.Scan(&r.ID, &r.CardID, &r.Rating, &reviewed, &next, &r.ElapsedDays); err != nil {
			return fmt.Errorf("failed to scan review row: %w", err)
		}
		if r.ReviewedAt, err = domain.ParseTime(reviewed); err != nil {
			return fmt.Errorf("review %d: %w", r.ID, err)
		}
		if r.NextDueAt, err = domain.ParseTime(next); err != nil {
			return fmt.Errorf("review %d: %w", r.ID, err)
		}
		s.Reviews = append(s.Reviews, r)
	}
	return rows.Err()
}

func (db *DB) loadMeta(ctx context.Context, s *State) error {
	var raw string
	err := db.conn.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'next_ids'").Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("failed to load id sequences: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &s.NextIDs); err != nil {
		return fmt.Errorf("failed to decode id sequences: %w", err)
	}
	return nil
}

// Save replaces everything stored with s in a single transaction.
func (db *DB) Save(ctx context.Context, s *State) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"reviews", "cards", "practical_responses", "candidate_lines", "positions", "games"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, g := range s.Games {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO games (id, source, source_game_id, pgn_hash, username, played_color, result, pgn, analyzed, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, g.ID, string(g.Source), g.SourceGameID, g.PGNHash, g.Username, g.PlayedColor, g.Result, g.PGN,
			g.Analyzed, domain.FormatTime(g.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert game %d: %w", g.ID, err)
		}
	}
	insertPosition := `
		INSERT INTO positions (id, game_id, ply, fen, side_to_move, played_uci, played_san,
		                       best_cp, played_cp, loss_cp, judgement, win_prob_delta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if db.legacyFlag {
		insertPosition = `
		INSERT INTO positions (id, game_id, ply, fen, side_to_move, played_uci, played_san,
		                       best_cp, played_cp, loss_cp, judgement, win_prob_delta, created_at, is_blunder)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	}
	for _, p := range s.Positions {
		args := []any{p.ID, p.GameID, p.Ply, p.FEN, p.SideToMove, p.PlayedUCI, p.PlayedSAN,
			p.BestCp, p.PlayedCp, p.LossCp, string(p.Judgement), p.WinProbDelta, domain.FormatTime(p.CreatedAt)}
		if db.legacyFlag {
			args = append(args, p.Judgement == domain.JudgementBlunder)
		}
		if _, err := tx.ExecContext(ctx, insertPosition, args...); err != nil {
			return fmt.Errorf("failed to insert position %d: %w", p.ID, err)
		}
	}
	for _, l := range s.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO candidate_lines (id, position_id, pv_rank, cp, first_move_uci, uci_line, san_line, is_acceptable)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, l.ID, l.PositionID, l.Rank, l.Cp, l.FirstMoveUCI, l.UCILine, l.SANLine, l.Acceptable); err != nil {
			return fmt.Errorf("failed to insert candidate line %d: %w", l.ID, err)
		}
	}
	for _, r := range s.Practical {
		var cp any
		if r.CpAfter != nil {
			cp = *r.CpAfter
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO practical_responses (id, position_id, opponent_move_uci, opponent_move_san, cp_after)
			VALUES (?, ?, ?, ?, ?)
		`, r.ID, r.PositionID, r.OpponentMoveUCI, r.OpponentMoveSAN, cp); err != nil {
			return fmt.Errorf("failed to insert practical response %d: %w", r.ID, err)
		}
	}
	for _, c := range s.Cards {
		var last any
		if c.LastReviewAt != nil {
			last = domain.FormatTime(*c.LastReviewAt)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cards (id, position_id, state, step, due_at, stability, difficulty, reps, lapses, last_review_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.PositionID, string(c.State), c.Step, domain.FormatTime(c.DueAt), c.Stability, c.Difficulty,
			c.Reps, c.Lapses, last); err != nil {
			return fmt.Errorf("failed to insert card %d: %w", c.ID, err)
		}
	}
	for _, r := range s.Reviews {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reviews (id, card_id, rating, reviewed_at, next_due_at, elapsed_days)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, r.CardID, int(r.Rating), domain.FormatTime(r.ReviewedAt), domain.FormatTime(r.NextDueAt), r.ElapsedDays); err != nil {
			return fmt.Errorf("failed to insert review %d: %w", r.ID, err)
		}
	}

	ids, err := json.Marshal(s.NextIDs)
	if err != nil {
		return fmt.Errorf("failed to encode id sequences: %w", err)
	}
	for key, value := range map[string]string{
		"next_ids": string(ids),
		"version":  strconv.Itoa(CurrentVersion),
	} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

// Source is a synced PGN location, either a local directory or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Username    string
	LastScanned sql.NullTime
}

// UpsertSource records a source path for username and returns its ID.
func (db *DB) UpsertSource(ctx context.Context, path, username string) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO sources (path, username) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET username = excluded.username
		RETURNING id
	`, path, domain.NormalizeUsername(username)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert source %s: %w", path, err)
	}
	return id, nil
}

// Sources retrieves all stored sources from the database.
func (db *DB) Sources(ctx context.Context) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, username, last_scanned
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Username, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// MarkScanned updates the last_scanned timestamp for a source.
func (db *DB) MarkScanned(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources SET last_scanned = ? WHERE id = ?
	`, at.UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}
