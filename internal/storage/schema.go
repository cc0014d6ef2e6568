package storage

const schema = `
-- The 'games' table stores every imported game, owned by one normalized username.
CREATE TABLE IF NOT EXISTS games (
    id INTEGER PRIMARY KEY,
    source TEXT NOT NULL,
    source_game_id TEXT NOT NULL,
    pgn_hash TEXT NOT NULL DEFAULT '',
    username TEXT NOT NULL,
    played_color TEXT NOT NULL,
    result TEXT NOT NULL,
    pgn TEXT NOT NULL,
    analyzed INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_games_user ON games(username, source, source_game_id);

-- The 'positions' table stores one analysed move per row, from the mover's perspective.
-- A NULL judgement marks a row written before judgements were recorded.
CREATE TABLE IF NOT EXISTS positions (
    id INTEGER PRIMARY KEY,
    game_id INTEGER NOT NULL,
    ply INTEGER NOT NULL,
    fen TEXT NOT NULL,
    side_to_move TEXT NOT NULL,
    played_uci TEXT NOT NULL,
    played_san TEXT NOT NULL,
    best_cp INTEGER NOT NULL,
    played_cp INTEGER NOT NULL,
    loss_cp INTEGER NOT NULL,
    judgement TEXT,
    win_prob_delta REAL,
    created_at TEXT NOT NULL,

    FOREIGN KEY(game_id) REFERENCES games(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS candidate_lines (
    id INTEGER PRIMARY KEY,
    position_id INTEGER NOT NULL,
    pv_rank INTEGER NOT NULL,
    cp INTEGER NOT NULL,
    first_move_uci TEXT NOT NULL,
    uci_line TEXT NOT NULL,
    san_line TEXT NOT NULL,
    is_acceptable INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(position_id) REFERENCES positions(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS practical_responses (
    id INTEGER PRIMARY KEY,
    position_id INTEGER NOT NULL UNIQUE,
    opponent_move_uci TEXT NOT NULL,
    opponent_move_san TEXT NOT NULL,
    cp_after INTEGER,

    FOREIGN KEY(position_id) REFERENCES positions(id) ON DELETE CASCADE
);

-- The 'cards' table holds the scheduling state, at most one card per position.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY,
    position_id INTEGER NOT NULL UNIQUE,
    state TEXT NOT NULL DEFAULT 'learning',
    step INTEGER NOT NULL DEFAULT 0,
    due_at TEXT NOT NULL,
    stability REAL NOT NULL,
    difficulty REAL NOT NULL,
    reps INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    last_review_at TEXT,

    FOREIGN KEY(position_id) REFERENCES positions(id) ON DELETE CASCADE
);

-- The 'reviews' table is an append-only log of grading events.
CREATE TABLE IF NOT EXISTS reviews (
    id INTEGER PRIMARY KEY,
    card_id INTEGER NOT NULL,
    rating INTEGER NOT NULL,
    reviewed_at TEXT NOT NULL,
    next_due_at TEXT NOT NULL,
    elapsed_days REAL NOT NULL DEFAULT 0,

    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
);

-- The 'meta' table stores the id sequences and the record layout version.
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- The 'sources' table tracks the PGN directories and git repositories that are synced.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    username TEXT NOT NULL,
    last_scanned DATETIME
);
`

// upgrades adds columns introduced after the first release to databases
// created by it. Each entry is applied only when the column is missing.
var upgrades = []struct {
	table, column, ddl string
}{
	{"positions", "judgement", "ALTER TABLE positions ADD COLUMN judgement TEXT"},
	{"positions", "win_prob_delta", "ALTER TABLE positions ADD COLUMN win_prob_delta REAL"},
	{"cards", "step", "ALTER TABLE cards ADD COLUMN step INTEGER NOT NULL DEFAULT 0"},
	{"games", "pgn_hash", "ALTER TABLE games ADD COLUMN pgn_hash TEXT NOT NULL DEFAULT ''"},
}
