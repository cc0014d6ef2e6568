package domain

import (
	"strings"
	"time"
)

// Source identifies where a game was imported from.
type Source string

const (
	SourceLichess  Source = "lichess"
	SourceChessCom Source = "chesscom"
	SourcePGN      Source = "pgn"
)

// Valid reports whether s is one of the known origins.
func (s Source) Valid() bool {
	switch s {
	case SourceLichess, SourceChessCom, SourcePGN:
		return true
	}
	return false
}

// Game is an imported game record owned by a single user.
type Game struct {
	ID           int64
	Source       Source
	SourceGameID string
	PGNHash      string // only set for games imported from PGN files
	Username     string // always stored normalized, see NormalizeUsername
	PlayedColor  string // "white" or "black"
	Result       string // win, loss, draw or unknown
	PGN          string
	Analyzed     bool
	CreatedAt    time.Time
}

// NormalizeUsername returns the canonical, case-insensitive form of a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
