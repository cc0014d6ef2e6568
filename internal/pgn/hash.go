package pgn

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize cleans a game's text so that copies differing only in line
// endings or surrounding whitespace compare equal.
func Normalize(game string) string {
	g := strings.ReplaceAll(game, "\r\n", "\n")
	lines := strings.Split(strings.TrimSpace(g), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// Hash normalizes a game and returns its SHA-256 hash as a hex string.
func Hash(game string) string {
	hashBytes := sha256.Sum256([]byte(Normalize(game)))
	return fmt.Sprintf("%x", hashBytes)
}

// SourceGameID is the external id recorded for a game imported from a PGN file.
func SourceGameID(hash string) string {
	return "pgn-" + hash
}
