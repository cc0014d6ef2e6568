package pgn

import (
	"regexp"
	"strings"
)

var tagPair = regexp.MustCompile(`^\[([A-Za-z0-9_]+)\s+"(.*)"\]$`)

// Headers returns the tag pairs of a game. Later duplicates win.
func Headers(game string) map[string]string {
	h := make(map[string]string)
	for _, line := range strings.Split(game, "\n") {
		m := tagPair.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		h[m[1]] = m[2]
	}
	return h
}

// PlayedColor returns the side username played, white when neither matches.
func PlayedColor(headers map[string]string, username string) string {
	u := strings.ToLower(strings.TrimSpace(username))
	switch {
	case u == "":
		return "white"
	case strings.ToLower(headers["White"]) == u:
		return "white"
	case strings.ToLower(headers["Black"]) == u:
		return "black"
	}
	return "white"
}

// Result maps the Result tag to win, loss, draw or unknown from color's side.
func Result(headers map[string]string, color string) string {
	switch headers["Result"] {
	case "1-0":
		if color == "white" {
			return "win"
		}
		return "loss"
	case "0-1":
		if color == "black" {
			return "win"
		}
		return "loss"
	case "1/2-1/2":
		return "draw"
	}
	return "unknown"
}

// PrimaryPlayer returns the lower-cased name that appears most often as White
// or Black across games. Ties go to the name seen first.
func PrimaryPlayer(games []string) string {
	counts := make(map[string]int)
	var order []string
	for _, g := range games {
		h := Headers(g)
		for _, name := range []string{h["White"], h["Black"]} {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			if counts[name] == 0 {
				order = append(order, name)
			}
			counts[name]++
		}
	}
	best, bestCount := "", 0
	for _, name := range order {
		if counts[name] > bestCount {
			best, bestCount = name, counts[name]
		}
	}
	return best
}

var (
	extension  = regexp.MustCompile(`\.[^.]+$`)
	disallowed = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	dashes     = regexp.MustCompile(`-+`)
)

// DefaultProfile is the username given to PGN files without a usable name.
const DefaultProfile = "pgn-import"

// ProfileFromFilename derives a username from an uploaded file name.
func ProfileFromFilename(name string) string {
	raw := strings.TrimSpace(extension.ReplaceAllString(name, ""))
	cleaned := disallowed.ReplaceAllString(raw, "-")
	cleaned = strings.Trim(dashes.ReplaceAllString(cleaned, "-"), "-")
	if cleaned == "" {
		return DefaultProfile
	}
	return strings.ToLower(cleaned)
}
