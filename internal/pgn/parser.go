// Package pgn splits PGN collections into games and reads their tag pairs.
package pgn

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"
)

// gameStart matches the tag pairs that may open a new game.
var gameStart = regexp.MustCompile(`^\[(?:Event|Site|Round|White|Black|Result)\s+"`)

type state int

const (
	seeking state = iota
	readingGame
	afterBlank
)

// maxLineSize bounds a single PGN line. Move text is often written on one line.
const maxLineSize = 4 << 20

// ParseFile reads a file from the given path and splits it into games.
func ParseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// SplitGames splits a multi-game PGN text into games.
func SplitGames(text string) ([]string, error) {
	return Parse(strings.NewReader(text))
}

// Parse reads from an io.Reader and splits the text into games. A game ends
// at a blank line that is followed by a tag pair opening the next game.
// Each returned game is trimmed and uses "\n" line endings.
func Parse(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var games []string
	var current []string
	currentState := seeking

	finishGame := func() {
		if game := strings.TrimSpace(strings.Join(current, "\n")); game != "" {
			games = append(games, game)
		}
		current = nil
		currentState = seeking
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		blank := strings.TrimSpace(line) == ""

		switch currentState {
		case seeking:
			if blank {
				continue
			}
			currentState = readingGame
		case readingGame:
			if blank {
				currentState = afterBlank
			}
		case afterBlank:
			if blank {
				break
			}
			if gameStart.MatchString(line) {
				finishGame()
			}
			currentState = readingGame
		}
		current = append(current, line)
	}

	finishGame() // Finish the very last game in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return games, nil
}
