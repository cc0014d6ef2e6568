package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/conorfennell/blunderfix/internal/domain"
)

// rawGame is a game as fetched from an archive, before it is stored.
type rawGame struct {
	ID  string
	PGN string
}

func (m *Manager) get(ctx context.Context, target, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return resp, nil
}

// fetchLichess streams the user's games as NDJSON with the PGN embedded.
func (m *Manager) fetchLichess(ctx context.Context, j *job, username string, maxGames int) ([]rawGame, error) {
	j.update(func(p *Progress) {
		p.Phase = "fetching"
		p.Message = "Fetching games from Lichess... 0"
	})

	q := url.Values{}
	q.Set("max", strconv.Itoa(maxGames))
	q.Set("pgnInJson", "true")
	target := fmt.Sprintf("%s/api/games/user/%s?%s", m.cfg.LichessBaseURL, url.PathEscape(username), q.Encode())

	resp, err := m.get(ctx, target, "application/x-ndjson")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: lichess %d", domain.ErrUpstream, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	var games []rawGame
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var g struct {
			ID     string `json:"id"`
			GameID string `json:"gameId"`
			PGN    string `json:"pgn"`
		}
		if err := json.Unmarshal(line, &g); err != nil {
			return nil, fmt.Errorf("%w: lichess sent malformed game: %v", domain.ErrUpstream, err)
		}
		id := g.ID
		if id == "" {
			id = g.GameID
		}
		if id == "" {
			id = fmt.Sprintf("lichess-%d", len(games))
		}
		games = append(games, rawGame{ID: id, PGN: g.PGN})
		n := len(games)
		j.update(func(p *Progress) { p.Message = fmt.Sprintf("Fetching games from Lichess... %d", n) })
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading lichess stream: %w", domain.ErrUpstream, err)
	}
	return games, nil
}

// fetchChessCom walks the monthly archives from newest to oldest until
// maxGames games are collected. Archives that fail to load are skipped.
func (m *Manager) fetchChessCom(ctx context.Context, j *job, username string, maxGames int) ([]rawGame, error) {
	j.update(func(p *Progress) {
		p.Phase = "fetching_archives"
		p.Message = "Loading Chess.com archive list..."
	})

	target := fmt.Sprintf("%s/pub/player/%s/games/archives", m.cfg.ChessComBaseURL, url.PathEscape(username))
	var list struct {
		Archives []string `json:"archives"`
	}
	if err := m.getJSON(ctx, target, &list); err != nil {
		return nil, fmt.Errorf("chesscom archives: %w", err)
	}
	archives := slices.Clone(list.Archives)
	slices.Reverse(archives)
	j.update(func(p *Progress) { p.ArchivesTotal = len(archives) })

	var games []rawGame
	for _, archive := range archives {
		if len(games) >= maxGames {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		collected := len(games)
		j.update(func(p *Progress) {
			p.Phase = "fetching_games"
			p.Message = fmt.Sprintf("Fetching games... %d/%d collected", collected, maxGames)
		})

		var month struct {
			Games []struct {
				URL  string `json:"url"`
				UUID string `json:"uuid"`
				PGN  string `json:"pgn"`
			} `json:"games"`
		}
		err := m.getJSON(ctx, archive, &month)
		j.update(func(p *Progress) { p.ArchivesDone++ })
		if err != nil {
			m.logger.Warn("Skipping chess.com archive", "archive", archive, "error", err)
			continue
		}
		for i := len(month.Games) - 1; i >= 0 && len(games) < maxGames; i-- {
			g := month.Games[i]
			id := g.URL
			if id == "" {
				id = g.UUID
			}
			if id == "" {
				id = fmt.Sprintf("chesscom-%d", len(games))
			}
			games = append(games, rawGame{ID: id, PGN: g.PGN})
		}
		collected = len(games)
		j.update(func(p *Progress) {
			p.Message = fmt.Sprintf("Fetching games... %d/%d collected", collected, maxGames)
		})
	}
	return games, nil
}

func (m *Manager) getJSON(ctx context.Context, target string, v any) error {
	resp, err := m.get(ctx, target, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s returned %d", domain.ErrUpstream, target, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", domain.ErrUpstream, target, err)
	}
	return nil
}
