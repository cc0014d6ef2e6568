// Package web serves the JSON API used by the review frontend.
package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/blunderfix/internal/domain"
	"github.com/conorfennell/blunderfix/internal/importer"
	"github.com/conorfennell/blunderfix/internal/trainer"
)

// maxUploadBytes bounds PGN and snapshot uploads.
const maxUploadBytes = 64 << 20

// Options holds the defaults applied when a request leaves them out.
type Options struct {
	Filter              domain.SeverityFilter
	SessionBreakMinutes int
	DayWindowDays       int
	Logger              *slog.Logger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	svc     *trainer.Service
	imports *importer.Manager
	router  *http.ServeMux
	opts    Options
	logger  *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(svc *trainer.Service, imports *importer.Manager, opts Options) *Server {
	if opts.SessionBreakMinutes <= 0 {
		opts.SessionBreakMinutes = trainer.DefaultBreakMinutes
	}
	if opts.DayWindowDays <= 0 {
		opts.DayWindowDays = trainer.DefaultWindowDays
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:     svc,
		imports: imports,
		router:  http.NewServeMux(),
		opts:    opts,
		logger:  logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth())

	// Import
	s.router.HandleFunc("POST /api/import/start", s.handleImportStart())
	s.router.HandleFunc("GET /api/import/progress/{id}", s.handleImportProgress())
	s.router.HandleFunc("POST /api/import/pgn", s.handleImportPGN())
	s.router.HandleFunc("POST /api/import/clear-all", s.handleClearAll())
	s.router.HandleFunc("POST /api/import/clear-user", s.handleClearUser())

	// Analysis hand-off
	s.router.HandleFunc("GET /api/analyze/games/{username}", s.handleUnanalyzedGames())
	s.router.HandleFunc("POST /api/analyze/store-game", s.handleStoreGame())
	s.router.HandleFunc("POST /api/analyze/reset", s.handleResetAnalysis())

	// Statistics
	s.router.HandleFunc("GET /api/users", s.handleUsers())
	s.router.HandleFunc("GET /api/stats/{username}", s.handleStats())
	s.router.HandleFunc("GET /api/stats/session/{username}", s.handleSessionStats())
	s.router.HandleFunc("GET /api/stats/anki/{username}", s.handleDayStats())

	// Review
	s.router.HandleFunc("GET /api/review/next/{username}", s.handleNextCard())
	s.router.HandleFunc("GET /api/review/preview/{cardID}", s.handlePreview())
	s.router.HandleFunc("POST /api/review/grade", s.handleGrade())

	// Snapshot
	s.router.HandleFunc("GET /api/db/export", s.handleExport())
	s.router.HandleFunc("POST /api/db/import", s.handleImportSnapshot())

	// No evaluation engine is embedded.
	s.router.HandleFunc("POST /api/eval", s.handleNoEngine())
	s.router.HandleFunc("POST /api/reply-lines", s.handleNoEngine())
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
	}
}

// handleImportStart launches a background import and returns its job id.
func (s *Server) handleImportStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req importer.StartRequest
		if !s.decode(w, r, &req) {
			return
		}
		id, err := s.imports.Start(req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
	}
}

func (s *Server) handleImportProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.imports.Progress(r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// handleImportPGN imports the multipart "file" upload.
func (s *Server) handleImportPGN() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, body, ok := s.upload(w, r)
		if !ok {
			return
		}
		res, err := s.imports.ImportPGN(r.Context(), name, string(body))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleClearAll deletes everything, including the import job history.
func (s *Server) handleClearAll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.imports.Clear(r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.svc.ClearAll(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleClearUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req trainer.UserRequest
		if !s.decode(w, r, &req) {
			return
		}
		res, err := s.svc.ClearUser(r.Context(), req.Username)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleUnanalyzedGames() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := intQuery(r, "max_games", trainer.DefaultPendingLimit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.svc.UnanalyzedGames(r.PathValue("username"), limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleStoreGame() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req trainer.StoreRequest
		if !s.decode(w, r, &req) {
			return
		}
		res, err := s.svc.StoreAnalyzedPositions(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleResetAnalysis() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req trainer.UserRequest
		if !s.decode(w, r, &req) {
			return
		}
		res, err := s.svc.ResetAnalysis(r.Context(), req.Username)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := s.filter(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		users, err := s.svc.EnsureCardsAndGetUsers(r.Context(), filter)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := s.filter(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		stats, err := s.svc.Stats(r.Context(), r.PathValue("username"), filter)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) handleSessionStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		breakMinutes, err := intQuery(r, "break_minutes", s.opts.SessionBreakMinutes)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		stats, err := s.svc.SessionStats(r.PathValue("username"), breakMinutes)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) handleDayStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := intQuery(r, "days", s.opts.DayWindowDays)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		stats, err := s.svc.DayStats(r.PathValue("username"), days)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// handleNextCard returns {"card": null} when nothing is due.
func (s *Server) handleNextCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := s.filter(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		card, err := s.svc.NextDueCard(r.Context(), r.PathValue("username"), filter)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"card": card})
	}
}

func (s *Server) handlePreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("cardID"), 10, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: invalid card id", domain.ErrInvalidInput))
			return
		}
		preview, err := s.svc.PreviewDueDates(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	}
}

func (s *Server) handleGrade() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req trainer.GradeRequest
		if !s.decode(w, r, &req) {
			return
		}
		res, err := s.svc.GradeCard(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleExport streams the snapshot as a JSON attachment.
func (s *Server) handleExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := fmt.Sprintf("blunderfix-%s.json", time.Now().UTC().Format("20060102-150405"))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		if err := s.svc.Export(w); err != nil {
			s.logger.Error("Error writing export", "error", err)
		}
	}
}

// handleImportSnapshot replaces the state with an uploaded snapshot. The
// snapshot is read from a multipart "file" field or, failing that, from
// the request body.
func (s *Server) handleImportSnapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body io.Reader
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			_, data, ok := s.upload(w, r)
			if !ok {
				return
			}
			body = bytes.NewReader(data)
		} else {
			body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		}
		res, err := s.svc.Import(r.Context(), body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "imported": res})
	}
}

func (s *Server) handleNoEngine() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "No evaluation engine available"})
	}
}

// decode reads a JSON request body into v. It writes a 400 response and
// returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: malformed JSON body: %v", domain.ErrInvalidInput, err))
		return false
	}
	return true
}

// upload returns the name and content of the multipart "file" field.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: missing file", domain.ErrInvalidInput))
		return "", nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: reading upload: %v", domain.ErrInvalidInput, err))
		return "", nil, false
	}
	if len(data) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: uploaded file is empty", domain.ErrInvalidInput))
		return "", nil, false
	}
	return header.Filename, data, true
}

// filter reads the severity filter from the query, falling back to the
// configured default for each absent parameter.
func (s *Server) filter(r *http.Request) (domain.SeverityFilter, error) {
	f := s.opts.Filter
	params := []struct {
		name string
		dst  *bool
	}{
		{"show_inaccuracy", &f.Inaccuracy},
		{"show_mistake", &f.Mistake},
		{"show_blunder", &f.Blunder},
		{"exclude_lost", &f.ExcludeLost},
	}
	q := r.URL.Query()
	for _, p := range params {
		if !q.Has(p.name) {
			continue
		}
		v, err := parseBool(q.Get(p.name))
		if err != nil {
			return f, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, p.name, err)
		}
		*p.dst = v
	}
	return f, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, name)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUpstream):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}
