package server

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Sprinter100/dobble/internal/game"
	"github.com/Sprinter100/dobble/internal/identity"
	"github.com/Sprinter100/dobble/internal/session"
	"github.com/Sprinter100/dobble/internal/storage"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Results reads finished matches.
type Results interface {
	ListResults(limit int) ([]storage.ResultRow, error)
	Leaderboard(limit int) ([]storage.LeaderboardRow, error)
}

// Server is the HTTP server.
type Server struct {
	r        *chi.Mux
	registry *game.Registry
	manager  *session.Manager
	ident    *identity.Service
	results  Results
	webFS    fs.FS
}

// New creates a server with all routes.
// webFS should be the static subdirectory of the embedded filesystem.
func New(registry *game.Registry, manager *session.Manager, ident *identity.Service, results Results, webFS fs.FS) *Server {
	s := &Server{
		r:        chi.NewRouter(),
		registry: registry,
		manager:  manager,
		ident:    ident,
		results:  results,
		webFS:    webFS,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(requestLogger)
	s.r.Use(chimw.Recoverer)
	s.r.Use(s.ident.Middleware)

	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	s.r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/catalogs", s.handleListCatalogs)
		r.Get("/results", s.handleListResults)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Post("/match/new", s.handleNewMatch)
	})
	s.mountAuthRoutes()
	s.r.Get("/ws", s.handleWebSocket)

	// Static files
	s.r.Handle("/*", http.FileServer(http.FS(s.webFS)))
}

// Handle mounts an extra handler, such as the MCP endpoint.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.r.Handle(pattern, h)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.r.ServeHTTP(w, r)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot())
}

func (s *Server) handleListCatalogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleNewMatch(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	log.Info().Str("player", id.PlayerID).Msg("new match requested")
	s.manager.NewMatch()
	writeJSON(w, http.StatusOK, s.manager.Snapshot())
}

type resultView struct {
	ID          string                 `json:"id"`
	WinnerID    string                 `json:"winnerId"`
	WinnerName  string                 `json:"winnerName"`
	Players     []storage.ResultPlayer `json:"players"`
	FinishedAt  time.Time              `json:"finishedAt"`
	FinishedAgo string                 `json:"finishedAgo"`
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	rows, err := s.results.ListResults(listLimit(r))
	if err != nil {
		log.Error().Err(err).Msg("list results")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load results"})
		return
	}
	out := make([]resultView, 0, len(rows))
	for _, row := range rows {
		out = append(out, resultView{
			ID:          row.ID,
			WinnerID:    row.WinnerID,
			WinnerName:  row.WinnerName,
			Players:     row.Players,
			FinishedAt:  row.FinishedAt,
			FinishedAgo: humanize.Time(row.FinishedAt),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type leaderboardView struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Wins     int    `json:"wins"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.results.Leaderboard(listLimit(r))
	if err != nil {
		log.Error().Err(err).Msg("leaderboard")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load leaderboard"})
		return
	}
	out := make([]leaderboardView, 0, len(rows))
	for _, row := range rows {
		out = append(out, leaderboardView{PlayerID: row.PlayerID, Name: row.Name, Wins: row.Wins})
	}
	writeJSON(w, http.StatusOK, out)
}

// listLimit reads ?limit= clamped to [1, maxListLimit].
func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

// requestLogger logs every request once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
