package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Sprinter100/dobble/internal/identity"
	"github.com/Sprinter100/dobble/internal/storage"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type authResponse struct {
	User userView `json:"user"`
}

func (s *Server) mountAuthRoutes() {
	s.r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Get("/me", s.handleMe)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	u, err := s.ident.Register(req.Username, req.Password)
	switch {
	case errors.Is(err, identity.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, identity.ErrUsernameTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Msg("register")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
		return
	}
	if !s.signIn(w, u) {
		return
	}
	log.Info().Str("user", u.ID).Str("username", u.Username).Msg("account registered")
	writeJSON(w, http.StatusCreated, authResponse{User: userView{ID: u.ID, Username: u.Username}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	u, err := s.ident.Login(req.Username, req.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("login")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}
	if !s.signIn(w, u) {
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: userView{ID: u.ID, Username: u.Username}})
}

func (s *Server) signIn(w http.ResponseWriter, u *storage.UserRow) bool {
	tok, exp, err := s.ident.IssueToken(u)
	if err != nil {
		log.Error().Err(err).Msg("issue token")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not sign in"})
		return false
	}
	s.ident.SetTokenCookie(w, tok, exp)
	return true
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.ident.ClearTokenCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleMe returns the identity the request acts as, signed in or not.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	writeJSON(w, http.StatusOK, id)
}
