package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"reverie/internal/ratelimit"
	"reverie/internal/usertoken"
	"reverie/internal/util"
	"reverie/services/dream/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *usertoken.Verifier
	BuildToken    string
	PollLimiter   *ratelimit.FixedWindowLimiter
}

// Server exposes HTTP endpoints for the dream service.
type Server struct {
	app           *app.App
	tokenVerifier *usertoken.Verifier
	buildToken    string
	pollLimiter   *ratelimit.FixedWindowLimiter
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		tokenVerifier: cfg.TokenVerifier,
		buildToken:    cfg.BuildToken,
		pollLimiter:   cfg.PollLimiter,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("dream", s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// dreams
	s.mux.Handle("/dreams/build", s.withBuildToken(s.handleBuild))
	s.mux.HandleFunc("/dreams/next", s.handleNext)
	s.mux.Handle("/dreams/", s.authenticated(s.handleComplete))

	// enrichment polling
	s.mux.Handle("/reflections/", s.authenticated(s.handleReflection))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) authenticated(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.subject(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) withBuildToken(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.buildToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func (s *Server) subject(r *http.Request) (string, bool) {
	if s.tokenVerifier == nil {
		return "", false
	}
	token, ok := bearerToken(r)
	if !ok {
		return "", false
	}
	return s.tokenVerifier.SubjectOrGuest(token)
}

// handleBuild runs the construction pipeline for a batch of users. Callers
// are internal schedulers, so per-user refusals come back as outcomes rather
// than failing the whole request.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req buildRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.UserIDs) == 0 {
		writeError(w, http.StatusBadRequest, "userIds is required")
		return
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = s.app.Today()
	}
	result := s.app.BuildForUsers(r.Context(), req.UserIDs, date)
	writeJSON(w, http.StatusOK, result)
}

// handleNext decides the sign-in route. Guests and verification failures are
// served the fallback route with 200, never a 401: delivery must not block
// journaling.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := ""
	if token, ok := bearerToken(r); ok && s.tokenVerifier != nil {
		userID, _ = s.tokenVerifier.SubjectOrGuest(token)
	}
	decision := s.app.DecideDelivery(r.Context(), userID)
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, userID string) {
	artifactID, ok := pathSuffix(r.URL.Path, "/dreams/", "/complete")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req completeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	var skippedAt *time.Time
	if req.SkippedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.SkippedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "skippedAt must be RFC3339")
			return
		}
		skippedAt = &parsed
	}
	if err := s.app.Complete(r.Context(), userID, artifactID, skippedAt); err != nil {
		if errors.Is(err, app.ErrArtifactNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Error("complete dream", "user_id", userID, "artifact_id", artifactID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReflection(w http.ResponseWriter, r *http.Request, userID string) {
	id := strings.TrimPrefix(r.URL.Path, "/reflections/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.pollLimiter != nil && !s.pollLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	rec, err := s.app.Reflection(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, app.ErrReflectionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Error("load reflection", "user_id", userID, "reflection_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type buildRequest struct {
	UserIDs []string `json:"userIds"`
	Date    string   `json:"date"`
}

type completeRequest struct {
	SkippedAt string `json:"skippedAt"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// pathSuffix extracts the id from paths shaped like prefix + id + suffix.
func pathSuffix(path, prefix, suffix string) (string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path || !strings.HasSuffix(rest, suffix) {
		return "", false
	}
	id := strings.TrimSuffix(rest, suffix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
