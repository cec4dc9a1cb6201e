package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/alvarodevlabs/DisfrutaTV/internal/app"
	"github.com/alvarodevlabs/DisfrutaTV/internal/ratelimit"
	"github.com/alvarodevlabs/DisfrutaTV/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// Optional per-IP limiters. Nil means unlimited.
	LoginLimiter *ratelimit.FixedWindowLimiter
	ResetLimiter *ratelimit.FixedWindowLimiter
}

// Server exposes the HTTP endpoints: auth under /auth, everything else
// under /api.
type Server struct {
	app          *app.App
	mux          *http.ServeMux
	loginLimiter *ratelimit.FixedWindowLimiter
	resetLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:          cfg.App,
		mux:          http.NewServeMux(),
		loginLimiter: cfg.LoginLimiter,
		resetLimiter: cfg.ResetLimiter,
	}
	s.routes()
	return s
}

// Router returns the configured handler with panic recovery applied.
func (s *Server) Router() http.Handler {
	return recoverPanics(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/register", s.handleRegister)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/auth/reset-password", s.handleResetRequest)
	s.mux.HandleFunc("/auth/reset-password/", s.handleResetConfirm)

	// catalog
	s.mux.HandleFunc("/api/movies", s.handleCatalog(domain.KindMovie))
	s.mux.HandleFunc("/api/series", s.handleCatalog(domain.KindSeries))

	// list mutations: /api/{movies|series}/{id}/{add|remove}-{list}
	s.mux.Handle("/api/movies/", s.authenticated(s.listMutationHandler(domain.KindMovie)))
	s.mux.Handle("/api/series/", s.authenticated(s.listMutationHandler(domain.KindSeries)))

	// user lists and statistics
	s.mux.Handle("/api/user/favorites", s.authenticated(s.listHandler(domain.ListFavorites)))
	s.mux.Handle("/api/user/pending", s.authenticated(s.listHandler(domain.ListPending)))
	s.mux.Handle("/api/user/viewed", s.authenticated(s.listHandler(domain.ListViewed)))
	s.mux.Handle("/api/statistics", s.authenticated(s.handleStatistics))
	s.mux.Handle("/api/user/profile", s.authenticated(s.handleProfile))

	// admin
	s.mux.Handle("/api/users", s.adminOnly(s.handleUsers))
	s.mux.Handle("/api/config", s.adminOnly(s.handleConfig))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.Identity)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, identity)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
		if identity.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, identity)
	})
}

func (s *Server) authorize(r *http.Request) (domain.Identity, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.Identity{}, false
	}
	identity, err := s.app.VerifyToken(token)
	if err != nil {
		return domain.Identity{}, false
	}
	return identity, true
}

// auth handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	_, err := s.app.Register(req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrMissingFields),
			errors.Is(err, app.ErrEmailAlreadyExists),
			errors.Is(err, app.ErrUsernameAlreadyExists):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			internalError(w, "register", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "user registered successfully"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.loginLimiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		internalError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if _, err := s.app.VerifyToken(token); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		internalError(w, "logout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "session closed successfully"})
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.resetLimiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many reset requests")
		return
	}
	var req resetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.app.RequestPasswordReset(r.Context(), req.Email)
	// Same answer whether or not the account exists.
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "if an account with this email exists, a password reset link has been sent",
	})
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/auth/reset-password/")
	if token == "" || strings.Contains(token, "/") {
		http.NotFound(w, r)
		return
	}
	var req resetConfirmRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.ResetPassword(token, req.Password); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidResetToken):
			writeError(w, http.StatusBadRequest, "the token is invalid or has expired")
		case errors.Is(err, app.ErrPasswordRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			internalError(w, "reset password", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "your password has been updated successfully"})
}

// catalog handlers
func (s *Server) handleCatalog(kind domain.MediaKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		page := 1
		if raw := r.URL.Query().Get("page"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				page = n
			}
		}
		results, err := s.app.PopularCatalog(r.Context(), kind, page)
		if err != nil {
			switch {
			case errors.Is(err, app.ErrConfigurationMissing):
				writeError(w, http.StatusInternalServerError, app.ErrConfigurationMissing.Error())
			case errors.Is(err, app.ErrUpstream):
				// The wrapped cause can quote the upstream request; it
				// stays in the log, never in the response.
				slog.Warn("catalog upstream failure", "err", err)
				writeError(w, http.StatusBadGateway, app.ErrUpstream.Error())
			default:
				internalError(w, "catalog", err)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(results)
	}
}

// list mutation handlers
func (s *Server) listMutationHandler(kind domain.MediaKind) authHandler {
	return func(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
		itemID, action, ok := splitMutationPath(r.URL.Path, kind)
		if !ok {
			http.NotFound(w, r)
			return
		}
		op, list, ok := parseListAction(action)
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch op {
		case "add":
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			already, err := s.app.AddToList(identity.UserID, list, kind, itemID)
			if err != nil {
				internalError(w, "add to list", err)
				return
			}
			msg := "item added to " + string(list)
			if already {
				msg = "item already in " + string(list)
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": msg})
		case "remove":
			if r.Method != http.MethodDelete {
				methodNotAllowed(w)
				return
			}
			if err := s.app.RemoveFromList(identity.UserID, list, kind, itemID); err != nil {
				if errors.Is(err, app.ErrNotInList) {
					writeError(w, http.StatusNotFound, "item not in "+string(list))
					return
				}
				internalError(w, "remove from list", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "item removed from " + string(list)})
		}
	}
}

// splitMutationPath parses /api/{movies|series}/{id}/{action}.
func splitMutationPath(path string, kind domain.MediaKind) (int64, string, bool) {
	prefix := "/api/movies/"
	if kind == domain.KindSeries {
		prefix = "/api/series/"
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, parts[1], true
}

func parseListAction(action string) (string, domain.ListType, bool) {
	op, target, found := strings.Cut(action, "-")
	if !found {
		return "", "", false
	}
	if op != "add" && op != "remove" {
		return "", "", false
	}
	switch target {
	case "favorite":
		return op, domain.ListFavorites, true
	case "pending":
		return op, domain.ListPending, true
	case "viewed":
		return op, domain.ListViewed, true
	default:
		return "", "", false
	}
}

// list read handlers
func (s *Server) listHandler(list domain.ListType) authHandler {
	return func(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		entries, err := s.app.ListEntries(identity.UserID, list)
		if err != nil {
			internalError(w, "list entries", err)
			return
		}
		if entries == nil {
			entries = []domain.ListEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Statistics(identity.UserID)
	if err != nil {
		internalError(w, "statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// profile handlers
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		user, err := s.app.Profile(identity.UserID)
		if err != nil {
			if errors.Is(err, app.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			internalError(w, "profile", err)
			return
		}
		writeJSON(w, http.StatusOK, userSummary{ID: user.ID, Username: user.Username, Email: user.Email})
	case http.MethodPut:
		var req profileUpdateRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		_, err := s.app.UpdateProfile(identity.UserID, req.Username, req.Email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, app.ErrUserNotFound):
				writeError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, app.ErrEmailAlreadyExists),
				errors.Is(err, app.ErrUsernameAlreadyExists):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				internalError(w, "update profile", err)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "profile updated successfully"})
	default:
		methodNotAllowed(w)
	}
}

// admin handlers
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		users, err := s.app.ListUsers()
		if err != nil {
			internalError(w, "list users", err)
			return
		}
		summaries := make([]userSummary, 0, len(users))
		for _, u := range users {
			summaries = append(summaries, userSummary{ID: u.ID, Username: u.Username, Email: u.Email})
		}
		writeJSON(w, http.StatusOK, summaries)
	case http.MethodPost:
		var req createUserRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		user, err := s.app.CreateUser(req.Username, req.Email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, app.ErrMissingFields),
				errors.Is(err, app.ErrEmailAlreadyExists),
				errors.Is(err, app.ErrUsernameAlreadyExists):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				internalError(w, "create user", err)
			}
			return
		}
		writeJSON(w, http.StatusCreated, userSummary{ID: user.ID, Username: user.Username, Email: user.Email})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.app.Configuration()
		if err != nil {
			if errors.Is(err, app.ErrConfigurationMissing) {
				writeError(w, http.StatusNotFound, "configuration not found")
				return
			}
			internalError(w, "read configuration", err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		var req domain.Configuration
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.app.UpdateConfiguration(req.TMDBAPIKey); err != nil {
			if errors.Is(err, app.ErrAPIKeyRequired) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			internalError(w, "update configuration", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "configuration updated successfully"})
	default:
		methodNotAllowed(w)
	}
}

// request/response types
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Password string `json:"password"`
}

type profileUpdateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// helpers
func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
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

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("handler panic", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func internalError(w http.ResponseWriter, op string, err error) {
	slog.Error(op+" failed", "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
