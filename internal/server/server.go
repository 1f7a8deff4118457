package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bookhabit/internal/app"
	"bookhabit/internal/util"
	"bookhabit/pkg/domain"
	"bookhabit/pkg/store"
)

// Limiter throttles anonymous auth endpoints per client key.
type Limiter interface {
	Allow(key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Limiter        Limiter
	TrustForwarded bool
}

// Server exposes the HTTP API.
type Server struct {
	app            *app.App
	limiter        Limiter
	trustForwarded bool
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	s := &Server{
		app:            cfg.App,
		limiter:        cfg.Limiter,
		trustForwarded: cfg.TrustForwarded,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.Handle("/auth/register", s.withRateLimit(s.handleRegister))
	s.mux.Handle("/auth/login", s.withRateLimit(s.handleLogin))
	s.mux.Handle("/auth/logout", http.HandlerFunc(s.handleLogout))
	s.mux.Handle("/auth/me", s.withUser(s.handleMe))

	// books and everything under them
	s.mux.Handle("/books", s.withUser(s.handleBooks))
	s.mux.Handle("/books/", s.withUser(s.handleBookByID))

	// stats
	s.mux.Handle("/stats", s.withUser(s.handleStats))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok, err := s.app.UserByToken(token)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) withRateLimit(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r, s.trustForwarded)) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Register(req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
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
	if err := s.app.Logout(token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateBook(w, r, user)
	case http.MethodGet:
		s.handleListBooks(w, user)
	default:
		methodNotAllowed(w)
	}
}

// handleCreateBook accepts either a multipart file upload or a JSON body
// naming a url, drive link, or isbn.
func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		s.handleUploadBook(w, r, user)
		return
	}

	var req struct {
		Method string `json:"method"`
		Title  string `json:"title"`
		Author string `json:"author"`
		URL    string `json:"url"`
		ISBN   string `json:"isbn"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	book, err := s.app.CreateBookFromLink(r.Context(), user, app.LinkRequest{
		Method: domain.SourceMethod(strings.ToLower(strings.TrimSpace(req.Method))),
		Title:  req.Title,
		Author: req.Author,
		URL:    req.URL,
		ISBN:   req.ISBN,
	})
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleUploadBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	if max := s.app.MaxUploadBytes(); max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, max)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	book, err := s.app.CreateBookFromFile(r.Context(), user, header.Filename, file, header.Size)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleListBooks(w http.ResponseWriter, user domain.User) {
	books, err := s.app.ListBooks(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": books,
		"count": len(books),
	})
}

// /books/{id} and its sub-resources.
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/books/")
	parts := strings.SplitN(path, "/", 3)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetBook(w, user, id)
		case http.MethodDelete:
			s.handleDeleteBook(w, r, user, id)
		default:
			methodNotAllowed(w)
		}
		return
	}

	switch parts[1] {
	case "download":
		if len(parts) == 2 && r.Method == http.MethodGet {
			s.handleDownloadBook(w, r, user, id)
			return
		}
	case "retry":
		if len(parts) == 2 && r.Method == http.MethodPost {
			s.handleRetryBook(w, r, user, id)
			return
		}
	case "advance":
		if len(parts) == 2 && r.Method == http.MethodPost {
			s.handleAdvance(w, r, user, id)
			return
		}
	case "retreat":
		if len(parts) == 2 && r.Method == http.MethodPost {
			s.handleRetreat(w, r, user, id)
			return
		}
	case "progress":
		if len(parts) == 2 && r.Method == http.MethodGet {
			s.handleProgress(w, r, user, id)
			return
		}
	case "notes":
		s.handleNotes(w, r, user, id, parts)
		return
	}
	notFound(w, "not found")
}

func (s *Server) handleGetBook(w http.ResponseWriter, user domain.User, id string) {
	book, err := s.app.GetBook(user, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if err := s.app.DeleteBook(r.Context(), user, id); err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleDownloadBook(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	url, filename, err := s.app.DownloadURL(r.Context(), user, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":      url,
		"filename": filename,
	})
}

func (s *Server) handleRetryBook(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	book, err := s.app.Retry(r.Context(), user, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	book, err := s.app.Advance(r.Context(), user, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleRetreat(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	book, err := s.app.Retreat(r.Context(), user, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	progress, err := s.app.GetProgress(r.Context(), user, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// /books/{id}/notes lists notes; /books/{id}/notes/{day} upserts one.
func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request, user domain.User, id string, parts []string) {
	if len(parts) == 2 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		notes, err := s.app.ListNotes(user, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": notes,
			"count": len(notes),
		})
		return
	}

	day, err := strconv.Atoi(parts[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid day")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	note, err := s.app.SaveNote(user, id, day, req.Text)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.GetStats(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeAppError maps application sentinels to HTTP status and stable codes.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, app.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "book not found")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrNotCompleted):
		writeError(w, http.StatusConflict, "book is not completed")
	case errors.Is(err, app.ErrNotFailed):
		writeError(w, http.StatusConflict, "book is not failed")
	case errors.Is(err, store.ErrVersionConflict):
		writeError(w, http.StatusConflict, "conflicting update, retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "invalid email or password":
		return "AUTH_INVALID_CREDENTIALS"
	case message == "email already registered":
		return "AUTH_EMAIL_TAKEN"
	case message == "too many requests":
		return "AUTH_RATE_LIMITED"
	case message == "forbidden":
		return "BOOK_FORBIDDEN"
	case message == "book not found":
		return "BOOK_NOT_FOUND"
	case message == "book is not completed":
		return "BOOK_NOT_COMPLETED"
	case message == "book is not failed":
		return "BOOK_NOT_FAILED"
	case message == "conflicting update, retry":
		return "BOOK_VERSION_CONFLICT"
	case strings.Contains(message, "file is required"):
		return "BOOK_FILE_REQUIRED"
	case strings.Contains(message, "not supported"):
		return "BOOK_UNSUPPORTED_FILE_TYPE"
	case strings.Contains(message, "file size"):
		return "BOOK_FILE_TOO_LARGE"
	case message == "invalid form data":
		return "BOOK_INVALID_UPLOAD_FORM"
	case message == "invalid json body":
		return "BOOK_INVALID_REQUEST"
	case message == "invalid day":
		return "NOTE_INVALID_DAY"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_INVALID"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "BOOK_FORBIDDEN"
	case http.StatusNotFound:
		return "BOOK_NOT_FOUND"
	case http.StatusConflict:
		return "REQUEST_CONFLICT"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
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
