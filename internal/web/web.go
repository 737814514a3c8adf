package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"uqconnect/internal/calendar"
	"uqconnect/internal/config"
	appLog "uqconnect/internal/log"
	"uqconnect/internal/model"
	"uqconnect/internal/recommend"
)

// maxUploadBytes bounds uploaded calendar files.
const maxUploadBytes = 10 << 20

// Service is the calendar functionality the HTTP layer exposes.
type Service interface {
	Upload(ctx context.Context, userID, text string) (calendar.UploadResult, error)
	Import(ctx context.Context, userID, rawURL string) (calendar.ImportResult, error)
	Calendar(ctx context.Context, userID string) (model.Calendar, error)
	Patterns(ctx context.Context, userID string) (recommend.Patterns, error)
	Recommendations(ctx context.Context, userID string) ([]model.Recommendation, error)
	Accept(ctx context.Context, userID, eventID string) (model.CalendarEvent, error)
}

// Catalogue lists the available campus events.
type Catalogue interface {
	Events() []model.CatalogueEvent
}

// Server provides the HTTP API for calendars and recommendations.
type Server struct {
	cfg       *config.Config
	svc       Service
	catalogue Catalogue
	router    chi.Router
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc Service, cat Catalogue) *Server {
	s := &Server{
		cfg:       cfg,
		svc:       svc,
		catalogue: cat,
		router:    chi.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables the gate.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="UQConnect", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves the API on cfg.Listen until ctx is cancelled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, svc Service, cat Catalogue) error {
	s := NewServer(cfg, svc, cat)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(requestID, accessLog, recoverer)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		r.Use(s.basicAuthMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/events", s.handleEvents)

	importLimit := s.cfg.RateLimit.ImportPerMinute
	limit := httprate.Limit(
		importLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		}),
	)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Get("/api/calendar", s.handleCalendar)
		r.Get("/api/calendar/patterns", s.handlePatterns)
		r.With(limit).Post("/api/calendar/upload", s.handleUpload)
		r.With(limit).Post("/api/calendar/import", s.handleImport)

		r.Get("/api/recommendations", s.handleRecommendations)
		r.Post("/api/recommendations/{eventID}/accept", s.handleAccept)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleEvents lists the catalogue.
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	events := s.catalogue.Events()
	if events == nil {
		events = []model.CatalogueEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	cal, err := s.svc.Calendar(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Patterns(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleUpload accepts either a multipart form with a "calendar" file field
// or the raw ICS document as the request body.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.svc.Upload(r.Context(), userFrom(r.Context()), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
		calendar.UploadResult
	}{"Calendar uploaded successfully", res})
}

func readUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("calendar")
		if err != nil {
			return "", errors.New("No file uploaded")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", fmt.Errorf("read upload: %w", err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("No file uploaded")
	}
	return string(data), nil
}

type importRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.svc.Import(r.Context(), userFrom(r.Context()), req.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		calendar.ImportResult
	}{true, res})
}

type recommendationsResponse struct {
	Recommendations []model.Recommendation `json:"recommendations"`
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.Recommendations(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{Recommendations: recs})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	ev, err := s.svc.Accept(r.Context(), userFrom(r.Context()), eventID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message string              `json:"message"`
		Event   model.CalendarEvent `json:"event"`
	}{"Event added to calendar successfully", ev})
}

// fail maps service errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, calendar.ErrInvalidURL),
		errors.Is(err, calendar.ErrNotCalendar),
		errors.Is(err, calendar.ErrNoEvents),
		errors.Is(err, calendar.ErrAlreadyInCalendar):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, calendar.ErrEventNotFound),
		errors.Is(err, calendar.ErrCalendarNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, calendar.ErrFetch):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		appLog.Error("request failed", err, "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "Server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
