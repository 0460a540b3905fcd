package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hazz-dev/statuswatch/internal/checker"
	"github.com/hazz-dev/statuswatch/internal/config"
)

// HistoryStore defines the log queries the server needs.
type HistoryStore interface {
	LatestPerCheck(now time.Time) (map[string]checker.CheckResult, error)
	Records(day time.Time) ([]checker.CheckResult, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	store  HistoryStore
	checks []config.Check
	router chi.Router
	logger *slog.Logger
}

// New creates a new Server and registers all routes.
func New(store HistoryStore, checks []config.Check, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  store,
		checks: checks,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/checks", s.handleListChecks)
	r.Get("/api/checks/{id}", s.handleGetCheck)
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type checkDetail struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	ResponseTimeMs int64      `json:"response_time_ms"`
	Message        string     `json:"message"`
	Provisional    bool       `json:"provisional"`
	LastChecked    *time.Time `json:"last_checked"`
}

func (s *Server) detail(c config.Check, latest map[string]checker.CheckResult) checkDetail {
	d := checkDetail{
		ID:             c.ID,
		Name:           c.Name,
		Type:           c.Type,
		Status:         "unknown",
		ResponseTimeMs: checker.NoResponseTime,
	}
	if r, ok := latest[c.ID]; ok {
		d.Status = string(r.Status)
		d.ResponseTimeMs = r.ResponseTimeMs
		d.Message = r.Message
		d.Provisional = r.Provisional
		t := r.Timestamp
		d.LastChecked = &t
	}
	return d
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.LatestPerCheck(time.Now().UTC())
	if err != nil {
		s.logger.Error("LatestPerCheck", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	details := make([]checkDetail, 0, len(s.checks))
	for _, c := range s.checks {
		details = append(details, s.detail(c, latest))
	}
	writeJSON(w, http.StatusOK, details)
}

type resultView struct {
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Message        string    `json:"message"`
	Provisional    bool      `json:"provisional"`
}

type checkDetailResponse struct {
	checkDetail
	TodayResults []resultView `json:"today_results"`
}

func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cfg *config.Check
	for i := range s.checks {
		if s.checks[i].ID == id {
			cfg = &s.checks[i]
			break
		}
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}

	now := time.Now().UTC()
	latest, err := s.store.LatestPerCheck(now)
	if err != nil {
		s.logger.Error("LatestPerCheck", "check", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	records, err := s.store.Records(now)
	if err != nil {
		s.logger.Error("Records", "check", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var today []resultView
	for _, rec := range records {
		if rec.CheckID != id {
			continue
		}
		today = append(today, resultView{
			Timestamp:      rec.Timestamp,
			Status:         string(rec.Status),
			ResponseTimeMs: rec.ResponseTimeMs,
			Message:        rec.Message,
			Provisional:    rec.Provisional,
		})
	}

	writeJSON(w, http.StatusOK, checkDetailResponse{
		checkDetail:  s.detail(*cfg, latest),
		TodayResults: today,
	})
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
