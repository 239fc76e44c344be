package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"fleet-monitor/oilmonitor/internal/auth"
	"fleet-monitor/oilmonitor/internal/domain"
	"fleet-monitor/oilmonitor/internal/metrics"
	"fleet-monitor/oilmonitor/internal/store"
)

// ReadStore is the slice of the store the dashboard API needs.
type ReadStore interface {
	RecentReadings(ctx context.Context, q store.ReadingQuery) ([]domain.Reading, error)
	RecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error)
	Ping(ctx context.Context) error
}

type Server struct {
	store  ReadStore
	authn  *AuthMiddleware
	hub    *Hub
	log    *slog.Logger
	router *mux.Router
}

// NewServer wires the read API. hub may be nil, in which case /ws/alerts is
// not registered.
func NewServer(st ReadStore, authn *AuthMiddleware, hub *Hub, log *slog.Logger) *Server {
	s := &Server{
		store:  st,
		authn:  authn,
		hub:    hub,
		log:    log,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(loggingMiddleware(s.log))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authn.Wrap)
	api.HandleFunc("/readings", s.handleReadings).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)

	if s.hub != nil {
		s.router.Handle("/ws/alerts", s.authn.Wrap(http.HandlerFunc(s.hub.ServeWS))).Methods(http.MethodGet)
	}
}

func (s *Server) Router() *mux.Router {
	return s.router
}

type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Meta    *meta  `json:"meta,omitempty"`
}

type meta struct {
	Total   int   `json:"total"`
	Limit   int   `json:"limit,omitempty"`
	QueryMs int64 `json:"query_ms"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func respondWithMeta(w http.ResponseWriter, data any, m *meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data, Meta: m})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("health check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	q := store.ReadingQuery{VehicleID: r.URL.Query().Get("vehicle"), Limit: limit}
	if q.VehicleID == "all" {
		q.VehicleID = ""
	}

	readings, err := s.store.RecentReadings(r.Context(), q)
	if err != nil {
		s.log.Error("readings query failed", "vehicle_id", q.VehicleID, "owner", auth.OwnerFrom(r.Context()), "error", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if readings == nil {
		readings = []domain.Reading{}
	}

	respondWithMeta(w, readings, &meta{
		Total:   len(readings),
		Limit:   limit,
		QueryMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	alerts, err := s.store.RecentAlerts(r.Context(), limit)
	if err != nil {
		s.log.Error("alerts query failed", "owner", auth.OwnerFrom(r.Context()), "error", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}

	respondWithMeta(w, alerts, &meta{
		Total:   len(alerts),
		Limit:   limit,
		QueryMs: time.Since(start).Milliseconds(),
	})
}

// parseLimit returns 0 when the parameter is absent so the store applies its
// default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}
