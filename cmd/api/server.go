package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lifeline/alert"
	"lifeline/auth"
	"lifeline/authority"
	"lifeline/geo"
	"lifeline/metrics"
)

type ctxKey int

const ctxKeyPrincipal ctxKey = iota

// alertStore is the slice of the alert store the API surface needs.
type alertStore interface {
	Create(ctx context.Context, params alert.CreateParams) (alert.Alert, error)
	Get(ctx context.Context, id string) (alert.Alert, error)
	ListActive(ctx context.Context) ([]alert.Alert, error)
	TransitionToResponded(ctx context.Context, alertID, responderID string) (alert.Alert, error)
}

// subscriber hands out push subscriptions for the stream endpoint.
type subscriber interface {
	Subscribe(ctx context.Context) (*alert.Subscription, error)
}

// Server exposes the persisted-alert contract: reporter-side creation and
// the authority-side consumption surface (active list, respond, stream).
type Server struct {
	store      alertStore
	subscriber subscriber
	verifier   *auth.Verifier
	log        *zap.Logger
}

func NewServer(store alertStore, sub subscriber, verifier *auth.Verifier, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		store:      store,
		subscriber: sub,
		verifier:   verifier,
		log:        log,
	}
}

// Router assembles the route table.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.authRequired)
	api.HandleFunc("/alerts", instrument("create_alert", s.handleCreateAlert)).Methods(http.MethodPost)
	api.HandleFunc("/alerts/active", instrument("list_active", s.handleListActive)).Methods(http.MethodGet)
	api.HandleFunc("/alerts/stream", s.handleStream).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}", instrument("get_alert", s.handleGetAlert)).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}/respond", instrument("respond", s.handleRespond)).Methods(http.MethodPost)

	return router
}

// authRequired extracts the already-authenticated principal from the bearer
// token. Issuance happens elsewhere; an unverifiable token is simply not a
// principal.
func (s *Server) authRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		principal, err := s.verifier.VerifyToken(header[len(prefix):])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyPrincipal, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFrom(r *http.Request) (auth.Principal, bool) {
	p, ok := r.Context().Value(ctxKeyPrincipal).(auth.Principal)
	return p, ok
}

// instrument records request counts and latency per handler.
func instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		metrics.HTTPRequestsTotal.WithLabelValues(name, r.Method, strconv.Itoa(sw.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(name, r.Method).Observe(time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createAlertRequest struct {
	ReporterName       string  `json:"reporterName"`
	ReporterPhone      string  `json:"reporterPhone"`
	IdentifyingFeature string  `json:"identifyingFeature"`
	PhotoURL           string  `json:"photoUrl"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
}

type alertResponse struct {
	ID                 string   `json:"id"`
	ReporterID         string   `json:"reporterId"`
	ReporterName       string   `json:"reporterName"`
	ReporterPhone      string   `json:"reporterPhone"`
	IdentifyingFeature string   `json:"identifyingFeature,omitempty"`
	PhotoURL           string   `json:"photoUrl,omitempty"`
	Latitude           float64  `json:"latitude"`
	Longitude          float64  `json:"longitude"`
	Status             string   `json:"status"`
	CreatedAt          string   `json:"createdAt"`
	RespondedAt        *string  `json:"respondedAt,omitempty"`
	RespondedBy        *string  `json:"respondedBy,omitempty"`
	DistanceKm         *float64 `json:"distanceKm,omitempty"`
}

func toAlertResponse(a alert.Alert) alertResponse {
	resp := alertResponse{
		ID:                 a.ID,
		ReporterID:         a.ReporterID,
		ReporterName:       a.ReporterName,
		ReporterPhone:      a.ReporterPhone,
		IdentifyingFeature: a.IdentifyingFeature,
		PhotoURL:           a.PhotoURL,
		Latitude:           a.Latitude,
		Longitude:          a.Longitude,
		Status:             string(a.Status),
		CreatedAt:          a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.RespondedAt != nil {
		t := a.RespondedAt.UTC().Format(time.RFC3339)
		resp.RespondedAt = &t
	}
	if a.RespondedBy != nil {
		resp.RespondedBy = a.RespondedBy
	}
	return resp
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok || principal.Role != auth.RoleReporter {
		writeError(w, http.StatusForbidden, "reporter role required")
		return
	}

	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.store.Create(r.Context(), alert.CreateParams{
		ReporterID:         principal.UserID,
		ReporterName:       req.ReporterName,
		ReporterPhone:      req.ReporterPhone,
		IdentifyingFeature: req.IdentifyingFeature,
		PhotoURL:           req.PhotoURL,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
	})
	if err != nil {
		s.log.Error("create alert failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, "could not persist alert")
		return
	}

	metrics.AlertsCreated.Inc()
	writeJSON(w, http.StatusCreated, toAlertResponse(rec))
}

// handleListActive serves the active set in creation-descending order. When
// the caller supplies its own position, items are annotated with distance;
// order is never changed by distance.
func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing principal")
		return
	}

	snapshot, err := s.store.ListActive(r.Context())
	if err != nil {
		s.log.Error("list active failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list alerts")
		return
	}

	feed := authority.NewFeed(s.store, nil, principal.UserID, s.log)
	if p, ok := positionFromQuery(r); ok {
		feed = feed.WithPosition(p)
	}

	items := make([]alertResponse, 0, len(snapshot))
	for _, ranked := range feed.Decorate(snapshot) {
		item := toAlertResponse(ranked.Alert)
		item.DistanceKm = ranked.DistanceKm
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.log.Error("get alert failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load alert")
		return
	}
	writeJSON(w, http.StatusOK, toAlertResponse(rec))
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok || principal.Role != auth.RoleAuthority {
		writeError(w, http.StatusForbidden, "authority role required")
		return
	}

	feed := authority.NewFeed(s.store, nil, principal.UserID, s.log)
	outcome, err := feed.Respond(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.log.Error("respond failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not respond to alert")
		return
	}
	if outcome.Conflict {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "conflict",
			"message": "alert was already responded to",
		})
		return
	}
	writeJSON(w, http.StatusOK, toAlertResponse(outcome.Alert))
}

func positionFromQuery(r *http.Request) (geo.Point, bool) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" || lonStr == "" {
		return geo.Point{}, false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return geo.Point{}, false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return geo.Point{}, false
	}
	return geo.Point{Latitude: lat, Longitude: lon}, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
