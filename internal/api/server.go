package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/ingest"
	"github.com/regwatch/regwatch/internal/logging"
	"github.com/regwatch/regwatch/internal/matching"
	"github.com/regwatch/regwatch/internal/metrics"
	"github.com/regwatch/regwatch/internal/regwatch"
	"github.com/regwatch/regwatch/internal/xref"
)

// OwnerHeader carries the caller's owner id.
const OwnerHeader = "X-Owner-ID"

// Ingester runs one ingestion pass.
type Ingester interface {
	RunIngestion(ctx context.Context) (ingest.RunSummary, error)
}

// Matcher drives the matching engine on demand.
type Matcher interface {
	MatchUpdateAgainstWatchLists(
		ctx context.Context,
		updateID string,
		update *regwatch.RegulatoryUpdate,
		ownerID string,
	) ([]matching.Match, error)
	BulkMatchWatchList(
		ctx context.Context,
		watchListID, ownerID string,
		opts matching.BackfillOptions,
	) (matching.BackfillSummary, error)
}

// Linker resolves cross references.
type Linker interface {
	GetLinkedItems(
		ctx context.Context,
		entityType regwatch.EntityType,
		entityID, ownerID string,
	) (xref.LinkedItems, error)
}

// Deps bundles the services the handlers call. Ready may be nil.
type Deps struct {
	Ingester Ingester
	Matcher  Matcher
	Matches  regwatch.MatchStore
	Linker   Linker
	Stats    regwatch.StatsStore
	Ready    func(ctx context.Context) error
}

// Config controls server behavior.
type Config struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
	Backfill       matching.BackfillOptions
}

// Server wires HTTP handlers to the pipeline services.
type Server struct {
	router  chi.Router
	deps    Deps
	cfg     Config
	logger  *zap.Logger
	running atomic.Bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg Config, logger *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logging.Component(logger, "api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		// Ingestion runs for as long as the sources take.
		r.Post("/ingest/runs", s.runIngestion)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.RequestTimeout))
			r.Post("/updates/{update_id}/match", s.matchUpdate)
			r.Post("/watchlists/{watchlist_id}/backfill", s.backfillWatchList)
			r.Route("/matches/{match_id}", func(r chi.Router) {
				r.Post("/review", s.reviewMatch)
				r.Post("/dismiss", s.dismissMatch)
			})
			r.Get("/linked/{entity_type}/{entity_id}", s.linkedItems)
			r.Get("/stats", s.stats)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) runIngestion(w http.ResponseWriter, r *http.Request) {
	if !s.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "an ingestion run is already in progress")
		return
	}
	defer s.running.Store(false)

	// A run is never cancelled midway, even when the client goes away.
	summary, err := s.deps.Ingester.RunIngestion(context.WithoutCancel(r.Context()))
	if err != nil {
		s.logger.Warn("ingestion run interrupted", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "summary": summary})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) matchUpdate(w http.ResponseWriter, r *http.Request) {
	updateID := chi.URLParam(r, "update_id")
	matches, err := s.deps.Matcher.MatchUpdateAgainstWatchLists(r.Context(), updateID, nil, ownerID(r))
	switch {
	case errors.Is(err, regwatch.ErrNotFound):
		writeError(w, http.StatusNotFound, "update not found")
	case err != nil:
		s.logger.Error("match update failed", zap.String("update_id", updateID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"matches": matchViews(matches),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"update_id": updateID, "matches": matchViews(matches)})
	}
}

type backfillRequest struct {
	WindowDays int `json:"window_days"`
	PageSize   int `json:"page_size"`
	MaxPages   int `json:"max_pages"`
}

func (s *Server) backfillWatchList(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req backfillRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	opts := s.cfg.Backfill
	if req.WindowDays > 0 {
		opts.WindowDays = req.WindowDays
	}
	if req.PageSize > 0 {
		opts.PageSize = req.PageSize
	}
	if req.MaxPages > 0 {
		opts.MaxPages = req.MaxPages
	}

	watchListID := chi.URLParam(r, "watchlist_id")
	summary, err := s.deps.Matcher.BulkMatchWatchList(r.Context(), watchListID, owner, opts)
	switch {
	case errors.Is(err, regwatch.ErrNotFound):
		writeError(w, http.StatusNotFound, "watch list not found")
	case err != nil:
		s.logger.Error("backfill failed", zap.String("watch_list_id", watchListID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "summary": summary})
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) reviewMatch(w http.ResponseWriter, r *http.Request) {
	s.triageMatch(w, r, "reviewed", s.deps.Matches.ReviewMatch)
}

func (s *Server) dismissMatch(w http.ResponseWriter, r *http.Request) {
	s.triageMatch(w, r, "dismissed", s.deps.Matches.DismissMatch)
}

func (s *Server) triageMatch(
	w http.ResponseWriter,
	r *http.Request,
	state string,
	apply func(ctx context.Context, matchID, ownerID string) error,
) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	matchID := chi.URLParam(r, "match_id")
	if err := apply(r.Context(), matchID, owner); err != nil {
		if errors.Is(err, regwatch.ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		s.logger.Error("match triage failed", zap.String("match_id", matchID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "update match failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"match_id": matchID, "status": state})
}

func (s *Server) linkedItems(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	entityType := regwatch.EntityType(chi.URLParam(r, "entity_type"))
	entityID := chi.URLParam(r, "entity_id")
	items, err := s.deps.Linker.GetLinkedItems(r.Context(), entityType, entityID, owner)
	switch {
	case errors.Is(err, xref.ErrUnknownEntityType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, regwatch.ErrNotFound):
		writeError(w, http.StatusNotFound, "entity not found")
	case err != nil:
		s.logger.Error("linked items failed",
			zap.String("entity_type", string(entityType)),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "resolve linked items failed")
	default:
		writeJSON(w, http.StatusOK, items)
	}
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	stats, err := s.deps.Stats.Stats(r.Context(), owner)
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "compute stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type matchView struct {
	WatchListID string               `json:"watch_list_id"`
	Status      regwatch.SaveStatus  `json:"status"`
	Record      regwatch.MatchRecord `json:"record"`
}

func matchViews(in []matching.Match) []matchView {
	out := make([]matchView, 0, len(in))
	for _, m := range in {
		out = append(out, matchView{WatchListID: m.WatchListID, Status: m.Status, Record: m.Record})
	}
	return out
}

func ownerID(r *http.Request) string {
	return r.Header.Get(OwnerHeader)
}

func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := ownerID(r)
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing "+OwnerHeader+" header")
		return "", false
	}
	return owner, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
