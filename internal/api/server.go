// Package api exposes runs, matches, and the follow-up queue over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/resilience"
	"github.com/sells-group/probate-link/internal/store"
)

// maxLeadsPerRequest caps the leads accepted by one resolve request.
const maxLeadsPerRequest = 500

// Processor resolves leads under an existing run.
type Processor interface {
	Process(ctx context.Context, run *model.Run, leads []model.Lead) ([]*model.ResolvedMatch, error)
}

// Server holds the HTTP handlers.
type Server struct {
	store     store.Store
	processor Processor
	// ctx outlives individual requests and bounds background runs.
	ctx context.Context
}

// NewServer creates a Server. Background runs started by POST /resolve
// are cancelled with ctx.
func NewServer(ctx context.Context, st store.Store, p Processor) *Server {
	return &Server{store: st, processor: p, ctx: ctx}
}

// Router builds the chi router with CORS for allowedOrigins.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Post("/resolve", s.resolve)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Get("/{id}", s.getRun)
		r.Get("/{id}/matches", s.listMatches)
		r.Get("/{id}/tiers", s.tierStats)
	})
	r.Get("/followups", s.listFollowUps)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type resolveRequest struct {
	Source string       `json:"source"`
	Leads  []model.Lead `json:"leads"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Leads) == 0 {
		writeError(w, http.StatusBadRequest, "leads are required")
		return
	}
	if len(req.Leads) > maxLeadsPerRequest {
		writeError(w, http.StatusRequestEntityTooLarge, "too many leads")
		return
	}
	for _, l := range req.Leads {
		if l.CaseNumber == "" {
			writeError(w, http.StatusBadRequest, "case_number is required")
			return
		}
	}
	if req.Source == "" {
		req.Source = "api"
	}

	run, err := s.store.CreateRun(r.Context(), req.Source)
	if err != nil {
		zap.L().Error("api: create run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create run")
		return
	}

	// Resolve asynchronously
	go func() {
		if _, err := s.processor.Process(s.ctx, run, req.Leads); err != nil {
			zap.L().Error("api: run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"run_id": run.ID,
		"leads":  len(req.Leads),
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Limit:  queryInt(q.Get("limit")),
		Offset: queryInt(q.Get("offset")),
	}
	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.fail(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listMatches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		s.fail(w, "get run", err)
		return
	}
	matches, err := s.store.ListMatches(r.Context(), id)
	if err != nil {
		s.fail(w, "list matches", err)
		return
	}
	if r.URL.Query().Get("review") == "true" {
		filtered := matches[:0]
		for _, m := range matches {
			if m.NeedsFollowUp() {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}
	if matches == nil {
		matches = []model.ResolvedMatch{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) tierStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		s.fail(w, "get run", err)
		return
	}
	stats, err := s.store.TierStats(r.Context(), id)
	if err != nil {
		s.fail(w, "tier stats", err)
		return
	}
	if stats == nil {
		stats = []store.TierStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listFollowUps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := resilience.FollowUpFilter{
		Kind:  resilience.FollowUpKind(q.Get("kind")),
		RunID: q.Get("run_id"),
		Limit: queryInt(q.Get("limit")),
	}
	items, err := s.store.ListFollowUps(r.Context(), filter)
	if err != nil {
		s.fail(w, "list follow-ups", err)
		return
	}
	if items == nil {
		items = []resilience.FollowUp{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("api: "+op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
