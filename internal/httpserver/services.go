package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/apperr"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/decision"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/recommendation"
)

type AvailabilityStore interface {
	LatestAvailability(ctx context.Context, provider, region string) ([]models.AvailabilityScore, error)
	Ping(ctx context.Context) error
}

// Intelligence serves the coordinator's availability snapshots.
type Intelligence struct {
	store  AvailabilityStore
	logger *zap.Logger
}

func NewIntelligence(st AvailabilityStore, logger *zap.Logger) *Intelligence {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Intelligence{store: st, logger: logger}
}

func (s *Intelligence) Router() http.Handler {
	r, timed := newRouter("intelligence", s.store, s.logger)
	timed.Get("/v1/intelligence/availability", s.handleAvailability)
	return r
}

func (s *Intelligence) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scores, err := s.store.LatestAvailability(r.Context(), q.Get("provider"), q.Get("region"))
	if err != nil {
		respondError(w, s.logger, apperr.Dependency("Availability store unavailable", err))
		return
	}
	if scores == nil {
		scores = []models.AvailabilityScore{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"availability": scores})
}

type RecommendationReader interface {
	Latest(ctx context.Context, planID string) (recommendation.View, error)
	Ping(ctx context.Context) error
}

type Recommendations struct {
	svc    RecommendationReader
	logger *zap.Logger
}

func NewRecommendations(svc RecommendationReader, logger *zap.Logger) *Recommendations {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recommendations{svc: svc, logger: logger}
}

func (s *Recommendations) Router() http.Handler {
	r, timed := newRouter("recommendation", s.svc, s.logger)
	timed.Get("/v1/recommendations/{planId}", s.handleLatest)
	return r
}

func (s *Recommendations) handleLatest(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Latest(r.Context(), chi.URLParam(r, "planId"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Decision serves the stateless scorer. It has no store, so /health always reports ok.
type Decision struct {
	svc    *decision.Service
	logger *zap.Logger
}

func NewDecision(svc *decision.Service, logger *zap.Logger) *Decision {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decision{svc: svc, logger: logger}
}

func (s *Decision) Router() http.Handler {
	r, timed := newRouter("decision", nil, s.logger)
	timed.Post("/recommend", s.handleRecommend)
	return r
}

func (s *Decision) handleRecommend(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	resp, err := s.svc.Recommend(body)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
