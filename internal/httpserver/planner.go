package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/apperr"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/events"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/outbox"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/store"
)

const parityOnlyMessage = "Geo-NAP platform currently supports parity_mode=true only"

// PlanStore is what the planner needs from persistence.
type PlanStore interface {
	store.PlanStore
	LatestRecommendations(ctx context.Context, planID string) (string, models.RecommendationBundle, error)
}

type PlannerConfig struct {
	// WatchInterval is how often a watch connection re-reads the plan.
	WatchInterval time.Duration
}

type Planner struct {
	store    PlanStore
	cfg      PlannerConfig
	logger   *zap.Logger
	newID    func() string
	now      func() time.Time
	upgrader websocket.Upgrader
}

func NewPlanner(st PlanStore, cfg PlannerConfig, logger *zap.Logger) *Planner {
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		store:    st,
		cfg:      cfg,
		logger:   logger,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (p *Planner) Router() http.Handler {
	r, timed := newRouter("planner", p.store, p.logger)
	timed.Post("/v1/plans", p.handleCreatePlan)
	timed.Get("/v1/plans/{planId}", p.handleGetPlan)
	r.Get("/v1/plans/{planId}/watch", p.handleWatch)
	return r
}

type createPlanResponse struct {
	PlanID string            `json:"plan_id"`
	Status models.PlanStatus `json:"status"`
}

func (p *Planner) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondError(w, p.logger, err)
		return
	}
	req, fieldErrs, err := models.ParsePlanRequest(body)
	if err != nil {
		respondError(w, p.logger, apperr.Validation("Invalid plan request", map[string]interface{}{
			"formErrors":  []string{err.Error()},
			"fieldErrors": models.FieldErrors{},
		}))
		return
	}
	if len(fieldErrs) > 0 {
		respondError(w, p.logger, apperr.Validation("Invalid plan request", map[string]interface{}{
			"formErrors":  []string{},
			"fieldErrors": fieldErrs,
		}))
		return
	}
	if !req.ParityMode {
		respondError(w, p.logger, apperr.Validation(parityOnlyMessage, nil))
		return
	}

	now := p.now()
	plan := models.PlanRecord{
		ID:        p.newID(),
		Request:   req,
		Status:    models.PlanStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ev, err := outbox.Build(events.PlanCreated, events.PlanCreatedPayload{PlanID: plan.ID, Request: req})
	if err != nil {
		respondError(w, p.logger, err)
		return
	}
	if err := p.store.CreatePlan(r.Context(), plan, []models.OutboxEvent{ev}); err != nil {
		respondError(w, p.logger, apperr.Dependency("Plan store unavailable", err))
		return
	}
	p.logger.Info("plan accepted", zap.String("planId", plan.ID), zap.String("dataLocation", req.DataLocation))
	respondJSON(w, http.StatusAccepted, createPlanResponse{PlanID: plan.ID, Status: plan.Status})
}

type planResponse struct {
	Plan            models.PlanRecord                                 `json:"plan"`
	Recommendations []models.RankedRecommendation                     `json:"recommendations"`
	CheapestOption  *models.RankedRecommendation                      `json:"cheapest_option"`
	NearestOption   *models.RankedRecommendation                      `json:"nearest_option"`
	BalancedOption  *models.RankedRecommendation                      `json:"balanced_option"`
	ProviderOptions map[models.Provider][]models.RankedRecommendation `json:"provider_options"`
}

func (p *Planner) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := p.loadPlan(r.Context(), chi.URLParam(r, "planId"))
	if err != nil {
		respondError(w, p.logger, err)
		return
	}

	bundle := models.EmptyBundle()
	if plan.Status == models.PlanStatusRecommended {
		_, latest, err := p.store.LatestRecommendations(r.Context(), plan.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			respondError(w, p.logger, apperr.Dependency("Recommendation store unavailable", err))
			return
		default:
			bundle = latest
		}
	}

	respondJSON(w, http.StatusOK, planResponse{
		Plan:            plan,
		Recommendations: bundle.RankedAlternatives,
		CheapestOption:  bundle.CheapestOption,
		NearestOption:   bundle.NearestOption,
		BalancedOption:  bundle.BalancedOption,
		ProviderOptions: bundle.ProviderOptions(),
	})
}

func (p *Planner) loadPlan(ctx context.Context, planID string) (models.PlanRecord, error) {
	plan, err := p.store.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return models.PlanRecord{}, apperr.NotFound("Plan not found: " + planID)
	}
	if err != nil {
		return models.PlanRecord{}, apperr.Dependency("Plan store unavailable", err)
	}
	return plan, nil
}

// handleWatch streams the plan record whenever its status or updatedAt changes and
// closes the socket once a terminal status has been sent.
func (p *Planner) handleWatch(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planId")
	plan, err := p.loadPlan(r.Context(), planID)
	if err != nil {
		respondError(w, p.logger, err)
		return
	}
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warn("ws upgrade failed", zap.String("planId", planID), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(p.cfg.WatchInterval)
	defer ticker.Stop()

	var last *models.PlanRecord
	for {
		if last == nil || last.Status != plan.Status || !last.UpdatedAt.Equal(plan.UpdatedAt) {
			if err := conn.WriteJSON(plan); err != nil {
				return
			}
			sent := plan
			last = &sent
		}
		if plan.Status.Terminal() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(plan.Status))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if plan, err = p.store.GetPlan(ctx, planID); err != nil {
			p.logger.Warn("watch reload failed", zap.String("planId", planID), zap.Error(err))
			return
		}
	}
}
