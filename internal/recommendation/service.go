// Package recommendation ranks completed simulation batches, persists the bundle and
// serves it back to callers.
package recommendation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/apperr"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/archive"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/events"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/ranking"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/store"
)

type Config struct {
	DefaultResultLimit int
	ArchiveTimeout     time.Duration
}

type Service struct {
	store    store.RecommendationStore
	archiver archive.Archiver
	cfg      Config
	logger   *zap.Logger
}

func New(st store.RecommendationStore, archiver archive.Archiver, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultResultLimit <= 0 {
		cfg.DefaultResultLimit = models.DefaultResultLimit
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = 10 * time.Second
	}
	if archiver == nil {
		archiver = archive.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, archiver: archiver, cfg: cfg, logger: logger}
}

func (s *Service) Subscriptions() []events.Subscription {
	return []events.Subscription{
		{Queue: events.QueueSimulationCompleted, Handler: s.HandleCompleted},
		{Queue: events.QueueSimulationFailed, Handler: s.HandleFailed},
	}
}

// HandleCompleted ranks the batch, then stores the bundle and marks the plan recommended
// in one step. Redelivery of a stored batch changes nothing.
func (s *Service) HandleCompleted(ctx context.Context, env events.Envelope) error {
	var p events.SimulationCompletedPayload
	if err := env.Into(&p); err != nil {
		return err
	}
	log := s.logger.With(zap.String("planId", p.PlanID), zap.String("batchId", p.BatchID))

	limit, err := s.store.PlanResultLimit(ctx, p.PlanID, s.cfg.DefaultResultLimit)
	if err != nil {
		return fmt.Errorf("load result limit: %w", err)
	}

	resultsByProvider := map[models.Provider]int{}
	for _, provider := range models.SupportedProviders {
		resultsByProvider[provider] = 0
	}
	for _, r := range p.Results {
		resultsByProvider[r.Provider]++
	}

	bundle := ranking.Rank(p.Results, p.Availability, limit)
	recommended, err := s.store.SaveRecommendations(ctx, p.PlanID, p.BatchID, bundle)
	if err != nil {
		return fmt.Errorf("save recommendations: %w", err)
	}
	if !recommended {
		log.Warn("ignoring simulation.completed for finished plan")
		return nil
	}

	log.Info("recommendations computed",
		zap.Int("ranked", len(bundle.RankedAlternatives)),
		zap.Any("resultsByProvider", resultsByProvider),
		zap.Int("resultLimit", limit),
	)
	for _, provider := range models.SupportedProviders {
		if resultsByProvider[provider] == 0 {
			log.Warn("provider absent from simulation results before ranking", zap.String("provider", string(provider)))
		}
	}

	s.archive(ctx, p.PlanID, p.BatchID, bundle, log)
	return nil
}

func (s *Service) archive(ctx context.Context, planID, batchID string, bundle models.RecommendationBundle, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ArchiveTimeout)
	defer cancel()
	key, err := s.archiver.Archive(ctx, archive.Record{PlanID: planID, BatchID: batchID, Bundle: bundle})
	if err != nil {
		log.Error("archive recommendations failed", zap.Error(err))
		return
	}
	if key != "" {
		log.Info("recommendations archived", zap.String("key", key))
	}
}

func (s *Service) HandleFailed(ctx context.Context, env events.Envelope) error {
	var p events.SimulationFailedPayload
	if err := env.Into(&p); err != nil {
		return err
	}
	if _, err := s.store.TransitionPlan(ctx, p.PlanID, models.PlanStatusFailed, p.Error); err != nil {
		return fmt.Errorf("mark plan failed: %w", err)
	}
	s.logger.Warn("simulation failed event applied", zap.String("planId", p.PlanID), zap.String("error", p.Error))
	return nil
}

// View is the response body of the recommendation query.
type View struct {
	PlanID             string                                            `json:"plan_id"`
	BatchID            string                                            `json:"batch_id"`
	RankedAlternatives []models.RankedRecommendation                     `json:"ranked_alternatives"`
	CheapestOption     *models.RankedRecommendation                      `json:"cheapest_option"`
	NearestOption      *models.RankedRecommendation                      `json:"nearest_option"`
	BalancedOption     *models.RankedRecommendation                      `json:"balanced_option"`
	ProviderOptions    map[models.Provider][]models.RankedRecommendation `json:"provider_options"`
}

// Latest returns the most recent bundle stored for the plan.
func (s *Service) Latest(ctx context.Context, planID string) (View, error) {
	batchID, bundle, err := s.store.LatestRecommendations(ctx, planID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return View{}, apperr.Dependency("Recommendation store unavailable", err)
	}
	if err != nil || len(bundle.RankedAlternatives) == 0 {
		return View{}, apperr.NotFound("No recommendations found for plan: " + planID)
	}
	return View{
		PlanID:             planID,
		BatchID:            batchID,
		RankedAlternatives: bundle.RankedAlternatives,
		CheapestOption:     bundle.CheapestOption,
		NearestOption:      bundle.NearestOption,
		BalancedOption:     bundle.BalancedOption,
		ProviderOptions:    bundle.ProviderOptions(),
	}, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
