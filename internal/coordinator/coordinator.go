// Package coordinator fans a plan out into simulation scenarios and closes the batch
// once every scenario has reported.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/events"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/outbox"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/store"
)

const (
	noScenariosError   = "No GPU scenarios available after deterministic filtering"
	allScenariosFailed = "All simulation scenarios failed"
)

type OfferSource interface {
	Offers(ctx context.Context) ([]models.ProviderSkuOffer, error)
}

type Config struct {
	// AvailabilityWindow is how many recent observations feed each availability score.
	AvailabilityWindow int
}

type Coordinator struct {
	store  store.BatchStore
	offers OfferSource
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func New(st store.BatchStore, offers OfferSource, cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.AvailabilityWindow <= 0 {
		cfg.AvailabilityWindow = store.DefaultAvailabilityWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:  st,
		offers: offers,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

func (c *Coordinator) Subscriptions() []events.Subscription {
	return []events.Subscription{
		{Queue: events.QueuePlanCreated, Handler: c.HandlePlanCreated},
		{Queue: events.QueueSimulationResult, Handler: c.HandleSimulationResult},
		{Queue: events.QueueSimulationResultFailed, Handler: c.HandleSimulationResultFailed},
	}
}

// HandlePlanCreated opens the plan's only simulation batch. Redelivery after the batch
// exists, even a closed one, is ignored.
func (c *Coordinator) HandlePlanCreated(ctx context.Context, env events.Envelope) error {
	var p events.PlanCreatedPayload
	if err := env.Into(&p); err != nil {
		return err
	}
	log := c.logger.With(zap.String("planId", p.PlanID))

	claimed, err := c.store.ClaimPlan(ctx, p.PlanID)
	if err != nil {
		return fmt.Errorf("claim plan: %w", err)
	}
	if !claimed {
		log.Warn("ignoring plan.created for plan that already has a batch")
		return nil
	}

	offers, err := c.offers.Offers(ctx)
	if err != nil {
		return fmt.Errorf("fetch offers: %w", err)
	}
	offersByProvider := countByProvider(offers, func(o models.ProviderSkuOffer) models.Provider { return o.Provider })
	log.Info("offers fetched for simulation batch", zap.Int("totalOffers", len(offers)), zap.Any("loadedByProvider", offersByProvider))
	for _, provider := range models.SupportedProviders {
		if offersByProvider[provider] == 0 {
			log.Warn("no pricing offers found for provider before simulation", zap.String("provider", string(provider)))
		}
	}

	batchID := c.newID()
	scenarios := c.buildScenarios(offers)
	in := store.OpenBatchInput{
		Batch: models.SimulationBatch{
			BatchID:      batchID,
			PlanID:       p.PlanID,
			ExpectedJobs: len(scenarios),
		},
		Offers: offers,
	}

	if len(scenarios) == 0 {
		ev, err := outbox.Build(events.SimulationFailed, events.SimulationFailedPayload{PlanID: p.PlanID, BatchID: batchID, Error: noScenariosError})
		if err != nil {
			return err
		}
		in.PlanStatus = models.PlanStatusFailed
		in.PlanError = noScenariosError
		in.Events = []models.OutboxEvent{ev}
		if err := c.store.OpenBatch(ctx, in); err != nil {
			return fmt.Errorf("open batch: %w", err)
		}
		log.Warn("plan failed without scenarios", zap.String("batchId", batchID))
		return nil
	}

	in.PlanStatus = models.PlanStatusSimulating
	for _, s := range scenarios {
		ev, err := outbox.Build(events.SimulationRequested, events.SimulationRequestedPayload{
			PlanID:   p.PlanID,
			BatchID:  batchID,
			Request:  p.Request,
			Scenario: s,
		})
		if err != nil {
			return err
		}
		in.Events = append(in.Events, ev)
	}
	if err := c.store.OpenBatch(ctx, in); err != nil {
		return fmt.Errorf("open batch: %w", err)
	}

	scenariosByProvider := countByProvider(scenarios, func(s models.SimulationScenario) models.Provider { return s.Provider })
	log.Info("published simulation scenarios",
		zap.String("batchId", batchID),
		zap.Int("scenarios", len(scenarios)),
		zap.Any("scenariosByProvider", scenariosByProvider),
	)
	for _, provider := range models.SupportedProviders {
		if scenariosByProvider[provider] == 0 {
			log.Warn("provider has zero simulation scenarios in this batch", zap.String("batchId", batchID), zap.String("provider", string(provider)))
		}
	}
	return nil
}

// buildScenarios keeps the first offer per provider/region/sku.
func (c *Coordinator) buildScenarios(offers []models.ProviderSkuOffer) []models.SimulationScenario {
	seen := map[string]bool{}
	var out []models.SimulationScenario
	for _, o := range offers {
		s := models.SimulationScenario{Provider: o.Provider, Region: o.Region, SKU: o.SKU}
		if seen[s.Key()] {
			continue
		}
		seen[s.Key()] = true
		s.ScenarioID = c.newID()
		out = append(out, s)
	}
	return out
}

func (c *Coordinator) HandleSimulationResult(ctx context.Context, env events.Envelope) error {
	var p events.SimulationResultPayload
	if err := env.Into(&p); err != nil {
		return err
	}
	result := p.Result
	return c.record(ctx, models.SimulationOutcome{
		BatchID:    p.BatchID,
		PlanID:     p.PlanID,
		Scenario:   p.Scenario,
		Status:     models.OutcomeResult,
		Result:     &result,
		ObservedAt: c.observedAt(p.CompletedAt),
	})
}

func (c *Coordinator) HandleSimulationResultFailed(ctx context.Context, env events.Envelope) error {
	var p events.SimulationResultFailedPayload
	if err := env.Into(&p); err != nil {
		return err
	}
	return c.record(ctx, models.SimulationOutcome{
		BatchID:    p.BatchID,
		PlanID:     p.PlanID,
		Scenario:   p.Scenario,
		Status:     models.OutcomeFailed,
		Error:      p.Error,
		ObservedAt: c.observedAt(p.CompletedAt),
	})
}

func (c *Coordinator) observedAt(t time.Time) time.Time {
	if t.IsZero() {
		return c.now()
	}
	return t
}

func (c *Coordinator) record(ctx context.Context, outcome models.SimulationOutcome) error {
	log := c.logger.With(zap.String("planId", outcome.PlanID), zap.String("batchId", outcome.BatchID))
	inserted, err := c.store.RecordOutcome(ctx, outcome)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if !inserted {
		log.Info("duplicate scenario outcome", zap.String("scenarioId", outcome.Scenario.ScenarioID))
	}

	progress, err := c.store.BatchProgress(ctx, outcome.BatchID)
	if err != nil {
		return fmt.Errorf("batch progress: %w", err)
	}
	if !progress.Complete() {
		return nil
	}
	return c.closeBatch(ctx, outcome.PlanID, outcome.BatchID, log)
}

func (c *Coordinator) closeBatch(ctx context.Context, planID, batchID string, log *zap.Logger) error {
	var successful int
	closed, err := c.store.CloseBatch(ctx, batchID, c.cfg.AvailabilityWindow, func(results []models.ProviderSimulationResult, availability []models.AvailabilityScore) (store.BatchClosure, error) {
		successful = len(results)
		if len(results) == 0 {
			ev, err := outbox.Build(events.SimulationFailed, events.SimulationFailedPayload{PlanID: planID, BatchID: batchID, Error: allScenariosFailed})
			if err != nil {
				return store.BatchClosure{}, err
			}
			return store.BatchClosure{
				Events:     []models.OutboxEvent{ev},
				PlanStatus: models.PlanStatusFailed,
				PlanError:  allScenariosFailed,
			}, nil
		}
		ev, err := outbox.Build(events.SimulationCompleted, events.SimulationCompletedPayload{
			PlanID:       planID,
			BatchID:      batchID,
			Results:      results,
			Availability: availability,
		})
		if err != nil {
			return store.BatchClosure{}, err
		}
		return store.BatchClosure{Events: []models.OutboxEvent{ev}}, nil
	})
	if err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	if !closed {
		return nil
	}
	if successful == 0 {
		log.Warn("batch closed with no successful scenarios")
	} else {
		log.Info("batch completed", zap.Int("successful", successful))
	}
	return nil
}

func countByProvider[T any](items []T, provider func(T) models.Provider) map[models.Provider]int {
	out := map[models.Provider]int{}
	for _, p := range models.SupportedProviders {
		out[p] = 0
	}
	for _, item := range items {
		out[provider(item)]++
	}
	return out
}
