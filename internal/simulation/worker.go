// Package simulation prices individual scenarios against the pricing oracle and
// reports each outcome back onto the bus.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/events"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

// ErrNoResult is reported when the oracle answers with an empty result list.
var ErrNoResult = errors.New("No deterministic simulation result returned for scenario")

type Oracle interface {
	Estimate(ctx context.Context, planID, batchID string, scenario models.SimulationScenario, request models.PlanRequest) ([]models.ProviderSimulationResult, error)
}

type Worker struct {
	oracle    Oracle
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func New(oracle Oracle, publisher events.Publisher, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		oracle:    oracle,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (w *Worker) Subscriptions() []events.Subscription {
	return []events.Subscription{{Queue: events.QueueSimulationRequested, Handler: w.HandleRequested}}
}

// HandleRequested prices one scenario. Oracle failures become simulation.result.failed
// events; only a malformed payload or a failed publish is returned as an error.
func (w *Worker) HandleRequested(ctx context.Context, env events.Envelope) error {
	var req events.SimulationRequestedPayload
	if err := env.Into(&req); err != nil {
		return err
	}
	log := w.logger.With(
		zap.String("planId", req.PlanID),
		zap.String("batchId", req.BatchID),
		zap.String("scenarioId", req.Scenario.ScenarioID),
	)

	result, err := w.simulate(ctx, req)
	if err != nil {
		log.Warn("scenario simulation failed", zap.Error(err))
		return w.publish(ctx, events.SimulationResultFailed, events.SimulationResultFailedPayload{
			PlanID:      req.PlanID,
			BatchID:     req.BatchID,
			Scenario:    req.Scenario,
			Error:       err.Error(),
			CompletedAt: w.now(),
		})
	}

	log.Info("scenario simulated", zap.Float64("totalCost", result.TotalCost))
	return w.publish(ctx, events.SimulationResult, events.SimulationResultPayload{
		PlanID:      req.PlanID,
		BatchID:     req.BatchID,
		Scenario:    req.Scenario,
		Result:      result,
		CompletedAt: w.now(),
	})
}

// simulate keeps the first oracle result; the oracle orders its answers.
func (w *Worker) simulate(ctx context.Context, req events.SimulationRequestedPayload) (models.ProviderSimulationResult, error) {
	results, err := w.oracle.Estimate(ctx, req.PlanID, req.BatchID, req.Scenario, req.Request)
	if err != nil {
		return models.ProviderSimulationResult{}, err
	}
	if len(results) == 0 {
		return models.ProviderSimulationResult{}, ErrNoResult
	}
	return results[0], nil
}

func (w *Worker) publish(ctx context.Context, t events.Type, payload interface{}) error {
	env, err := events.New(t, payload)
	if err != nil {
		return err
	}
	if err := w.publisher.Publish(ctx, env); err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}
	return nil
}
