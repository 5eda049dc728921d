package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

func seedPlan(t *testing.T, m *MemoryStore, id string) {
	t.Helper()
	require.NoError(t, m.CreatePlan(context.Background(), models.PlanRecord{
		ID:      id,
		Request: models.PlanRequest{ResultLimit: 3},
		Status:  models.PlanStatusQueued,
	}, []models.OutboxEvent{{EventType: "plan.created", Key: id, Envelope: json.RawMessage(`{}`)}}))
}

func TestMemoryTransitionGuardsTerminalStates(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedPlan(t, m, "p-1")

	applied, err := m.TransitionPlan(ctx, "p-1", models.PlanStatusRecommended, "")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = m.TransitionPlan(ctx, "p-1", models.PlanStatusFailed, "late")
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = m.TransitionPlan(ctx, "p-1", models.PlanStatusRecommended, "")
	require.NoError(t, err)
	assert.True(t, applied)

	plan, err := m.GetPlan(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusRecommended, plan.Status)
	assert.Empty(t, plan.Error)

	_, err = m.TransitionPlan(ctx, "missing", models.PlanStatusFailed, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryClaimPlanOnlyBeforeBatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedPlan(t, m, "p-1")
	seedPlan(t, m, "p-2")

	claimed, err := m.ClaimPlan(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, claimed)
	// Still coordinating with no batch, e.g. after an offers fetch failed.
	claimed, err = m.ClaimPlan(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	require.NoError(t, m.OpenBatch(ctx, OpenBatchInput{
		Batch:      models.SimulationBatch{BatchID: "b-1", PlanID: "p-1", ExpectedJobs: 1},
		PlanStatus: models.PlanStatusSimulating,
	}))
	claimed, err = m.ClaimPlan(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, claimed)
	plan, err := m.GetPlan(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusSimulating, plan.Status)

	_, err = m.TransitionPlan(ctx, "p-2", models.PlanStatusFailed, "boom")
	require.NoError(t, err)
	claimed, err = m.ClaimPlan(ctx, "p-2")
	require.NoError(t, err)
	assert.False(t, claimed)

	_, err = m.ClaimPlan(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBatchLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedPlan(t, m, "p-1")

	require.NoError(t, m.OpenBatch(ctx, OpenBatchInput{
		Batch:      models.SimulationBatch{BatchID: "b-1", PlanID: "p-1", ExpectedJobs: 2},
		PlanStatus: models.PlanStatusSimulating,
	}))
	claimed, err := m.ClaimPlan(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, claimed)

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ok := models.SimulationOutcome{BatchID: "b-1", PlanID: "p-1", Status: models.OutcomeResult, ObservedAt: at,
		Scenario: models.SimulationScenario{ScenarioID: "s-1", Provider: models.ProviderAWS, Region: "us-east-1"},
		Result:   &models.ProviderSimulationResult{ScenarioID: "s-1", TotalCost: 10}}
	bad := models.SimulationOutcome{BatchID: "b-1", PlanID: "p-1", Status: models.OutcomeFailed, Error: "quota", ObservedAt: at.Add(time.Minute),
		Scenario: models.SimulationScenario{ScenarioID: "s-2", Provider: models.ProviderAWS, Region: "us-east-1"}}

	inserted, err := m.RecordOutcome(ctx, ok)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = m.RecordOutcome(ctx, ok)
	require.NoError(t, err)
	assert.False(t, inserted)

	progress, err := m.BatchProgress(ctx, "b-1")
	require.NoError(t, err)
	assert.False(t, progress.Complete())

	_, err = m.RecordOutcome(ctx, bad)
	require.NoError(t, err)
	progress, err = m.BatchProgress(ctx, "b-1")
	require.NoError(t, err)
	assert.True(t, progress.Complete())

	claimed, err = m.CloseBatch(ctx, "b-1", 50, func(results []models.ProviderSimulationResult, availability []models.AvailabilityScore) (BatchClosure, error) {
		require.Len(t, results, 1)
		require.Len(t, availability, 1)
		assert.Equal(t, 0.5, availability[0].Score)
		assert.Equal(t, 2, availability[0].Samples)
		return BatchClosure{Events: []models.OutboxEvent{{EventType: "simulation.completed", Key: "p-1", Envelope: json.RawMessage(`{}`)}}}, nil
	})
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = m.CloseBatch(ctx, "b-1", 50, func([]models.ProviderSimulationResult, []models.AvailabilityScore) (BatchClosure, error) {
		t.Fatal("closure must not run twice")
		return BatchClosure{}, nil
	})
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = m.ClaimPlan(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, claimed)

	latest, err := m.LatestAvailability(ctx, "aws", "")
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "us-east-1", latest[0].Region)

	pending := m.PendingOutbox()
	require.Len(t, pending, 2)
	assert.Equal(t, "simulation.completed", pending[1].EventType)
}

func TestMemoryAvailabilityWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedPlan(t, m, "p-1")
	require.NoError(t, m.OpenBatch(ctx, OpenBatchInput{Batch: models.SimulationBatch{BatchID: "b-1", PlanID: "p-1", ExpectedJobs: 3}}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []models.OutcomeStatus{models.OutcomeFailed, models.OutcomeResult, models.OutcomeResult} {
		_, err := m.RecordOutcome(ctx, models.SimulationOutcome{
			BatchID: "b-1", PlanID: "p-1", Status: status, ObservedAt: base.Add(time.Duration(i) * time.Minute),
			Scenario: models.SimulationScenario{ScenarioID: string(rune('a' + i)), Provider: models.ProviderGCP, Region: "europe-west4"},
		})
		require.NoError(t, err)
	}

	_, err := m.CloseBatch(ctx, "b-1", 2, func(_ []models.ProviderSimulationResult, availability []models.AvailabilityScore) (BatchClosure, error) {
		require.Len(t, availability, 1)
		assert.Equal(t, 1.0, availability[0].Score)
		assert.Equal(t, 2, availability[0].Samples)
		assert.Equal(t, base.Add(2*time.Minute), availability[0].LastObservedAt)
		return BatchClosure{}, nil
	})
	require.NoError(t, err)
}

func TestMemoryRecommendationsLatestBatchWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedPlan(t, m, "p-1")

	first := models.RankedRecommendation{ProviderSimulationResult: models.ProviderSimulationResult{ScenarioID: "old"}, Rank: 1}
	second := models.RankedRecommendation{ProviderSimulationResult: models.ProviderSimulationResult{ScenarioID: "new", Provider: models.ProviderVast}, Rank: 1}
	applied, err := m.SaveRecommendations(ctx, "p-1", "b-1", models.RecommendationBundle{RankedAlternatives: []models.RankedRecommendation{first}})
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = m.SaveRecommendations(ctx, "p-1", "b-2", models.RecommendationBundle{
		RankedAlternatives: []models.RankedRecommendation{second},
		BalancedOption:     &second,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	batchID, bundle, err := m.LatestRecommendations(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "b-2", batchID)
	require.Len(t, bundle.RankedAlternatives, 1)
	assert.Equal(t, "new", bundle.RankedAlternatives[0].ScenarioID)
	require.NotNil(t, bundle.BalancedOption)

	_, _, err = m.LatestRecommendations(ctx, "p-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySaveRecommendationsOncePerBatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedPlan(t, m, "p-1")

	one := models.RankedRecommendation{ProviderSimulationResult: models.ProviderSimulationResult{ScenarioID: "s-1"}, Rank: 1}
	two := models.RankedRecommendation{ProviderSimulationResult: models.ProviderSimulationResult{ScenarioID: "s-2"}, Rank: 2}
	bundle := models.RecommendationBundle{RankedAlternatives: []models.RankedRecommendation{one, two}, CheapestOption: &one}
	for i := 0; i < 2; i++ {
		applied, err := m.SaveRecommendations(ctx, "p-1", "b-1", bundle)
		require.NoError(t, err)
		assert.True(t, applied)
	}

	_, got, err := m.LatestRecommendations(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, got.RankedAlternatives, 2)
	assert.Equal(t, 1, got.RankedAlternatives[0].Rank)
	assert.Equal(t, 2, got.RankedAlternatives[1].Rank)

	plan, err := m.GetPlan(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusRecommended, plan.Status)
}

func TestMemorySaveRecommendationsKeepsFailedPlan(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedPlan(t, m, "p-1")
	_, err := m.TransitionPlan(ctx, "p-1", models.PlanStatusFailed, "boom")
	require.NoError(t, err)

	applied, err := m.SaveRecommendations(ctx, "p-1", "b-1", models.RecommendationBundle{RankedAlternatives: []models.RankedRecommendation{{Rank: 1}}})
	require.NoError(t, err)
	assert.False(t, applied)

	_, _, err = m.LatestRecommendations(ctx, "p-1")
	assert.ErrorIs(t, err, ErrNotFound)
	plan, err := m.GetPlan(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusFailed, plan.Status)

	_, err = m.SaveRecommendations(ctx, "p-9", "b-1", models.EmptyBundle())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryOutboxClaimLeaseAndAttempts(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	seedPlan(t, m, "p-1")

	claimed, err := m.ClaimOutbox(ctx, 10, 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	again, err := m.ClaimOutbox(ctx, 10, 2, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "leased events are not claimed twice")

	require.NoError(t, m.MarkFailed(ctx, claimed[0].ID, "broker down"))
	retry, err := m.ClaimOutbox(ctx, 10, 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, 1, retry[0].Attempts)

	require.NoError(t, m.MarkFailed(ctx, claimed[0].ID, "broker down"))
	exhausted, err := m.ClaimOutbox(ctx, 10, 2, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, exhausted)

	assert.ErrorIs(t, m.MarkPublished(ctx, "nope"), ErrNotFound)
}

func TestMemoryPlanResultLimit(t *testing.T) {
	m := NewMemoryStore()
	seedPlan(t, m, "p-1")
	got, err := m.PlanResultLimit(context.Background(), "p-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	got, err = m.PlanResultLimit(context.Background(), "missing", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}
