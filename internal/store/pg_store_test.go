package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

func newMock(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db), mock
}

func TestCreatePlanWritesPlanAndOutboxInOneTx(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	plan := models.PlanRecord{
		ID:        "11111111-1111-1111-1111-111111111111",
		Request:   models.PlanRequest{DataLocation: "aws-us-east-1", GPUCount: 2, ParityMode: true, ResultLimit: 5},
		Status:    models.PlanStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	event := models.OutboxEvent{ID: "evt-1", EventType: "plan.created", Key: plan.ID, Envelope: json.RawMessage(`{"eventType":"plan.created"}`)}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO plan_requests`).
		WithArgs(plan.ID, sqlmock.AnyArg(), "queued", nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO event_outbox`).
		WithArgs("evt-1", "plan.created", plan.ID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.CreatePlan(context.Background(), plan, []models.OutboxEvent{event}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlanRollsBackWhenOutboxFails(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO plan_requests`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO event_outbox`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.CreatePlan(context.Background(), models.PlanRecord{ID: "p"}, []models.OutboxEvent{{EventType: "plan.created"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue plan.created event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPlan(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, request_json, status, error, created_at, updated_at`).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_json", "status", "error", "created_at", "updated_at"}).
			AddRow("p-1", []byte(`{"data_location":"gcp-us-central1","gpu_count":4,"result_limit":3}`), "failed", "boom", now, now))

	plan, err := s.GetPlan(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusFailed, plan.Status)
	assert.Equal(t, "boom", plan.Error)
	assert.Equal(t, 4, plan.Request.GPUCount)
	assert.Equal(t, 3, plan.Request.ResultLimit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPlanNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`FROM plan_requests`).WillReturnError(sql.ErrNoRows)
	_, err := s.GetPlan(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionPlan(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`UPDATE plan_requests`).
			WithArgs("p-1", "coordinating", nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		applied, err := s.TransitionPlan(context.Background(), "p-1", models.PlanStatusCoordinating, "")
		require.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("terminal plan is left alone", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`UPDATE plan_requests`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT status FROM plan_requests`).
			WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("recommended"))
		applied, err := s.TransitionPlan(context.Background(), "p-1", models.PlanStatusFailed, "late failure")
		require.NoError(t, err)
		assert.False(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing plan", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`UPDATE plan_requests`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT status FROM plan_requests`).WillReturnError(sql.ErrNoRows)
		_, err := s.TransitionPlan(context.Background(), "nope", models.PlanStatusFailed, "x")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestClaimPlan(t *testing.T) {
	t.Run("claimed", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`UPDATE plan_requests .* NOT EXISTS \(SELECT 1 FROM simulation_batches`).
			WithArgs("p-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		claimed, err := s.ClaimPlan(context.Background(), "p-1")
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already fanned out", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`UPDATE plan_requests`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM plan_requests`).WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		claimed, err := s.ClaimPlan(context.Background(), "p-1")
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing plan", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`UPDATE plan_requests`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		_, err := s.ClaimPlan(context.Background(), "p-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPlanResultLimit(t *testing.T) {
	cases := []struct {
		name   string
		stored int
		want   int
	}{
		{"stored value", 7, 7},
		{"capped", 50, 20},
		{"below one falls back", 0, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMock(t)
			mock.ExpectQuery(`SELECT COALESCE`).
				WithArgs("p-1", 5).
				WillReturnRows(sqlmock.NewRows([]string{"result_limit"}).AddRow(tc.stored))
			got, err := s.PlanResultLimit(context.Background(), "p-1", 5)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT COALESCE`).WillReturnError(sql.ErrNoRows)
	got, err := s.PlanResultLimit(context.Background(), "gone", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

func TestOpenBatch(t *testing.T) {
	s, mock := newMock(t)
	in := OpenBatchInput{
		Batch:      models.SimulationBatch{BatchID: "b-1", PlanID: "p-1", ExpectedJobs: 1},
		Offers:     []models.ProviderSkuOffer{{Provider: models.ProviderAWS, Region: "us-east-1", SKU: "p4d.24xlarge"}},
		PlanStatus: models.PlanStatusSimulating,
		Events:     []models.OutboxEvent{{ID: "e-1", EventType: "simulation.requested", Key: "p-1", Envelope: json.RawMessage(`{}`)}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO simulation_batches`).WithArgs("b-1", "p-1", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO pricing_snapshots`).
		WithArgs("b-1", "p-1", "aws", "us-east-1", "p4d.24xlarge", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE plan_requests`).WithArgs("p-1", "simulating", nil).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO event_outbox`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.OpenBatch(context.Background(), in))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcome(t *testing.T) {
	observed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	outcome := models.SimulationOutcome{
		BatchID:    "b-1",
		PlanID:     "p-1",
		Scenario:   models.SimulationScenario{ScenarioID: "s-1", Provider: models.ProviderGCP, Region: "us-central1", SKU: "a2"},
		Status:     models.OutcomeFailed,
		Error:      "quota",
		ObservedAt: observed,
	}

	t.Run("first delivery records history", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO simulation_results`).
			WithArgs("b-1", "p-1", "s-1", "gcp", "us-central1", "a2", "failed", nil, "quota", observed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO sku_availability_history`).
			WithArgs("b-1", "p-1", "s-1", "gcp", "us-central1", "a2", false, "quota", observed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		inserted, err := s.RecordOutcome(context.Background(), outcome)
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redelivery is a no-op", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO simulation_results`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		inserted, err := s.RecordOutcome(context.Background(), outcome)
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBatchProgress(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT b.expected_jobs`).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"expected_jobs", "received"}).AddRow(3, 3))
	p, err := s.BatchProgress(context.Background(), "b-1")
	require.NoError(t, err)
	assert.True(t, p.Complete())

	mock.ExpectQuery(`SELECT b.expected_jobs`).WillReturnError(sql.ErrNoRows)
	_, err = s.BatchProgress(context.Background(), "b-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseBatchLosingClaimIsNoop(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE simulation_batches`).WithArgs("b-1").WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	called := false
	claimed, err := s.CloseBatch(context.Background(), "b-1", 50, func([]models.ProviderSimulationResult, []models.AvailabilityScore) (BatchClosure, error) {
		called = true
		return BatchClosure{}, nil
	})
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseBatchStoresAvailabilityAndClosure(t *testing.T) {
	s, mock := newMock(t)
	observed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	result, _ := json.Marshal(models.ProviderSimulationResult{ScenarioID: "s-1", Provider: models.ProviderAWS, TotalCost: 100})

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE simulation_batches`).WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"plan_id"}).AddRow("p-1"))
	mock.ExpectQuery(`SELECT result_json`).WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"result_json"}).AddRow(result))
	mock.ExpectQuery(`WITH touched AS`).WithArgs("b-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"provider", "region", "score", "samples", "last_observed_at"}).
			AddRow("aws", "us-east-1", 0.75, 4, observed))
	mock.ExpectExec(`INSERT INTO availability_score_snapshots`).
		WithArgs("b-1", "aws", "us-east-1", 0.75, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO event_outbox`).
		WithArgs(sqlmock.AnyArg(), "simulation.completed", "p-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := s.CloseBatch(context.Background(), "b-1", 0, func(results []models.ProviderSimulationResult, availability []models.AvailabilityScore) (BatchClosure, error) {
		require.Len(t, results, 1)
		assert.Equal(t, 100.0, results[0].TotalCost)
		require.Len(t, availability, 1)
		assert.Equal(t, 0.75, availability[0].Score)
		assert.Equal(t, observed, availability[0].LastObservedAt)
		return BatchClosure{Events: []models.OutboxEvent{{EventType: "simulation.completed", Key: "p-1", Envelope: json.RawMessage(`{}`)}}}, nil
	})
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseBatchRollsBackOnDecideError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE simulation_batches`).WillReturnRows(sqlmock.NewRows([]string{"plan_id"}).AddRow("p-1"))
	mock.ExpectQuery(`SELECT result_json`).WillReturnRows(sqlmock.NewRows([]string{"result_json"}))
	mock.ExpectQuery(`WITH touched AS`).WillReturnRows(sqlmock.NewRows([]string{"provider", "region", "score", "samples", "last_observed_at"}))
	mock.ExpectRollback()

	_, err := s.CloseBatch(context.Background(), "b-1", 50, func([]models.ProviderSimulationResult, []models.AvailabilityScore) (BatchClosure, error) {
		return BatchClosure{}, errors.New("encode failed")
	})
	assert.EqualError(t, err, "encode failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectPlanLock(mock sqlmock.Sqlmock, status string) {
	mock.ExpectQuery(`SELECT status FROM plan_requests WHERE id=\$1 FOR UPDATE`).WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(status))
}

func expectStoredBatch(mock sqlmock.Sqlmock, stored bool) {
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("p-1", "b-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(stored))
}

func TestSaveRecommendations(t *testing.T) {
	s, mock := newMock(t)
	rec := models.RankedRecommendation{
		ProviderSimulationResult: models.ProviderSimulationResult{ScenarioID: "s-1", Provider: models.ProviderAzure, Region: "eastus", SKU: "nd96"},
		Rank:                     1,
	}
	bundle := models.RecommendationBundle{RankedAlternatives: []models.RankedRecommendation{rec}, CheapestOption: &rec}

	mock.ExpectBegin()
	expectPlanLock(mock, "simulating")
	expectStoredBatch(mock, false)
	mock.ExpectExec(`INSERT INTO recommendations`).
		WithArgs("b-1", "p-1", int64(1), "ranked", "azure", "eastus", "nd96", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO recommendations`).
		WithArgs("b-1", "p-1", nil, "cheapest", "azure", "eastus", "nd96", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(`UPDATE plan_requests`).WithArgs("p-1", "recommended", nil).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := s.SaveRecommendations(context.Background(), "p-1", "b-1", bundle)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRecommendationsSkipsStoredBatch(t *testing.T) {
	s, mock := newMock(t)
	rec := models.RankedRecommendation{Rank: 1}
	mock.ExpectBegin()
	expectPlanLock(mock, "recommended")
	expectStoredBatch(mock, true)
	mock.ExpectExec(`UPDATE plan_requests`).WithArgs("p-1", "recommended", nil).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := s.SaveRecommendations(context.Background(), "p-1", "b-1", models.RecommendationBundle{RankedAlternatives: []models.RankedRecommendation{rec}})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRecommendationsLeavesFailedPlanAlone(t *testing.T) {
	s, mock := newMock(t)
	rec := models.RankedRecommendation{Rank: 1}
	mock.ExpectBegin()
	expectPlanLock(mock, "failed")
	mock.ExpectCommit()

	applied, err := s.SaveRecommendations(context.Background(), "p-1", "b-1", models.RecommendationBundle{RankedAlternatives: []models.RankedRecommendation{rec}})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRecommendationsUnknownPlan(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM plan_requests`).WithArgs("p-1").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.SaveRecommendations(context.Background(), "p-1", "b-1", models.EmptyBundle())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRecommendationsRollsBack(t *testing.T) {
	s, mock := newMock(t)
	rec := models.RankedRecommendation{Rank: 1}
	mock.ExpectBegin()
	expectPlanLock(mock, "simulating")
	expectStoredBatch(mock, false)
	mock.ExpectExec(`INSERT INTO recommendations`).WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	_, err := s.SaveRecommendations(context.Background(), "p-1", "b-1", models.RecommendationBundle{RankedAlternatives: []models.RankedRecommendation{rec}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRecommendationsRollsBackWhenTransitionFails(t *testing.T) {
	s, mock := newMock(t)
	rec := models.RankedRecommendation{Rank: 1}
	mock.ExpectBegin()
	expectPlanLock(mock, "simulating")
	expectStoredBatch(mock, false)
	mock.ExpectExec(`INSERT INTO recommendations`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE plan_requests`).WillReturnError(errors.New("serialization failure"))
	mock.ExpectRollback()

	applied, err := s.SaveRecommendations(context.Background(), "p-1", "b-1", models.RecommendationBundle{RankedAlternatives: []models.RankedRecommendation{rec}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialization failure")
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRecommendations(t *testing.T) {
	s, mock := newMock(t)
	ranked, _ := json.Marshal(models.RankedRecommendation{ProviderSimulationResult: models.ProviderSimulationResult{ScenarioID: "s-1", Provider: models.ProviderAWS}, Rank: 1})
	single, _ := json.Marshal(models.RankedRecommendation{ProviderSimulationResult: models.ProviderSimulationResult{ScenarioID: "s-1", Provider: models.ProviderAWS}, Rank: 1})

	mock.ExpectQuery(`SELECT batch_id`).WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"batch_id"}).AddRow("b-2"))
	mock.ExpectQuery(`SELECT recommendation_type, rank, result_json`).WithArgs("p-1", "b-2").
		WillReturnRows(sqlmock.NewRows([]string{"recommendation_type", "rank", "result_json"}).
			AddRow("ranked", 1, ranked).
			AddRow("nearest", nil, single))

	batchID, bundle, err := s.LatestRecommendations(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "b-2", batchID)
	require.Len(t, bundle.RankedAlternatives, 1)
	require.NotNil(t, bundle.NearestOption)
	assert.Equal(t, 1, bundle.NearestOption.Rank)
	assert.Nil(t, bundle.CheapestOption)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRecommendationsNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT batch_id`).WillReturnError(sql.ErrNoRows)
	_, _, err := s.LatestRecommendations(context.Background(), "p-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimOutboxOrdersByCreation(t *testing.T) {
	s, mock := newMock(t)
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Second)
	mock.ExpectQuery(`UPDATE event_outbox`).
		WithArgs(10, 5, int64(30000)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "event_key", "envelope", "attempts", "last_error", "created_at"}).
			AddRow("e-2", "simulation.requested", "p-1", []byte(`{"n":2}`), 1, "timeout", newer).
			AddRow("e-1", "plan.created", "p-1", []byte(`{"n":1}`), 0, nil, older))

	events, err := s.ClaimOutbox(context.Background(), 10, 5, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e-1", events[0].ID)
	assert.Equal(t, "timeout", events[1].LastError)
	assert.JSONEq(t, `{"n":1}`, string(events[0].Envelope))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkOutbox(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`UPDATE event_outbox SET published_at`).WithArgs("e-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET attempts = attempts \+ 1`).WithArgs("e-2", "broker down").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE event_outbox SET published_at`).WithArgs("e-3").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.MarkPublished(context.Background(), "e-1"))
	require.NoError(t, s.MarkFailed(context.Background(), "e-2", "broker down"))
	assert.ErrorIs(t, s.MarkPublished(context.Background(), "e-3"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestAvailabilityFilters(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`DISTINCT ON \(provider, region\)`).
		WithArgs("aws", "").
		WillReturnRows(sqlmock.NewRows([]string{"provider", "region", "score", "samples", "calculated_at"}).
			AddRow("aws", "us-east-1", 1.0, 2, at))

	scores, err := s.LatestAvailability(context.Background(), "aws", "")
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, models.ProviderAWS, scores[0].Provider)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS plan_requests`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
