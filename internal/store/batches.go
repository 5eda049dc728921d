package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

// ClaimPlan moves a plan that has no simulation batch yet to coordinating. It reports
// false once the plan has a batch or has moved past coordinating.
func (s *PGStore) ClaimPlan(ctx context.Context, planID string) (bool, error) {
	const query = `
		UPDATE plan_requests
		SET status='coordinating',
		    error=NULL,
		    updated_at=NOW()
		WHERE id=$1
		  AND status IN ('queued','coordinating')
		  AND NOT EXISTS (SELECT 1 FROM simulation_batches WHERE plan_id=$1)
	`
	res, err := s.db.ExecContext(ctx, query, planID)
	if err != nil {
		return false, fmt.Errorf("claim plan: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return true, nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM plan_requests WHERE id=$1)`, planID).Scan(&exists); err != nil {
		return false, fmt.Errorf("read plan: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *PGStore) OpenBatch(ctx context.Context, in OpenBatchInput) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		const batchQuery = `
			INSERT INTO simulation_batches (batch_id, plan_id, expected_jobs, created_at)
			VALUES ($1,$2,$3,NOW())
		`
		if _, err := tx.ExecContext(ctx, batchQuery, in.Batch.BatchID, in.Batch.PlanID, in.Batch.ExpectedJobs); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		const snapshotQuery = `
			INSERT INTO pricing_snapshots (batch_id, plan_id, provider, region, sku, offer_json, created_at)
			VALUES ($1,$2,$3,$4,$5,$6::jsonb,NOW())
		`
		for _, offer := range in.Offers {
			raw, err := marshalJSON(offer)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, snapshotQuery, in.Batch.BatchID, in.Batch.PlanID, offer.Provider, offer.Region, offer.SKU, raw); err != nil {
				return fmt.Errorf("insert pricing snapshot: %w", err)
			}
		}

		if in.PlanStatus != "" {
			if _, err := transitionPlan(ctx, tx, in.Batch.PlanID, in.PlanStatus, in.PlanError); err != nil {
				return err
			}
		}
		return insertOutbox(ctx, tx, in.Events)
	})
}

func (s *PGStore) RecordOutcome(ctx context.Context, o models.SimulationOutcome) (bool, error) {
	var (
		result interface{}
		errMsg sql.NullString
	)
	if o.Result != nil {
		raw, err := marshalJSON(o.Result)
		if err != nil {
			return false, err
		}
		result = raw
	}
	if !o.Available() {
		errMsg = nullString(o.Error)
	}

	inserted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		const resultQuery = `
			INSERT INTO simulation_results (batch_id, plan_id, scenario_id, provider, region, sku, status, result_json, error, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9,$10)
			ON CONFLICT (batch_id, scenario_id) DO NOTHING
		`
		res, err := tx.ExecContext(ctx, resultQuery, o.BatchID, o.PlanID, o.Scenario.ScenarioID, o.Scenario.Provider,
			o.Scenario.Region, o.Scenario.SKU, o.Status, result, errMsg, o.ObservedAt)
		if err != nil {
			return fmt.Errorf("insert simulation outcome: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil
		}
		inserted = true

		const historyQuery = `
			INSERT INTO sku_availability_history (batch_id, plan_id, scenario_id, provider, region, sku, available, reason, observed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (batch_id, scenario_id) DO NOTHING
		`
		if _, err := tx.ExecContext(ctx, historyQuery, o.BatchID, o.PlanID, o.Scenario.ScenarioID, o.Scenario.Provider,
			o.Scenario.Region, o.Scenario.SKU, o.Available(), errMsg, o.ObservedAt); err != nil {
			return fmt.Errorf("insert availability observation: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *PGStore) BatchProgress(ctx context.Context, batchID string) (BatchProgress, error) {
	const query = `
		SELECT b.expected_jobs,
		       (SELECT COUNT(*) FROM simulation_results r WHERE r.batch_id = b.batch_id)::INT
		FROM simulation_batches b
		WHERE b.batch_id=$1
	`
	var p BatchProgress
	if err := s.db.QueryRowContext(ctx, query, batchID).Scan(&p.Expected, &p.Received); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BatchProgress{}, ErrNotFound
		}
		return BatchProgress{}, fmt.Errorf("get batch progress: %w", err)
	}
	return p, nil
}

const availabilityQuery = `
	WITH touched AS (
		SELECT DISTINCT provider, region
		FROM sku_availability_history
		WHERE batch_id=$1
	), ranked AS (
		SELECT h.provider, h.region, h.available, h.observed_at,
		       ROW_NUMBER() OVER (PARTITION BY h.provider, h.region ORDER BY h.observed_at DESC, h.id DESC) AS rn
		FROM sku_availability_history h
		JOIN touched t ON h.provider = t.provider AND h.region = t.region
	)
	SELECT provider, region,
	       AVG(CASE WHEN available THEN 1.0 ELSE 0.0 END)::FLOAT AS score,
	       COUNT(*)::INT AS samples,
	       MAX(observed_at) AS last_observed_at
	FROM ranked
	WHERE rn <= $2
	GROUP BY provider, region
	ORDER BY provider, region
`

func (s *PGStore) CloseBatch(ctx context.Context, batchID string, window int, decide CloseFunc) (bool, error) {
	if window <= 0 {
		window = DefaultAvailabilityWindow
	}
	claimed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var planID string
		err := tx.QueryRowContext(ctx, `
			UPDATE simulation_batches
			SET completion_published = TRUE,
			    completed_at = NOW()
			WHERE batch_id=$1
			  AND completion_published = FALSE
			RETURNING plan_id
		`, batchID).Scan(&planID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim batch completion: %w", err)
		}
		claimed = true

		results, err := successfulResults(ctx, tx, batchID)
		if err != nil {
			return err
		}
		availability, err := scanAvailability(ctx, tx, availabilityQuery, batchID, window)
		if err != nil {
			return err
		}
		const snapshotQuery = `
			INSERT INTO availability_score_snapshots (batch_id, provider, region, score, samples, calculated_at)
			VALUES ($1,$2,$3,$4,$5,NOW())
		`
		for _, a := range availability {
			if _, err := tx.ExecContext(ctx, snapshotQuery, batchID, a.Provider, a.Region, a.Score, a.Samples); err != nil {
				return fmt.Errorf("insert availability snapshot: %w", err)
			}
		}

		closure, err := decide(results, availability)
		if err != nil {
			return err
		}
		if closure.PlanStatus != "" {
			if _, err := transitionPlan(ctx, tx, planID, closure.PlanStatus, closure.PlanError); err != nil {
				return err
			}
		}
		return insertOutbox(ctx, tx, closure.Events)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func successfulResults(ctx context.Context, q queryer, batchID string) ([]models.ProviderSimulationResult, error) {
	const query = `
		SELECT result_json
		FROM simulation_results
		WHERE batch_id=$1
		  AND status='result'
		ORDER BY created_at ASC
	`
	rows, err := q.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list successful results: %w", err)
	}
	defer rows.Close()

	out := []models.ProviderSimulationResult{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var r models.ProviderSimulationResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

func scanAvailability(ctx context.Context, q queryer, query string, args ...interface{}) ([]models.AvailabilityScore, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	out := []models.AvailabilityScore{}
	for rows.Next() {
		var (
			a        models.AvailabilityScore
			observed time.Time
		)
		if err := rows.Scan(&a.Provider, &a.Region, &a.Score, &a.Samples, &observed); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		a.LastObservedAt = observed.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability: %w", err)
	}
	return out, nil
}

func (s *PGStore) LatestAvailability(ctx context.Context, provider, region string) ([]models.AvailabilityScore, error) {
	const query = `
		WITH latest AS (
			SELECT DISTINCT ON (provider, region) provider, region, score, samples, calculated_at
			FROM availability_score_snapshots
			WHERE ($1 = '' OR provider = $1)
			  AND ($2 = '' OR region = $2)
			ORDER BY provider, region, calculated_at DESC, id DESC
		)
		SELECT provider, region, score, samples, calculated_at
		FROM latest
		ORDER BY provider, region
	`
	return scanAvailability(ctx, s.db, query, provider, region)
}
