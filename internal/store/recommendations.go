package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

// SaveRecommendations stores the bundle of batchID and marks the plan recommended in one
// transaction. The plan row is locked first so concurrent deliveries of the same batch
// serialize, and a batch that is already stored is not written twice. A plan that already
// failed keeps its status and nothing is written; the result reports whether the plan is
// recommended afterwards.
func (s *PGStore) SaveRecommendations(ctx context.Context, planID, batchID string, bundle models.RecommendationBundle) (bool, error) {
	var applied bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM plan_requests WHERE id=$1 FOR UPDATE`, planID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock plan: %w", err)
		}
		if current := models.PlanStatus(status); current.Terminal() && current != models.PlanStatusRecommended {
			return nil
		}

		var stored bool
		const existsQuery = `SELECT EXISTS (SELECT 1 FROM recommendations WHERE plan_id=$1 AND batch_id=$2)`
		if err := tx.QueryRowContext(ctx, existsQuery, planID, batchID).Scan(&stored); err != nil {
			return fmt.Errorf("check stored batch: %w", err)
		}
		if !stored {
			if err := insertRecommendations(ctx, tx, planID, batchID, bundle); err != nil {
				return err
			}
		}

		applied, err = transitionPlan(ctx, tx, planID, models.PlanStatusRecommended, "")
		return err
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func insertRecommendations(ctx context.Context, tx *sql.Tx, planID, batchID string, bundle models.RecommendationBundle) error {
	const query = `
		INSERT INTO recommendations (batch_id, plan_id, rank, recommendation_type, provider, region, sku, result_json, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,NOW())
	`
	insert := func(t models.RecommendationType, rank sql.NullInt64, rec models.RankedRecommendation) error {
		raw, err := marshalJSON(rec)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, batchID, planID, rank, t, rec.Provider, rec.Region, rec.SKU, raw); err != nil {
			return fmt.Errorf("insert %s recommendation: %w", t, err)
		}
		return nil
	}

	for _, rec := range bundle.RankedAlternatives {
		if err := insert(models.RecommendationRanked, sql.NullInt64{Int64: int64(rec.Rank), Valid: true}, rec); err != nil {
			return err
		}
	}
	for _, single := range bundle.Singles() {
		if err := insert(single.Type, sql.NullInt64{}, single.Recommendation); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) LatestRecommendations(ctx context.Context, planID string) (string, models.RecommendationBundle, error) {
	const batchQuery = `
		SELECT batch_id
		FROM recommendations
		WHERE plan_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var batchID string
	if err := s.db.QueryRowContext(ctx, batchQuery, planID).Scan(&batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", models.RecommendationBundle{}, ErrNotFound
		}
		return "", models.RecommendationBundle{}, fmt.Errorf("get latest recommendation batch: %w", err)
	}

	const rowsQuery = `
		SELECT recommendation_type, rank, result_json
		FROM recommendations
		WHERE plan_id=$1 AND batch_id=$2
		ORDER BY COALESCE(rank, 999999) ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, rowsQuery, planID, batchID)
	if err != nil {
		return "", models.RecommendationBundle{}, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	bundle := models.EmptyBundle()
	for rows.Next() {
		var (
			t    models.RecommendationType
			rank sql.NullInt64
			raw  []byte
		)
		if err := rows.Scan(&t, &rank, &raw); err != nil {
			return "", models.RecommendationBundle{}, fmt.Errorf("scan recommendation: %w", err)
		}
		var rec models.RankedRecommendation
		if err := json.Unmarshal(raw, &rec); err != nil {
			return "", models.RecommendationBundle{}, fmt.Errorf("decode recommendation: %w", err)
		}
		if rank.Valid {
			rec.Rank = int(rank.Int64)
		}
		bundle.Set(t, rec)
	}
	if err := rows.Err(); err != nil {
		return "", models.RecommendationBundle{}, fmt.Errorf("iterate recommendations: %w", err)
	}
	return batchID, bundle, nil
}
