package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

func (s *PGStore) CreatePlan(ctx context.Context, plan models.PlanRecord, events []models.OutboxEvent) error {
	request, err := marshalJSON(plan.Request)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		const query = `
			INSERT INTO plan_requests (id, request_json, status, error, created_at, updated_at)
			VALUES ($1,$2::jsonb,$3,$4,$5,$6)
		`
		if _, err := tx.ExecContext(ctx, query, plan.ID, request, plan.Status, nullString(plan.Error), plan.CreatedAt, plan.UpdatedAt); err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}
		return insertOutbox(ctx, tx, events)
	})
}

func (s *PGStore) GetPlan(ctx context.Context, planID string) (models.PlanRecord, error) {
	const query = `
		SELECT id, request_json, status, error, created_at, updated_at
		FROM plan_requests
		WHERE id=$1
	`
	var (
		plan    models.PlanRecord
		request []byte
		errMsg  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, planID).Scan(&plan.ID, &request, &plan.Status, &errMsg, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PlanRecord{}, ErrNotFound
		}
		return models.PlanRecord{}, fmt.Errorf("get plan: %w", err)
	}
	if err := json.Unmarshal(request, &plan.Request); err != nil {
		return models.PlanRecord{}, fmt.Errorf("decode plan request: %w", err)
	}
	plan.Error = errMsg.String
	return plan, nil
}

func (s *PGStore) TransitionPlan(ctx context.Context, planID string, status models.PlanStatus, errMsg string) (bool, error) {
	return transitionPlan(ctx, s.db, planID, status, errMsg)
}

func transitionPlan(ctx context.Context, q queryer, planID string, status models.PlanStatus, errMsg string) (bool, error) {
	const query = `
		UPDATE plan_requests
		SET status=$2,
		    error=$3,
		    updated_at=NOW()
		WHERE id=$1
		  AND (status NOT IN ('recommended','failed') OR status=$2)
	`
	res, err := q.ExecContext(ctx, query, planID, status, nullString(errMsg))
	if err != nil {
		return false, fmt.Errorf("transition plan to %s: %w", status, err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		return true, nil
	}
	var current string
	err = q.QueryRowContext(ctx, `SELECT status FROM plan_requests WHERE id=$1`, planID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("read plan status: %w", err)
	}
	return false, nil
}

func (s *PGStore) PlanResultLimit(ctx context.Context, planID string, fallback int) (int, error) {
	const query = `
		SELECT COALESCE((request_json->>'result_limit')::INT, $2) AS result_limit
		FROM plan_requests
		WHERE id=$1
	`
	var limit int
	if err := s.db.QueryRowContext(ctx, query, planID, fallback).Scan(&limit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fallback, nil
		}
		return 0, fmt.Errorf("get plan result limit: %w", err)
	}
	return models.ClampResultLimit(limit, fallback), nil
}
