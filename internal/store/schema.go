package store

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS plan_requests (
  id uuid PRIMARY KEY,
  request_json jsonb NOT NULL,
  status text NOT NULL,
  error text,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS simulation_batches (
  batch_id uuid PRIMARY KEY,
  plan_id uuid NOT NULL REFERENCES plan_requests(id),
  expected_jobs integer NOT NULL,
  completion_published boolean NOT NULL DEFAULT FALSE,
  created_at timestamptz NOT NULL DEFAULT now(),
  completed_at timestamptz
);
CREATE INDEX IF NOT EXISTS idx_simulation_batches_plan ON simulation_batches (plan_id, created_at DESC);

CREATE TABLE IF NOT EXISTS pricing_snapshots (
  id bigserial PRIMARY KEY,
  batch_id uuid NOT NULL REFERENCES simulation_batches(batch_id),
  plan_id uuid NOT NULL,
  provider text NOT NULL,
  region text NOT NULL,
  sku text NOT NULL,
  offer_json jsonb NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS simulation_results (
  batch_id uuid NOT NULL REFERENCES simulation_batches(batch_id),
  plan_id uuid NOT NULL,
  scenario_id uuid NOT NULL,
  provider text NOT NULL,
  region text NOT NULL,
  sku text NOT NULL,
  status text NOT NULL,
  result_json jsonb,
  error text,
  created_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (batch_id, scenario_id)
);

CREATE TABLE IF NOT EXISTS sku_availability_history (
  id bigserial PRIMARY KEY,
  batch_id uuid NOT NULL,
  plan_id uuid NOT NULL,
  scenario_id uuid NOT NULL,
  provider text NOT NULL,
  region text NOT NULL,
  sku text NOT NULL,
  available boolean NOT NULL,
  reason text,
  observed_at timestamptz NOT NULL,
  UNIQUE (batch_id, scenario_id)
);
CREATE INDEX IF NOT EXISTS idx_sku_availability_history_pr ON sku_availability_history (provider, region, observed_at DESC);

CREATE TABLE IF NOT EXISTS availability_score_snapshots (
  id bigserial PRIMARY KEY,
  batch_id uuid NOT NULL,
  provider text NOT NULL,
  region text NOT NULL,
  score double precision NOT NULL,
  samples integer NOT NULL,
  calculated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS recommendations (
  id bigserial PRIMARY KEY,
  batch_id uuid NOT NULL,
  plan_id uuid NOT NULL,
  rank integer,
  recommendation_type text NOT NULL,
  provider text NOT NULL,
  region text NOT NULL,
  sku text NOT NULL,
  result_json jsonb NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_recommendations_plan ON recommendations (plan_id, created_at DESC);

CREATE TABLE IF NOT EXISTS event_outbox (
  id uuid PRIMARY KEY,
  event_type text NOT NULL,
  event_key text NOT NULL,
  envelope jsonb NOT NULL,
  attempts integer NOT NULL DEFAULT 0,
  last_error text,
  claimed_until timestamptz,
  created_at timestamptz NOT NULL DEFAULT now(),
  published_at timestamptz
);
CREATE INDEX IF NOT EXISTS idx_event_outbox_pending ON event_outbox (created_at) WHERE published_at IS NULL;
`

// EnsureSchema creates the pipeline tables when they do not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
