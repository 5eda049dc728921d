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

var ErrNotFound = errors.New("not found")

// DefaultAvailabilityWindow is how many recent observations feed an availability score.
const DefaultAvailabilityWindow = 50

type PlanStore interface {
	// CreatePlan inserts the plan and its outgoing events atomically.
	CreatePlan(ctx context.Context, plan models.PlanRecord, events []models.OutboxEvent) error
	GetPlan(ctx context.Context, planID string) (models.PlanRecord, error)
	// TransitionPlan moves the plan to status unless it already sits in a different
	// terminal status. It reports whether the transition was applied.
	TransitionPlan(ctx context.Context, planID string, status models.PlanStatus, errMsg string) (bool, error)
	PlanResultLimit(ctx context.Context, planID string, fallback int) (int, error)
	Ping(ctx context.Context) error
}

type BatchStore interface {
	// ClaimPlan marks a plan coordinating only while it has no batch and has not moved
	// further. A false result means the plan was already fanned out.
	ClaimPlan(ctx context.Context, planID string) (bool, error)
	OpenBatch(ctx context.Context, in OpenBatchInput) error
	// RecordOutcome stores a scenario outcome once; redeliveries report false.
	RecordOutcome(ctx context.Context, outcome models.SimulationOutcome) (bool, error)
	BatchProgress(ctx context.Context, batchID string) (BatchProgress, error)
	// CloseBatch claims completion of the batch and, in the same transaction, stores the
	// availability snapshot and whatever the closure decides. Losing the claim returns false.
	CloseBatch(ctx context.Context, batchID string, window int, decide CloseFunc) (bool, error)
	LatestAvailability(ctx context.Context, provider, region string) ([]models.AvailabilityScore, error)
	Ping(ctx context.Context) error
}

type RecommendationStore interface {
	// SaveRecommendations stores the batch's bundle once and moves the plan to recommended
	// atomically. It reports false when the plan already failed; nothing is stored then.
	SaveRecommendations(ctx context.Context, planID, batchID string, bundle models.RecommendationBundle) (bool, error)
	// LatestRecommendations returns the bundle of the most recently stored batch.
	LatestRecommendations(ctx context.Context, planID string) (string, models.RecommendationBundle, error)
	PlanResultLimit(ctx context.Context, planID string, fallback int) (int, error)
	TransitionPlan(ctx context.Context, planID string, status models.PlanStatus, errMsg string) (bool, error)
	Ping(ctx context.Context) error
}

type OutboxStore interface {
	// ClaimOutbox leases up to limit unpublished events, oldest first.
	ClaimOutbox(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
}

type OpenBatchInput struct {
	Batch      models.SimulationBatch
	Offers     []models.ProviderSkuOffer
	PlanStatus models.PlanStatus
	PlanError  string
	Events     []models.OutboxEvent
}

type BatchProgress struct {
	Expected int
	Received int
}

func (p BatchProgress) Complete() bool {
	return p.Expected > 0 && p.Received >= p.Expected
}

// BatchClosure is what a closed batch produces.
type BatchClosure struct {
	Events []models.OutboxEvent
	// PlanStatus is applied when non-empty.
	PlanStatus models.PlanStatus
	PlanError  string
}

// CloseFunc turns a batch's successful results and fresh availability into a closure.
type CloseFunc func(results []models.ProviderSimulationResult, availability []models.AvailabilityScore) (BatchClosure, error)

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *PGStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func marshalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

var (
	_ PlanStore           = (*PGStore)(nil)
	_ BatchStore          = (*PGStore)(nil)
	_ RecommendationStore = (*PGStore)(nil)
	_ OutboxStore         = (*PGStore)(nil)
	_ PlanStore           = (*MemoryStore)(nil)
	_ BatchStore          = (*MemoryStore)(nil)
	_ RecommendationStore = (*MemoryStore)(nil)
	_ OutboxStore         = (*MemoryStore)(nil)
)
