// Package outbox publishes events that were committed together with the state change
// that produced them.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/events"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/store"
)

// Event turns an envelope into an outbox row ready to be enqueued.
func Event(env events.Envelope) (models.OutboxEvent, error) {
	raw, err := env.Marshal()
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal %s envelope: %w", env.EventType, err)
	}
	return models.OutboxEvent{
		ID:        uuid.NewString(),
		EventType: string(env.EventType),
		Key:       env.PartitionKey(),
		Envelope:  raw,
	}, nil
}

// Build wraps payload as an event of type t and returns it as an outbox row.
func Build(t events.Type, payload interface{}) (models.OutboxEvent, error) {
	env, err := events.New(t, payload)
	if err != nil {
		return models.OutboxEvent{}, err
	}
	return Event(env)
}

type Config struct {
	// How many events to claim per poll.
	BatchSize int

	// PollInterval when there is no work.
	PollInterval time.Duration

	// MaxConcurrency bounds concurrent publishes within a claimed batch.
	MaxConcurrency int

	// MaxAttempts after which an event is left for inspection.
	MaxAttempts int

	// Lease is how long a claimed event is hidden from other relays.
	Lease time.Duration
}

// Relay moves committed outbox rows onto the bus.
type Relay struct {
	store     store.OutboxStore
	publisher events.Publisher
	cfg       Config
	logger    *zap.Logger
}

// NewRelay constructs a relay. Zero config fields get defaults.
func NewRelay(st store.OutboxStore, publisher events.Publisher, cfg Config, logger *zap.Logger) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{store: st, publisher: publisher, cfg: cfg, logger: logger.With(zap.String("component", "outbox"))}
}

// Run polls and publishes until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay started", zap.Int("batch", r.cfg.BatchSize), zap.Int("concurrency", r.cfg.MaxConcurrency))
	defer r.logger.Info("relay stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.Flush(ctx)
		if err != nil {
			r.logger.Warn("claim outbox", zap.Error(err))
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.cfg.PollInterval):
			}
		}
	}
}

// Flush claims one batch and publishes it, returning how many events were claimed.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	claimed, err := r.store.ClaimOutbox(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts, r.cfg.Lease)
	if err != nil {
		return 0, err
	}

	sem := make(chan struct{}, r.cfg.MaxConcurrency)
	var wg sync.WaitGroup
	for _, ev := range claimed {
		sem <- struct{}{}
		wg.Add(1)
		go func(ev models.OutboxEvent) {
			defer func() {
				<-sem
				wg.Done()
			}()
			r.publish(ctx, ev)
		}(ev)
	}
	wg.Wait()
	return len(claimed), nil
}

func (r *Relay) publish(parent context.Context, ev models.OutboxEvent) {
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()
	log := r.logger.With(zap.String("outboxId", ev.ID), zap.String("eventType", ev.EventType), zap.String("planId", ev.Key))

	env, err := events.Decode(ev.Envelope)
	if err == nil {
		err = r.publisher.Publish(ctx, env)
	}
	if err != nil {
		log.Warn("publish failed", zap.Int("attempt", ev.Attempts+1), zap.Error(err))
		if markErr := r.store.MarkFailed(parent, ev.ID, err.Error()); markErr != nil {
			log.Error("record publish failure", zap.Error(markErr))
		}
		return
	}
	if err := r.store.MarkPublished(parent, ev.ID); err != nil {
		// The lease expires and the event is published again; consumers are idempotent.
		log.Error("mark published", zap.Error(err))
		return
	}
	log.Debug("event published")
}
