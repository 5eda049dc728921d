package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planCreated(t *testing.T, planID string) Envelope {
	t.Helper()
	env, err := New(PlanCreated, PlanCreatedPayload{PlanID: planID})
	require.NoError(t, err)
	return env
}

func TestConsumerAcksHandledEvents(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	require.NoError(t, bus.Publish(ctx, planCreated(t, "plan-1")))

	var seen []string
	c := NewConsumer(QueuePlanCreated, bus.Source(QueuePlanCreated), nil).
		Handle(PlanCreated, func(_ context.Context, env Envelope) error {
			var p PlanCreatedPayload
			if err := env.Into(&p); err != nil {
				return err
			}
			seen = append(seen, p.PlanID)
			return nil
		})

	n, err := c.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"plan-1"}, seen)
	assert.Empty(t, bus.DeadLetters(QueuePlanCreated))
	assert.Zero(t, bus.Pending(QueuePlanCreated))
}

func TestConsumerDeadLettersMalformedAndFailedMessages(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	bus.PublishRaw(PlanCreated, []byte(`not-json`))
	require.NoError(t, bus.Publish(ctx, planCreated(t, "plan-2")))

	c := NewConsumer(QueuePlanCreated, bus.Source(QueuePlanCreated), nil).
		Handle(PlanCreated, func(context.Context, Envelope) error { return errors.New("db down") })

	_, err := c.Drain(ctx)
	require.NoError(t, err)
	dead := bus.DeadLetters(QueuePlanCreated)
	require.Len(t, dead, 2)
	assert.Contains(t, dead[0].Reason, "malformed event")
	assert.Equal(t, "db down", dead[1].Reason)
}

func TestConsumerIgnoresUnknownTypes(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	bus.PublishRaw(PlanCreated, []byte(`{"eventType":"plan.archived","payload":{"planId":"p"}}`))

	c := NewConsumer(QueuePlanCreated, bus.Source(QueuePlanCreated), nil)
	msg, err := c.source.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, Ignored, c.Process(ctx, msg))
	assert.Empty(t, bus.DeadLetters(QueuePlanCreated))
}

func TestConsumerRecoversFromPanics(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	require.NoError(t, bus.Publish(ctx, planCreated(t, "plan-3")))

	c := NewConsumer(QueuePlanCreated, bus.Source(QueuePlanCreated), nil).
		Handle(PlanCreated, func(context.Context, Envelope) error { panic("nil map") })

	msg, err := c.source.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, Nacked, c.Process(ctx, msg))
	dead := bus.DeadLetters(QueuePlanCreated)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0].Reason, "nil map")
}

func TestConsumerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewMemoryBus()
	require.NoError(t, bus.Publish(ctx, planCreated(t, "plan-4")))

	done := make(chan struct{})
	c := NewConsumer(QueuePlanCreated, bus.Source(QueuePlanCreated), nil).
		Handle(PlanCreated, func(context.Context, Envelope) error {
			close(done)
			return nil
		})

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	<-done
	cancel()
	assert.NoError(t, <-errCh)
}

func TestMemoryBusRoutesByBinding(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	env, err := New(SimulationFailed, SimulationFailedPayload{PlanID: "p", Error: "x"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, env))

	assert.Equal(t, 1, bus.Pending(QueueSimulationFailed))
	assert.Zero(t, bus.Pending(QueueSimulationCompleted))
	assert.Len(t, bus.Published(SimulationFailed), 1)
	assert.Empty(t, bus.Published(PlanCreated))
}
