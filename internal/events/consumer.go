package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNoMessage is returned by a Source that has nothing to deliver right now.
var ErrNoMessage = errors.New("no message available")

// Message is one delivery from a queue. It must be settled exactly once.
type Message interface {
	Body() []byte
	Ack(ctx context.Context) error
	// Nack rejects the delivery without requeue; the body goes to the dead-letter topic.
	// It may block until the dead letter is written or ctx ends.
	Nack(ctx context.Context, reason string) error
}

// Source yields deliveries for a single queue.
type Source interface {
	Fetch(ctx context.Context) (Message, error)
	Close() error
}

// Publisher emits envelopes onto the bus, routed by event type.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Handler processes one decoded envelope. A returned error dead-letters the message.
type Handler func(ctx context.Context, env Envelope) error

// Subscription binds a handler to the queue it consumes.
type Subscription struct {
	Queue   Queue
	Handler Handler
}

// Consumer builds the receive loop for the subscription over source.
func (s Subscription) Consumer(source Source, logger *zap.Logger) *Consumer {
	return NewConsumer(s.Queue, source, logger).Handle(s.Queue.Binding, s.Handler)
}

// Disposition records how a delivery was settled.
type Disposition string

const (
	Acked   Disposition = "ack"
	Nacked  Disposition = "nack"
	Ignored Disposition = "ignored"
)

// Consumer runs the sequential receive loop for one queue.
type Consumer struct {
	queue    Queue
	source   Source
	handlers map[Type]Handler
	logger   *zap.Logger
	idle     time.Duration
}

func NewConsumer(queue Queue, source Source, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		queue:    queue,
		source:   source,
		handlers: map[Type]Handler{},
		logger:   logger.With(zap.String("queue", queue.Name)),
		idle:     500 * time.Millisecond,
	}
}

// Handle registers h for envelopes of type t.
func (c *Consumer) Handle(t Type, h Handler) *Consumer {
	c.handlers[t] = h
	return c
}

// Run fetches and settles deliveries until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		if ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return nil
		}
		msg, err := c.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopped")
				return nil
			}
			if !errors.Is(err, ErrNoMessage) {
				c.logger.Warn("fetch failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
			case <-time.After(c.idle):
			}
			continue
		}
		c.Process(ctx, msg)
	}
}

// Drain processes deliveries until the source reports ErrNoMessage and returns the count.
func (c *Consumer) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		msg, err := c.source.Fetch(ctx)
		if errors.Is(err, ErrNoMessage) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		c.Process(ctx, msg)
		n++
	}
}

// Process decodes and dispatches a single delivery, then settles it.
func (c *Consumer) Process(ctx context.Context, msg Message) (disp Disposition) {
	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("handler panic: %v", r)
			c.logger.Error("handler panicked", zap.Any("panic", r))
			c.nack(ctx, msg, reason)
			disp = Nacked
		}
	}()

	env, err := Decode(msg.Body())
	if err != nil {
		c.logger.Error("malformed message", zap.Error(err))
		c.nack(ctx, msg, err.Error())
		return Nacked
	}

	h, ok := c.handlers[env.EventType]
	if !ok {
		c.logger.Warn("ignoring unsupported event type", zap.String("eventType", string(env.EventType)))
		c.ack(ctx, msg)
		return Ignored
	}

	log := c.logger.With(zap.String("eventType", string(env.EventType)), zap.String("planId", env.PartitionKey()))
	if err := h(ctx, env); err != nil {
		log.Error("handler failed", zap.Error(err))
		c.nack(ctx, msg, err.Error())
		return Nacked
	}
	c.ack(ctx, msg)
	return Acked
}

func (c *Consumer) ack(ctx context.Context, msg Message) {
	if err := msg.Ack(ctx); err != nil {
		c.logger.Warn("ack failed", zap.Error(err))
	}
}

func (c *Consumer) nack(ctx context.Context, msg Message, reason string) {
	if err := msg.Nack(ctx, reason); err != nil {
		c.logger.Warn("nack failed", zap.Error(err))
	}
}
