package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka-backed publisher and sources.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Exchange prefixes every topic. Defaults to Exchange.
	Exchange string

	// MaxAttempts is how many times Publish retries a transient write error.
	// Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout for writes. Defaults to 5s.
	WriteTimeout time.Duration

	// Balancer decides partition selection. If nil, a Hash balancer is used so a
	// plan's events stay on one partition.
	Balancer kafka.Balancer
}

func (cfg *KafkaConfig) defaults() error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = Exchange
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Balancer == nil {
		cfg.Balancer = &kafka.Hash{}
	}
	return nil
}

func (cfg KafkaConfig) writer(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               cfg.Balancer,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	headerEventType        = "event-type"
	headerDeadLetterReason = "dead-letter-reason"
	headerOriginalTopic    = "original-topic"
)

// KafkaPublisher writes envelopes to the topic derived from their event type.
type KafkaPublisher struct {
	writer      messageWriter
	exchange    string
	maxAttempts int
	timeout     time.Duration
	sleep       func(context.Context, time.Duration)
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	// Topic is set per message.
	return newKafkaPublisher(cfg.writer(""), cfg), nil
}

func newKafkaPublisher(w messageWriter, cfg KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer:      w,
		exchange:    cfg.Exchange,
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.WriteTimeout,
		sleep:       sleepCtx,
	}
}

// Publish writes env keyed by its plan id, retrying transient errors with
// exponential backoff capped at 2s.
func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	value, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	topic := TopicFor(p.exchange, env.EventType)

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		msg := kafka.Message{
			Topic:   topic,
			Key:     []byte(env.PartitionKey()),
			Value:   value,
			Headers: []kafka.Header{{Key: headerEventType, Value: []byte(env.EventType)}},
			Time:    time.Now().UTC(),
		}

		ctxAttempt, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.writer.WriteMessages(ctxAttempt, msg)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < p.maxAttempts {
			p.sleep(ctx, backoff)
			if backoff < 2*time.Second {
				backoff *= 2
			}
		}
	}
	return fmt.Errorf("publish %s failed after %d attempts: %w", env.EventType, p.maxAttempts, lastErr)
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// KafkaSource consumes one queue as a consumer group on the queue's topic.
// Offsets are committed only when a delivery is settled.
type KafkaSource struct {
	queue  Queue
	topic  string
	reader messageReader
	dlq    messageWriter
	sleep  func(context.Context, time.Duration)
}

func NewKafkaSource(cfg KafkaConfig, queue Queue) (*KafkaSource, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	topic := TopicFor(cfg.Exchange, queue.Binding)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     queue.Name,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
	return newKafkaSource(queue, topic, reader, cfg.writer(queue.DeadLetterTopic())), nil
}

func newKafkaSource(queue Queue, topic string, r messageReader, dlq messageWriter) *KafkaSource {
	return &KafkaSource{queue: queue, topic: topic, reader: r, dlq: dlq, sleep: sleepCtx}
}

func (s *KafkaSource) Fetch(ctx context.Context) (Message, error) {
	m, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", s.topic, err)
	}
	return &kafkaMessage{src: s, msg: m}, nil
}

func (s *KafkaSource) Close() error {
	rerr := s.reader.Close()
	werr := s.dlq.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

type kafkaMessage struct {
	src *KafkaSource
	msg kafka.Message
}

func (m *kafkaMessage) Body() []byte { return m.msg.Value }

func (m *kafkaMessage) Ack(ctx context.Context) error {
	if err := m.src.reader.CommitMessages(ctx, m.msg); err != nil {
		return fmt.Errorf("commit offset %d: %w", m.msg.Offset, err)
	}
	return nil
}

func (m *kafkaMessage) Nack(ctx context.Context, reason string) error {
	dead := kafka.Message{
		Key:   m.msg.Key,
		Value: m.msg.Value,
		Headers: append(append([]kafka.Header{}, m.msg.Headers...),
			kafka.Header{Key: headerDeadLetterReason, Value: []byte(reason)},
			kafka.Header{Key: headerOriginalTopic, Value: []byte(m.msg.Topic)},
		),
		Time: time.Now().UTC(),
	}
	// The reader keeps fetching past an uncommitted offset, so the next Ack would commit
	// over this delivery. Block on the dead-letter write until it lands or ctx ends.
	backoff := 100 * time.Millisecond
	for {
		err := m.src.dlq.WriteMessages(ctx, dead)
		if err == nil {
			return m.Ack(ctx)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("dead-letter to %s: %w", m.src.queue.DeadLetterTopic(), err)
		}
		m.src.sleep(ctx, backoff)
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
