package events

import (
	"context"
	"sync"
)

// DeadLetter is a rejected delivery kept by MemoryBus.
type DeadLetter struct {
	Body   []byte
	Reason string
}

// MemoryBus is an in-process bus with the same routing as the Kafka topology.
// Used by tests and single-process runs.
type MemoryBus struct {
	mu        sync.Mutex
	queues    map[string]*memoryQueue
	published []Envelope
}

type memoryQueue struct {
	queue   Queue
	pending [][]byte
	dead    []DeadLetter
}

// NewMemoryBus declares the given queues, or the full topology when none are given.
func NewMemoryBus(queues ...Queue) *MemoryBus {
	if len(queues) == 0 {
		queues = AllQueues()
	}
	b := &MemoryBus{queues: map[string]*memoryQueue{}}
	for _, q := range queues {
		b.queues[q.Name] = &memoryQueue{queue: q}
	}
	return b
}

func (b *MemoryBus) Publish(_ context.Context, env Envelope) error {
	body, err := env.Marshal()
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, env)
	b.route(env.EventType, body)
	return nil
}

// PublishRaw routes an arbitrary body under routing key t.
func (b *MemoryBus) PublishRaw(t Type, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.route(t, append([]byte(nil), body...))
}

func (b *MemoryBus) route(t Type, body []byte) {
	for _, q := range b.queues {
		if q.queue.Binding == t {
			q.pending = append(q.pending, body)
		}
	}
}

// Source returns a consumer view of queue. Unknown queues yield no messages.
func (b *MemoryBus) Source(queue Queue) Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[queue.Name]; !ok {
		b.queues[queue.Name] = &memoryQueue{queue: queue}
	}
	return &memorySource{bus: b, name: queue.Name}
}

// Published returns every envelope of type t published so far, in order.
func (b *MemoryBus) Published(t Type) []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Envelope
	for _, env := range b.published {
		if env.EventType == t {
			out = append(out, env)
		}
	}
	return out
}

func (b *MemoryBus) DeadLetters(queue Queue) []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queue.Name]
	if !ok {
		return nil
	}
	return append([]DeadLetter(nil), q.dead...)
}

func (b *MemoryBus) Pending(queue Queue) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queue.Name]
	if !ok {
		return 0
	}
	return len(q.pending)
}

type memorySource struct {
	bus  *MemoryBus
	name string
}

func (s *memorySource) Fetch(ctx context.Context) (Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	q := s.bus.queues[s.name]
	if len(q.pending) == 0 {
		return nil, ErrNoMessage
	}
	body := q.pending[0]
	q.pending = q.pending[1:]
	return &memoryMessage{bus: s.bus, queue: q, body: body}, nil
}

func (s *memorySource) Close() error { return nil }

type memoryMessage struct {
	bus   *MemoryBus
	queue *memoryQueue
	body  []byte
}

func (m *memoryMessage) Body() []byte { return m.body }

func (m *memoryMessage) Ack(context.Context) error { return nil }

func (m *memoryMessage) Nack(_ context.Context, reason string) error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	m.queue.dead = append(m.queue.dead, DeadLetter{Body: m.body, Reason: reason})
	return nil
}
