package models

import (
	"encoding/json"
	"time"
)

// OutboxEvent is an event stored alongside the state change that produced it and
// published later by the outbox relay.
type OutboxEvent struct {
	ID          string          `json:"id"`
	EventType   string          `json:"eventType"`
	Key         string          `json:"key"`
	Envelope    json.RawMessage `json:"envelope"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	PublishedAt *time.Time      `json:"publishedAt,omitempty"`
}
