// Package events defines the event contracts exchanged over the bus and the consumer
// machinery that settles each delivery.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

type Type string

const (
	PlanCreated            Type = "plan.created"
	SimulationRequested    Type = "simulation.requested"
	SimulationResult       Type = "simulation.result"
	SimulationResultFailed Type = "simulation.result.failed"
	SimulationCompleted    Type = "simulation.completed"
	SimulationFailed       Type = "simulation.failed"
)

func (t Type) Known() bool {
	switch t {
	case PlanCreated, SimulationRequested, SimulationResult, SimulationResultFailed, SimulationCompleted, SimulationFailed:
		return true
	}
	return false
}

// ErrMalformed marks a delivery that can never be processed.
var ErrMalformed = errors.New("malformed event")

// Envelope is the wire form of every event. The routing key equals EventType.
type Envelope struct {
	EventType Type            `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

type PlanCreatedPayload struct {
	PlanID  string             `json:"planId"`
	Request models.PlanRequest `json:"request"`
}

type SimulationRequestedPayload struct {
	PlanID   string                    `json:"planId"`
	BatchID  string                    `json:"batchId"`
	Request  models.PlanRequest        `json:"request"`
	Scenario models.SimulationScenario `json:"scenario"`
}

type SimulationResultPayload struct {
	PlanID      string                          `json:"planId"`
	BatchID     string                          `json:"batchId"`
	Scenario    models.SimulationScenario       `json:"scenario"`
	Result      models.ProviderSimulationResult `json:"result"`
	CompletedAt time.Time                       `json:"completedAt"`
}

type SimulationResultFailedPayload struct {
	PlanID      string                    `json:"planId"`
	BatchID     string                    `json:"batchId"`
	Scenario    models.SimulationScenario `json:"scenario"`
	Error       string                    `json:"error"`
	CompletedAt time.Time                 `json:"completedAt"`
}

type SimulationCompletedPayload struct {
	PlanID       string                            `json:"planId"`
	BatchID      string                            `json:"batchId"`
	Results      []models.ProviderSimulationResult `json:"results"`
	Availability []models.AvailabilityScore        `json:"availability"`
}

type SimulationFailedPayload struct {
	PlanID  string `json:"planId"`
	BatchID string `json:"batchId,omitempty"`
	Error   string `json:"error"`
}

func (p PlanCreatedPayload) Validate() error { return requirePlan(p.PlanID) }

func (p SimulationRequestedPayload) Validate() error {
	if err := requireIDs(p.PlanID, p.BatchID); err != nil {
		return err
	}
	if p.Scenario.ScenarioID == "" {
		return fmt.Errorf("%w: scenario.scenarioId is required", ErrMalformed)
	}
	return nil
}

func (p SimulationResultPayload) Validate() error {
	if err := requireIDs(p.PlanID, p.BatchID); err != nil {
		return err
	}
	if p.Scenario.ScenarioID == "" {
		return fmt.Errorf("%w: scenario.scenarioId is required", ErrMalformed)
	}
	return nil
}

func (p SimulationResultFailedPayload) Validate() error {
	if err := requireIDs(p.PlanID, p.BatchID); err != nil {
		return err
	}
	if p.Scenario.ScenarioID == "" {
		return fmt.Errorf("%w: scenario.scenarioId is required", ErrMalformed)
	}
	return nil
}

func (p SimulationCompletedPayload) Validate() error { return requireIDs(p.PlanID, p.BatchID) }

func (p SimulationFailedPayload) Validate() error { return requirePlan(p.PlanID) }

func requirePlan(planID string) error {
	if planID == "" {
		return fmt.Errorf("%w: planId is required", ErrMalformed)
	}
	return nil
}

func requireIDs(planID, batchID string) error {
	if err := requirePlan(planID); err != nil {
		return err
	}
	if batchID == "" {
		return fmt.Errorf("%w: batchId is required", ErrMalformed)
	}
	return nil
}

type validator interface {
	Validate() error
}

// New wraps payload in an envelope of type t.
func New(t Type, payload interface{}) (Envelope, error) {
	if v, ok := payload.(validator); ok {
		if err := v.Validate(); err != nil {
			return Envelope{}, err
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{EventType: t, Payload: raw}, nil
}

// Decode parses a delivery body. Any failure is reported as ErrMalformed.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.EventType == "" {
		return Envelope{}, fmt.Errorf("%w: eventType is required", ErrMalformed)
	}
	if len(env.Payload) == 0 || bytes.Equal(env.Payload, []byte("null")) {
		return Envelope{}, fmt.Errorf("%w: payload is required", ErrMalformed)
	}
	return env, nil
}

// Into strictly decodes the payload into v and validates it when v supports it.
func (e Envelope) Into(v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(e.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, e.EventType, err)
	}
	if val, ok := v.(validator); ok {
		return val.Validate()
	}
	return nil
}

// PartitionKey returns the plan id carried by the payload, used to keep a plan's
// events on one partition.
func (e Envelope) PartitionKey() string {
	var keyed struct {
		PlanID string `json:"planId"`
	}
	if err := json.Unmarshal(e.Payload, &keyed); err != nil {
		return ""
	}
	return keyed.PlanID
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
