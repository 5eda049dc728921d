package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

// MemoryStore provides an in-memory implementation useful for tests and local runs.
// Every multi-row operation holds the lock for its whole duration, which gives it the
// same all-or-nothing behaviour as the Postgres transactions.
type MemoryStore struct {
	mu              sync.RWMutex
	now             func() time.Time
	seq             int64
	plans           map[string]models.PlanRecord
	batches         map[string]*memBatch
	history         []memObservation
	snapshots       []memSnapshot
	recommendations []memRecommendation
	outbox          []*memOutbox
}

type memBatch struct {
	batch    models.SimulationBatch
	offers   []models.ProviderSkuOffer
	outcomes map[string]models.SimulationOutcome
	order    []string
}

type memObservation struct {
	seq      int64
	batchID  string
	provider models.Provider
	region   string
	ok       bool
	observed time.Time
}

type memSnapshot struct {
	seq   int64
	score models.AvailabilityScore
}

type memRecommendation struct {
	seq     int64
	planID  string
	batchID string
	t       models.RecommendationType
	rank    *int
	raw     []byte
}

type memOutbox struct {
	event        models.OutboxEvent
	claimedUntil time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     func() time.Time { return time.Now().UTC() },
		plans:   map[string]models.PlanRecord{},
		batches: map[string]*memBatch{},
	}
}

func (m *MemoryStore) next() int64 {
	m.seq++
	return m.seq
}

func (m *MemoryStore) CreatePlan(ctx context.Context, plan models.PlanRecord, events []models.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = plan
	m.enqueue(events)
	return nil
}

func (m *MemoryStore) GetPlan(ctx context.Context, planID string) (models.PlanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plan, ok := m.plans[planID]
	if !ok {
		return models.PlanRecord{}, ErrNotFound
	}
	return plan, nil
}

func (m *MemoryStore) TransitionPlan(ctx context.Context, planID string, status models.PlanStatus, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(planID, status, errMsg)
}

func (m *MemoryStore) transition(planID string, status models.PlanStatus, errMsg string) (bool, error) {
	plan, ok := m.plans[planID]
	if !ok {
		return false, ErrNotFound
	}
	if plan.Status.Terminal() && plan.Status != status {
		return false, nil
	}
	plan.Status = status
	plan.Error = errMsg
	plan.UpdatedAt = m.now()
	m.plans[planID] = plan
	return true, nil
}

func (m *MemoryStore) PlanResultLimit(ctx context.Context, planID string, fallback int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plan, ok := m.plans[planID]
	if !ok {
		return fallback, nil
	}
	return models.ClampResultLimit(plan.Request.ResultLimit, fallback), nil
}

func (m *MemoryStore) ClaimPlan(ctx context.Context, planID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[planID]
	if !ok {
		return false, ErrNotFound
	}
	if plan.Status != models.PlanStatusQueued && plan.Status != models.PlanStatusCoordinating {
		return false, nil
	}
	for _, b := range m.batches {
		if b.batch.PlanID == planID {
			return false, nil
		}
	}
	return m.transition(planID, models.PlanStatusCoordinating, "")
}

func (m *MemoryStore) OpenBatch(ctx context.Context, in OpenBatchInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.PlanStatus != "" {
		if _, ok := m.plans[in.Batch.PlanID]; !ok {
			return ErrNotFound
		}
	}
	batch := in.Batch
	batch.CreatedAt = m.now()
	m.batches[batch.BatchID] = &memBatch{
		batch:    batch,
		offers:   append([]models.ProviderSkuOffer(nil), in.Offers...),
		outcomes: map[string]models.SimulationOutcome{},
	}
	if in.PlanStatus != "" {
		if _, err := m.transition(batch.PlanID, in.PlanStatus, in.PlanError); err != nil {
			return err
		}
	}
	m.enqueue(in.Events)
	return nil
}

func (m *MemoryStore) RecordOutcome(ctx context.Context, o models.SimulationOutcome) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[o.BatchID]
	if !ok {
		return false, ErrNotFound
	}
	if _, dup := b.outcomes[o.Scenario.ScenarioID]; dup {
		return false, nil
	}
	b.outcomes[o.Scenario.ScenarioID] = o
	b.order = append(b.order, o.Scenario.ScenarioID)
	m.history = append(m.history, memObservation{
		seq:      m.next(),
		batchID:  o.BatchID,
		provider: o.Scenario.Provider,
		region:   o.Scenario.Region,
		ok:       o.Available(),
		observed: o.ObservedAt,
	})
	return true, nil
}

func (m *MemoryStore) BatchProgress(ctx context.Context, batchID string) (BatchProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[batchID]
	if !ok {
		return BatchProgress{}, ErrNotFound
	}
	return BatchProgress{Expected: b.batch.ExpectedJobs, Received: len(b.outcomes)}, nil
}

func (m *MemoryStore) CloseBatch(ctx context.Context, batchID string, window int, decide CloseFunc) (bool, error) {
	if window <= 0 {
		window = DefaultAvailabilityWindow
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok || b.batch.CompletionPublished {
		return false, nil
	}

	results := []models.ProviderSimulationResult{}
	for _, id := range b.order {
		if o := b.outcomes[id]; o.Available() && o.Result != nil {
			results = append(results, *o.Result)
		}
	}
	availability := m.availability(batchID, window)

	closure, err := decide(results, availability)
	if err != nil {
		return false, err
	}
	if closure.PlanStatus != "" {
		if _, err := m.transition(b.batch.PlanID, closure.PlanStatus, closure.PlanError); err != nil {
			return false, err
		}
	}
	for _, a := range availability {
		score := a
		score.LastObservedAt = m.now()
		m.snapshots = append(m.snapshots, memSnapshot{seq: m.next(), score: score})
	}
	completed := m.now()
	b.batch.CompletionPublished = true
	b.batch.CompletedAt = &completed
	m.enqueue(closure.Events)
	return true, nil
}

// availability mirrors the windowed mean computed by the Postgres store.
func (m *MemoryStore) availability(batchID string, window int) []models.AvailabilityScore {
	type key struct {
		provider models.Provider
		region   string
	}
	touched := map[key]bool{}
	for _, h := range m.history {
		if h.batchID == batchID {
			touched[key{h.provider, h.region}] = true
		}
	}
	grouped := map[key][]memObservation{}
	for _, h := range m.history {
		k := key{h.provider, h.region}
		if touched[k] {
			grouped[k] = append(grouped[k], h)
		}
	}

	out := []models.AvailabilityScore{}
	for k, obs := range grouped {
		sort.Slice(obs, func(i, j int) bool {
			if !obs[i].observed.Equal(obs[j].observed) {
				return obs[i].observed.After(obs[j].observed)
			}
			return obs[i].seq > obs[j].seq
		})
		if len(obs) > window {
			obs = obs[:window]
		}
		available := 0
		for _, o := range obs {
			if o.ok {
				available++
			}
		}
		out = append(out, models.AvailabilityScore{
			Provider:       k.provider,
			Region:         k.region,
			Score:          float64(available) / float64(len(obs)),
			Samples:        len(obs),
			LastObservedAt: obs[0].observed,
		})
	}
	sortAvailability(out)
	return out
}

func sortAvailability(scores []models.AvailabilityScore) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Provider != scores[j].Provider {
			return scores[i].Provider < scores[j].Provider
		}
		return scores[i].Region < scores[j].Region
	})
}

func (m *MemoryStore) LatestAvailability(ctx context.Context, provider, region string) ([]models.AvailabilityScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type key struct {
		provider models.Provider
		region   string
	}
	latest := map[key]memSnapshot{}
	for _, s := range m.snapshots {
		if provider != "" && string(s.score.Provider) != provider {
			continue
		}
		if region != "" && s.score.Region != region {
			continue
		}
		k := key{s.score.Provider, s.score.Region}
		if cur, ok := latest[k]; !ok || s.seq > cur.seq {
			latest[k] = s
		}
	}
	out := make([]models.AvailabilityScore, 0, len(latest))
	for _, s := range latest {
		out = append(out, s.score)
	}
	sortAvailability(out)
	return out, nil
}

func (m *MemoryStore) SaveRecommendations(ctx context.Context, planID, batchID string, bundle models.RecommendationBundle) (bool, error) {
	rows := make([]memRecommendation, 0, len(bundle.RankedAlternatives)+3)
	add := func(t models.RecommendationType, rank *int, rec models.RankedRecommendation) error {
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		rows = append(rows, memRecommendation{planID: planID, batchID: batchID, t: t, rank: rank, raw: raw})
		return nil
	}
	for _, rec := range bundle.RankedAlternatives {
		rank := rec.Rank
		if err := add(models.RecommendationRanked, &rank, rec); err != nil {
			return false, err
		}
	}
	for _, single := range bundle.Singles() {
		if err := add(single.Type, nil, single.Recommendation); err != nil {
			return false, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[planID]
	if !ok {
		return false, ErrNotFound
	}
	if plan.Status.Terminal() && plan.Status != models.PlanStatusRecommended {
		return false, nil
	}
	stored := false
	for _, r := range m.recommendations {
		if r.planID == planID && r.batchID == batchID {
			stored = true
			break
		}
	}
	if !stored {
		for i := range rows {
			rows[i].seq = m.next()
		}
		m.recommendations = append(m.recommendations, rows...)
	}
	return m.transition(planID, models.PlanStatusRecommended, "")
}

func (m *MemoryStore) LatestRecommendations(ctx context.Context, planID string) (string, models.RecommendationBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		batchID string
		latest  int64
	)
	for _, r := range m.recommendations {
		if r.planID == planID && r.seq > latest {
			latest, batchID = r.seq, r.batchID
		}
	}
	if batchID == "" {
		return "", models.RecommendationBundle{}, ErrNotFound
	}

	var rows []memRecommendation
	for _, r := range m.recommendations {
		if r.planID == planID && r.batchID == batchID {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return effectiveRank(rows[i]) < effectiveRank(rows[j]) })

	bundle := models.EmptyBundle()
	for _, r := range rows {
		var rec models.RankedRecommendation
		if err := json.Unmarshal(r.raw, &rec); err != nil {
			return "", models.RecommendationBundle{}, err
		}
		if r.rank != nil {
			rec.Rank = *r.rank
		}
		bundle.Set(r.t, rec)
	}
	return batchID, bundle, nil
}

func effectiveRank(r memRecommendation) int {
	if r.rank == nil {
		return 999999
	}
	return *r.rank
}

func (m *MemoryStore) enqueue(events []models.OutboxEvent) {
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		ev.CreatedAt = m.now()
		ev.Envelope = append(json.RawMessage(nil), ev.Envelope...)
		m.outbox = append(m.outbox, &memOutbox{event: ev})
	}
}

func (m *MemoryStore) ClaimOutbox(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]models.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var out []models.OutboxEvent
	for _, o := range m.outbox {
		if len(out) >= limit {
			break
		}
		if o.event.PublishedAt != nil || o.event.Attempts >= maxAttempts || now.Before(o.claimedUntil) {
			continue
		}
		o.claimedUntil = now.Add(lease)
		out = append(out, o.event)
	}
	return out, nil
}

func (m *MemoryStore) MarkPublished(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.outbox {
		if o.event.ID == id {
			published := m.now()
			o.event.PublishedAt = &published
			o.claimedUntil = time.Time{}
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.outbox {
		if o.event.ID == id {
			o.event.Attempts++
			o.event.LastError = errMsg
			o.claimedUntil = time.Time{}
			return nil
		}
	}
	return ErrNotFound
}

// PendingOutbox returns unpublished events, oldest first.
func (m *MemoryStore) PendingOutbox() []models.OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.OutboxEvent
	for _, o := range m.outbox {
		if o.event.PublishedAt == nil {
			out = append(out, o.event)
		}
	}
	return out
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
