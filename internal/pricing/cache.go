package pricing

import (
	"sync"
	"time"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/canonical"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

type cacheEntry struct {
	results []models.ProviderSimulationResult
	expires time.Time
}

type cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func newCache(ttl time.Duration) *cache {
	return &cache{ttl: ttl, now: time.Now, entries: map[string]cacheEntry{}}
}

// cacheKey hashes the price-relevant part of an estimate request. Identifiers are
// dropped so redelivered and repeated scenarios share an entry.
func cacheKey(req estimateRequest) (string, error) {
	req.PlanID, req.BatchID, req.ScenarioID = "", "", ""
	return canonical.Digest(req)
}

func (c *cache) get(key string) ([]models.ProviderSimulationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return cloneResults(e.results), true
}

func (c *cache) put(key string, results []models.ProviderSimulationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{
		results: cloneResults(results),
		expires: now.Add(c.ttl),
	}
}

// cloneResults copies results deeply enough that callers never share memory with the cache.
func cloneResults(results []models.ProviderSimulationResult) []models.ProviderSimulationResult {
	out := make([]models.ProviderSimulationResult, len(results))
	for i, r := range results {
		if r.Assumptions != nil {
			r.Assumptions = append([]string(nil), r.Assumptions...)
		}
		out[i] = r
	}
	return out
}
