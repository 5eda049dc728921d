// Package ranking turns a batch of priced simulation results into an ordered,
// provider-covering recommendation bundle.
//
// The output is a pure function of the inputs: there is no clock, randomness or map
// iteration in the ordering, so identical batches always produce identical bundles.
package ranking

import (
	"math"
	"sort"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

// DefaultAvailability is used for results with no matching availability signal.
const DefaultAvailability = 0.5

const (
	weightCost         = 0.6
	weightTransfer     = 0.2
	weightDistance     = 0.1
	weightAvailability = 0.1
)

type candidate struct {
	result       models.ProviderSimulationResult
	availability float64
	penalty      float64
	blended      float64
}

func (c candidate) recommendation(rank int) models.RankedRecommendation {
	return models.RankedRecommendation{
		ProviderSimulationResult: c.result,
		Rank:                     rank,
		AvailabilityScore:        c.availability,
		AvailabilityPenalty:      c.penalty,
		BlendedScore:             c.blended,
	}
}

// less is the total order used for every selection: cheaper first, then more
// available, nearer, cheaper to move data, and finally by scenario id.
func less(a, b candidate) bool {
	if a.result.TotalCost != b.result.TotalCost {
		return a.result.TotalCost < b.result.TotalCost
	}
	if a.penalty != b.penalty {
		return a.penalty < b.penalty
	}
	if a.result.DistanceKm != b.result.DistanceKm {
		return a.result.DistanceKm < b.result.DistanceKm
	}
	if at, bt := a.result.TransferCost(), b.result.TransferCost(); at != bt {
		return at < bt
	}
	return a.result.ScenarioID < b.result.ScenarioID
}

// Rank builds the recommendation bundle for results. limit bounds the ranked list but
// never hides a provider: the list grows to hold each provider's best candidate.
func Rank(results []models.ProviderSimulationResult, availability []models.AvailabilityScore, limit int) models.RecommendationBundle {
	if len(results) == 0 {
		return models.EmptyBundle()
	}

	costs := newSpan()
	distances := newSpan()
	transfers := newSpan()
	for _, r := range results {
		costs.add(r.TotalCost)
		distances.add(r.DistanceKm)
		transfers.add(r.TransferCost())
	}

	all := make([]candidate, len(results))
	for i, r := range results {
		score := AvailabilityFor(r.Provider, r.Region, availability)
		penalty := Round3(1 - score)
		blended := weightCost*costs.normalize(r.TotalCost) +
			weightTransfer*transfers.normalize(r.TransferCost()) +
			weightDistance*distances.normalize(r.DistanceKm) +
			weightAvailability*penalty
		all[i] = candidate{
			result:       r,
			availability: score,
			penalty:      penalty,
			blended:      Round3(clamp01(blended)),
		}
	}

	sorted := append([]candidate(nil), all...)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	// Best candidate per provider, in first-seen sorted order.
	seenProvider := map[models.Provider]bool{}
	var coverage []candidate
	for _, c := range sorted {
		if !seenProvider[c.result.Provider] {
			seenProvider[c.result.Provider] = true
			coverage = append(coverage, c)
		}
	}

	target := limit
	if len(coverage) > target {
		target = len(coverage)
	}
	selected := make([]candidate, 0, target)
	chosen := map[string]bool{}
	for _, c := range coverage {
		selected = append(selected, c)
		chosen[c.result.ScenarioID] = true
	}
	for _, c := range sorted {
		if len(selected) >= target {
			break
		}
		if !chosen[c.result.ScenarioID] {
			selected = append(selected, c)
			chosen[c.result.ScenarioID] = true
		}
	}
	sort.SliceStable(selected, func(i, j int) bool { return less(selected[i], selected[j]) })

	bundle := models.EmptyBundle()
	for i, c := range selected {
		bundle.RankedAlternatives = append(bundle.RankedAlternatives, c.recommendation(i+1))
	}

	cheapest := pick(all, func(a, b candidate) bool { return a.result.TotalCost < b.result.TotalCost })
	nearest := pick(all, func(a, b candidate) bool { return a.result.DistanceKm < b.result.DistanceKm })
	balanced := pick(all, func(a, b candidate) bool { return a.blended < b.blended })
	bundle.Set(models.RecommendationCheapest, cheapest.recommendation(1))
	bundle.Set(models.RecommendationNearest, nearest.recommendation(1))
	bundle.Set(models.RecommendationBalanced, balanced.recommendation(1))
	return bundle
}

// pick returns the minimum of cs under better, falling back to the total order on ties.
func pick(cs []candidate, better func(a, b candidate) bool) candidate {
	best := cs[0]
	for _, c := range cs[1:] {
		if better(c, best) || (!better(best, c) && less(c, best)) {
			best = c
		}
	}
	return best
}

// AvailabilityFor finds the availability score for provider/region, matching
// case-insensitively. Unknown pairs score DefaultAvailability.
func AvailabilityFor(provider models.Provider, region string, availability []models.AvailabilityScore) float64 {
	for _, a := range availability {
		if a.Matches(provider, region) {
			return clamp01(a.Score)
		}
	}
	return DefaultAvailability
}

type span struct {
	min, max float64
}

func newSpan() *span {
	return &span{min: math.Inf(1), max: math.Inf(-1)}
}

func (s *span) add(v float64) {
	s.min = math.Min(s.min, v)
	s.max = math.Max(s.max, v)
}

// normalize maps v into [0,1]. A degenerate span yields 0.
func (s *span) normalize(v float64) float64 {
	if s.max <= s.min {
		return 0
	}
	return clamp01((v - s.min) / (s.max - s.min))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// Round3 rounds to three decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
