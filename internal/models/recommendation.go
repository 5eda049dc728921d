package models

type RecommendationType string

const (
	RecommendationRanked   RecommendationType = "ranked"
	RecommendationCheapest RecommendationType = "cheapest"
	RecommendationNearest  RecommendationType = "nearest"
	RecommendationBalanced RecommendationType = "balanced"
)

// RankedRecommendation is a simulation result annotated with its ranking signals.
type RankedRecommendation struct {
	ProviderSimulationResult
	Rank                int     `json:"rank"`
	AvailabilityScore   float64 `json:"availabilityScore"`
	AvailabilityPenalty float64 `json:"availabilityPenalty"`
	BlendedScore        float64 `json:"blendedScore"`
}

type RecommendationBundle struct {
	RankedAlternatives []RankedRecommendation `json:"rankedAlternatives"`
	CheapestOption     *RankedRecommendation  `json:"cheapestOption"`
	NearestOption      *RankedRecommendation  `json:"nearestOption"`
	BalancedOption     *RankedRecommendation  `json:"balancedOption"`
}

// EmptyBundle returns a bundle with a non-nil, empty ranked list.
func EmptyBundle() RecommendationBundle {
	return RecommendationBundle{RankedAlternatives: []RankedRecommendation{}}
}

type BundleSingle struct {
	Type           RecommendationType
	Recommendation RankedRecommendation
}

// Singles returns the canonical picks in storage order, skipping nil entries.
func (b RecommendationBundle) Singles() []BundleSingle {
	var out []BundleSingle
	for _, s := range []struct {
		t   RecommendationType
		rec *RankedRecommendation
	}{
		{RecommendationCheapest, b.CheapestOption},
		{RecommendationNearest, b.NearestOption},
		{RecommendationBalanced, b.BalancedOption},
	} {
		if s.rec != nil {
			out = append(out, BundleSingle{Type: s.t, Recommendation: *s.rec})
		}
	}
	return out
}

// Set places rec into the slot named by t. Ranked entries are appended.
func (b *RecommendationBundle) Set(t RecommendationType, rec RankedRecommendation) {
	switch t {
	case RecommendationRanked:
		b.RankedAlternatives = append(b.RankedAlternatives, rec)
	case RecommendationCheapest:
		b.CheapestOption = &rec
	case RecommendationNearest:
		b.NearestOption = &rec
	case RecommendationBalanced:
		b.BalancedOption = &rec
	}
}

// ProviderOptions groups ranked alternatives by provider. Every supported provider gets
// a bucket, empty when it has no alternatives.
func (b RecommendationBundle) ProviderOptions() map[Provider][]RankedRecommendation {
	out := make(map[Provider][]RankedRecommendation, len(SupportedProviders))
	for _, p := range SupportedProviders {
		out[p] = []RankedRecommendation{}
	}
	for _, rec := range b.RankedAlternatives {
		out[rec.Provider] = append(out[rec.Provider], rec)
	}
	return out
}
