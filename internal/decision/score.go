package decision

import (
	"math"
	"strings"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

const (
	weightTotalCost           = 0.5
	weightInstanceFit         = 0.2
	weightNetworkImpact       = 0.15
	weightOptimizationSavings = 0.15

	maxSavingsRatio = 1.5
	neutralFit      = 0.5
)

type ScoreBreakdown struct {
	TotalCostScore           float64 `json:"totalCostScore"`
	InstanceFitScore         float64 `json:"instanceFitScore"`
	NetworkImpactScore       float64 `json:"networkImpactScore"`
	OptimizationSavingsScore float64 `json:"optimizationSavingsScore"`
	WeightedScore            float64 `json:"weightedScore"`
}

type ProviderScore struct {
	Provider     models.Provider `json:"provider"`
	Region       string          `json:"region"`
	MonthlyTotal float64         `json:"monthlyTotal"`
	Score        ScoreBreakdown  `json:"score"`
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// round3 rounds to three decimals and never returns negative zero.
func round3(v float64) float64 {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		return 0
	}
	return r
}

func bounds(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// normalizeInverse scores lower values higher. A degenerate range scores 1.
func normalizeInverse(v, lo, hi float64) float64 {
	if hi <= lo {
		return 1
	}
	return clamp01((hi - v) / (hi - lo))
}

// normalizeDirect scores higher values higher. A degenerate range scores 1.
func normalizeDirect(v, lo, hi float64) float64 {
	if hi <= lo {
		return 1
	}
	return clamp01((v - lo) / (hi - lo))
}

func totalCostScore(p ProviderCostResult, all []ProviderCostResult) float64 {
	totals := make([]float64, len(all))
	for i, r := range all {
		totals[i] = r.Summary.MonthlyTotal
	}
	lo, hi := bounds(totals)
	return round3(normalizeInverse(p.Summary.MonthlyTotal, lo, hi))
}

// fitDimension compares a provisioned size with the requirement. Missing or
// non-positive inputs give no signal.
func fitDimension(required, provisioned MetadataValue) (float64, bool) {
	r, okR := required.Number()
	pv, okP := provisioned.Number()
	if !okR || !okP || r <= 0 || pv <= 0 {
		return 0, false
	}
	return clamp01(1 - math.Abs(pv-r)/r), true
}

func instanceFitScore(p ProviderCostResult) float64 {
	var scores []float64
	for _, d := range p.Details {
		if !strings.Contains(strings.ToLower(d.ServiceType), "compute") {
			continue
		}
		cpu, hasCPU := fitDimension(d.Metadata["requiredVcpu"], d.Metadata["provisionedVcpu"])
		ram, hasRAM := fitDimension(d.Metadata["requiredRamGb"], d.Metadata["provisionedRamGb"])

		switch {
		case hasCPU && hasRAM:
			scores = append(scores, (cpu+ram)/2)
		case hasCPU:
			scores = append(scores, cpu)
		case hasRAM:
			scores = append(scores, ram)
		default:
			scores = append(scores, neutralFit)
		}
	}
	if len(scores) == 0 {
		return neutralFit
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return round3(clamp01(sum / float64(len(scores))))
}

func networkImpactScore(p ProviderCostResult, all []ProviderCostResult) float64 {
	egress := make([]float64, len(all))
	for i, r := range all {
		egress[i] = r.Breakdown.NetworkEgress
	}
	lo, hi := bounds(egress)
	relative := normalizeInverse(p.Breakdown.NetworkEgress, lo, hi)

	ratio := 1.0
	if p.Summary.MonthlyTotal > 0 {
		ratio = p.Breakdown.NetworkEgress / p.Summary.MonthlyTotal
	}
	return round3(clamp01(0.7*relative + 0.3*clamp01(1-ratio)))
}

func savingsRatio(p ProviderCostResult, opt *ProviderOptimization) float64 {
	if opt == nil || len(opt.Recommendations) == 0 || p.Summary.MonthlyTotal <= 0 {
		return 0
	}
	total := 0.0
	for _, r := range opt.Recommendations {
		total += r.EstimatedMonthlySavings
	}
	return math.Min(maxSavingsRatio, total/p.Summary.MonthlyTotal)
}

func optimizationSavingsScore(p ProviderCostResult, all []ProviderCostResult, byProvider map[models.Provider]*ProviderOptimization) float64 {
	ratios := make([]float64, len(all))
	for i, r := range all {
		ratios[i] = savingsRatio(r, byProvider[r.Provider])
	}
	lo, hi := bounds(ratios)
	return round3(normalizeDirect(savingsRatio(p, byProvider[p.Provider]), lo, hi))
}

// mergeOptimizations indexes optimization advice by provider. Entries from the
// request-level list replace those embedded in provider results.
func mergeOptimizations(req Request) map[models.Provider]*ProviderOptimization {
	out := map[models.Provider]*ProviderOptimization{}
	for _, r := range req.ProviderResults {
		if r.Optimization != nil {
			out[r.Provider] = r.Optimization
		}
	}
	for i := range req.OptimizationRecommendations {
		o := req.OptimizationRecommendations[i]
		out[o.Provider] = &o
	}
	return out
}

func weightedScore(s ScoreBreakdown) float64 {
	return round3(clamp01(
		weightTotalCost*s.TotalCostScore +
			weightInstanceFit*s.InstanceFitScore +
			weightNetworkImpact*s.NetworkImpactScore +
			weightOptimizationSavings*s.OptimizationSavingsScore,
	))
}

func scoreProvider(p ProviderCostResult, all []ProviderCostResult, byProvider map[models.Provider]*ProviderOptimization) ProviderScore {
	s := ScoreBreakdown{
		TotalCostScore:           totalCostScore(p, all),
		InstanceFitScore:         instanceFitScore(p),
		NetworkImpactScore:       networkImpactScore(p, all),
		OptimizationSavingsScore: optimizationSavingsScore(p, all, byProvider),
	}
	s.WeightedScore = weightedScore(s)
	return ProviderScore{
		Provider:     p.Provider,
		Region:       p.Region,
		MonthlyTotal: p.Summary.MonthlyTotal,
		Score:        s,
	}
}

// confidence rates how decisively the top candidate wins.
func confidence(ranked []ProviderScore) float64 {
	switch len(ranked) {
	case 0:
		return 0
	case 1:
		return round3(clamp01(0.75 + 0.25*ranked[0].Score.WeightedScore))
	}
	top, second := ranked[0].Score, ranked[1].Score
	margin := clamp01((top.WeightedScore - second.WeightedScore) / 0.4)
	completeness := (top.InstanceFitScore + top.NetworkImpactScore + top.TotalCostScore) / 3
	return round3(clamp01(0.45*margin + 0.35*completeness + 0.2*top.WeightedScore))
}
