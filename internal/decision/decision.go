// Package decision ranks cloud providers from normalized cost estimates and explains
// the choice.
package decision

import (
	"sort"

	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

type Recommendation struct {
	Provider                 models.Provider `json:"provider"`
	Region                   string          `json:"region"`
	RecommendationConfidence float64         `json:"recommendationConfidence"`
	Reasoning                []string        `json:"reasoning"`
	Tradeoffs                []string        `json:"tradeoffs"`
}

type Response struct {
	Recommended     Recommendation  `json:"recommended"`
	RankedProviders []ProviderScore `json:"rankedProviders"`
}

// Analyze scores every provider result and picks the highest composite score. Equal
// scores keep request order.
func Analyze(req Request) Response {
	byProvider := mergeOptimizations(req)
	ranked := make([]ProviderScore, 0, len(req.ProviderResults))
	for _, p := range req.ProviderResults {
		ranked = append(ranked, scoreProvider(p, req.ProviderResults, byProvider))
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.WeightedScore > ranked[j].Score.WeightedScore
	})

	resp := Response{
		Recommended:     Recommendation{Reasoning: []string{}, Tradeoffs: []string{}},
		RankedProviders: ranked,
	}
	if len(ranked) == 0 {
		return resp
	}
	resp.Recommended = Recommendation{
		Provider:                 ranked[0].Provider,
		Region:                   ranked[0].Region,
		RecommendationConfidence: confidence(ranked),
		Reasoning:                reasoning(ranked),
		Tradeoffs:                tradeoffs(ranked),
	}
	return resp
}

type Service struct {
	logger *zap.Logger
}

func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger}
}

// Recommend validates a raw request body and analyzes it.
func (s *Service) Recommend(body []byte) (Response, error) {
	req, err := ParseRequest(body)
	if err != nil {
		return Response{}, err
	}
	resp := Analyze(req)
	s.logger.Info("decision recommendation generated",
		zap.Int("providerCount", len(req.ProviderResults)),
		zap.String("recommendedProvider", string(resp.Recommended.Provider)),
		zap.Float64("confidence", resp.Recommended.RecommendationConfidence),
	)
	return resp, nil
}
