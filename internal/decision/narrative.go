package decision

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// formatINR renders an amount with Indian digit grouping (12,34,567.5), up to three
// fraction digits with trailing zeros removed.
func formatINR(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
	}
	formatted := strconv.FormatFloat(math.Abs(amount), 'f', 3, 64)
	parts := strings.SplitN(formatted, ".", 2)
	intPart := parts[0]
	decPart := ""
	if len(parts) == 2 {
		decPart = strings.TrimRight(parts[1], "0")
	}
	if intPart == "0" && decPart == "" {
		sign = ""
	}

	if len(intPart) > 3 {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		var builder strings.Builder
		for i, digit := range head {
			if i > 0 && (len(head)-i)%2 == 0 {
				builder.WriteByte(',')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String() + "," + tail
	}

	if decPart == "" {
		return sign + intPart
	}
	return sign + intPart + "." + decPart
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPct(v float64) string {
	return fmt.Sprintf("%d%%", int(math.Floor(v*100+0.5)))
}

func label(s ProviderScore) string {
	return strings.ToUpper(string(s.Provider))
}

func reasoning(ranked []ProviderScore) []string {
	winner := ranked[0]
	out := []string{
		fmt.Sprintf("%s is recommended because it has the highest composite score (%s) across deterministic factors.",
			label(winner), formatScore(winner.Score.WeightedScore)),
		fmt.Sprintf("Primary cost signal: monthly estimate %s INR with total-cost score %s.",
			formatINR(winner.MonthlyTotal), formatScore(winner.Score.TotalCostScore)),
		fmt.Sprintf("Technical fit and network impact: instance-fit %s, network-impact %s.",
			formatPct(winner.Score.InstanceFitScore), formatPct(winner.Score.NetworkImpactScore)),
	}
	if len(ranked) > 1 {
		second := ranked[1]
		out = append(out, fmt.Sprintf("Score margin vs next option (%s): %s.",
			label(second), formatScore(round3(winner.Score.WeightedScore-second.Score.WeightedScore))))
	}
	return out
}

func tradeoffs(ranked []ProviderScore) []string {
	winner := ranked[0]
	out := []string{}
	for _, s := range ranked[1:] {
		costDelta := s.MonthlyTotal - winner.MonthlyTotal
		direction := "more expensive"
		if costDelta < 0 {
			direction = "cheaper"
		}
		out = append(out, fmt.Sprintf("%s (%s) is %s INR/month %s than %s and trails by %s score points.",
			label(s), s.Region, formatINR(math.Abs(costDelta)), direction, label(winner),
			formatScore(round3(winner.Score.WeightedScore-s.Score.WeightedScore))))
	}
	return out
}
