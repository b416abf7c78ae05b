// Package score holds the three scoring formulas used by codeguard. They answer
// different questions and are kept separate on purpose.
package score

import "math"

const DefaultAggregateScore = 85

type Trend string

const (
	TrendNone      Trend = "none"
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// AnalysisScore is the per-analysis score: 100 minus 10 per finding, floored at 0.
func AnalysisScore(findingCount int) int {
	return clamp(100 - 10*findingCount)
}

// AggregateScore is the rounded mean of historical per-analysis scores. A user with no
// history gets defaultScore instead of 0.
func AggregateScore(scores []int, defaultScore int) int {
	if len(scores) == 0 {
		return clamp(defaultScore)
	}
	sum := 0
	for _, s := range scores {
		sum += clamp(s)
	}
	return clamp(int(math.Round(float64(sum) / float64(len(scores)))))
}

// StatsUpdate is what one analysis contributes to the submitting user's profile.
type StatsUpdate struct {
	PointsGained  int `json:"pointsGained"`
	SecurityScore int `json:"newSecurityScore"`
}

// UserStatsUpdate: 10 points plus 5 per finding, profile score 100 minus 3 per finding.
func UserStatsUpdate(findingCount int) StatsUpdate {
	if findingCount < 0 {
		findingCount = 0
	}
	return StatsUpdate{
		PointsGained:  10 + 5*findingCount,
		SecurityScore: clamp(100 - 3*findingCount),
	}
}

type AggregateStats struct {
	TotalAnalyses int   `json:"totalAnalyses"`
	TotalFindings int   `json:"totalFindings"`
	AverageScore  int   `json:"averageScore"`
	Trend         Trend `json:"trend"`
}

// ComputeAggregateStats summarizes a user's history. Scores are ordered oldest first.
func ComputeAggregateStats(scores []int, findingCounts []int, defaultScore int) AggregateStats {
	total := 0
	for _, c := range findingCounts {
		if c > 0 {
			total += c
		}
	}
	return AggregateStats{
		TotalAnalyses: len(scores),
		TotalFindings: total,
		AverageScore:  AggregateScore(scores, defaultScore),
		Trend:         trendOf(scores),
	}
}

// trendOf compares the latest score with the mean of the earlier ones.
func trendOf(scores []int) Trend {
	if len(scores) < 2 {
		return TrendNone
	}
	last := clamp(scores[len(scores)-1])
	prev := 0
	for _, s := range scores[:len(scores)-1] {
		prev += clamp(s)
	}
	mean := float64(prev) / float64(len(scores)-1)
	switch {
	case float64(last) > mean:
		return TrendImproving
	case float64(last) < mean:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
