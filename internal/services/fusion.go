package services

import (
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"microcred/assessment-engine/internal/models"
)

// TypeTotals is the summed score for one question type.
type TypeTotals struct {
	Score      float64
	Max        float64
	Percentage float64
}

// FusionSummary is the combined outcome of all scoring stages for one
// assessment.
type FusionSummary struct {
	Theoretical  TypeTotals
	Profile      TypeTotals
	Essay        TypeTotals
	OverallScore float64
	OverallPct   float64
	Narrative    string
}

// Aggregate combines the persisted score rows and ranked recommendation
// items into a percentage breakdown and a narrative summary. Pure; never
// divides by zero.
func Aggregate(scores []models.Score, items []models.RecommendationItem, degraded bool) FusionSummary {
	var summary FusionSummary

	for i := range scores {
		score := &scores[i]
		switch score.QuestionType {
		case models.QuestionTheoretical:
			summary.Theoretical.Score += score.Score
			summary.Theoretical.Max += score.MaxScore
		case models.QuestionProfile:
			summary.Profile.Score += score.Score
			summary.Profile.Max += score.MaxScore
		case models.QuestionEssay:
			summary.Essay.Score += score.Score
			summary.Essay.Max += score.MaxScore
		}
	}

	summary.Theoretical.Percentage = percentage(summary.Theoretical.Score, summary.Theoretical.Max)
	summary.Profile.Percentage = percentage(summary.Profile.Score, summary.Profile.Max)
	summary.Essay.Percentage = percentage(summary.Essay.Score, summary.Essay.Max)

	summary.OverallScore = summary.Theoretical.Score + summary.Profile.Score + summary.Essay.Score
	totalMax := summary.Theoretical.Max + summary.Profile.Max + summary.Essay.Max
	summary.OverallPct = percentage(summary.OverallScore, totalMax)

	summary.Narrative = buildNarrative(summary, items, degraded)
	return summary
}

// BreakdownJSON renders the summary as the persisted score_breakdown
// document.
func (s FusionSummary) BreakdownJSON() datatypes.JSONMap {
	section := func(t TypeTotals) map[string]interface{} {
		return map[string]interface{}{
			"score":      t.Score,
			"max":        t.Max,
			"percentage": t.Percentage,
		}
	}
	return datatypes.JSONMap{
		"theoretical": section(s.Theoretical),
		"profile":     section(s.Profile),
		"essay":       section(s.Essay),
		"overall": map[string]interface{}{
			"score":      s.OverallScore,
			"percentage": s.OverallPct,
		},
	}
}

func buildNarrative(summary FusionSummary, items []models.RecommendationItem, degraded bool) string {
	var sb strings.Builder

	switch {
	case summary.OverallPct >= 80:
		sb.WriteString(fmt.Sprintf(
			"Excellent work. Your overall score of %.1f%% shows a strong command of the assessed skills.",
			summary.OverallPct,
		))
	case summary.OverallPct >= 60:
		sb.WriteString(fmt.Sprintf(
			"Good result. Your overall score of %.1f%% shows solid fundamentals with room to grow.",
			summary.OverallPct,
		))
	default:
		sb.WriteString(fmt.Sprintf(
			"Your overall score of %.1f%% highlights several areas for development.",
			summary.OverallPct,
		))
	}

	sb.WriteString("\n\nScore breakdown:")
	if summary.Theoretical.Max > 0 {
		sb.WriteString(fmt.Sprintf("\n- Theoretical knowledge: %.1f%%", summary.Theoretical.Percentage))
	}
	if summary.Profile.Max > 0 {
		sb.WriteString(fmt.Sprintf("\n- Profile fit: %.1f%%", summary.Profile.Percentage))
	}
	if summary.Essay.Max > 0 {
		sb.WriteString(fmt.Sprintf("\n- Essay analysis: %.1f%%", summary.Essay.Percentage))
	}

	if len(items) > 0 {
		sb.WriteString("\n\nRecommended next steps:")
		limit := len(items)
		if limit > 3 {
			limit = 3
		}
		for _, item := range items[:limit] {
			sb.WriteString(fmt.Sprintf("\n%d. %s", item.Rank, item.CourseTitle))
			if item.MatchReason != "" {
				sb.WriteString(": " + item.MatchReason)
			}
		}
	}

	if degraded {
		sb.WriteString("\n\nNote: parts of this result were produced with incomplete data or a fallback path, so some scores and recommendations may be less precise than usual.")
	}

	return sb.String()
}

func percentage(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return roundTo(score/max*100, 1)
}
