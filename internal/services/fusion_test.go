package services

import (
	"strings"
	"testing"

	"microcred/assessment-engine/internal/models"
)

func TestAggregateComputesTypePercentages(t *testing.T) {
	scores := []models.Score{
		{QuestionType: models.QuestionTheoretical, Score: 100, MaxScore: 100},
		{QuestionType: models.QuestionTheoretical, Score: 0, MaxScore: 100},
		{QuestionType: models.QuestionProfile, Score: 70, MaxScore: 100},
		{QuestionType: models.QuestionEssay, Score: 90, MaxScore: 150},
	}

	summary := Aggregate(scores, nil, false)

	if summary.Theoretical.Percentage != 50 {
		t.Fatalf("expected theoretical 50%%, got %v", summary.Theoretical.Percentage)
	}
	if summary.Profile.Percentage != 70 {
		t.Fatalf("expected profile 70%%, got %v", summary.Profile.Percentage)
	}
	if summary.Essay.Percentage != 60 {
		t.Fatalf("expected essay 60%%, got %v", summary.Essay.Percentage)
	}
	// 260 of 450 total.
	if summary.OverallPct != 57.8 {
		t.Fatalf("expected overall 57.8%%, got %v", summary.OverallPct)
	}
}

func TestAggregateHandlesZeroMax(t *testing.T) {
	summary := Aggregate(nil, nil, false)
	if summary.OverallPct != 0 {
		t.Fatalf("expected 0%% with no scores, got %v", summary.OverallPct)
	}
	if summary.Theoretical.Percentage != 0 {
		t.Fatalf("expected 0%% theoretical, got %v", summary.Theoretical.Percentage)
	}
	if summary.Narrative == "" {
		t.Fatalf("expected a narrative even with no scores")
	}
}

func TestNarrativeTiers(t *testing.T) {
	high := Aggregate([]models.Score{
		{QuestionType: models.QuestionTheoretical, Score: 90, MaxScore: 100},
	}, nil, false)
	if !strings.HasPrefix(high.Narrative, "Excellent work.") {
		t.Fatalf("expected excellent tier, got %q", high.Narrative)
	}

	mid := Aggregate([]models.Score{
		{QuestionType: models.QuestionTheoretical, Score: 65, MaxScore: 100},
	}, nil, false)
	if !strings.HasPrefix(mid.Narrative, "Good result.") {
		t.Fatalf("expected good tier, got %q", mid.Narrative)
	}

	low := Aggregate([]models.Score{
		{QuestionType: models.QuestionTheoretical, Score: 30, MaxScore: 100},
	}, nil, false)
	if !strings.Contains(low.Narrative, "areas for development") {
		t.Fatalf("expected development tier, got %q", low.Narrative)
	}
}

func TestNarrativeListsTopThreeItems(t *testing.T) {
	items := []models.RecommendationItem{
		{Rank: 1, CourseTitle: "Course A", MatchReason: "strong fit"},
		{Rank: 2, CourseTitle: "Course B"},
		{Rank: 3, CourseTitle: "Course C"},
		{Rank: 4, CourseTitle: "Course D"},
	}
	summary := Aggregate(nil, items, false)

	if !strings.Contains(summary.Narrative, "1. Course A: strong fit") {
		t.Fatalf("expected first item with reason, got %q", summary.Narrative)
	}
	if !strings.Contains(summary.Narrative, "3. Course C") {
		t.Fatalf("expected third item, got %q", summary.Narrative)
	}
	if strings.Contains(summary.Narrative, "Course D") {
		t.Fatalf("narrative should cap at three items, got %q", summary.Narrative)
	}
}

func TestNarrativeDegradedDisclaimer(t *testing.T) {
	degraded := Aggregate(nil, nil, true)
	if !strings.Contains(degraded.Narrative, "fallback path") {
		t.Fatalf("expected degraded note, got %q", degraded.Narrative)
	}

	clean := Aggregate(nil, nil, false)
	if strings.Contains(clean.Narrative, "fallback path") {
		t.Fatalf("did not expect degraded note, got %q", clean.Narrative)
	}
}

func TestBreakdownJSONShape(t *testing.T) {
	summary := Aggregate([]models.Score{
		{QuestionType: models.QuestionEssay, Score: 50, MaxScore: 100},
	}, nil, false)

	breakdown := summary.BreakdownJSON()
	for _, key := range []string{"theoretical", "profile", "essay", "overall"} {
		if _, ok := breakdown[key]; !ok {
			t.Fatalf("breakdown is missing %q", key)
		}
	}
	essay, ok := breakdown["essay"].(map[string]interface{})
	if !ok {
		t.Fatalf("essay section has wrong type %T", breakdown["essay"])
	}
	if essay["percentage"] != 50.0 {
		t.Fatalf("expected essay percentage 50, got %v", essay["percentage"])
	}
}
