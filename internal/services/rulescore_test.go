package services

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"microcred/assessment-engine/internal/models"
)

func theoreticalSnapshot(correct string) *models.QuestionSnapshot {
	snapshot := &models.QuestionSnapshot{
		ID:           uuid.New(),
		QuestionType: models.QuestionTheoretical,
		Weight:       1.0,
	}
	if correct != "" {
		snapshot.CorrectAnswer = &correct
	}
	return snapshot
}

func profileSnapshot(expected datatypes.JSONMap) *models.QuestionSnapshot {
	return &models.QuestionSnapshot{
		ID:             uuid.New(),
		QuestionType:   models.QuestionProfile,
		Weight:         1.0,
		ExpectedValues: expected,
	}
}

func responseWith(data datatypes.JSONMap) *models.Response {
	return &models.Response{ID: uuid.New(), Data: data}
}

func TestExactMatchCorrectAnswer(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := theoreticalSnapshot("B")

	result, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"selected_option": "B"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 100 {
		t.Fatalf("expected score 100, got %v", result.Score)
	}
	if result.Explanation != "Jawaban benar" {
		t.Fatalf("unexpected explanation: %q", result.Explanation)
	}
	if result.RulesApplied["rule"] != "exact_match" {
		t.Fatalf("unexpected rule: %v", result.RulesApplied["rule"])
	}
}

func TestExactMatchIsCaseInsensitive(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := theoreticalSnapshot("B")

	result, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"selected_option": "b"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 100 {
		t.Fatalf("expected score 100 for case-insensitive match, got %v", result.Score)
	}
}

func TestExactMatchWrongAnswer(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := theoreticalSnapshot("B")

	result, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"selected_option": "C"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 0 {
		t.Fatalf("expected score 0, got %v", result.Score)
	}
	if result.RulesApplied["is_correct"] != false {
		t.Fatalf("expected is_correct false, got %v", result.RulesApplied["is_correct"])
	}
}

func TestExactMatchWithoutCorrectAnswerDegrades(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := theoreticalSnapshot("")

	result, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"selected_option": "A"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 100 {
		t.Fatalf("expected full credit without a defined answer, got %v", result.Score)
	}
	if !result.Degraded {
		t.Fatalf("expected degraded result")
	}
	if result.RulesApplied["rule"] != "no_correct_answer_defined" {
		t.Fatalf("unexpected rule: %v", result.RulesApplied["rule"])
	}
}

func TestNoResponseScoresZero(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := theoreticalSnapshot("A")

	result, err := engine.Score(snapshot, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 0 {
		t.Fatalf("expected score 0, got %v", result.Score)
	}
	if result.Explanation != "Tidak ada jawaban" {
		t.Fatalf("unexpected explanation: %q", result.Explanation)
	}
	if result.RulesApplied["rule"] != "no_response" {
		t.Fatalf("unexpected rule: %v", result.RulesApplied["rule"])
	}
}

func TestWeightScalesMaxScore(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := theoreticalSnapshot("A")
	snapshot.Weight = 2.0

	result, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"selected_option": "A"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 200 || result.MaxScore != 200 {
		t.Fatalf("expected 200/200, got %v/%v", result.Score, result.MaxScore)
	}
}

func compoundTextExpected() datatypes.JSONMap {
	return datatypes.JSONMap{
		"type":   "compound",
		"format": "text",
		"scoring": map[string]interface{}{
			"months": map[string]interface{}{
				"ranges": []interface{}{
					map[string]interface{}{"min": 0, "max": 11, "score": 40.0},
					map[string]interface{}{"min": 12, "max": 35, "score": 70.0},
					map[string]interface{}{"min": 36, "score": 100.0},
				},
			},
			"projects": map[string]interface{}{
				"ranges": []interface{}{
					map[string]interface{}{"min": 0, "max": 2, "score": 50.0},
					map[string]interface{}{"min": 3, "score": 100.0},
				},
			},
		},
	}
}

func TestCompoundTextScoring(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := profileSnapshot(compoundTextExpected())

	result, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"answer_text": "18 bulan dan 4 project"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// months 70 and projects 100 at weight 0.5 each.
	if result.Score != 85 {
		t.Fatalf("expected score 85, got %v", result.Score)
	}
	if result.Explanation != "Pengalaman: 18 bulan, 4 project" {
		t.Fatalf("unexpected explanation: %q", result.Explanation)
	}
	parsed, ok := result.RulesApplied["parsed"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected parsed map, got %T", result.RulesApplied["parsed"])
	}
	if parsed["months"] != 18 || parsed["projects"] != 4 {
		t.Fatalf("unexpected parsed values: %v", parsed)
	}
}

func TestCompoundTextParseFailure(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := profileSnapshot(compoundTextExpected())

	result, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"answer_text": "around two years"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 0 {
		t.Fatalf("expected score 0 on parse failure, got %v", result.Score)
	}
	if result.RulesApplied["rule"] != "compound_text_parse_failed" {
		t.Fatalf("unexpected rule: %v", result.RulesApplied["rule"])
	}
}

func TestCompoundObjectScoring(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := profileSnapshot(datatypes.JSONMap{
		"type": "compound",
		"scoring": map[string]interface{}{
			"education": map[string]interface{}{
				"bachelor": 80.0,
				"master":   100.0,
			},
			"certification": map[string]interface{}{
				"yes": 100.0,
				"no":  40.0,
			},
		},
	})

	result, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{
		"education":     "master",
		"certification": "no",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Each field weighted 1/2: 100*0.5 + 40*0.5 = 70.
	if result.Score != 70 {
		t.Fatalf("expected score 70, got %v", result.Score)
	}
	if result.RulesApplied["rule"] != "compound_scoring" {
		t.Fatalf("unexpected rule: %v", result.RulesApplied["rule"])
	}
}

func TestScoringMapBranch(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := profileSnapshot(datatypes.JSONMap{
		"scoring": map[string]interface{}{
			"junior": 40.0,
			"mid":    70.0,
			"senior": 100.0,
		},
	})

	result, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"selected_option": "mid"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 70 {
		t.Fatalf("expected score 70, got %v", result.Score)
	}
	if result.RulesApplied["raw_score"] != 70.0 {
		t.Fatalf("unexpected raw_score: %v", result.RulesApplied["raw_score"])
	}
}

func TestScoringMapMissFallsBackToCompleteness(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := profileSnapshot(datatypes.JSONMap{
		"scoring": map[string]interface{}{
			"junior": 40.0,
		},
	})

	result, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"selected_option": "principal"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 100 {
		t.Fatalf("expected completeness full score, got %v", result.Score)
	}
	if result.RulesApplied["rule"] != "completeness_check" {
		t.Fatalf("unexpected rule: %v", result.RulesApplied["rule"])
	}
}

func TestAcceptedValuesAlwaysFullScore(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := profileSnapshot(datatypes.JSONMap{
		"accepted_values": []interface{}{"remote", "hybrid"},
	})

	match, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"value": "Remote"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.Score != 100 || match.RulesApplied["match"] != true {
		t.Fatalf("expected full-score match, got %v match=%v", match.Score, match.RulesApplied["match"])
	}
	if match.Explanation != "Nilai sesuai kriteria" {
		t.Fatalf("unexpected explanation: %q", match.Explanation)
	}

	mismatch, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"value": "onsite"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mismatch.Score != 100 || mismatch.RulesApplied["match"] != false {
		t.Fatalf("expected full-score mismatch, got %v match=%v", mismatch.Score, mismatch.RulesApplied["match"])
	}
	if mismatch.Explanation != "Profil terisi, tetapi tidak sesuai kriteria" {
		t.Fatalf("unexpected explanation: %q", mismatch.Explanation)
	}
}

func TestCompletenessBranch(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := profileSnapshot(nil)

	filled, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"value": "something"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filled.Score != 100 || filled.Explanation != "Profil terisi lengkap" {
		t.Fatalf("unexpected filled result: %v %q", filled.Score, filled.Explanation)
	}

	empty, err := engine.Score(snapshot, responseWith(datatypes.JSONMap{"value": ""}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty.Score != 0 || empty.Explanation != "Profil tidak lengkap" {
		t.Fatalf("unexpected empty result: %v %q", empty.Score, empty.Explanation)
	}
}

func TestEssaySnapshotHasNoRuleSpec(t *testing.T) {
	engine := NewRuleScoringEngine()
	snapshot := &models.QuestionSnapshot{
		ID:           uuid.New(),
		QuestionType: models.QuestionEssay,
	}

	if _, err := engine.Score(snapshot, nil); err == nil {
		t.Fatalf("expected an error for essay snapshots")
	}
}
