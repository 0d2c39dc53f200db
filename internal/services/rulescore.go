package services

import (
	"fmt"
	"strconv"
	"strings"

	"gorm.io/datatypes"

	"microcred/assessment-engine/internal/models"
)

const ruleMaxScore = 100.0

// RuleScore is the outcome of scoring one non-essay snapshot.
type RuleScore struct {
	Score        float64
	MaxScore     float64
	Explanation  string
	RulesApplied datatypes.JSONMap
	Degraded     bool
}

// RuleScoringEngine scores theoretical and profile answers synchronously at
// submission time. Stateless; essays are out of its scope entirely.
type RuleScoringEngine struct{}

func NewRuleScoringEngine() *RuleScoringEngine {
	return &RuleScoringEngine{}
}

// Score evaluates one snapshot/response pair. A nil response always scores
// zero with a no_response rule record.
func (e *RuleScoringEngine) Score(snapshot *models.QuestionSnapshot, response *models.Response) (RuleScore, error) {
	spec, err := ResolveScoringSpec(snapshot)
	if err != nil {
		return RuleScore{}, err
	}

	maxScore := ruleMaxScore * snapshot.EffectiveWeight()
	if response == nil || len(response.Data) == 0 {
		return RuleScore{
			Score:        0,
			MaxScore:     maxScore,
			Explanation:  "Tidak ada jawaban",
			RulesApplied: datatypes.JSONMap{"rule": "no_response"},
		}, nil
	}

	switch spec.Kind {
	case SpecExactMatch:
		return e.scoreExactMatch(snapshot, response, maxScore), nil
	case SpecCompoundText:
		return e.scoreCompoundText(spec, response, maxScore), nil
	case SpecCompoundObject:
		return e.scoreCompoundObject(spec, response, maxScore), nil
	case SpecScoringMap:
		return e.scoreScoringMap(spec, response, maxScore), nil
	case SpecAcceptedValues:
		return e.scoreAcceptedValues(spec, response, maxScore), nil
	default:
		return e.scoreCompleteness(response, maxScore), nil
	}
}

func (e *RuleScoringEngine) scoreExactMatch(snapshot *models.QuestionSnapshot, response *models.Response, maxScore float64) RuleScore {
	selected := response.StringField("selected_option")

	if snapshot.CorrectAnswer == nil || *snapshot.CorrectAnswer == "" {
		// Scoring cannot fail a student on an undefined key.
		return RuleScore{
			Score:       maxScore,
			MaxScore:    maxScore,
			Explanation: "Tidak ada jawaban benar yang didefinisikan",
			RulesApplied: datatypes.JSONMap{
				"rule":     "no_correct_answer_defined",
				"degraded": true,
			},
			Degraded: true,
		}
	}

	correct := *snapshot.CorrectAnswer
	isCorrect := strings.EqualFold(selected, correct)
	score := 0.0
	explanation := "Jawaban salah"
	if isCorrect {
		score = maxScore
		explanation = "Jawaban benar"
	}

	return RuleScore{
		Score:       score,
		MaxScore:    maxScore,
		Explanation: explanation,
		RulesApplied: datatypes.JSONMap{
			"rule":           "exact_match",
			"correct_answer": correct,
			"selected":       selected,
			"is_correct":     isCorrect,
		},
	}
}

func (e *RuleScoringEngine) scoreCompoundText(spec *ScoringSpec, response *models.Response, maxScore float64) RuleScore {
	answer := response.StringField("answer_text")
	if answer == "" {
		answer = response.StringField("value")
	}

	groups := spec.Pattern.FindStringSubmatch(answer)
	if groups == nil || len(groups) < len(spec.Fields)+1 {
		return RuleScore{
			Score:        0,
			MaxScore:     maxScore,
			Explanation:  "Format jawaban tidak valid",
			RulesApplied: datatypes.JSONMap{"rule": "compound_text_parse_failed"},
		}
	}

	parsed := map[string]interface{}{}
	fieldScores := map[string]interface{}{}
	fieldWeights := map[string]interface{}{}
	totalRaw := 0.0
	for i, field := range spec.Fields {
		value, err := strconv.Atoi(groups[i+1])
		if err != nil {
			return RuleScore{
				Score:        0,
				MaxScore:     maxScore,
				Explanation:  "Format jawaban tidak valid",
				RulesApplied: datatypes.JSONMap{"rule": "compound_text_parse_failed"},
			}
		}
		raw := scoreByRanges(value, field.Ranges)
		parsed[field.Name] = value
		fieldScores[field.Name] = raw
		fieldWeights[field.Name] = field.Weight
		totalRaw += raw * field.Weight
	}

	return RuleScore{
		Score:       (totalRaw / 100.0) * maxScore,
		MaxScore:    maxScore,
		Explanation: compoundTextExplanation(spec.Fields, parsed),
		RulesApplied: datatypes.JSONMap{
			"rule":      "compound_text_scoring",
			"parsed":    parsed,
			"scores":    fieldScores,
			"weights":   fieldWeights,
			"total_raw": totalRaw,
		},
	}
}

func compoundTextExplanation(fields []CompoundField, parsed map[string]interface{}) string {
	if len(fields) == 2 && fields[0].Name == "months" && fields[1].Name == "projects" {
		return fmt.Sprintf("Pengalaman: %v bulan, %v project", parsed["months"], parsed["projects"])
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", field.Name, parsed[field.Name]))
	}
	return "Pengalaman: " + strings.Join(parts, ", ")
}

func (e *RuleScoringEngine) scoreCompoundObject(spec *ScoringSpec, response *models.Response, maxScore float64) RuleScore {
	totalRaw := 0.0
	details := map[string]interface{}{}

	for _, field := range spec.Fields {
		value := response.StringField(field.Name)
		raw, ok := field.Lookup[value]
		if value == "" || !ok {
			details[field.Name] = map[string]interface{}{"value": value, "raw": 0.0, "weighted": 0.0}
			continue
		}
		weighted := raw * field.Weight
		totalRaw += weighted
		details[field.Name] = map[string]interface{}{"value": value, "raw": raw, "weighted": weighted}
	}

	return RuleScore{
		Score:       (totalRaw / 100.0) * maxScore,
		MaxScore:    maxScore,
		Explanation: fmt.Sprintf("Skor compound: %.0f%%", totalRaw),
		RulesApplied: datatypes.JSONMap{
			"rule":      "compound_scoring",
			"details":   details,
			"total_raw": totalRaw,
		},
	}
}

func (e *RuleScoringEngine) scoreScoringMap(spec *ScoringSpec, response *models.Response, maxScore float64) RuleScore {
	selected := response.StringField("selected_option")
	if selected == "" {
		selected = response.StringField("value")
	}

	if raw, ok := spec.ScoringMap[selected]; ok && selected != "" {
		return RuleScore{
			Score:       (raw / 100.0) * maxScore,
			MaxScore:    maxScore,
			Explanation: fmt.Sprintf("Skor profil: %.0f%%", raw),
			RulesApplied: datatypes.JSONMap{
				"rule":      "scoring_map",
				"selected":  selected,
				"raw_score": raw,
			},
		}
	}

	return e.scoreCompleteness(response, maxScore)
}

// scoreAcceptedValues records match/mismatch but always grants full points;
// profile answers state preference, not correctness.
func (e *RuleScoringEngine) scoreAcceptedValues(spec *ScoringSpec, response *models.Response, maxScore float64) RuleScore {
	value := response.StringField("value")
	if value == "" {
		value = response.StringField("selected_option")
	}
	if value == "" {
		return e.scoreCompleteness(response, maxScore)
	}

	normalized := strings.ToLower(value)
	match := false
	for _, accepted := range spec.Accepted {
		if strings.ToLower(accepted) == normalized {
			match = true
			break
		}
	}

	rule := "expected_values_mismatch"
	explanation := "Profil terisi, tetapi tidak sesuai kriteria"
	if match {
		rule = "expected_values_match"
		explanation = "Nilai sesuai kriteria"
	}

	return RuleScore{
		Score:       maxScore,
		MaxScore:    maxScore,
		Explanation: explanation,
		RulesApplied: datatypes.JSONMap{
			"rule":     rule,
			"accepted": spec.Accepted,
			"value":    normalized,
			"match":    match,
		},
	}
}

func (e *RuleScoringEngine) scoreCompleteness(response *models.Response, maxScore float64) RuleScore {
	hasValue := response.StringField("value") != "" ||
		response.StringField("selected_option") != "" ||
		response.StringField("answer_text") != ""

	if hasValue {
		return RuleScore{
			Score:        maxScore,
			MaxScore:     maxScore,
			Explanation:  "Profil terisi lengkap",
			RulesApplied: datatypes.JSONMap{"rule": "completeness_check", "has_value": true},
		}
	}
	return RuleScore{
		Score:        0,
		MaxScore:     maxScore,
		Explanation:  "Profil tidak lengkap",
		RulesApplied: datatypes.JSONMap{"rule": "completeness_check", "has_value": false},
	}
}

func scoreByRanges(value int, ranges []RangeBucket) float64 {
	for _, bucket := range ranges {
		if value >= bucket.Min && value <= bucket.Max {
			return bucket.Score
		}
	}
	return 0
}
