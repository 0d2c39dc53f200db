package services

import (
	"fmt"
	"regexp"
	"sort"

	"microcred/assessment-engine/internal/models"
)

type ScoringSpecKind string

const (
	SpecExactMatch     ScoringSpecKind = "exact_match"
	SpecScoringMap     ScoringSpecKind = "scoring_map"
	SpecCompoundText   ScoringSpecKind = "compound_text"
	SpecCompoundObject ScoringSpecKind = "compound_object"
	SpecAcceptedValues ScoringSpecKind = "accepted_values"
	SpecCompleteness   ScoringSpecKind = "completeness"
)

// defaultCompoundPattern parses answers like "6 bulan dan 3 project".
const defaultCompoundPattern = `(\d+) bulan dan (\d+) project`

// RangeBucket maps a numeric interval to a raw 0-100 score.
type RangeBucket struct {
	Min   int
	Max   int
	Score float64
}

// CompoundField is one scored field of a compound profile question. Text
// format fields score through range buckets; object format fields through a
// direct value lookup.
type CompoundField struct {
	Name   string
	Ranges []RangeBucket
	Lookup map[string]float64
	Weight float64
}

// ScoringSpec is the resolved scoring rule for one question snapshot. The
// loose JSON in expected_values is interpreted exactly once, at load time;
// the engine only ever sees one of the closed kinds above.
type ScoringSpec struct {
	Kind       ScoringSpecKind
	ScoringMap map[string]float64
	Pattern    *regexp.Regexp
	Fields     []CompoundField
	Accepted   []string
}

// ResolveScoringSpec interprets a snapshot's expected_values into a closed
// scoring rule. Essay snapshots have no rule spec; they are scored by the
// external rubric backend.
func ResolveScoringSpec(snapshot *models.QuestionSnapshot) (*ScoringSpec, error) {
	switch snapshot.QuestionType {
	case models.QuestionTheoretical:
		return &ScoringSpec{Kind: SpecExactMatch}, nil
	case models.QuestionEssay:
		return nil, fmt.Errorf("essay snapshot %s has no rule scoring spec", snapshot.ID)
	}

	expected := snapshot.ExpectedValues
	if len(expected) == 0 {
		return &ScoringSpec{Kind: SpecCompleteness}, nil
	}

	if kind, _ := expected["type"].(string); kind == "compound" {
		return resolveCompoundSpec(expected)
	}

	if raw, ok := expected["scoring"]; ok {
		scoringMap, err := toScoreMap(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid scoring map: %w", err)
		}
		return &ScoringSpec{Kind: SpecScoringMap, ScoringMap: scoringMap}, nil
	}

	if accepted := toStringList(expected["accepted_values"]); len(accepted) > 0 {
		return &ScoringSpec{Kind: SpecAcceptedValues, Accepted: accepted}, nil
	}

	return &ScoringSpec{Kind: SpecCompleteness}, nil
}

func resolveCompoundSpec(expected map[string]interface{}) (*ScoringSpec, error) {
	scoring, _ := expected["scoring"].(map[string]interface{})
	if len(scoring) == 0 {
		return nil, fmt.Errorf("compound spec has no scoring section")
	}
	weights, _ := expected["weight"].(map[string]interface{})
	format, _ := expected["format"].(string)

	fieldNames := compoundFieldOrder(scoring)
	defaultWeight := 1.0 / float64(len(fieldNames))

	if format == "text" {
		pattern := defaultCompoundPattern
		if p, ok := expected["pattern"].(string); ok && p != "" {
			pattern = p
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid compound pattern %q: %w", pattern, err)
		}

		fields := make([]CompoundField, 0, len(fieldNames))
		for _, name := range fieldNames {
			fieldSpec, _ := scoring[name].(map[string]interface{})
			ranges, err := toRangeBuckets(fieldSpec["ranges"])
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			fields = append(fields, CompoundField{
				Name:   name,
				Ranges: ranges,
				Weight: fieldWeight(weights, name, 0.5),
			})
		}
		return &ScoringSpec{Kind: SpecCompoundText, Pattern: re, Fields: fields}, nil
	}

	fields := make([]CompoundField, 0, len(fieldNames))
	for _, name := range fieldNames {
		lookup, err := toScoreMap(scoring[name])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		fields = append(fields, CompoundField{
			Name:   name,
			Lookup: lookup,
			Weight: fieldWeight(weights, name, defaultWeight),
		})
	}
	return &ScoringSpec{Kind: SpecCompoundObject, Fields: fields}, nil
}

// compoundFieldOrder keeps capture-group alignment stable for the text
// format: months fills group 1, projects group 2. Other field names sort
// alphabetically after them.
func compoundFieldOrder(scoring map[string]interface{}) []string {
	names := make([]string, 0, len(scoring))
	for name := range scoring {
		if name != "months" && name != "projects" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	ordered := make([]string, 0, len(scoring))
	if _, ok := scoring["months"]; ok {
		ordered = append(ordered, "months")
	}
	if _, ok := scoring["projects"]; ok {
		ordered = append(ordered, "projects")
	}
	return append(ordered, names...)
}

func fieldWeight(weights map[string]interface{}, name string, fallback float64) float64 {
	if weights == nil {
		return fallback
	}
	if w, ok := toFloat(weights[name]); ok {
		return w
	}
	return fallback
}

func toRangeBuckets(raw interface{}) ([]RangeBucket, error) {
	list, ok := raw.([]interface{})
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("missing range buckets")
	}
	buckets := make([]RangeBucket, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("range bucket is not an object")
		}
		bucket := RangeBucket{Min: 0, Max: 999}
		if v, ok := toFloat(m["min"]); ok {
			bucket.Min = int(v)
		}
		if v, ok := toFloat(m["max"]); ok {
			bucket.Max = int(v)
		}
		if v, ok := toFloat(m["score"]); ok {
			bucket.Score = v
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nil
}

func toScoreMap(raw interface{}) (map[string]float64, error) {
	m, ok := raw.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, fmt.Errorf("expected an option-to-score object")
	}
	out := make(map[string]float64, len(m))
	for key, value := range m {
		score, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("score for %q is not numeric", key)
		}
		out[key] = score
	}
	return out, nil
}

func toStringList(raw interface{}) []string {
	switch v := raw.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
