package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/genai"

	"microcred/assessment-engine/internal/models"
	"microcred/assessment-engine/pkg/logger"
)

// fakeBackend replays a scripted sequence of responses and errors.
type fakeBackend struct {
	calls     int
	responses []string
	errs      []error
}

func (f *fakeBackend) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return "", errors.New("no scripted response")
}

func (f *fakeBackend) ModelName() string {
	return "fake-model"
}

func newTestClient(backend ChatBackend) *EssayScoringClient {
	return NewEssayScoringClient(backend, 3, time.Millisecond, time.Second, nil, logger.Nop())
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}

const validRubricJSON = `{
	"scores": {"relevance": 80, "depth": 60, "clarity": 70, "completeness": 90, "technical": 50},
	"total_score": 70,
	"explanation": "Solid answer with shallow technical detail."
}`

func TestEmptyAnswerShortCircuits(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(backend)

	result, err := client.Score(context.Background(), "Explain caching.", "   ", "", models.DifficultyMedium)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.calls != 0 {
		t.Fatalf("expected no backend calls, got %d", backend.calls)
	}
	if result.WeightedTotal != 0 {
		t.Fatalf("expected zero total, got %v", result.WeightedTotal)
	}
	if result.Model != "rule" {
		t.Fatalf("expected rule model marker, got %q", result.Model)
	}
	if result.Explanation != "Tidak ada jawaban yang diberikan" {
		t.Fatalf("unexpected explanation: %q", result.Explanation)
	}
}

func TestRateLimitExhaustsRetryBudget(t *testing.T) {
	backend := &fakeBackend{
		errs: []error{
			genai.APIError{Code: 429},
			genai.APIError{Code: 429},
			genai.APIError{Code: 429},
		},
	}
	client := newTestClient(backend)

	_, err := client.Score(context.Background(), "Q", "an answer", "", models.DifficultyMedium)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if backend.calls != 3 {
		t.Fatalf("expected exactly 3 calls, got %d", backend.calls)
	}
}

func TestClientErrorIsPermanent(t *testing.T) {
	backend := &fakeBackend{
		errs: []error{genai.APIError{Code: 400}},
	}
	client := newTestClient(backend)

	_, err := client.Score(context.Background(), "Q", "an answer", "", models.DifficultyMedium)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if backend.calls != 1 {
		t.Fatalf("expected no retry after a client error, got %d calls", backend.calls)
	}
}

func TestServerErrorRetriesThenSucceeds(t *testing.T) {
	backend := &fakeBackend{
		errs:      []error{genai.APIError{Code: 503}, nil},
		responses: []string{"", validRubricJSON},
	}
	client := newTestClient(backend)

	result, err := client.Score(context.Background(), "Q", "an answer", "", models.DifficultyMedium)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", backend.calls)
	}
	// Equal weights: (80+60+70+90+50)/5 = 70.
	if !almostEqual(result.WeightedTotal, 70) {
		t.Fatalf("expected weighted total 70, got %v", result.WeightedTotal)
	}
	if result.Model != "fake-model" {
		t.Fatalf("unexpected model: %q", result.Model)
	}
}

func TestParsesMarkdownFencedJSON(t *testing.T) {
	backend := &fakeBackend{
		responses: []string{"Here is the evaluation:\n```json\n" + validRubricJSON + "\n```"},
	}
	client := newTestClient(backend)

	result, err := client.Score(context.Background(), "Q", "an answer", "", models.DifficultyMedium)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Dimensions["relevance"] != 80 {
		t.Fatalf("expected relevance 80, got %v", result.Dimensions["relevance"])
	}
	if result.Explanation != "Solid answer with shallow technical detail." {
		t.Fatalf("unexpected explanation: %q", result.Explanation)
	}
}

func TestDifficultyBandsClampTotals(t *testing.T) {
	zeroScores := `{"scores": {"relevance": 0, "depth": 0, "clarity": 0, "completeness": 0, "technical": 0}, "explanation": "empty"}`

	cases := []struct {
		difficulty models.Difficulty
		want       float64
	}{
		{models.DifficultyEasy, 35},
		{models.DifficultyMedium, 20},
		{models.DifficultyHard, 0},
		// Unknown difficulty falls back to the medium band.
		{models.Difficulty(""), 20},
	}
	for _, tc := range cases {
		backend := &fakeBackend{responses: []string{zeroScores}}
		client := newTestClient(backend)

		result, err := client.Score(context.Background(), "Q", "an answer", "", tc.difficulty)
		if err != nil {
			t.Fatalf("difficulty %q: unexpected error: %v", tc.difficulty, err)
		}
		if result.WeightedTotal != tc.want {
			t.Fatalf("difficulty %q: expected floor %v, got %v", tc.difficulty, tc.want, result.WeightedTotal)
		}
	}
}

func TestWeightNormalization(t *testing.T) {
	weights := map[string]float64{
		"relevance":    2,
		"depth":        1,
		"clarity":      1,
		"completeness": 1,
		"technical":    1,
	}
	backend := &fakeBackend{
		responses: []string{`{"scores": {"relevance": 100, "depth": 40, "clarity": 40, "completeness": 40, "technical": 40}, "explanation": "x"}`},
	}
	client := NewEssayScoringClient(backend, 3, time.Millisecond, time.Second, weights, logger.Nop())

	result, err := client.Score(context.Background(), "Q", "an answer", "", models.DifficultyHard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// (100*2 + 40*4) / 6 = 60.
	if !almostEqual(result.WeightedTotal, 60) {
		t.Fatalf("expected weighted total 60, got %v", result.WeightedTotal)
	}
}

func TestMissingScoresSectionFails(t *testing.T) {
	backend := &fakeBackend{responses: []string{`{"explanation": "no scores"}`}}
	client := newTestClient(backend)

	_, err := client.Score(context.Background(), "Q", "an answer", "", models.DifficultyMedium)
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("expected ErrExternalService for a malformed rubric, got %v", err)
	}
}
