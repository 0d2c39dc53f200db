package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"microcred/assessment-engine/internal/models"
)

const essayMaxScore = 100.0

// ChatBackend is the narrow surface of the external scoring backend. The
// production implementation wraps the Gemini API; tests substitute a fake.
type ChatBackend interface {
	Complete(ctx context.Context, prompt string, temperature float32) (string, error)
	ModelName() string
}

type geminiBackend struct {
	client *genai.Client
	model  string
}

func NewGeminiBackend(ctx context.Context, apiKey, model string) (ChatBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiBackend{client: client, model: model}, nil
}

// Complete implements ChatBackend.
func (b *geminiBackend) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: 1024,
	}
	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), config)
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Text() == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return resp.Text(), nil
}

// ModelName implements ChatBackend.
func (b *geminiBackend) ModelName() string {
	return b.model
}

// RubricScores is the parsed outcome of scoring one essay.
type RubricScores struct {
	Dimensions    map[string]float64
	WeightedTotal float64
	MaxScore      float64
	Explanation   string
	Model         string
	LatencyMS     int
}

// DifficultyBand clamps a weighted essay total. Easier questions get a
// higher floor so a genuine attempt is never scored near zero.
type DifficultyBand struct {
	Floor   float64
	Ceiling float64
}

func DefaultDifficultyBands() map[models.Difficulty]DifficultyBand {
	return map[models.Difficulty]DifficultyBand{
		models.DifficultyEasy:   {Floor: 35, Ceiling: 100},
		models.DifficultyMedium: {Floor: 20, Ceiling: 100},
		models.DifficultyHard:   {Floor: 0, Ceiling: 100},
	}
}

func DefaultRubricWeights() map[string]float64 {
	weights := make(map[string]float64, len(rubricDimensions))
	for _, dim := range rubricDimensions {
		weights[dim] = 1.0
	}
	return weights
}

// EssayScoringClient scores essay answers through the external rubric
// backend with bounded retries and exponential backoff.
type EssayScoringClient struct {
	backend    ChatBackend
	prompts    *PromptBuilder
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
	weights    map[string]float64
	bands      map[models.Difficulty]DifficultyBand
	logger     *zap.Logger
}

func NewEssayScoringClient(
	backend ChatBackend,
	maxRetries int,
	baseDelay time.Duration,
	timeout time.Duration,
	weights map[string]float64,
	logger *zap.Logger,
) *EssayScoringClient {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if len(weights) == 0 {
		weights = DefaultRubricWeights()
	}
	return &EssayScoringClient{
		backend:    backend,
		prompts:    NewPromptBuilder(),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		timeout:    timeout,
		weights:    normalizeWeights(weights),
		bands:      DefaultDifficultyBands(),
		logger:     logger,
	}
}

// Score evaluates one essay answer. An empty answer short-circuits to zero
// without calling the backend.
func (c *EssayScoringClient) Score(
	ctx context.Context,
	question string,
	answer string,
	referenceAnswer string,
	difficulty models.Difficulty,
) (*RubricScores, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		dims := make(map[string]float64, len(rubricDimensions))
		for _, dim := range rubricDimensions {
			dims[dim] = 0
		}
		return &RubricScores{
			Dimensions:    dims,
			WeightedTotal: 0,
			MaxScore:      essayMaxScore,
			Explanation:   "Tidak ada jawaban yang diberikan",
			Model:         "rule",
		}, nil
	}

	prompt := c.prompts.BuildEssayPrompt(question, answer, referenceAnswer)

	var raw string
	var latency time.Duration
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		response, err := c.backend.Complete(callCtx, prompt, 0)
		latency = time.Since(start)
		cancel()

		if err == nil {
			raw = response
			lastErr = nil
			break
		}

		classified := classifyBackendError(err)
		if errors.Is(classified, ErrInvalidRequest) {
			return nil, classified
		}
		lastErr = classified

		c.logger.Warn("essay scoring attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.maxRetries),
			zap.Error(err),
		)

		if attempt < c.maxRetries {
			if err := sleepContext(ctx, c.baseDelay<<(attempt-1)); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
			}
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	dims, explanation, err := parseRubricResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	total := 0.0
	for dim, weight := range c.weights {
		total += dims[dim] * weight
	}
	total = c.clampToBand(total, difficulty)

	return &RubricScores{
		Dimensions:    dims,
		WeightedTotal: total,
		MaxScore:      essayMaxScore,
		Explanation:   explanation,
		Model:         c.backend.ModelName(),
		LatencyMS:     int(latency.Milliseconds()),
	}, nil
}

func (c *EssayScoringClient) clampToBand(total float64, difficulty models.Difficulty) float64 {
	band, ok := c.bands[difficulty]
	if !ok {
		band = c.bands[models.DifficultyMedium]
	}
	if total < band.Floor {
		return band.Floor
	}
	if total > band.Ceiling {
		return band.Ceiling
	}
	return total
}

// classifyBackendError maps backend failures onto the retry taxonomy:
// rate limits and server errors are retryable, other client errors are
// permanent, timeouts retry until the budget runs out.
func classifyBackendError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	} else if errors.As(err, &apiErrPtr) {
		code = apiErrPtr.Code
	}

	switch {
	case code == 429:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case code >= 500:
		return fmt.Errorf("%w: %v", ErrExternalService, err)
	case code >= 400:
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%w: %v", ErrExternalService, err)
	}
}

type rubricResponse struct {
	Scores      map[string]float64 `json:"scores"`
	TotalScore  float64            `json:"total_score"`
	Explanation string             `json:"explanation"`
}

func parseRubricResponse(raw string) (map[string]float64, string, error) {
	var parsed rubricResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, "", fmt.Errorf("invalid rubric JSON: %v", err)
	}
	if parsed.Scores == nil {
		return nil, "", fmt.Errorf("rubric response is missing scores")
	}

	dims := make(map[string]float64, len(rubricDimensions))
	for _, dim := range rubricDimensions {
		dims[dim] = clamp(parsed.Scores[dim], 0, essayMaxScore)
	}
	return dims, parsed.Explanation, nil
}

// extractJSON pulls a JSON object out of text that may carry markdown
// fences or prose around it.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

func normalizeWeights(weights map[string]float64) map[string]float64 {
	sum := 0.0
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	normalized := make(map[string]float64, len(weights))
	if sum == 0 {
		equal := 1.0 / float64(len(rubricDimensions))
		for _, dim := range rubricDimensions {
			normalized[dim] = equal
		}
		return normalized
	}
	for dim, w := range weights {
		if w > 0 {
			normalized[dim] = w / sum
		}
	}
	return normalized
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
