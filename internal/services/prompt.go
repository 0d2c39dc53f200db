package services

import (
	"fmt"
	"strings"
)

// Rubric dimensions scored by the external backend, in prompt order.
var rubricDimensions = []string{
	"relevance",
	"depth",
	"clarity",
	"completeness",
	"technical",
}

const essayScoringSystemPrompt = `You are an expert essay evaluator for a micro-credential assessment platform.
Your task is to score essays based on the following rubric dimensions:
- relevance (0-100): How well does the answer address the question asked
- depth (0-100): Level of analysis, critical thinking, and understanding shown
- clarity (0-100): How clearly the ideas are expressed and organized
- completeness (0-100): Whether all aspects of the question are addressed
- technical (0-100): Technical accuracy and use of appropriate terminology

For each essay, provide:
1. A score (0-100) for each dimension
2. A brief explanation for the overall score
3. A total weighted score (average of all dimensions)

Respond in JSON format only:
{
  "scores": {
    "relevance": <number>,
    "depth": <number>,
    "clarity": <number>,
    "completeness": <number>,
    "technical": <number>
  },
  "total_score": <number>,
  "explanation": "<brief explanation>"
}`

// PromptBuilder assembles deterministic rubric-scoring prompts.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildEssayPrompt combines the system rubric with the question and the
// student's answer. referenceAnswer is optional grading context.
func (p *PromptBuilder) BuildEssayPrompt(question, answer, referenceAnswer string) string {
	var sb strings.Builder
	sb.WriteString(essayScoringSystemPrompt)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("Question: %s\n\n", question))
	if referenceAnswer != "" {
		sb.WriteString(fmt.Sprintf("Reference Answer (for grading context):\n%s\n\n", referenceAnswer))
	}
	sb.WriteString(fmt.Sprintf("Student's Essay Answer:\n%s\n\n", answer))
	sb.WriteString("Please score this essay according to the rubric dimensions.")
	return sb.String()
}
