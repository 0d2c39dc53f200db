package models

// ResponsePatch is one answer supplied with a submission. The payload keys
// accepted mirror what different frontends send; normalization picks the
// right one per question type.
type ResponsePatch struct {
	QuestionID     string `json:"question_id"`
	SelectedOption string `json:"selected_option,omitempty"`
	Answer         string `json:"answer,omitempty"`
	AnswerText     string `json:"answer_text,omitempty"`
	Value          string `json:"value,omitempty"`
}

type SubmitRequest struct {
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Responses      []ResponsePatch `json:"responses,omitempty"`
}

// TypeScoreSummary is the per-question-type score total in a submission
// result.
type TypeScoreSummary struct {
	Total      float64 `json:"total"`
	Max        float64 `json:"max"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type SubmissionResult struct {
	AssessmentID string                      `json:"assessment_id"`
	Status       string                      `json:"status"`
	SubmittedAt  string                      `json:"submitted_at"`
	Degraded     bool                        `json:"degraded"`
	Scores       map[string]TypeScoreSummary `json:"scores"`
	EssayCount   int                         `json:"essay_count"`
	JobsQueued   []string                    `json:"jobs_queued"`
}

type StageProgress struct {
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Percentage float64 `json:"percentage"`
}

type JobProgress struct {
	JobType     string  `json:"job_type"`
	Status      string  `json:"status"`
	Attempts    int     `json:"attempts"`
	MaxAttempts int     `json:"max_attempts"`
	StartedAt   *string `json:"started_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	Error       string  `json:"error,omitempty"`
}

type StatusResult struct {
	AssessmentID    string          `json:"assessment_id"`
	Status          string          `json:"status"`
	SubmittedAt     *string         `json:"submitted_at,omitempty"`
	CompletedAt     *string         `json:"completed_at,omitempty"`
	Degraded        bool            `json:"degraded"`
	OverallProgress float64         `json:"overall_progress"`
	Stages          []StageProgress `json:"stages"`
	Jobs            []JobProgress   `json:"jobs"`
	WebhookURL      string          `json:"webhook_url,omitempty"`
}

type WebhookRequest struct {
	URL string `json:"url"`
}

type WebhookRegistration struct {
	AssessmentID string `json:"assessment_id"`
	WebhookURL   string `json:"webhook_url"`
	RegisteredAt string `json:"registered_at"`
}

type ResultItem struct {
	Rank           int            `json:"rank"`
	CourseID       string         `json:"course_id"`
	CourseTitle    string         `json:"course_title"`
	CourseURL      string         `json:"course_url,omitempty"`
	RelevanceScore float64        `json:"relevance_score"`
	MatchReason    string         `json:"match_reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type ResultResponse struct {
	AssessmentID         string         `json:"assessment_id"`
	Status               string         `json:"status"`
	Completed            bool           `json:"completed"`
	Message              string         `json:"message,omitempty"`
	Summary              string         `json:"summary,omitempty"`
	OverallScore         float64        `json:"overall_score,omitempty"`
	ScoreBreakdown       map[string]any `json:"score_breakdown,omitempty"`
	Recommendations      []ResultItem   `json:"recommendations,omitempty"`
	RetrievalTrace       map[string]any `json:"retrieval_trace,omitempty"`
	Degraded             bool           `json:"degraded"`
	ProcessingDurationMS int            `json:"processing_duration_ms,omitempty"`
	CompletedAt          string         `json:"completed_at,omitempty"`
}
