package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"microcred/assessment-engine/internal/models"
	"microcred/assessment-engine/internal/repositories"
)

// Stage weights for overall progress. Rule scoring is synchronous and
// counts as complete the moment the assessment leaves draft.
var stageWeights = map[string]float64{
	"rule_score": 0.25,
	"gpt":        0.35,
	"rag":        0.25,
	"fusion":     0.15,
}

// ProjectStatus derives stage-by-stage progress and the weighted overall
// percentage from an assessment and its job rows. Pure.
func ProjectStatus(assessment *models.Assessment, jobs []models.AsyncJob) models.StatusResult {
	submitted := assessment.Status.Terminal()

	jobInfos := make([]models.JobProgress, 0, len(jobs))
	jobByType := make(map[models.JobType]*models.AsyncJob, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		jobByType[job.JobType] = job
		jobInfos = append(jobInfos, models.JobProgress{
			JobType:     string(job.JobType),
			Status:      string(job.Status),
			Attempts:    job.Attempts,
			MaxAttempts: job.MaxAttempts,
			StartedAt:   formatTimePtr(job.StartedAt),
			CompletedAt: formatTimePtr(job.CompletedAt),
			Error:       jobErrorMessage(job),
		})
	}

	stages := make([]models.StageProgress, 0, 4)
	ruleStatus := "pending"
	rulePct := 0.0
	if submitted {
		ruleStatus = "completed"
		rulePct = 100.0
	}
	stages = append(stages, models.StageProgress{Name: "rule_score", Status: ruleStatus, Percentage: rulePct})

	for _, jobType := range models.PipelineOrder {
		stages = append(stages, stageProgress(jobType, jobByType[jobType], submitted))
	}

	overall := 0.0
	if assessment.Status == models.AssessmentCompleted {
		overall = 100.0
	} else {
		for _, stage := range stages {
			overall += stage.Percentage * stageWeights[stage.Name]
		}
		overall = roundTo(overall, 1)
	}

	return models.StatusResult{
		AssessmentID:    assessment.ID.String(),
		Status:          string(assessment.Status),
		SubmittedAt:     formatTimePtr(assessment.SubmittedAt),
		CompletedAt:     pipelineCompletionTime(jobInfos),
		Degraded:        assessment.Degraded,
		OverallProgress: overall,
		Stages:          stages,
		Jobs:            jobInfos,
		WebhookURL:      derefString(assessment.WebhookURL),
	}
}

func stageProgress(jobType models.JobType, job *models.AsyncJob, submitted bool) models.StageProgress {
	name := string(jobType)
	if job == nil {
		status := "pending"
		if submitted {
			status = "queued"
		}
		return models.StageProgress{Name: name, Status: status, Percentage: 0}
	}

	switch job.Status {
	case models.JobCompleted:
		return models.StageProgress{Name: name, Status: "completed", Percentage: 100}
	case models.JobInProgress:
		// Partial credit grows with attempts but stays below completion.
		pct := 50.0 + float64(job.Attempts)*15.0
		if pct > 90 {
			pct = 90
		}
		return models.StageProgress{Name: name, Status: "in_progress", Percentage: pct}
	case models.JobFailed:
		return models.StageProgress{Name: name, Status: "failed", Percentage: 0}
	default:
		return models.StageProgress{Name: name, Status: "queued", Percentage: 0}
	}
}

func pipelineCompletionTime(jobs []models.JobProgress) *string {
	if len(jobs) == 0 {
		return nil
	}
	var latest string
	for _, job := range jobs {
		if job.Status != "completed" && job.Status != "failed" {
			return nil
		}
		if job.CompletedAt != nil && *job.CompletedAt > latest {
			latest = *job.CompletedAt
		}
	}
	if latest == "" {
		return nil
	}
	return &latest
}

func jobErrorMessage(job *models.AsyncJob) string {
	if job.ErrorPayload == nil {
		return ""
	}
	for _, key := range []string{"message", "error"} {
		if v, ok := job.ErrorPayload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// StatusService answers progress queries and manages webhook registration
// and result delivery for the HTTP surface.
type StatusService struct {
	assessments     repositories.AssessmentRepository
	recommendations repositories.RecommendationRepository
	logger          *zap.Logger
}

func NewStatusService(
	assessments repositories.AssessmentRepository,
	recommendations repositories.RecommendationRepository,
	logger *zap.Logger,
) *StatusService {
	return &StatusService{
		assessments:     assessments,
		recommendations: recommendations,
		logger:          logger,
	}
}

// GetStatus returns weighted progress for one assessment.
func (s *StatusService) GetStatus(assessmentID uuid.UUID, callerID string) (*models.StatusResult, error) {
	assessment, err := s.assessments.FindWithJobs(assessmentID)
	if err != nil {
		return nil, err
	}
	if assessment.OwnerID != callerID {
		return nil, ErrNotOwned
	}

	result := ProjectStatus(assessment, assessment.Jobs)
	return &result, nil
}

// RegisterWebhook stores a completion callback URL on the assessment.
func (s *StatusService) RegisterWebhook(assessmentID uuid.UUID, callerID, webhookURL string) (*models.WebhookRegistration, error) {
	assessment, err := s.assessments.FindWithJobs(assessmentID)
	if err != nil {
		return nil, err
	}
	if assessment.OwnerID != callerID {
		return nil, ErrNotOwned
	}

	if err := s.assessments.SetWebhookURL(assessmentID, webhookURL); err != nil {
		return nil, fmt.Errorf("failed to register webhook: %w", err)
	}

	s.logger.Info("webhook registered",
		zap.String("assessment_id", assessmentID.String()),
		zap.String("webhook_url", webhookURL),
	)

	return &models.WebhookRegistration{
		AssessmentID: assessmentID.String(),
		WebhookURL:   webhookURL,
		RegisteredAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// GetResult returns the fused summary and ranked recommendations, or a
// still-processing placeholder when fusion has not finished yet.
func (s *StatusService) GetResult(assessmentID uuid.UUID, callerID string) (*models.ResultResponse, error) {
	assessment, err := s.assessments.FindWithJobs(assessmentID)
	if err != nil {
		return nil, err
	}
	if assessment.OwnerID != callerID {
		return nil, ErrNotOwned
	}

	recommendation, err := s.recommendations.FindByAssessment(assessmentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &models.ResultResponse{
				AssessmentID: assessmentID.String(),
				Status:       string(assessment.Status),
				Completed:    false,
				Degraded:     assessment.Degraded,
				Message:      "Results not yet available. Processing may still be in progress.",
			}, nil
		}
		return nil, err
	}

	items := make([]models.ResultItem, 0, len(recommendation.Items))
	for _, item := range recommendation.Items {
		items = append(items, models.ResultItem{
			Rank:           item.Rank,
			CourseID:       item.CourseID,
			CourseTitle:    item.CourseTitle,
			CourseURL:      item.CourseURL,
			RelevanceScore: item.RelevanceScore,
			MatchReason:    item.MatchReason,
			Metadata:       item.CourseMetadata,
		})
	}

	completedAt := ""
	if assessment.CompletedAt != nil {
		completedAt = assessment.CompletedAt.UTC().Format(time.RFC3339)
	} else {
		completedAt = recommendation.CreatedAt.UTC().Format(time.RFC3339)
	}

	return &models.ResultResponse{
		AssessmentID:         assessmentID.String(),
		Status:               string(assessment.Status),
		Completed:            assessment.Status == models.AssessmentCompleted,
		Summary:              recommendation.Summary,
		OverallScore:         recommendation.OverallScore,
		ScoreBreakdown:       recommendation.ScoreBreakdown,
		Recommendations:      items,
		RetrievalTrace:       recommendation.RetrievalTrace,
		Degraded:             assessment.Degraded || recommendation.Degraded,
		ProcessingDurationMS: recommendation.ProcessingDurationMS,
		CompletedAt:          completedAt,
	}, nil
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
