package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"microcred/assessment-engine/internal/models"
	"microcred/assessment-engine/internal/repositories"
)

// Notifier delivers a completion callback to a registered webhook URL.
// Delivery is best effort; failures never affect pipeline state.
type Notifier interface {
	Notify(ctx context.Context, url string, payload interface{})
}

// JobPipelineRunner executes the async stages for one assessment in the
// fixed gpt, rag, fusion order. Safe to call repeatedly for the same
// assessment: completed stages are skipped and failed stages retry until
// their attempt budget runs out.
type JobPipelineRunner struct {
	assessments     repositories.AssessmentRepository
	jobs            repositories.JobRepository
	scores          repositories.ScoreRepository
	recommendations repositories.RecommendationRepository
	essays          *EssayScoringClient
	retrieval       *RetrievalEngine
	prompts         *PromptBuilder
	notifier        Notifier
	logger          *zap.Logger
}

func NewJobPipelineRunner(
	assessments repositories.AssessmentRepository,
	jobs repositories.JobRepository,
	scores repositories.ScoreRepository,
	recommendations repositories.RecommendationRepository,
	essays *EssayScoringClient,
	retrieval *RetrievalEngine,
	notifier Notifier,
	logger *zap.Logger,
) *JobPipelineRunner {
	return &JobPipelineRunner{
		assessments:     assessments,
		jobs:            jobs,
		scores:          scores,
		recommendations: recommendations,
		essays:          essays,
		retrieval:       retrieval,
		prompts:         NewPromptBuilder(),
		notifier:        notifier,
		logger:          logger,
	}
}

// Run walks the pipeline for one submitted assessment. A stage that fails
// permanently degrades the result but does not stop later stages; fusion
// still produces a summary from whatever scores exist.
func (r *JobPipelineRunner) Run(ctx context.Context, assessmentID uuid.UUID) error {
	assessment, err := r.assessments.FindByID(assessmentID)
	if err != nil {
		return fmt.Errorf("failed to load assessment %s: %w", assessmentID, err)
	}
	if assessment.Status != models.AssessmentSubmitted {
		r.logger.Debug("skipping pipeline run",
			zap.String("assessment_id", assessmentID.String()),
			zap.String("status", string(assessment.Status)),
		)
		return nil
	}

	for _, jobType := range models.PipelineOrder {
		job, err := r.jobs.FindByType(assessmentID, jobType)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				// gpt is only queued when the assessment has essays.
				continue
			}
			return err
		}
		if job.Status == models.JobCompleted {
			continue
		}
		if !job.Retryable() {
			r.logger.Warn("stage exhausted its attempts",
				zap.String("assessment_id", assessmentID.String()),
				zap.String("job_type", string(jobType)),
				zap.Int("attempts", job.Attempts),
			)
			continue
		}

		if err := r.runStage(ctx, assessment, job); err != nil {
			r.logger.Error("pipeline stage failed",
				zap.String("assessment_id", assessmentID.String()),
				zap.String("job_type", string(jobType)),
				zap.Int("attempt", job.Attempts),
				zap.Error(err),
			)
			if jobType == models.JobFusion {
				// Without fusion there is no final result; leave the
				// assessment submitted so a retry can finish it.
				return err
			}
			if markErr := r.assessments.MarkDegraded(assessmentID); markErr != nil {
				return markErr
			}
		}
	}
	return nil
}

func (r *JobPipelineRunner) runStage(ctx context.Context, assessment *models.Assessment, job *models.AsyncJob) error {
	if err := r.jobs.MarkInProgress(job); err != nil {
		return err
	}

	var err error
	switch job.JobType {
	case models.JobGPT:
		err = r.runEssayStage(ctx, assessment, job)
	case models.JobRAG:
		err = r.runRetrievalStage(assessment, job)
	case models.JobFusion:
		err = r.runFusionStage(ctx, assessment, job)
	default:
		err = fmt.Errorf("unknown job type %q", job.JobType)
	}
	if err != nil {
		failPayload := datatypes.JSONMap{
			"message":   err.Error(),
			"failed_at": time.Now().UTC().Format(time.RFC3339),
		}
		if markErr := r.jobs.MarkFailed(job, failPayload); markErr != nil {
			return markErr
		}
		return err
	}
	return nil
}

// runEssayStage scores each essay via the LLM rubric. A partial failure
// keeps the stage completed and degrades the assessment; only a run where
// every essay fails counts as a stage failure.
func (r *JobPipelineRunner) runEssayStage(ctx context.Context, assessment *models.Assessment, job *models.AsyncJob) error {
	responses := responsesBySnapshot(assessment.Responses)

	var scored, failed int
	var lastErr error

	for i := range assessment.Snapshots {
		snapshot := &assessment.Snapshots[i]
		if snapshot.QuestionType != models.QuestionEssay {
			continue
		}

		answer := ""
		if resp := responses[snapshot.ID]; resp != nil {
			answer = resp.StringField("answer")
		}
		reference := ""
		if snapshot.CorrectAnswer != nil {
			reference = *snapshot.CorrectAnswer
		}

		rubric, err := r.essays.Score(ctx, snapshot.Prompt, answer, reference, snapshot.Difficulty)
		if err != nil {
			failed++
			lastErr = err
			r.logger.Warn("essay scoring failed",
				zap.String("assessment_id", assessment.ID.String()),
				zap.String("snapshot_id", snapshot.ID.String()),
				zap.Error(err),
			)
			continue
		}

		weight := snapshot.EffectiveWeight()
		row := models.Score{
			AssessmentID:       assessment.ID,
			QuestionSnapshotID: snapshot.ID,
			QuestionType:       models.QuestionEssay,
			Score:              roundTo(rubric.WeightedTotal*weight, 2),
			MaxScore:           rubric.MaxScore * weight,
			Explanation:        rubric.Explanation,
			ScoringMethod:      models.ScoringMethodGPT,
			RulesApplied: datatypes.JSONMap{
				"rubric_scores": toInterfaceMap(rubric.Dimensions),
			},
			ModelInfo: datatypes.JSONMap{
				"model":      rubric.Model,
				"latency_ms": rubric.LatencyMS,
			},
		}
		if err := r.scores.Upsert(&row); err != nil {
			return err
		}
		scored++
	}

	if scored == 0 && failed > 0 {
		return fmt.Errorf("all %d essays failed to score: %w", failed, lastErr)
	}
	if failed > 0 {
		if err := r.assessments.MarkDegraded(assessment.ID); err != nil {
			return err
		}
	}

	return r.jobs.MarkCompleted(job, datatypes.JSONMap{
		"essays_scored": scored,
		"essays_failed": failed,
	})
}

// runRetrievalStage ranks catalog courses and upserts the recommendation
// shell. It never fails: an empty result set falls back to popular courses
// for the role.
func (r *JobPipelineRunner) runRetrievalStage(assessment *models.Assessment, job *models.AsyncJob) error {
	scores, err := r.scores.FindByAssessment(assessment.ID)
	if err != nil {
		return err
	}

	profileSignals := ExtractProfileSignals(assessment.Snapshots, assessment.Responses)
	essayKeywords := ExtractEssayKeywords(assessment.Snapshots, assessment.Responses)
	missedTopics := ExtractMissedTopics(scores, assessment.Snapshots)

	result := r.retrieval.Retrieve(assessment.RoleSlug, profileSignals, essayKeywords, missedTopics, 0)

	recommendation := models.Recommendation{
		AssessmentID:   assessment.ID,
		Summary:        "Pending fusion processing.",
		Degraded:       result.Degraded,
		RetrievalQuery: result.Query,
		RetrievalTrace: datatypes.JSONMap{
			"query":         result.Query,
			"match_count":   len(result.Matches),
			"degraded":      result.Degraded,
			"reason":        result.Reason,
			"missed_topics": toInterfaceSlice(missedTopics),
		},
	}
	if err := r.recommendations.Save(&recommendation); err != nil {
		return err
	}

	items := make([]models.RecommendationItem, 0, len(result.Matches))
	for i, match := range result.Matches {
		items = append(items, models.RecommendationItem{
			Rank:           i + 1,
			CourseID:       match.CourseID,
			CourseTitle:    match.Title,
			CourseURL:      match.URL,
			RelevanceScore: match.RelevanceScore,
			MatchReason:    match.MatchReason,
			CourseMetadata: datatypes.JSONMap(match.Metadata),
		})
	}
	if err := r.recommendations.ReplaceItems(recommendation.ID, items); err != nil {
		return err
	}

	if result.Degraded {
		if err := r.assessments.MarkDegraded(assessment.ID); err != nil {
			return err
		}
	}

	return r.jobs.MarkCompleted(job, datatypes.JSONMap{
		"match_count": len(result.Matches),
		"degraded":    result.Degraded,
	})
}

// runFusionStage folds every score row and the retrieval output into the
// final summary, then flips the assessment to completed and fires the
// webhook when one is registered.
func (r *JobPipelineRunner) runFusionStage(ctx context.Context, assessment *models.Assessment, job *models.AsyncJob) error {
	scores, err := r.scores.FindByAssessment(assessment.ID)
	if err != nil {
		return err
	}
	recommendation, err := r.recommendations.FindByAssessment(assessment.ID)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		// Retrieval never produced output. Fusion still runs so the
		// caller gets a score summary, just without course matches.
		recommendation = &models.Recommendation{
			AssessmentID: assessment.ID,
			Degraded:     true,
		}
		if markErr := r.assessments.MarkDegraded(assessment.ID); markErr != nil {
			return markErr
		}
	}

	// MarkDegraded calls from earlier stages are not reflected in the
	// loaded struct.
	current, err := r.assessments.FindByID(assessment.ID)
	if err != nil {
		return err
	}
	degraded := current.Degraded || recommendation.Degraded

	summary := Aggregate(scores, recommendation.Items, degraded)

	recommendation.Summary = summary.Narrative
	recommendation.OverallScore = summary.OverallPct
	recommendation.Degraded = degraded
	recommendation.ScoreBreakdown = summary.BreakdownJSON()
	recommendation.ProcessingDurationMS = processingDuration(current)
	if err := r.recommendations.Save(recommendation); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := r.assessments.Updates(assessment.ID, map[string]interface{}{
		"status":       models.AssessmentCompleted,
		"degraded":     degraded,
		"completed_at": now,
	}); err != nil {
		return err
	}

	if err := r.jobs.MarkCompleted(job, datatypes.JSONMap{
		"overall_score": summary.OverallPct,
		"degraded":      degraded,
	}); err != nil {
		return err
	}

	r.logger.Info("assessment completed",
		zap.String("assessment_id", assessment.ID.String()),
		zap.Float64("overall_score", summary.OverallPct),
		zap.Bool("degraded", degraded),
	)

	if r.notifier != nil && current.WebhookURL != nil && *current.WebhookURL != "" {
		r.notifier.Notify(ctx, *current.WebhookURL, map[string]interface{}{
			"assessment_id": assessment.ID.String(),
			"status":        string(models.AssessmentCompleted),
			"overall_score": summary.OverallPct,
			"degraded":      degraded,
			"completed_at":  now.Format(time.RFC3339),
		})
	}

	return nil
}

func processingDuration(assessment *models.Assessment) int {
	if assessment.SubmittedAt == nil {
		return 0
	}
	return int(time.Since(*assessment.SubmittedAt).Milliseconds())
}

func toInterfaceMap(in map[string]float64) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
