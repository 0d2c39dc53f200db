package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"microcred/assessment-engine/internal/models"
	"microcred/assessment-engine/internal/repositories"
)

// SubmissionCoordinator finalizes an assessment: it locks responses,
// computes rule scores synchronously, and enqueues the async pipeline.
// Everything happens in one transaction so a submitted assessment can
// never be observed without its job set.
type SubmissionCoordinator struct {
	db          *gorm.DB
	assessments repositories.AssessmentRepository
	jobs        repositories.JobRepository
	scores      repositories.ScoreRepository
	rules       *RuleScoringEngine
	logger      *zap.Logger
}

func NewSubmissionCoordinator(
	db *gorm.DB,
	assessments repositories.AssessmentRepository,
	jobs repositories.JobRepository,
	scores repositories.ScoreRepository,
	logger *zap.Logger,
) *SubmissionCoordinator {
	return &SubmissionCoordinator{
		db:          db,
		assessments: assessments,
		jobs:        jobs,
		scores:      scores,
		rules:       NewRuleScoringEngine(),
		logger:      logger,
	}
}

// Submit finalizes the assessment for the calling owner. Incomplete
// responses degrade the result but never block submission.
func (s *SubmissionCoordinator) Submit(
	assessmentID uuid.UUID,
	callerID string,
	idempotencyKey string,
	patches []models.ResponsePatch,
) (*models.SubmissionResult, error) {
	var result *models.SubmissionResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		assessments := s.assessments.WithTx(tx)
		jobs := s.jobs.WithTx(tx)
		scores := s.scores.WithTx(tx)

		assessment, err := assessments.FindByID(assessmentID)
		if err != nil {
			return err
		}
		if err := validateSubmission(assessment, callerID); err != nil {
			return err
		}

		responses, err := s.applyPatches(assessments, assessment, patches)
		if err != nil {
			return err
		}

		missingCount := countMissing(assessment.Snapshots, responses)
		degraded := missingCount > 0

		ruleScores, ruleDegraded, err := s.persistRuleScores(scores, assessment, responses)
		if err != nil {
			return err
		}
		degraded = degraded || ruleDegraded

		jobsQueued, essayCount, err := s.createJobs(jobs, assessment)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":       models.AssessmentSubmitted,
			"degraded":     degraded,
			"submitted_at": now,
		}
		if idempotencyKey != "" {
			updates["idempotency_key"] = idempotencyKey
		}
		if err := assessments.Updates(assessment.ID, updates); err != nil {
			// The unique constraint on the key is the canonical duplicate
			// signal; there is no racy pre-check.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateSubmission
			}
			return err
		}

		result = buildSubmissionResult(assessment, ruleScores, essayCount, jobsQueued, degraded, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("assessment submitted",
		zap.String("assessment_id", assessmentID.String()),
		zap.String("owner_id", callerID),
		zap.Bool("degraded", result.Degraded),
		zap.Int("essay_count", result.EssayCount),
		zap.Strings("jobs_queued", result.JobsQueued),
	)

	return result, nil
}

func validateSubmission(assessment *models.Assessment, callerID string) error {
	if assessment.OwnerID != callerID {
		return ErrNotOwned
	}
	if assessment.Status.Terminal() {
		return fmt.Errorf("%w (status: %s)", ErrAlreadySubmitted, assessment.Status)
	}
	if assessment.ExpiresAt != nil && time.Now().UTC().After(assessment.ExpiresAt.UTC()) {
		return ErrExpired
	}
	return nil
}

// applyPatches overwrites or inserts response rows from the submitted
// payload. Unknown question ids reject the whole submission.
func (s *SubmissionCoordinator) applyPatches(
	assessments repositories.AssessmentRepository,
	assessment *models.Assessment,
	patches []models.ResponsePatch,
) ([]models.Response, error) {
	responses := assessment.Responses
	if len(patches) == 0 {
		return responses, nil
	}

	snapshotMap := make(map[uuid.UUID]*models.QuestionSnapshot, len(assessment.Snapshots))
	for i := range assessment.Snapshots {
		snapshotMap[assessment.Snapshots[i].ID] = &assessment.Snapshots[i]
	}
	responseIdx := make(map[uuid.UUID]int, len(responses))
	for i := range responses {
		responseIdx[responses[i].QuestionSnapshotID] = i
	}

	for _, patch := range patches {
		questionID, err := uuid.Parse(patch.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed question_id %q", ErrInvalidResponse, patch.QuestionID)
		}
		snapshot, ok := snapshotMap[questionID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown question_id %s", ErrInvalidResponse, questionID)
		}

		data := normalizeResponsePayload(snapshot, patch)

		if idx, exists := responseIdx[questionID]; exists {
			responses[idx].Data = data
			if err := assessments.SaveResponse(&responses[idx]); err != nil {
				return nil, err
			}
			continue
		}

		response := models.Response{
			ID:                 uuid.New(),
			AssessmentID:       assessment.ID,
			QuestionSnapshotID: questionID,
			Data:               data,
		}
		if err := assessments.SaveResponse(&response); err != nil {
			return nil, err
		}
		responses = append(responses, response)
		responseIdx[questionID] = len(responses) - 1
	}

	return responses, nil
}

// normalizeResponsePayload picks the type-specific payload key, accepting
// the aliases different frontends send and trimming whitespace.
func normalizeResponsePayload(snapshot *models.QuestionSnapshot, patch models.ResponsePatch) datatypes.JSONMap {
	data := datatypes.JSONMap{}

	switch snapshot.QuestionType {
	case models.QuestionEssay:
		answer := firstNonEmpty(patch.AnswerText, patch.Answer, patch.Value)
		if answer != "" {
			data["answer"] = answer
		}
	case models.QuestionTheoretical:
		selected := firstNonEmpty(patch.SelectedOption, patch.AnswerText, patch.Value)
		if selected != "" {
			data["selected_option"] = selected
		}
	default:
		value := firstNonEmpty(patch.Value, patch.AnswerText, patch.Answer)
		if value != "" {
			data["value"] = value
		}
	}
	return data
}

func countMissing(snapshots []models.QuestionSnapshot, responses []models.Response) int {
	answered := make(map[uuid.UUID]struct{}, len(responses))
	for i := range responses {
		answered[responses[i].QuestionSnapshotID] = struct{}{}
	}
	missing := 0
	for i := range snapshots {
		if _, ok := answered[snapshots[i].ID]; !ok {
			missing++
		}
	}
	return missing
}

func (s *SubmissionCoordinator) persistRuleScores(
	scores repositories.ScoreRepository,
	assessment *models.Assessment,
	responses []models.Response,
) ([]models.Score, bool, error) {
	responseMap := responsesBySnapshot(responses)
	degraded := false
	rows := make([]models.Score, 0, len(assessment.Snapshots))

	for i := range assessment.Snapshots {
		snapshot := &assessment.Snapshots[i]
		if snapshot.QuestionType == models.QuestionEssay {
			continue
		}

		ruleScore, err := s.rules.Score(snapshot, responseMap[snapshot.ID])
		if err != nil {
			return nil, false, fmt.Errorf("failed to score snapshot %s: %w", snapshot.ID, err)
		}
		degraded = degraded || ruleScore.Degraded

		row := models.Score{
			ID:                 uuid.New(),
			AssessmentID:       assessment.ID,
			QuestionSnapshotID: snapshot.ID,
			QuestionType:       snapshot.QuestionType,
			Score:              ruleScore.Score,
			MaxScore:           ruleScore.MaxScore,
			Explanation:        ruleScore.Explanation,
			ScoringMethod:      models.ScoringMethodRule,
			RulesApplied:       ruleScore.RulesApplied,
		}
		if err := scores.Create(&row); err != nil {
			return nil, false, err
		}
		rows = append(rows, row)
	}

	return rows, degraded, nil
}

// createJobs enqueues the pipeline: gpt only when essays exist, rag and
// fusion always. The depends_on payload is bookkeeping; execution order is
// fixed.
func (s *SubmissionCoordinator) createJobs(
	jobs repositories.JobRepository,
	assessment *models.Assessment,
) ([]string, int, error) {
	essayIDs := make([]interface{}, 0)
	for i := range assessment.Snapshots {
		if assessment.Snapshots[i].QuestionType == models.QuestionEssay {
			essayIDs = append(essayIDs, assessment.Snapshots[i].ID.String())
		}
	}

	queued := make([]string, 0, 3)
	dependsOn := []interface{}{string(models.JobRAG)}

	if len(essayIDs) > 0 {
		gptJob := models.AsyncJob{
			AssessmentID: assessment.ID,
			JobType:      models.JobGPT,
			Payload: datatypes.JSONMap{
				"essay_snapshot_ids": essayIDs,
				"count":              len(essayIDs),
			},
		}
		if err := jobs.Create(&gptJob); err != nil {
			return nil, 0, err
		}
		queued = append(queued, string(models.JobGPT))
		dependsOn = []interface{}{string(models.JobGPT), string(models.JobRAG)}
	}

	ragJob := models.AsyncJob{
		AssessmentID: assessment.ID,
		JobType:      models.JobRAG,
		Payload:      datatypes.JSONMap{"role_slug": assessment.RoleSlug},
	}
	if err := jobs.Create(&ragJob); err != nil {
		return nil, 0, err
	}
	queued = append(queued, string(models.JobRAG))

	fusionJob := models.AsyncJob{
		AssessmentID: assessment.ID,
		JobType:      models.JobFusion,
		Payload:      datatypes.JSONMap{"depends_on": dependsOn},
	}
	if err := jobs.Create(&fusionJob); err != nil {
		return nil, 0, err
	}
	queued = append(queued, string(models.JobFusion))

	return queued, len(essayIDs), nil
}

func buildSubmissionResult(
	assessment *models.Assessment,
	ruleScores []models.Score,
	essayCount int,
	jobsQueued []string,
	degraded bool,
	submittedAt time.Time,
) *models.SubmissionResult {
	summary := map[string]models.TypeScoreSummary{}
	for _, qtype := range []models.QuestionType{models.QuestionTheoretical, models.QuestionProfile} {
		bucket := models.TypeScoreSummary{}
		for i := range ruleScores {
			if ruleScores[i].QuestionType != qtype {
				continue
			}
			bucket.Total += ruleScores[i].Score
			bucket.Max += ruleScores[i].MaxScore
			bucket.Count++
		}
		if bucket.Max > 0 {
			bucket.Percentage = roundTo(bucket.Total/bucket.Max*100, 2)
		}
		summary[string(qtype)] = bucket
	}

	return &models.SubmissionResult{
		AssessmentID: assessment.ID.String(),
		Status:       string(models.AssessmentSubmitted),
		SubmittedAt:  submittedAt.Format(time.RFC3339),
		Degraded:     degraded,
		Scores:       summary,
		EssayCount:   essayCount,
		JobsQueued:   jobsQueued,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
