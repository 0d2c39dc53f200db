package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"microcred/assessment-engine/internal/models"
	"microcred/assessment-engine/pkg/logger"
)

func newCoordinator(repos *testRepos) *SubmissionCoordinator {
	return NewSubmissionCoordinator(repos.db, repos.assessments, repos.jobs, repos.scores, logger.Nop())
}

func fullPatchSet(assessment *models.Assessment) []models.ResponsePatch {
	answers := map[int]models.ResponsePatch{}
	for i, snapshot := range assessment.Snapshots {
		switch snapshot.QuestionType {
		case models.QuestionTheoretical:
			// Only the first question answered correctly.
			selected := "A"
			if i > 0 {
				selected = "Z"
			}
			answers[i] = models.ResponsePatch{QuestionID: snapshot.ID.String(), SelectedOption: selected}
		case models.QuestionProfile:
			answers[i] = models.ResponsePatch{QuestionID: snapshot.ID.String(), Value: "python, sql"}
		case models.QuestionEssay:
			answers[i] = models.ResponsePatch{QuestionID: snapshot.ID.String(), AnswerText: "Use layered caching."}
		}
	}
	patches := make([]models.ResponsePatch, 0, len(answers))
	for i := range assessment.Snapshots {
		patches = append(patches, answers[i])
	}
	return patches
}

func TestSubmitScoresAndQueuesJobs(t *testing.T) {
	repos := newTestRepos(t)
	assessment := seedAssessment(t, repos, mixedSnapshots())
	coordinator := newCoordinator(repos)

	result, err := coordinator.Submit(assessment.ID, "owner-1", "key-1", fullPatchSet(assessment))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if result.Status != "submitted" {
		t.Fatalf("expected submitted status, got %q", result.Status)
	}
	if result.Degraded {
		t.Fatalf("did not expect a degraded submission")
	}

	theoretical := result.Scores["theoretical"]
	if theoretical.Count != 3 || theoretical.Percentage != 33.33 {
		t.Fatalf("expected 3 theoretical at 33.33%%, got %+v", theoretical)
	}
	profile := result.Scores["profile"]
	if profile.Count != 2 || profile.Percentage != 100 {
		t.Fatalf("expected 2 profile at 100%%, got %+v", profile)
	}

	// No essays: gpt must not be queued.
	expectedJobs := []string{"rag", "fusion"}
	if len(result.JobsQueued) != len(expectedJobs) {
		t.Fatalf("expected jobs %v, got %v", expectedJobs, result.JobsQueued)
	}
	for i, jobType := range expectedJobs {
		if result.JobsQueued[i] != jobType {
			t.Fatalf("expected jobs %v, got %v", expectedJobs, result.JobsQueued)
		}
	}

	stored, err := repos.assessments.FindByID(assessment.ID)
	if err != nil {
		t.Fatalf("failed to reload assessment: %v", err)
	}
	if stored.Status != models.AssessmentSubmitted {
		t.Fatalf("expected persisted status submitted, got %q", stored.Status)
	}
	if stored.SubmittedAt == nil {
		t.Fatalf("expected a submission timestamp")
	}

	scores, err := repos.scores.FindByAssessment(assessment.ID)
	if err != nil {
		t.Fatalf("failed to load scores: %v", err)
	}
	if len(scores) != 5 {
		t.Fatalf("expected 5 score rows, got %d", len(scores))
	}
}

func TestSubmitWithEssaysQueuesGPTJob(t *testing.T) {
	repos := newTestRepos(t)
	snapshots := append(mixedSnapshots(), models.QuestionSnapshot{
		QuestionType: models.QuestionEssay, Prompt: "Essay Q", Weight: 1.5,
		Difficulty: models.DifficultyMedium,
	})
	assessment := seedAssessment(t, repos, snapshots)
	coordinator := newCoordinator(repos)

	result, err := coordinator.Submit(assessment.ID, "owner-1", "", fullPatchSet(assessment))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if result.EssayCount != 1 {
		t.Fatalf("expected 1 essay, got %d", result.EssayCount)
	}
	if len(result.JobsQueued) != 3 || result.JobsQueued[0] != "gpt" {
		t.Fatalf("expected gpt first in %v", result.JobsQueued)
	}

	// Essays are not rule-scored at submission time.
	scores, err := repos.scores.FindByAssessment(assessment.ID)
	if err != nil {
		t.Fatalf("failed to load scores: %v", err)
	}
	for _, score := range scores {
		if score.QuestionType == models.QuestionEssay {
			t.Fatalf("essay was rule-scored at submission")
		}
	}
}

func TestSubmitMissingResponsesDegrades(t *testing.T) {
	repos := newTestRepos(t)
	assessment := seedAssessment(t, repos, mixedSnapshots())
	coordinator := newCoordinator(repos)

	// Answer only the first question.
	patches := fullPatchSet(assessment)[:1]
	result, err := coordinator.Submit(assessment.ID, "owner-1", "", patches)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Degraded {
		t.Fatalf("expected a degraded submission with missing responses")
	}
}

func TestSubmitDuplicateIdempotencyKey(t *testing.T) {
	repos := newTestRepos(t)
	first := seedAssessment(t, repos, mixedSnapshots())
	second := seedAssessment(t, repos, mixedSnapshots())
	coordinator := newCoordinator(repos)

	if _, err := coordinator.Submit(first.ID, "owner-1", "shared-key", fullPatchSet(first)); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	_, err := coordinator.Submit(second.ID, "owner-1", "shared-key", fullPatchSet(second))
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}
}

func TestSubmitRejectsWrongOwner(t *testing.T) {
	repos := newTestRepos(t)
	assessment := seedAssessment(t, repos, mixedSnapshots())
	coordinator := newCoordinator(repos)

	_, err := coordinator.Submit(assessment.ID, "intruder", "", nil)
	if !errors.Is(err, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned, got %v", err)
	}
}

func TestSubmitRejectsResubmission(t *testing.T) {
	repos := newTestRepos(t)
	assessment := seedAssessment(t, repos, mixedSnapshots())
	coordinator := newCoordinator(repos)

	if _, err := coordinator.Submit(assessment.ID, "owner-1", "", fullPatchSet(assessment)); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	_, err := coordinator.Submit(assessment.ID, "owner-1", "", nil)
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestSubmitRejectsExpiredAssessment(t *testing.T) {
	repos := newTestRepos(t)
	assessment := seedAssessment(t, repos, mixedSnapshots())

	expired := time.Now().Add(-time.Hour)
	if err := repos.assessments.Updates(assessment.ID, map[string]interface{}{"expires_at": expired}); err != nil {
		t.Fatalf("failed to expire assessment: %v", err)
	}

	coordinator := newCoordinator(repos)
	_, err := coordinator.Submit(assessment.ID, "owner-1", "", nil)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestSubmitRejectsUnknownQuestion(t *testing.T) {
	repos := newTestRepos(t)
	assessment := seedAssessment(t, repos, mixedSnapshots())
	coordinator := newCoordinator(repos)

	patches := []models.ResponsePatch{{QuestionID: uuid.NewString(), SelectedOption: "A"}}
	_, err := coordinator.Submit(assessment.ID, "owner-1", "", patches)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}

	_, err = coordinator.Submit(assessment.ID, "owner-1", "", []models.ResponsePatch{{QuestionID: "not-a-uuid"}})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse for malformed id, got %v", err)
	}
}

func TestSubmitNotFound(t *testing.T) {
	repos := newTestRepos(t)
	coordinator := newCoordinator(repos)

	_, err := coordinator.Submit(uuid.New(), "owner-1", "", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
