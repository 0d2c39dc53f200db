package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"microcred/assessment-engine/internal/config"
	"microcred/assessment-engine/internal/models"
	"microcred/assessment-engine/internal/repositories"
)

// newTestDB opens an isolated in-memory SQLite database with the full
// schema migrated. TranslateError keeps duplicate-key detection working
// the same way as the postgres setup.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", t.Name(), uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := config.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

type testRepos struct {
	db              *gorm.DB
	assessments     repositories.AssessmentRepository
	jobs            repositories.JobRepository
	scores          repositories.ScoreRepository
	recommendations repositories.RecommendationRepository
}

func newTestRepos(t *testing.T) *testRepos {
	db := newTestDB(t)
	return &testRepos{
		db:              db,
		assessments:     repositories.NewAssessmentRepository(db),
		jobs:            repositories.NewJobRepository(db),
		scores:          repositories.NewScoreRepository(db),
		recommendations: repositories.NewRecommendationRepository(db),
	}
}

// seedAssessment creates an in-progress assessment owned by "owner-1" with
// the given snapshots.
func seedAssessment(t *testing.T, repos *testRepos, snapshots []models.QuestionSnapshot) *models.Assessment {
	t.Helper()

	expires := time.Now().Add(24 * time.Hour)
	assessment := &models.Assessment{
		ID:        uuid.New(),
		OwnerID:   "owner-1",
		RoleSlug:  "backend-engineer",
		Status:    models.AssessmentInProgress,
		ExpiresAt: &expires,
		Snapshots: snapshots,
	}
	for i := range assessment.Snapshots {
		if assessment.Snapshots[i].ID == uuid.Nil {
			assessment.Snapshots[i].ID = uuid.New()
		}
		assessment.Snapshots[i].AssessmentID = assessment.ID
		if assessment.Snapshots[i].Sequence == 0 {
			assessment.Snapshots[i].Sequence = i + 1
		}
	}
	if err := repos.assessments.Create(assessment); err != nil {
		t.Fatalf("failed to seed assessment: %v", err)
	}
	return assessment
}

func mixedSnapshots() []models.QuestionSnapshot {
	a, b, c := "A", "B", "C"
	return []models.QuestionSnapshot{
		{QuestionType: models.QuestionTheoretical, Prompt: "Q1", Weight: 1, CorrectAnswer: &a, Dimension: "api"},
		{QuestionType: models.QuestionTheoretical, Prompt: "Q2", Weight: 1, CorrectAnswer: &b, Dimension: "database"},
		{QuestionType: models.QuestionTheoretical, Prompt: "Q3", Weight: 1, CorrectAnswer: &c, Dimension: "testing"},
		{QuestionType: models.QuestionProfile, Prompt: "Q4", Weight: 1, Dimension: "tech-preferences"},
		{QuestionType: models.QuestionProfile, Prompt: "Q5", Weight: 1, Dimension: "experience-level"},
	}
}
