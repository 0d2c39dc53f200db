package main

import (
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"microcred/assessment-engine/internal/config"
	"microcred/assessment-engine/internal/models"
	"microcred/assessment-engine/internal/repositories"
)

// Seeds a demo assessment with a mixed question set so the submit endpoint
// can be exercised without a question-authoring service.
func main() {
	log.Println("🚀 Seeding demo assessment...")

	cfg := config.Load()

	db, err := config.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	assessmentRepo := repositories.NewAssessmentRepository(db)

	ownerID := "demo-user"
	expires := time.Now().Add(72 * time.Hour)
	correctTheory := "B"

	assessment := &models.Assessment{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		RoleSlug:  "backend-engineer",
		Status:    models.AssessmentInProgress,
		ExpiresAt: &expires,
		Snapshots: []models.QuestionSnapshot{
			{
				ID:            uuid.New(),
				Sequence:      1,
				QuestionType:  models.QuestionTheoretical,
				Prompt:        "Which HTTP status code signals that a resource was created?",
				Weight:        1.0,
				Difficulty:    models.DifficultyEasy,
				CorrectAnswer: &correctTheory,
			},
			{
				ID:           uuid.New(),
				Sequence:     2,
				QuestionType: models.QuestionProfile,
				Prompt:       "How many months of professional experience and completed projects do you have?",
				Weight:       1.0,
				Dimension:    "experience",
				ExpectedValues: datatypes.JSONMap{
					"type":   "compound",
					"format": "text",
					"scoring": map[string]interface{}{
						"months": map[string]interface{}{
							"ranges": []interface{}{
								map[string]interface{}{"min": 0, "max": 11, "score": 40},
								map[string]interface{}{"min": 12, "max": 35, "score": 70},
								map[string]interface{}{"min": 36, "score": 100},
							},
						},
						"projects": map[string]interface{}{
							"ranges": []interface{}{
								map[string]interface{}{"min": 0, "max": 2, "score": 50},
								map[string]interface{}{"min": 3, "score": 100},
							},
						},
					},
				},
			},
			{
				ID:           uuid.New(),
				Sequence:     3,
				QuestionType: models.QuestionProfile,
				Prompt:       "Which technologies do you prefer to work with?",
				Weight:       1.0,
				Dimension:    "tech-preferences",
			},
			{
				ID:           uuid.New(),
				Sequence:     4,
				QuestionType: models.QuestionEssay,
				Prompt:       "Describe how you would design a rate limiter for a public API.",
				Weight:       1.5,
				Difficulty:   models.DifficultyMedium,
			},
		},
	}

	if err := assessmentRepo.Create(assessment); err != nil {
		log.Fatalf("❌ Failed to create assessment: %v", err)
	}

	log.Printf("✅ Assessment created: %s", assessment.ID)
	log.Printf("   Owner: %s (send as X-Owner-ID header)", ownerID)
	log.Printf("   Questions: %d", len(assessment.Snapshots))
	log.Printf("   Submit: POST /api/v1/assessments/%s/submit", assessment.ID)
}
