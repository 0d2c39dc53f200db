package repositories

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"microcred/assessment-engine/internal/models"
)

type ScoreRepository interface {
	WithTx(tx *gorm.DB) ScoreRepository
	Create(score *models.Score) error
	Upsert(score *models.Score) error
	FindByAssessment(assessmentID uuid.UUID) ([]models.Score, error)
}

type scoreRepository struct {
	db *gorm.DB
}

func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

// WithTx implements ScoreRepository.
func (r *scoreRepository) WithTx(tx *gorm.DB) ScoreRepository {
	return &scoreRepository{db: tx}
}

// Create implements ScoreRepository.
func (r *scoreRepository) Create(score *models.Score) error {
	if score.ID == uuid.Nil {
		score.ID = uuid.New()
	}
	if err := r.db.Create(score).Error; err != nil {
		return fmt.Errorf("failed to create score: %w", err)
	}
	return nil
}

// Upsert implements ScoreRepository. Keeps one score per question across
// pipeline retries.
func (r *scoreRepository) Upsert(score *models.Score) error {
	var existing models.Score
	err := r.db.
		Where("assessment_id = ? AND question_snapshot_id = ?", score.AssessmentID, score.QuestionSnapshotID).
		First(&existing).Error
	if err == nil {
		score.ID = existing.ID
		score.CreatedAt = existing.CreatedAt
		if err := r.db.Save(score).Error; err != nil {
			return fmt.Errorf("failed to update score: %w", err)
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up score: %w", err)
	}
	return r.Create(score)
}

// FindByAssessment implements ScoreRepository.
func (r *scoreRepository) FindByAssessment(assessmentID uuid.UUID) ([]models.Score, error) {
	var scores []models.Score
	err := r.db.
		Where("assessment_id = ?", assessmentID).
		Order("created_at ASC").
		Find(&scores).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find scores: %w", err)
	}
	return scores, nil
}
