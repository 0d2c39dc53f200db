package repositories

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"microcred/assessment-engine/internal/models"
)

type RecommendationRepository interface {
	WithTx(tx *gorm.DB) RecommendationRepository
	FindByAssessment(assessmentID uuid.UUID) (*models.Recommendation, error)
	Save(recommendation *models.Recommendation) error
	ReplaceItems(recommendationID uuid.UUID, items []models.RecommendationItem) error
}

type recommendationRepository struct {
	db *gorm.DB
}

func NewRecommendationRepository(db *gorm.DB) RecommendationRepository {
	return &recommendationRepository{db: db}
}

// WithTx implements RecommendationRepository.
func (r *recommendationRepository) WithTx(tx *gorm.DB) RecommendationRepository {
	return &recommendationRepository{db: tx}
}

// FindByAssessment implements RecommendationRepository.
func (r *recommendationRepository) FindByAssessment(assessmentID uuid.UUID) (*models.Recommendation, error) {
	var recommendation models.Recommendation
	err := r.db.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("rank ASC")
		}).
		Where("assessment_id = ?", assessmentID).
		First(&recommendation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find recommendation: %w", err)
	}
	return &recommendation, nil
}

// Save implements RecommendationRepository. Upserts on assessment so the
// rag stage can write retrieval output and fusion can finalize it later.
func (r *recommendationRepository) Save(recommendation *models.Recommendation) error {
	existing, err := r.FindByAssessment(recommendation.AssessmentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil {
		recommendation.ID = existing.ID
		recommendation.CreatedAt = existing.CreatedAt
	} else if recommendation.ID == uuid.Nil {
		recommendation.ID = uuid.New()
	}
	items := recommendation.Items
	recommendation.Items = nil
	if err := r.db.Save(recommendation).Error; err != nil {
		return fmt.Errorf("failed to save recommendation: %w", err)
	}
	recommendation.Items = items
	if items != nil {
		return r.ReplaceItems(recommendation.ID, items)
	}
	return nil
}

// ReplaceItems implements RecommendationRepository.
func (r *recommendationRepository) ReplaceItems(recommendationID uuid.UUID, items []models.RecommendationItem) error {
	err := r.db.
		Where("recommendation_id = ?", recommendationID).
		Delete(&models.RecommendationItem{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear recommendation items: %w", err)
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		items[i].RecommendationID = recommendationID
	}
	if len(items) == 0 {
		return nil
	}
	if err := r.db.Create(&items).Error; err != nil {
		return fmt.Errorf("failed to create recommendation items: %w", err)
	}
	return nil
}
