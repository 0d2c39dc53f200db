package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"microcred/assessment-engine/internal/models"
)

type AssessmentRepository interface {
	WithTx(tx *gorm.DB) AssessmentRepository
	Create(assessment *models.Assessment) error
	FindByID(id uuid.UUID) (*models.Assessment, error)
	FindWithJobs(id uuid.UUID) (*models.Assessment, error)
	Updates(id uuid.UUID, updates map[string]interface{}) error
	MarkDegraded(id uuid.UUID) error
	SetWebhookURL(id uuid.UUID, url string) error
	Delete(id uuid.UUID) error
	FindRunnable(limit int) ([]uuid.UUID, error)
	SaveResponse(response *models.Response) error
}

type assessmentRepository struct {
	db *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: db}
}

// WithTx implements AssessmentRepository.
func (r *assessmentRepository) WithTx(tx *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: tx}
}

// Create implements AssessmentRepository.
func (r *assessmentRepository) Create(assessment *models.Assessment) error {
	if assessment.ID == uuid.Nil {
		assessment.ID = uuid.New()
	}
	if err := r.db.Create(assessment).Error; err != nil {
		return fmt.Errorf("failed to create assessment: %w", err)
	}
	return nil
}

// FindByID implements AssessmentRepository. Snapshots and responses are
// preloaded because submission and scoring always need both.
func (r *assessmentRepository) FindByID(id uuid.UUID) (*models.Assessment, error) {
	var assessment models.Assessment
	err := r.db.
		Preload("Snapshots", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Responses").
		Where("id = ?", id).
		First(&assessment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find assessment: %w", err)
	}
	return &assessment, nil
}

// FindWithJobs implements AssessmentRepository.
func (r *assessmentRepository) FindWithJobs(id uuid.UUID) (*models.Assessment, error) {
	var assessment models.Assessment
	err := r.db.
		Preload("Jobs", func(db *gorm.DB) *gorm.DB {
			return db.Order("queued_at ASC")
		}).
		Where("id = ?", id).
		First(&assessment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find assessment: %w", err)
	}
	return &assessment, nil
}

// Updates implements AssessmentRepository.
func (r *assessmentRepository) Updates(id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	result := r.db.Model(&models.Assessment{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return result.Error
		}
		return fmt.Errorf("failed to update assessment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDegraded implements AssessmentRepository.
func (r *assessmentRepository) MarkDegraded(id uuid.UUID) error {
	return r.Updates(id, map[string]interface{}{"degraded": true})
}

// SetWebhookURL implements AssessmentRepository.
func (r *assessmentRepository) SetWebhookURL(id uuid.UUID, url string) error {
	return r.Updates(id, map[string]interface{}{"webhook_url": url})
}

// Delete implements AssessmentRepository. Cascades to snapshots, responses,
// scores, jobs, and recommendations.
func (r *assessmentRepository) Delete(id uuid.UUID) error {
	result := r.db.Select("Snapshots", "Responses", "Scores", "Jobs", "Recommendation").
		Delete(&models.Assessment{ID: id})
	if result.Error != nil {
		return fmt.Errorf("failed to delete assessment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindRunnable implements AssessmentRepository. Returns submitted
// assessments that still have queued or retryable jobs, oldest first.
func (r *assessmentRepository) FindRunnable(limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Model(&models.AsyncJob{}).
		Distinct("async_jobs.assessment_id").
		Joins("JOIN assessments ON assessments.id = async_jobs.assessment_id").
		Where("assessments.status = ?", models.AssessmentSubmitted).
		Where(
			"async_jobs.status = ? OR (async_jobs.status = ? AND async_jobs.attempts < async_jobs.max_attempts)",
			models.JobQueued, models.JobFailed,
		).
		Limit(limit).
		Pluck("async_jobs.assessment_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find runnable assessments: %w", err)
	}
	return ids, nil
}

// SaveResponse implements AssessmentRepository. Inserts or overwrites the
// response for a snapshot.
func (r *assessmentRepository) SaveResponse(response *models.Response) error {
	if response.ID == uuid.Nil {
		response.ID = uuid.New()
	}
	response.UpdatedAt = time.Now().UTC()
	err := r.db.
		Where("question_snapshot_id = ?", response.QuestionSnapshotID).
		Assign(map[string]interface{}{
			"data":       response.Data,
			"updated_at": response.UpdatedAt,
		}).
		FirstOrCreate(response).Error
	if err != nil {
		return fmt.Errorf("failed to save response: %w", err)
	}
	return nil
}
