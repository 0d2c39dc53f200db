package repositories

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"microcred/assessment-engine/internal/models"
)

type JobRepository interface {
	WithTx(tx *gorm.DB) JobRepository
	Create(job *models.AsyncJob) error
	FindByAssessment(assessmentID uuid.UUID) ([]models.AsyncJob, error)
	FindByType(assessmentID uuid.UUID, jobType models.JobType) (*models.AsyncJob, error)
	MarkInProgress(job *models.AsyncJob) error
	MarkCompleted(job *models.AsyncJob, payload datatypes.JSONMap) error
	MarkFailed(job *models.AsyncJob, errorPayload datatypes.JSONMap) error
}

type jobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

// WithTx implements JobRepository.
func (r *jobRepository) WithTx(tx *gorm.DB) JobRepository {
	return &jobRepository{db: tx}
}

// Create implements JobRepository.
func (r *jobRepository) Create(job *models.AsyncJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobQueued
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = models.DefaultMaxAttempts
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}
	if err := r.db.Create(job).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// FindByAssessment implements JobRepository. Jobs come back in pipeline
// order: gpt, rag, fusion.
func (r *jobRepository) FindByAssessment(assessmentID uuid.UUID) ([]models.AsyncJob, error) {
	var jobs []models.AsyncJob
	err := r.db.
		Where("assessment_id = ?", assessmentID).
		Order("queued_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find jobs: %w", err)
	}
	ordered := make([]models.AsyncJob, 0, len(jobs))
	for _, jobType := range models.PipelineOrder {
		for i := range jobs {
			if jobs[i].JobType == jobType {
				ordered = append(ordered, jobs[i])
			}
		}
	}
	return ordered, nil
}

// FindByType implements JobRepository.
func (r *jobRepository) FindByType(assessmentID uuid.UUID, jobType models.JobType) (*models.AsyncJob, error) {
	var job models.AsyncJob
	err := r.db.
		Where("assessment_id = ? AND job_type = ?", assessmentID, jobType).
		First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return &job, nil
}

// MarkInProgress implements JobRepository. Entering in_progress counts
// as an attempt.
func (r *jobRepository) MarkInProgress(job *models.AsyncJob) error {
	if !job.Status.CanTransition(models.JobInProgress) {
		return fmt.Errorf("job %s cannot move from %s to in_progress", job.ID, job.Status)
	}
	now := time.Now().UTC()
	job.Status = models.JobInProgress
	job.Attempts++
	job.StartedAt = &now
	return r.persist(job)
}

// MarkCompleted implements JobRepository.
func (r *jobRepository) MarkCompleted(job *models.AsyncJob, payload datatypes.JSONMap) error {
	if !job.Status.CanTransition(models.JobCompleted) {
		return fmt.Errorf("job %s cannot move from %s to completed", job.ID, job.Status)
	}
	now := time.Now().UTC()
	job.Status = models.JobCompleted
	job.Payload = payload
	job.ErrorPayload = nil
	job.CompletedAt = &now
	return r.persist(job)
}

// MarkFailed implements JobRepository.
func (r *jobRepository) MarkFailed(job *models.AsyncJob, errorPayload datatypes.JSONMap) error {
	if !job.Status.CanTransition(models.JobFailed) {
		return fmt.Errorf("job %s cannot move from %s to failed", job.ID, job.Status)
	}
	job.Status = models.JobFailed
	job.ErrorPayload = errorPayload
	return r.persist(job)
}

func (r *jobRepository) persist(job *models.AsyncJob) error {
	job.UpdatedAt = time.Now().UTC()
	if err := r.db.Save(job).Error; err != nil {
		return fmt.Errorf("failed to persist job: %w", err)
	}
	return nil
}
