package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type JobType string

const (
	JobGPT    JobType = "gpt"
	JobRAG    JobType = "rag"
	JobFusion JobType = "fusion"
)

// PipelineOrder is the fixed execution order for pipeline stages.
// Sequencing is not dependency-resolved; the runner always walks this list.
var PipelineOrder = []JobType{JobGPT, JobRAG, JobFusion}

// DefaultMaxAttempts bounds retries per job, counting the first run.
const DefaultMaxAttempts = 3

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// CanTransition enforces the job state machine. Completed is terminal.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobQueued:
		return to == JobInProgress
	case JobInProgress:
		return to == JobCompleted || to == JobFailed
	case JobFailed:
		return to == JobInProgress
	default:
		return false
	}
}

// AsyncJob tracks one pipeline stage for one assessment. Created atomically
// with submission; owned exclusively by the pipeline runner afterwards.
type AsyncJob struct {
	ID           uuid.UUID         `gorm:"type:varchar(36);primaryKey" json:"id"`
	AssessmentID uuid.UUID         `gorm:"type:varchar(36);not null;index" json:"assessment_id"`
	JobType      JobType           `gorm:"type:varchar(20);not null" json:"job_type"`
	Status       JobStatus         `gorm:"type:varchar(20);not null;default:'queued';index" json:"status"`
	Attempts     int               `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts  int               `gorm:"not null;default:3" json:"max_attempts"`
	Payload      datatypes.JSONMap `json:"payload,omitempty"`
	ErrorPayload datatypes.JSONMap `json:"error_payload,omitempty"`
	QueuedAt     time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"queued_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (AsyncJob) TableName() string {
	return "async_jobs"
}

// Retryable reports whether the runner may pick this job up again.
func (j *AsyncJob) Retryable() bool {
	if j.Status == JobQueued {
		return true
	}
	return j.Status == JobFailed && j.Attempts < j.MaxAttempts
}
