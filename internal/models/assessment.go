package models

import (
	"time"

	"github.com/google/uuid"
)

type AssessmentStatus string

const (
	AssessmentDraft      AssessmentStatus = "draft"
	AssessmentInProgress AssessmentStatus = "in_progress"
	AssessmentSubmitted  AssessmentStatus = "submitted"
	AssessmentCompleted  AssessmentStatus = "completed"
	AssessmentFailed     AssessmentStatus = "failed"
)

// Terminal reports whether the assessment can no longer be submitted.
func (s AssessmentStatus) Terminal() bool {
	return s == AssessmentSubmitted || s == AssessmentCompleted || s == AssessmentFailed
}

type Assessment struct {
	ID             uuid.UUID        `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID        string           `gorm:"type:varchar(64);not null;index" json:"owner_id"`
	RoleSlug       string           `gorm:"type:varchar(64);not null" json:"role_slug"`
	Status         AssessmentStatus `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	Degraded       bool             `gorm:"not null;default:false" json:"degraded"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
	WebhookURL     *string          `gorm:"type:varchar(512)" json:"webhook_url,omitempty"`
	IdempotencyKey *string          `gorm:"type:varchar(64);uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time        `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	SubmittedAt    *time.Time       `json:"submitted_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`

	// Relations
	Snapshots      []QuestionSnapshot `gorm:"foreignKey:AssessmentID;constraint:OnDelete:CASCADE" json:"-"`
	Responses      []Response         `gorm:"foreignKey:AssessmentID;constraint:OnDelete:CASCADE" json:"-"`
	Scores         []Score            `gorm:"foreignKey:AssessmentID;constraint:OnDelete:CASCADE" json:"-"`
	Jobs           []AsyncJob         `gorm:"foreignKey:AssessmentID;constraint:OnDelete:CASCADE" json:"-"`
	Recommendation *Recommendation    `gorm:"foreignKey:AssessmentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Assessment) TableName() string {
	return "assessments"
}
