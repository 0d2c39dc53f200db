package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionTheoretical QuestionType = "theoretical"
	QuestionEssay       QuestionType = "essay"
	QuestionProfile     QuestionType = "profile"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestionSnapshot is an immutable copy of a question template frozen at
// assessment-creation time, so scoring stays stable even if the template
// catalog changes afterwards.
type QuestionSnapshot struct {
	ID             uuid.UUID         `gorm:"type:varchar(36);primaryKey" json:"id"`
	AssessmentID   uuid.UUID         `gorm:"type:varchar(36);not null;index" json:"assessment_id"`
	Sequence       int               `gorm:"not null" json:"sequence"`
	QuestionType   QuestionType      `gorm:"type:varchar(20);not null" json:"question_type"`
	Prompt         string            `gorm:"type:text;not null" json:"prompt"`
	Weight         float64           `gorm:"not null;default:1.0" json:"weight"`
	Difficulty     Difficulty        `gorm:"type:varchar(10)" json:"difficulty,omitempty"`
	Dimension      string            `gorm:"type:varchar(64)" json:"dimension,omitempty"`
	CorrectAnswer  *string           `gorm:"type:text" json:"correct_answer,omitempty"`
	ExpectedValues datatypes.JSONMap `json:"expected_values,omitempty"`
	Options        datatypes.JSON    `json:"options,omitempty"`
	CreatedAt      time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (QuestionSnapshot) TableName() string {
	return "question_snapshots"
}

// EffectiveWeight never returns zero so a snapshot without an explicit
// weight still contributes a full 100-point bucket.
func (q *QuestionSnapshot) EffectiveWeight() float64 {
	if q.Weight <= 0 {
		return 1.0
	}
	return q.Weight
}

// Response holds the answer for one snapshot. The Data payload is
// type-specific: selected_option (theoretical), answer (essay), value
// (profile). Mutable until submission locks it.
type Response struct {
	ID                 uuid.UUID         `gorm:"type:varchar(36);primaryKey" json:"id"`
	AssessmentID       uuid.UUID         `gorm:"type:varchar(36);not null;index" json:"assessment_id"`
	QuestionSnapshotID uuid.UUID         `gorm:"type:varchar(36);not null;uniqueIndex" json:"question_snapshot_id"`
	Data               datatypes.JSONMap `gorm:"not null" json:"data"`
	CreatedAt          time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Response) TableName() string {
	return "responses"
}

// StringField returns a trimmed string value from the response payload.
func (r *Response) StringField(key string) string {
	if r == nil || r.Data == nil {
		return ""
	}
	if v, ok := r.Data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
