package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ScoringMethodRule = "rule"
	ScoringMethodGPT  = "gpt"
)

// Score is one scoring row per snapshot: written at submission time for
// non-essay questions and by the gpt stage for essays.
type Score struct {
	ID                 uuid.UUID         `gorm:"type:varchar(36);primaryKey" json:"id"`
	AssessmentID       uuid.UUID         `gorm:"type:varchar(36);not null;index:idx_score_assessment;uniqueIndex:uq_score_per_question" json:"assessment_id"`
	QuestionSnapshotID uuid.UUID         `gorm:"type:varchar(36);not null;uniqueIndex:uq_score_per_question" json:"question_snapshot_id"`
	QuestionType       QuestionType      `gorm:"type:varchar(20);not null" json:"question_type"`
	Score              float64           `gorm:"not null" json:"score"`
	MaxScore           float64           `gorm:"not null;default:100" json:"max_score"`
	Explanation        string            `gorm:"type:text" json:"explanation,omitempty"`
	ScoringMethod      string            `gorm:"type:varchar(32);not null" json:"scoring_method"`
	RulesApplied       datatypes.JSONMap `json:"rules_applied,omitempty"`
	ModelInfo          datatypes.JSONMap `json:"model_info,omitempty"`
	CreatedAt          time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Score) TableName() string {
	return "scores"
}
