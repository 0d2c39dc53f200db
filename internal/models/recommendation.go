package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Recommendation holds the fusion summary for an assessment. Upserted by the
// rag stage (query/trace/items) and finalized by fusion (summary/breakdown).
type Recommendation struct {
	ID                   uuid.UUID         `gorm:"type:varchar(36);primaryKey" json:"id"`
	AssessmentID         uuid.UUID         `gorm:"type:varchar(36);not null;uniqueIndex" json:"assessment_id"`
	Summary              string            `gorm:"type:text;not null" json:"summary"`
	OverallScore         float64           `gorm:"not null" json:"overall_score"`
	Degraded             bool              `gorm:"not null;default:false" json:"degraded"`
	RetrievalQuery       string            `gorm:"type:text" json:"retrieval_query,omitempty"`
	RetrievalTrace       datatypes.JSONMap `json:"retrieval_trace,omitempty"`
	ScoreBreakdown       datatypes.JSONMap `json:"score_breakdown,omitempty"`
	ProcessingDurationMS int               `json:"processing_duration_ms,omitempty"`
	CreatedAt            time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`

	Items []RecommendationItem `gorm:"foreignKey:RecommendationID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (Recommendation) TableName() string {
	return "recommendations"
}

// RecommendationItem is one ranked course match. Rank 1 is the top match.
type RecommendationItem struct {
	ID               uuid.UUID         `gorm:"type:varchar(36);primaryKey" json:"id"`
	RecommendationID uuid.UUID         `gorm:"type:varchar(36);not null;index" json:"recommendation_id"`
	Rank             int               `gorm:"not null" json:"rank"`
	CourseID         string            `gorm:"type:varchar(64);not null" json:"course_id"`
	CourseTitle      string            `gorm:"type:varchar(512);not null" json:"course_title"`
	CourseURL        string            `gorm:"type:varchar(512)" json:"course_url,omitempty"`
	RelevanceScore   float64           `gorm:"not null" json:"relevance_score"`
	MatchReason      string            `gorm:"type:text" json:"match_reason,omitempty"`
	CourseMetadata   datatypes.JSONMap `json:"course_metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (RecommendationItem) TableName() string {
	return "recommendation_items"
}
