package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// GradingConfigRecord is the stored form of an institution's GradingConfig.
type GradingConfigRecord struct {
	ID            string         `db:"id" json:"id"`
	InstitutionID string         `db:"institution_id" json:"institution_id"`
	Payload       types.JSONText `db:"payload" json:"payload"`
	Version       int            `db:"version" json:"version"`
	UpdatedBy     *string        `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// ScoreRecord stores one student's raw values for one period.
type ScoreRecord struct {
	ID            string         `db:"id" json:"id"`
	InstitutionID string         `db:"institution_id" json:"institution_id"`
	StudentID     string         `db:"student_id" json:"student_id"`
	PeriodID      string         `db:"period_id" json:"period_id"`
	Values        types.JSONText `db:"score_values" json:"values"`
	Note          string         `db:"note" json:"note"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// ScoreFilter scopes score listings.
type ScoreFilter struct {
	InstitutionID string
	StudentID     string
	PeriodID      string
	Page          int
	PageSize      int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
