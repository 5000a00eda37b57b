package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ScoreMutation derives the next stored values and note of a period from the current ones.
type ScoreMutation func(current models.PeriodScores) (models.PeriodScores, error)

// ScoreRepository persists raw component scores, one row per student and period.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository creates a new repository instance.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// ListByStudent returns every stored period of a student.
func (r *ScoreRepository) ListByStudent(ctx context.Context, institutionID, studentID string) ([]models.ScoreRecord, error) {
	const query = `SELECT id, institution_id, student_id, period_id, score_values, note, updated_at
        FROM student_scores WHERE institution_id = $1 AND student_id = $2 ORDER BY period_id`
	var records []models.ScoreRecord
	if err := r.db.SelectContext(ctx, &records, query, institutionID, studentID); err != nil {
		return nil, fmt.Errorf("list student scores: %w", err)
	}
	return records, nil
}

// ListStudentIDs returns the students of an institution that have at least one stored period.
func (r *ScoreRepository) ListStudentIDs(ctx context.Context, filter models.ScoreFilter) ([]string, int, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 100
	}

	const countQuery = `SELECT COUNT(DISTINCT student_id) FROM student_scores WHERE institution_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, filter.InstitutionID); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	const query = `SELECT DISTINCT student_id FROM student_scores WHERE institution_id = $1
        ORDER BY student_id LIMIT $2 OFFSET $3`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, filter.InstitutionID, size, (page-1)*size); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	return ids, total, nil
}

// Mutate runs fn against the stored values of one student period inside a transaction that
// holds a row lock, so concurrent writes to the same period are applied one after another.
func (r *ScoreRepository) Mutate(ctx context.Context, institutionID, studentID, periodID string, fn ScoreMutation) (record *models.ScoreRecord, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin score transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const ensureQuery = `INSERT INTO student_scores (id, institution_id, student_id, period_id, score_values, note, updated_at)
        VALUES ($1, $2, $3, $4, '{}', '', $5)
        ON CONFLICT (institution_id, student_id, period_id) DO NOTHING`
	if _, err = tx.ExecContext(ctx, ensureQuery, uuid.NewString(), institutionID, studentID, periodID, now); err != nil {
		return nil, fmt.Errorf("ensure score row: %w", err)
	}

	var current models.ScoreRecord
	const lockQuery = `SELECT id, institution_id, student_id, period_id, score_values, note, updated_at
        FROM student_scores WHERE institution_id = $1 AND student_id = $2 AND period_id = $3 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, institutionID, studentID, periodID); err != nil {
		return nil, fmt.Errorf("lock score row: %w", err)
	}

	values, err := DecodeScoreValues(current.Values)
	if err != nil {
		return nil, err
	}
	next, err := fn(models.PeriodScores{Values: values, Note: current.Note})
	if err != nil {
		return nil, err
	}
	if next.Values == nil {
		next.Values = map[string]float64{}
	}
	payload, err := json.Marshal(next.Values)
	if err != nil {
		return nil, fmt.Errorf("encode score values: %w", err)
	}

	current.Values = types.JSONText(payload)
	current.Note = next.Note
	current.UpdatedAt = now
	const updateQuery = `UPDATE student_scores SET score_values = $1, note = $2, updated_at = $3 WHERE id = $4`
	if _, err = tx.ExecContext(ctx, updateQuery, current.Values, current.Note, now, current.ID); err != nil {
		return nil, fmt.Errorf("update score row: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit score row: %w", err)
	}
	return &current, nil
}

// DecodeScoreValues reads a JSONB score document. An empty document yields an empty map.
func DecodeScoreValues(raw types.JSONText) (map[string]float64, error) {
	values := make(map[string]float64)
	if len(raw) == 0 {
		return values, nil
	}
	if err := raw.Unmarshal(&values); err != nil {
		return nil, fmt.Errorf("decode score values: %w", err)
	}
	return values, nil
}
