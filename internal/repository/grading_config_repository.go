package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ErrVersionConflict is returned when a grading config was updated concurrently.
var ErrVersionConflict = errors.New("grading config version conflict")

// GradingConfigRepository persists institution grading configurations as JSONB documents.
type GradingConfigRepository struct {
	db *sqlx.DB
}

// NewGradingConfigRepository creates a new repository instance.
func NewGradingConfigRepository(db *sqlx.DB) *GradingConfigRepository {
	return &GradingConfigRepository{db: db}
}

// FindByInstitution returns the active configuration of an institution.
func (r *GradingConfigRepository) FindByInstitution(ctx context.Context, institutionID string) (*models.GradingConfigRecord, error) {
	const query = `SELECT id, institution_id, payload, version, updated_by, created_at, updated_at
        FROM grading_configs WHERE institution_id = $1`
	var record models.GradingConfigRecord
	if err := r.db.GetContext(ctx, &record, query, institutionID); err != nil {
		return nil, err
	}
	return &record, nil
}

// Save stores record as the next version of the institution's configuration. record.Version
// must be exactly one above the stored version (1 when nothing is stored yet); otherwise
// ErrVersionConflict is returned and nothing is written. Every saved version is kept in
// grading_config_history.
func (r *GradingConfigRepository) Save(ctx context.Context, record *models.GradingConfigRecord) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grading config transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		ID        string    `db:"id"`
		Version   int       `db:"version"`
		CreatedAt time.Time `db:"created_at"`
	}
	const lockQuery = `SELECT id, version, created_at FROM grading_configs WHERE institution_id = $1 FOR UPDATE`
	err = tx.GetContext(ctx, &current, lockQuery, record.InstitutionID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current.Version = 0
		err = nil
	case err != nil:
		return fmt.Errorf("lock grading config: %w", err)
	}
	if record.Version != current.Version+1 {
		err = ErrVersionConflict
		return err
	}

	now := time.Now().UTC()
	record.UpdatedAt = now
	if current.ID != "" {
		record.ID = current.ID
		record.CreatedAt = current.CreatedAt
		const updateQuery = `UPDATE grading_configs SET payload = :payload, version = :version, updated_by = :updated_by, updated_at = :updated_at
            WHERE id = :id`
		if _, err = tx.NamedExecContext(ctx, updateQuery, record); err != nil {
			return fmt.Errorf("update grading config: %w", err)
		}
	} else {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		record.CreatedAt = now
		const insertQuery = `INSERT INTO grading_configs (id, institution_id, payload, version, updated_by, created_at, updated_at)
            VALUES (:id, :institution_id, :payload, :version, :updated_by, :created_at, :updated_at)`
		if _, err = tx.NamedExecContext(ctx, insertQuery, record); err != nil {
			return fmt.Errorf("insert grading config: %w", err)
		}
	}

	const historyQuery = `INSERT INTO grading_config_history (id, institution_id, version, payload, updated_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.ExecContext(ctx, historyQuery, uuid.NewString(), record.InstitutionID, record.Version, record.Payload, record.UpdatedBy, now); err != nil {
		return fmt.Errorf("insert grading config history: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit grading config: %w", err)
	}
	return nil
}

// History lists stored versions, newest first.
func (r *GradingConfigRepository) History(ctx context.Context, institutionID string, limit int) ([]models.GradingConfigRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, institution_id, payload, version, updated_by, created_at, created_at AS updated_at
        FROM grading_config_history WHERE institution_id = $1 ORDER BY version DESC LIMIT $2`
	var records []models.GradingConfigRecord
	if err := r.db.SelectContext(ctx, &records, query, institutionID, limit); err != nil {
		return nil, fmt.Errorf("list grading config history: %w", err)
	}
	return records, nil
}
